// Package flow provides the extraction merge engine.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/report"
)

// MergeResult is the outcome of one extraction-merge pass.
type MergeResult struct {
	// Report is the updated report copy; the caller persists it whole.
	Report *models.Report
	// Failed is true when the collaborator found no usable data and the
	// caller must take the fail-template branch.
	Failed bool
	// CreatedDataIDs lists the data entries the client message produced.
	CreatedDataIDs []string
}

// ExtractionEngine merges structured data extracted from free-text answers
// into the report under the freeform/extracted classification rules.
type ExtractionEngine struct {
	language LanguageService
}

// NewExtractionEngine creates an extraction merge engine.
func NewExtractionEngine(language LanguageService) *ExtractionEngine {
	slog.Debug("flow.NewExtractionEngine: creating engine", "hasLanguage", language != nil)
	return &ExtractionEngine{language: language}
}

// ExtractAndMerge runs extraction for one client message and merges the
// results into a copy of the report. The input report is never mutated; on a
// collaborator transport error no copy is returned and nothing may be
// persisted. currentQuestion may be nil, in which case the question being
// answered is inferred from the conversation tail, defaulting to the first
// question in order.
func (e *ExtractionEngine) ExtractAndMerge(ctx context.Context, rep *models.Report, clientText string, currentQuestion *models.QuestionTemplate, survey *models.Survey) (*MergeResult, error) {
	current := currentQuestion
	if current == nil {
		current = inferCurrentQuestion(rep, survey)
	}
	if current == nil {
		return nil, fmt.Errorf("survey %s has no questions to answer", survey.ID)
	}
	slog.Debug("ExtractionEngine.ExtractAndMerge: processing message", "sessionID", rep.SessionID, "currentKey", current.DataKey, "textLength", len(clientText))

	allKeys := make([]string, 0, len(survey.Questions))
	allTypes := make(map[string]models.QuestionType, len(survey.Questions))
	for _, q := range survey.Questions {
		allKeys = append(allKeys, q.DataKey)
		allTypes[q.DataKey] = q.Type
	}

	values, err := e.language.ExtractData(ctx, ExtractionRequest{
		Text:                   clientText,
		CurrentQuestionDataKey: current.DataKey,
		CurrentQuestionType:    current.Type,
		AllDataKeys:            allKeys,
		AllQuestionTypes:       allTypes,
		CurrentDataState:       report.Flatten(rep),
		PreviousConversation:   report.ConversationPairs(rep),
	})
	if err != nil && !errors.Is(err, models.ErrMalformedCollaboratorOutput) {
		slog.Error("ExtractionEngine.ExtractAndMerge: collaborator unreachable", "error", err, "sessionID", rep.SessionID)
		return nil, err
	}
	if err != nil {
		slog.Warn("ExtractionEngine.ExtractAndMerge: malformed extraction, treating as failed", "error", err, "sessionID", rep.SessionID)
		values = nil
	}

	updated := report.Clone(rep)
	var createdIDs []string
	for _, key := range sortedKeys(values) {
		value := values[key]
		if _, known := allTypes[key]; !known {
			slog.Warn("ExtractionEngine.ExtractAndMerge: dropping value for unknown key", "sessionID", rep.SessionID, "key", key)
			continue
		}
		if !report.IsUsableAnswer(value) {
			slog.Debug("ExtractionEngine.ExtractAndMerge: dropping empty value", "sessionID", rep.SessionID, "key", key)
			continue
		}
		var id string
		if key == current.DataKey {
			id = report.UpsertFreeform(updated, key, value)
		} else {
			id = report.AppendExtracted(updated, key, value)
		}
		createdIDs = append(createdIDs, id)
	}

	// The raw client message is recorded even when extraction failed.
	report.AppendConversation(updated, models.ConversationEntry{
		Author:  models.AuthorClient,
		Text:    clientText,
		DataIDs: createdIDs,
	})

	failed := len(createdIDs) == 0
	if failed {
		slog.Info("ExtractionEngine.ExtractAndMerge: no usable data extracted", "sessionID", rep.SessionID, "currentKey", current.DataKey)
	} else {
		slog.Debug("ExtractionEngine.ExtractAndMerge: merge complete", "sessionID", rep.SessionID, "entriesCreated", len(createdIDs))
	}
	return &MergeResult{Report: updated, Failed: failed, CreatedDataIDs: createdIDs}, nil
}

// inferCurrentQuestion finds the question the prior agent turn was about by
// scanning the conversation tail; with no agent turns it falls back to the
// first question in order.
func inferCurrentQuestion(rep *models.Report, survey *models.Survey) *models.QuestionTemplate {
	if qid := report.LastAgentQuestionID(rep); qid != nil {
		if q := survey.QuestionByID(*qid); q != nil {
			return q
		}
		slog.Warn("flow.inferCurrentQuestion: transcript references unknown question", "sessionID", rep.SessionID, "questionID", *qid)
	}
	ordered := questionsInOrder(survey)
	if len(ordered) == 0 {
		return nil
	}
	return ordered[0]
}

// questionsInOrder returns the survey's questions sorted by ascending order.
func questionsInOrder(survey *models.Survey) []*models.QuestionTemplate {
	ordered := make([]*models.QuestionTemplate, 0, len(survey.Questions))
	for i := range survey.Questions {
		ordered = append(ordered, &survey.Questions[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}

// sortedKeys returns map keys in deterministic order so merge results do not
// depend on map iteration.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
