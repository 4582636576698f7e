// Package flow provides the session orchestrator.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/report"
	"github.com/BTreeMap/SurveyPipe/internal/store"
	"github.com/BTreeMap/SurveyPipe/internal/util"
)

// Orchestrator glues the extraction merge engine and the question progression
// engine together per inbound turn. Each turn builds the full next report
// value in memory and persists it once, so a failed turn is never partially
// committed.
type Orchestrator struct {
	st          store.Store
	extraction  *ExtractionEngine
	progression *ProgressionEngine
}

// NewOrchestrator creates a session orchestrator with its two engines.
func NewOrchestrator(st store.Store, language LanguageService) *Orchestrator {
	slog.Debug("flow.NewOrchestrator: creating orchestrator", "hasStore", st != nil, "hasLanguage", language != nil)
	return &Orchestrator{
		st:          st,
		extraction:  NewExtractionEngine(language),
		progression: NewProgressionEngine(language),
	}
}

// StartSession resolves the survey by external id, creates an empty report,
// and asks the progression engine for the first question.
func (o *Orchestrator) StartSession(ctx context.Context, externalID string) (*models.SessionInitResult, error) {
	survey, err := o.st.GetSurveyByExternalID(externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up survey %s: %w", externalID, err)
	}
	if survey == nil {
		slog.Warn("Orchestrator.StartSession: survey not found", "externalID", externalID)
		return nil, models.ErrSurveyNotFound
	}

	sessionID := util.GenerateSessionID()
	rep := report.New(sessionID)
	slog.Info("Orchestrator.StartSession: session created", "sessionID", sessionID, "surveyID", survey.ID)

	decision, err := o.progression.DecideNext(ctx, rep, survey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decide first question: %w", err)
	}
	o.recordAgentMessage(rep, decision)

	now := time.Now()
	state := models.SessionState{
		SessionID: sessionID,
		SurveyID:  survey.ID,
		Completed: decision.Completed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if decision.NextQuestion != nil {
		state.CurrentOrder = decision.NextQuestion.Order
	}

	if err := o.st.SaveReport(rep, 0); err != nil {
		return nil, fmt.Errorf("failed to save initial report: %w", err)
	}
	if err := o.st.SaveSession(state); err != nil {
		return nil, fmt.Errorf("failed to save session state: %w", err)
	}

	slog.Info("Orchestrator.StartSession: first question issued", "sessionID", sessionID, "completed", decision.Completed)
	return &models.SessionInitResult{
		SessionID: sessionID,
		Message:   decision.Message,
		Completed: decision.Completed,
	}, nil
}

// HandleTurn processes one client message: extraction merge, then question
// progression, then a single whole-document persist. A turn submitted after
// completion is a no-op that re-acknowledges completion.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, clientText string) (*models.SessionTurnResult, error) {
	state, err := o.st.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if state == nil {
		slog.Warn("Orchestrator.HandleTurn: session not found", "sessionID", sessionID)
		return nil, models.ErrSessionNotFound
	}
	if state.Completed {
		slog.Info("Orchestrator.HandleTurn: turn after completion ignored", "sessionID", sessionID)
		return &models.SessionTurnResult{
			SessionID: sessionID,
			Message:   FallbackCompletionMessage,
			Completed: true,
		}, nil
	}

	survey, err := o.st.GetSurvey(state.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load survey %s: %w", state.SurveyID, err)
	}
	if survey == nil {
		return nil, models.ErrSurveyNotFound
	}
	rep, err := o.st.GetReport(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", sessionID, err)
	}
	if rep == nil {
		rep = report.New(sessionID)
	}
	readVersion := rep.Version

	// The session state carries the question being answered; the engine only
	// falls back to transcript scanning when the state has no match.
	current := questionByOrder(survey, state.CurrentOrder)

	merge, err := o.extraction.ExtractAndMerge(ctx, rep, clientText, current, survey)
	if err != nil {
		return nil, err
	}

	if merge.Failed {
		failQuestion := current
		if failQuestion == nil {
			failQuestion = inferCurrentQuestion(rep, survey)
		}
		message, err := o.progression.FailMessage(ctx, merge.Report, failQuestion)
		if err != nil {
			return nil, err
		}
		o.recordAgentMessage(merge.Report, Decision{NextQuestion: failQuestion, Message: message})
		if err := o.st.SaveReport(merge.Report, readVersion); err != nil {
			return nil, fmt.Errorf("failed to save report for session %s: %w", sessionID, err)
		}
		slog.Info("Orchestrator.HandleTurn: fail branch issued", "sessionID", sessionID, "currentOrder", state.CurrentOrder)
		return &models.SessionTurnResult{SessionID: sessionID, Message: message, Completed: false}, nil
	}

	var lastAnswered *models.QuestionTemplate
	if current != nil && report.IsAnswered(merge.Report, current.DataKey) {
		lastAnswered = current
	}

	decision, err := o.progression.DecideNext(ctx, merge.Report, survey, lastAnswered)
	if err != nil {
		return nil, err
	}
	o.recordAgentMessage(merge.Report, decision)

	if err := o.st.SaveReport(merge.Report, readVersion); err != nil {
		return nil, fmt.Errorf("failed to save report for session %s: %w", sessionID, err)
	}

	state.UpdatedAt = time.Now()
	if decision.Completed {
		state.Completed = true
	} else if decision.NextQuestion.Order > state.CurrentOrder {
		state.CurrentOrder = decision.NextQuestion.Order
	}
	if err := o.st.SaveSession(*state); err != nil {
		return nil, fmt.Errorf("failed to save session state %s: %w", sessionID, err)
	}

	slog.Info("Orchestrator.HandleTurn: turn processed", "sessionID", sessionID, "completed", decision.Completed, "currentOrder", state.CurrentOrder)
	return &models.SessionTurnResult{
		SessionID: sessionID,
		Message:   decision.Message,
		Completed: decision.Completed,
	}, nil
}

// recordAgentMessage appends the outbound message to the transcript before
// the next extraction call, so the engine can locate the question currently
// being answered.
func (o *Orchestrator) recordAgentMessage(rep *models.Report, decision Decision) {
	entry := models.ConversationEntry{
		Author: models.AuthorAgent,
		Text:   decision.Message,
	}
	if decision.NextQuestion != nil {
		qid := decision.NextQuestion.ID
		entry.QuestionID = &qid
	}
	report.AppendConversation(rep, entry)
}

// questionByOrder returns the question with the given order, if any.
func questionByOrder(survey *models.Survey, order int) *models.QuestionTemplate {
	for i := range survey.Questions {
		if survey.Questions[i].Order == order {
			return &survey.Questions[i]
		}
	}
	return nil
}
