// Package flow provides the question progression engine.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/report"
)

// FallbackCompletionMessage closes a survey that has no final question template.
const FallbackCompletionMessage = "Thank you for your time. The survey is complete."

// Decision is the outcome of one progression step.
type Decision struct {
	// NextQuestion is the first unanswered question in order, nil when the
	// survey is completed.
	NextQuestion *models.QuestionTemplate
	// Message is the user-facing outbound message for this step.
	Message string
	// Completed is true when no unanswered question remains or the final
	// question has been answered.
	Completed bool
}

// ProgressionEngine decides the next unanswered question, or completion, and
// produces the combined outbound message via the language collaborator.
type ProgressionEngine struct {
	language LanguageService
}

// NewProgressionEngine creates a question progression engine.
func NewProgressionEngine(language LanguageService) *ProgressionEngine {
	slog.Debug("flow.NewProgressionEngine: creating engine", "hasLanguage", language != nil)
	return &ProgressionEngine{language: language}
}

// DecideNext walks the survey's questions in ascending order and returns the
// first whose data key is unanswered. lastAnswered, when non-nil, is the
// question the client just answered; its success template is folded into the
// outbound message. The engine never returns a question that is already
// answered, and a completed report stays completed on repeated calls.
func (p *ProgressionEngine) DecideNext(ctx context.Context, rep *models.Report, survey *models.Survey, lastAnswered *models.QuestionTemplate) (Decision, error) {
	ordered := questionsInOrder(survey)
	if len(ordered) == 0 {
		return Decision{}, fmt.Errorf("survey %s has no questions", survey.ID)
	}

	var next *models.QuestionTemplate
	finalAnswered := false
	for _, q := range ordered {
		answered := report.IsAnswered(rep, q.DataKey)
		if q.Final && answered {
			finalAnswered = true
		}
		if next == nil && !answered {
			next = q
		}
	}

	tctx := TemplateContext{
		CurrentDataState:     report.Flatten(rep),
		PreviousConversation: report.ConversationPairs(rep),
	}

	if next == nil || finalAnswered {
		message, err := p.completionMessage(ctx, survey, tctx)
		if err != nil {
			return Decision{}, err
		}
		slog.Info("ProgressionEngine.DecideNext: survey completed", "sessionID", rep.SessionID, "finalAnswered", finalAnswered)
		return Decision{Message: message, Completed: true}, nil
	}

	var message string
	var err error
	if lastAnswered != nil && lastAnswered.SuccessTemplate != "" {
		message, err = p.language.CombineSuccessWithQuestion(ctx, lastAnswered.SuccessTemplate, next.QuestionTemplate, tctx)
	} else {
		message, err = p.language.RephraseQuestion(ctx, next.QuestionTemplate, tctx)
	}
	if err != nil {
		slog.Error("ProgressionEngine.DecideNext: message generation failed", "error", err, "sessionID", rep.SessionID, "nextKey", next.DataKey)
		return Decision{}, err
	}

	slog.Debug("ProgressionEngine.DecideNext: next question selected", "sessionID", rep.SessionID, "nextKey", next.DataKey, "nextOrder", next.Order)
	return Decision{NextQuestion: next, Message: message}, nil
}

// FailMessage produces the fail-template branch message: the current
// question's fail template combined with a rephrased repeat of the question.
func (p *ProgressionEngine) FailMessage(ctx context.Context, rep *models.Report, current *models.QuestionTemplate) (string, error) {
	tctx := TemplateContext{
		CurrentDataState:     report.Flatten(rep),
		PreviousConversation: report.ConversationPairs(rep),
	}
	message, err := p.language.CombineFailWithQuestion(ctx, current.FailTemplate, current.QuestionTemplate, tctx)
	if err != nil {
		slog.Error("ProgressionEngine.FailMessage: message generation failed", "error", err, "sessionID", rep.SessionID, "currentKey", current.DataKey)
		return "", err
	}
	return message, nil
}

// completionMessage words the closing message from the final question's
// success template, falling back to a generic thank-you when no final
// template exists.
func (p *ProgressionEngine) completionMessage(ctx context.Context, survey *models.Survey, tctx TemplateContext) (string, error) {
	final := survey.FinalQuestion()
	if final == nil || final.SuccessTemplate == "" {
		return FallbackCompletionMessage, nil
	}
	return p.language.RephraseCompletion(ctx, final.SuccessTemplate, tctx)
}
