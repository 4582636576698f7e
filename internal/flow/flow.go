// Package flow implements the conversational data-collection engines: the
// extraction merge engine, the question progression engine, and the session
// orchestrator that glues them together per inbound turn.
package flow

import (
	"context"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/report"
)

// ExtractionRequest carries everything the language collaborator needs to
// pull structured values out of one free-text client message.
type ExtractionRequest struct {
	Text                   string                         `json:"text"`
	CurrentQuestionDataKey string                         `json:"current_question_data_key"`
	CurrentQuestionType    models.QuestionType            `json:"current_question_type"`
	AllDataKeys            []string                       `json:"all_data_keys"`
	AllQuestionTypes       map[string]models.QuestionType `json:"all_question_types"`
	CurrentDataState       map[string]string              `json:"current_data_state,omitempty"`
	PreviousConversation   []report.QAPair                `json:"previous_conversation,omitempty"`
}

// TemplateContext is the optional context passed to the text-transform
// capabilities so the collaborator can word messages naturally.
type TemplateContext struct {
	CurrentDataState     map[string]string `json:"current_data_state,omitempty"`
	PreviousConversation []report.QAPair   `json:"previous_conversation,omitempty"`
}

// LanguageService is the pluggable language collaborator. ExtractData returns
// a map of data keys to extracted values; a nil map with a nil error means
// the text yielded no usable data at all (the fail-template branch). Errors
// wrapping models.ErrMalformedCollaboratorOutput are recovered the same way;
// any other error means the collaborator could not be reached and aborts the
// turn. The four text-transform capabilities own the exact wording of
// outbound messages; the engines only supply template strings and context.
type LanguageService interface {
	ExtractData(ctx context.Context, req ExtractionRequest) (map[string]string, error)
	RephraseQuestion(ctx context.Context, questionTemplate string, tctx TemplateContext) (string, error)
	CombineSuccessWithQuestion(ctx context.Context, successTemplate, questionTemplate string, tctx TemplateContext) (string, error)
	CombineFailWithQuestion(ctx context.Context, failTemplate, questionTemplate string, tctx TemplateContext) (string, error)
	RephraseCompletion(ctx context.Context, successTemplate string, tctx TemplateContext) (string, error)
}
