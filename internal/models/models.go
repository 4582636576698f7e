// Package models defines the core data structures for SurveyPipe.
//
// It includes survey and question template types, API payloads, and the
// response envelope shared across modules.
package models

import (
	"errors"
	"strings"
)

// QuestionType defines how a question's answer is interpreted.
type QuestionType string

const (
	// QuestionTypeFreeform stores the raw client answer under the question's data key.
	QuestionTypeFreeform QuestionType = "freeform"
	// QuestionTypeChoice expects one of a small set of values.
	QuestionTypeChoice QuestionType = "choice"
)

// Validation constants for input validation
const (
	// MaxAnswerTextLength defines the maximum allowed length for a client answer
	MaxAnswerTextLength = 4096
	// MaxTemplateLength defines the maximum allowed length for question/success/fail templates
	MaxTemplateLength = 1000
	// MaxQuestionsPerSurvey defines the maximum number of question templates per survey
	MaxQuestionsPerSurvey = 50
)

// Error variables for better error handling and testability
var (
	ErrSurveyNotFound  = errors.New("survey not found")
	ErrSessionNotFound = errors.New("session not found")
	// ErrMalformedCollaboratorOutput indicates unparsable output from the language collaborator.
	ErrMalformedCollaboratorOutput = errors.New("malformed collaborator output")
	// ErrCollaboratorUnavailable indicates the language collaborator could not be reached.
	ErrCollaboratorUnavailable = errors.New("language collaborator unavailable")
	// ErrVersionConflict indicates a concurrent report write was detected.
	ErrVersionConflict = errors.New("report version conflict")

	ErrEmptyExternalID   = errors.New("external_id cannot be empty")
	ErrNoQuestions       = errors.New("at least one question template is required")
	ErrTooManyQuestions  = errors.New("too many question templates")
	ErrEmptyDataKey      = errors.New("question data_key cannot be empty")
	ErrDuplicateDataKey  = errors.New("duplicate question data_key")
	ErrDuplicateOrder    = errors.New("duplicate question order")
	ErrMultipleFinal     = errors.New("at most one question may be marked final")
	ErrEmptyQuestionText = errors.New("question_template cannot be empty")
	ErrTemplateTooLong   = errors.New("template exceeds maximum length")
	ErrEmptySessionID    = errors.New("session_id cannot be empty")
	ErrEmptyAnswerText   = errors.New("answer_text cannot be empty")
	ErrAnswerTextTooLong = errors.New("answer_text exceeds maximum length")
	ErrInvalidQuestion   = errors.New("invalid question type")
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeFreeform, QuestionTypeChoice:
		return true
	default:
		return false
	}
}

// QuestionTemplate is one survey question. Immutable once created; owned by
// the survey. At most one template per survey may be marked Final.
type QuestionTemplate struct {
	ID               int          `json:"id"`
	Order            int          `json:"order"`
	DataKey          string       `json:"data_key"`
	Type             QuestionType `json:"type"`
	QuestionTemplate string       `json:"question_template"`
	SuccessTemplate  string       `json:"success_template,omitempty"`
	FailTemplate     string       `json:"fail_template,omitempty"`
	Final            bool         `json:"final,omitempty"`
}

// Validate performs validation on a single question template.
func (q *QuestionTemplate) Validate() error {
	if strings.TrimSpace(q.DataKey) == "" {
		return ErrEmptyDataKey
	}
	if strings.TrimSpace(q.QuestionTemplate) == "" {
		return ErrEmptyQuestionText
	}
	if q.Type == "" {
		q.Type = QuestionTypeFreeform
	}
	if !IsValidQuestionType(q.Type) {
		return ErrInvalidQuestion
	}
	for _, tmpl := range []string{q.QuestionTemplate, q.SuccessTemplate, q.FailTemplate} {
		if len(tmpl) > MaxTemplateLength {
			return ErrTemplateTooLong
		}
	}
	return nil
}

// Survey is an ordered set of question templates addressable by an external id.
type Survey struct {
	ID         string             `json:"id"`
	ExternalID string             `json:"external_id"`
	Name       string             `json:"name,omitempty"`
	Questions  []QuestionTemplate `json:"questions"`
}

// Validate performs comprehensive validation on a Survey structure.
func (s *Survey) Validate() error {
	if strings.TrimSpace(s.ExternalID) == "" {
		return ErrEmptyExternalID
	}
	if len(s.Questions) == 0 {
		return ErrNoQuestions
	}
	if len(s.Questions) > MaxQuestionsPerSurvey {
		return ErrTooManyQuestions
	}
	seenKeys := make(map[string]bool)
	seenOrders := make(map[int]bool)
	finalCount := 0
	for i := range s.Questions {
		q := &s.Questions[i]
		if err := q.Validate(); err != nil {
			return err
		}
		if seenKeys[q.DataKey] {
			return ErrDuplicateDataKey
		}
		seenKeys[q.DataKey] = true
		if seenOrders[q.Order] {
			return ErrDuplicateOrder
		}
		seenOrders[q.Order] = true
		if q.Final {
			finalCount++
		}
	}
	if finalCount > 1 {
		return ErrMultipleFinal
	}
	return nil
}

// FinalQuestion returns the survey's final question template, if any.
func (s *Survey) FinalQuestion() *QuestionTemplate {
	for i := range s.Questions {
		if s.Questions[i].Final {
			return &s.Questions[i]
		}
	}
	return nil
}

// QuestionByID returns the question template with the given id, if any.
func (s *Survey) QuestionByID(id int) *QuestionTemplate {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// SurveyCreateRequest represents the payload for creating a survey.
type SurveyCreateRequest struct {
	ExternalID string             `json:"external_id" validate:"required"`
	Name       string             `json:"name,omitempty"`
	Questions  []QuestionTemplate `json:"questions" validate:"required"`
}

// Validate validates a SurveyCreateRequest.
func (r *SurveyCreateRequest) Validate() error {
	s := Survey{ExternalID: r.ExternalID, Name: r.Name, Questions: r.Questions}
	return s.Validate()
}

// SessionInitResult is returned when a session is started.
type SessionInitResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Completed bool   `json:"completed"`
}

// SessionRespondRequest represents the payload for one client turn.
type SessionRespondRequest struct {
	SessionID  string `json:"session_id" validate:"required"`
	AnswerText string `json:"answer_text" validate:"required"`
}

// Validate validates a SessionRespondRequest.
func (r *SessionRespondRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return ErrEmptySessionID
	}
	if strings.TrimSpace(r.AnswerText) == "" {
		return ErrEmptyAnswerText
	}
	if len(r.AnswerText) > MaxAnswerTextLength {
		return ErrAnswerTextTooLong
	}
	return nil
}

// SessionTurnResult is returned for each processed turn.
type SessionTurnResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Completed bool   `json:"completed"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
