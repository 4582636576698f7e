// Package flow provides the passthrough language collaborator.
package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SurveyPipe/internal/report"
)

// PassthroughLanguageService is a LanguageService that performs no language
// understanding: templates are returned unchanged, combinations are joined
// with a blank line, and extraction assigns the whole client message to the
// current question's data key. Used in tests and in environments without a
// live model.
type PassthroughLanguageService struct{}

// NewPassthroughLanguageService creates a passthrough language collaborator.
func NewPassthroughLanguageService() *PassthroughLanguageService {
	slog.Debug("flow.NewPassthroughLanguageService: creating passthrough collaborator")
	return &PassthroughLanguageService{}
}

// ExtractData treats the whole message as the answer to the current question.
func (p *PassthroughLanguageService) ExtractData(ctx context.Context, req ExtractionRequest) (map[string]string, error) {
	if !report.IsUsableAnswer(req.Text) {
		return nil, nil
	}
	return map[string]string{req.CurrentQuestionDataKey: req.Text}, nil
}

// RephraseQuestion returns the template unchanged.
func (p *PassthroughLanguageService) RephraseQuestion(ctx context.Context, questionTemplate string, tctx TemplateContext) (string, error) {
	return questionTemplate, nil
}

// CombineSuccessWithQuestion joins the two templates with a blank line.
func (p *PassthroughLanguageService) CombineSuccessWithQuestion(ctx context.Context, successTemplate, questionTemplate string, tctx TemplateContext) (string, error) {
	return joinTemplates(successTemplate, questionTemplate), nil
}

// CombineFailWithQuestion joins the two templates with a blank line.
func (p *PassthroughLanguageService) CombineFailWithQuestion(ctx context.Context, failTemplate, questionTemplate string, tctx TemplateContext) (string, error) {
	return joinTemplates(failTemplate, questionTemplate), nil
}

// RephraseCompletion returns the template unchanged.
func (p *PassthroughLanguageService) RephraseCompletion(ctx context.Context, successTemplate string, tctx TemplateContext) (string, error) {
	return successTemplate, nil
}

// joinTemplates concatenates non-empty parts with a blank line between them.
func joinTemplates(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n\n")
}
