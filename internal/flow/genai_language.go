// Package flow provides the GenAI-backed language collaborator.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SurveyPipe/internal/genai"
	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// System prompts for the narrow language capabilities. Each capability is one
// small completion; the engines never depend on wording, only on structure.
const (
	extractionSystemPrompt = `You extract structured survey data from a free-text answer.
You receive a JSON request with the raw text, the data key of the question currently being answered, the full list of survey data keys with their types, the data already collected, and the prior question/answer history.
Reply with a single JSON object mapping data keys to string values extracted from the text.
Include the current question's key whenever the text answers it, and any other survey key the text clearly provides a value for.
Phrases meaning "nothing to report" (for example "none", "no problems") are valid values; keep them.
Use null for keys the text says nothing about, or omit them. If the text contains no usable data at all, reply with the JSON value null.
Reply with JSON only, no prose and no code fences.`

	rephraseQuestionSystemPrompt = `You word survey questions for a chat conversation.
Rephrase the given question template as one natural, friendly message. Keep the meaning exactly; do not add new questions. Reply with the message text only.`

	combineSuccessSystemPrompt = `You word survey messages for a chat conversation.
Combine the given acknowledgment template and the next question template into one natural message: briefly acknowledge, then ask. Keep both meanings exactly. Reply with the message text only.`

	combineFailSystemPrompt = `You word survey messages for a chat conversation.
The previous answer could not be understood. Combine the given failure template and the question template into one natural message that gently asks the question again. Reply with the message text only.`

	rephraseCompletionSystemPrompt = `You word survey messages for a chat conversation.
Rephrase the given template as a short closing message thanking the participant and confirming the survey is complete. Reply with the message text only.`
)

// GenAILanguageService implements LanguageService on top of a GenAI client.
type GenAILanguageService struct {
	genaiClient genai.ClientInterface
}

// NewGenAILanguageService creates a language collaborator backed by a GenAI client.
func NewGenAILanguageService(genaiClient genai.ClientInterface) *GenAILanguageService {
	slog.Debug("flow.NewGenAILanguageService: creating GenAI-backed collaborator", "hasGenAI", genaiClient != nil)
	return &GenAILanguageService{genaiClient: genaiClient}
}

// ExtractData asks the model for a JSON object of data key to value.
func (g *GenAILanguageService) ExtractData(ctx context.Context, req ExtractionRequest) (map[string]string, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	raw, err := g.genaiClient.GeneratePromptWithContext(ctx, extractionSystemPrompt, string(reqJSON))
	if err != nil {
		slog.Error("GenAILanguageService.ExtractData: completion failed", "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}

	cleaned := stripCodeFences(raw)
	if cleaned == "" || cleaned == "null" {
		slog.Debug("GenAILanguageService.ExtractData: model reported no usable data")
		return nil, nil
	}

	var parsed map[string]*string
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		slog.Warn("GenAILanguageService.ExtractData: unparsable model output", "error", err, "outputLength", len(raw))
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedCollaboratorOutput, err)
	}

	values := make(map[string]string, len(parsed))
	for key, value := range parsed {
		if value == nil {
			continue
		}
		values[key] = *value
	}
	slog.Debug("GenAILanguageService.ExtractData: extraction parsed", "keys", len(values))
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// RephraseQuestion words a single question template.
func (g *GenAILanguageService) RephraseQuestion(ctx context.Context, questionTemplate string, tctx TemplateContext) (string, error) {
	return g.transform(ctx, rephraseQuestionSystemPrompt, tctx, "Question template: "+questionTemplate, questionTemplate)
}

// CombineSuccessWithQuestion words an acknowledgment followed by the next question.
func (g *GenAILanguageService) CombineSuccessWithQuestion(ctx context.Context, successTemplate, questionTemplate string, tctx TemplateContext) (string, error) {
	user := fmt.Sprintf("Acknowledgment template: %s\nNext question template: %s", successTemplate, questionTemplate)
	return g.transform(ctx, combineSuccessSystemPrompt, tctx, user, joinTemplates(successTemplate, questionTemplate))
}

// CombineFailWithQuestion words a failure notice followed by the repeated question.
func (g *GenAILanguageService) CombineFailWithQuestion(ctx context.Context, failTemplate, questionTemplate string, tctx TemplateContext) (string, error) {
	user := fmt.Sprintf("Failure template: %s\nQuestion template: %s", failTemplate, questionTemplate)
	return g.transform(ctx, combineFailSystemPrompt, tctx, user, joinTemplates(failTemplate, questionTemplate))
}

// RephraseCompletion words the closing message.
func (g *GenAILanguageService) RephraseCompletion(ctx context.Context, successTemplate string, tctx TemplateContext) (string, error) {
	return g.transform(ctx, rephraseCompletionSystemPrompt, tctx, "Closing template: "+successTemplate, successTemplate)
}

// transform runs one text-transform completion, appending optional context to
// the user prompt. On an empty model reply the untouched fallback is used so
// a flaky completion never produces a blank outbound message.
func (g *GenAILanguageService) transform(ctx context.Context, systemPrompt string, tctx TemplateContext, userPrompt, fallback string) (string, error) {
	if ctxJSON := marshalTemplateContext(tctx); ctxJSON != "" {
		userPrompt += "\nContext: " + ctxJSON
	}
	response, err := g.genaiClient.GeneratePromptWithContext(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("GenAILanguageService.transform: completion failed", "error", err)
		return "", fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		slog.Warn("GenAILanguageService.transform: empty completion, using template fallback")
		return fallback, nil
	}
	return response, nil
}

// marshalTemplateContext serializes a non-empty template context to JSON.
func marshalTemplateContext(tctx TemplateContext) string {
	if len(tctx.CurrentDataState) == 0 && len(tctx.PreviousConversation) == 0 {
		return ""
	}
	ctxJSON, err := json.Marshal(tctx)
	if err != nil {
		slog.Warn("flow.marshalTemplateContext: marshal failed", "error", err)
		return ""
	}
	return string(ctxJSON)
}

// stripCodeFences removes a surrounding markdown code fence from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
