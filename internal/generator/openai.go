package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/prompt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

const (
	baseMaxOutputTokens  int64 = 4096
	limitMaxOutputTokens int64 = 16384

	schemaName = "newsletter"

	systemPrompt = `You write weekly newsletters for content creators.
Follow the output rules of the request exactly and answer with JSON only.`
)

func listSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string"},
		"minItems": prompt.SuggestionCount,
		"maxItems": prompt.SuggestionCount,
	}
}

func newsletterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"suggestedTitles":       listSchema(),
			"suggestedSubjectLines": listSchema(),
			"body":                  map[string]any{"type": "string"},
			"topAnnouncements":      listSchema(),
			"additionalInfo":        map[string]any{"type": "string"},
		},
		"required": []string{
			"suggestedTitles",
			"suggestedSubjectLines",
			"body",
			"topAnnouncements",
			"additionalInfo",
		},
		"additionalProperties": false,
	}
}

// OpenAIGenerator calls OpenAI's Responses API with a strict JSON schema.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator builds a new generator instance.
func NewOpenAIGenerator(apiKey string, model string, opts ...option.RequestOption) (*OpenAIGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("API key is empty")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = string(openai.ChatModelGPT5Mini)
	}

	return &OpenAIGenerator{
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:  model,
	}, nil
}

func (g *OpenAIGenerator) Generate(
	ctx context.Context,
	promptText string,
) (*domain.GeneratedNewsletter, error) {
	if strings.TrimSpace(promptText) == "" {
		return nil, errors.New("prompt is empty")
	}

	maxOutputTokens := baseMaxOutputTokens
	for {
		resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
			Model:           shared.ResponsesModel(g.model),
			MaxOutputTokens: openai.Int(maxOutputTokens),
			Reasoning: responses.ReasoningParam{
				Effort: openai.ReasoningEffortLow,
			},
			Instructions: openai.String(systemPrompt),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(promptText),
			},
			Text: responses.ResponseTextConfigParam{
				Format: responses.ResponseFormatTextConfigUnionParam{
					OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
						Name:   schemaName,
						Schema: newsletterSchema(),
						Strict: openai.Bool(true),
					},
				},
			},
		})
		if err != nil {
			if isQuotaError(err) {
				return nil, fmt.Errorf("do request: %w: %w", ErrInsufficientQuota, err)
			}
			return nil, fmt.Errorf("do request: %w", err)
		}

		if resp.Status == "incomplete" {
			if resp.IncompleteDetails.Reason == "max_output_tokens" && maxOutputTokens < limitMaxOutputTokens {
				maxOutputTokens = min(maxOutputTokens*2, limitMaxOutputTokens)
				continue
			}
			return nil, fmt.Errorf(
				"response is incomplete (reason = %s, maxOutputTokens = %d)",
				resp.IncompleteDetails.Reason,
				maxOutputTokens,
			)
		}

		output := strings.TrimSpace(resp.OutputText())
		if output == "" {
			return nil, fmt.Errorf("output text is missing (status = %s)", resp.Status)
		}

		return DecodeNewsletter(output)
	}
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == "insufficient_quota" || apiErr.Type == "insufficient_quota" {
			return true
		}
		if apiErr.StatusCode == http.StatusPaymentRequired {
			return true
		}
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "quota") || strings.Contains(msg, "billing")
}
