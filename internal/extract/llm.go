package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

const extractionSystemPrompt = `You extract lookup parameters from questions about health funding.
Respond with a single JSON object and nothing else:
{"codes": ["..."], "entity": "...", "category": "..."}
- "codes": billing/item codes mentioned (letters followed by digits), uppercase. Empty list if none.
- "entity": the drug, device, or service name being asked about. Empty string if none.
- "category": one of "fees", "formulary", "devices", or "" when unclear.
Do not invent codes or entities that are not in the question.`

// extraction mirrors the JSON shape requested from the model.
type extraction struct {
	Codes    []string `json:"codes"`
	Entity   string   `json:"entity"`
	Category string   `json:"category"`
}

// LLMExtractor is the fallback strategy: a constrained-JSON inference call for
// queries too ambiguous for the pattern templates.
type LLMExtractor struct {
	client llms.Model
}

// NewLLMExtractor creates the inference-backed extractor from the inference config.
func NewLLMExtractor(cfg *config.InferenceConfig) (*LLMExtractor, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken("none"),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}
	return &LLMExtractor{client: client}, nil
}

// NewLLMExtractorWithModel wires an existing model client; used by tests.
func NewLLMExtractorWithModel(client llms.Model) *LLMExtractor {
	return &LLMExtractor{client: client}
}

// Extract asks the model for parameters. Malformed JSON is retried up to
// three times before giving up.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (models.Params, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(extractionSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := e.client.GenerateContent(ctx, content,
			llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			return models.Params{}, fmt.Errorf("extraction inference failed: %w", err)
		}
		if len(response.Choices) == 0 {
			return models.Params{}, nil
		}

		var ex extraction
		if err := json.Unmarshal([]byte(stripFences(response.Choices[0].Content)), &ex); err != nil {
			lastErr = err
			continue
		}

		params := models.Params{Entity: strings.TrimSpace(strings.ToLower(ex.Entity))}
		for _, c := range ex.Codes {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c != "" {
				params.Codes = append(params.Codes, c)
			}
		}
		switch ex.Category {
		case "fees", "formulary", "devices":
			params.Category = ex.Category
		}
		return params, nil
	}
	return models.Params{}, fmt.Errorf("extraction returned malformed JSON: %w", lastErr)
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
