package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

const scoringSystemPrompt = `You judge whether a passage answers a health-funding question.
Respond with a single JSON object and nothing else: {"score": <number between 0 and 1>}
1 means the passage directly answers the question; 0 means it is unrelated.`

// maxPassageChars bounds the per-candidate scoring call size.
const maxPassageChars = 1500

// LLMScorer scores passages with a chat-completion call in JSON mode.
type LLMScorer struct {
	client llms.Model
}

// NewLLMScorer creates a scorer from the inference config.
func NewLLMScorer(cfg *config.InferenceConfig) (*LLMScorer, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken("none"),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scoring client: %w", err)
	}
	return &LLMScorer{client: client}, nil
}

// NewLLMScorerWithModel wires an existing model client; used by tests.
func NewLLMScorerWithModel(client llms.Model) *LLMScorer {
	return &LLMScorer{client: client}
}

// Score returns the model's relevance judgment for passage against query.
func (s *LLMScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	user := fmt.Sprintf("Question: %s\n\nPassage: %s", query, utils.Truncate(passage, maxPassageChars))
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(scoringSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	response, err := s.client.GenerateContent(ctx, content,
		llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		return 0, fmt.Errorf("relevance scoring failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return 0, fmt.Errorf("relevance scoring returned no choices")
	}

	var out struct {
		Score float64 `json:"score"`
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return 0, fmt.Errorf("malformed scoring response: %w", err)
	}
	return utils.Clamp(out.Score, 0, 1), nil
}
