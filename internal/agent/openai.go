package agent

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/adx-agent/backend/internal/model"
)

// OpenAIGenerator calls the Chat Completions API. It also serves any
// OpenAI-compatible endpoint selected through BaseURL.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	system    string
	maxTokens int64
}

// NewOpenAIGenerator creates a generator for cfg.Model, using cfg.BaseURL
// when set.
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		system:    cfg.SystemPrompt,
		maxTokens: int64(cfg.MaxTokens),
	}
}

// Model returns the model name sent with each request.
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate sends the system prompt and turns and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt(g.system, req.Context)))
	for _, turn := range req.Turns {
		if turn.Role == model.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(g.maxTokens)
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", model.NewError(model.KindUpstreamFailure, "openai completion failed", err)
	}
	if len(completion.Choices) == 0 {
		return "", model.NewError(model.KindUpstreamFailure, "openai returned no choices", nil)
	}
	return completion.Choices[0].Message.Content, nil
}
