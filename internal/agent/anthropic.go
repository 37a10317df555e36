package agent

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/adx-agent/backend/internal/model"
)

// AnthropicGenerator calls the Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	system    string
	maxTokens int64
}

// NewAnthropicGenerator creates a generator for cfg.Model. A non-positive
// MaxTokens falls back to DefaultMaxTokens, which the API requires.
func NewAnthropicGenerator(cfg Config) *AnthropicGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		system:    cfg.SystemPrompt,
		maxTokens: maxTokens,
	}
}

// Model returns the model name sent with each request.
func (g *AnthropicGenerator) Model() string {
	return g.model
}

// Generate sends the turns, merged into alternating roles, and returns the
// concatenated text blocks of the reply.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	turns := alternate(req.Turns)
	if len(turns) == 0 {
		return "", model.NewError(model.KindInvalidArgument, "conversation has no user message", nil)
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(g.system, req.Context)}},
		Messages:  messages,
	})
	if err != nil {
		return "", model.NewError(model.KindUpstreamFailure, "anthropic message failed", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// alternate shapes a transcript for the Messages API: it must open with a
// user turn and roles must alternate, so leading assistant turns are dropped
// and consecutive turns of one role are merged.
func alternate(turns []model.Turn) []model.Turn {
	out := make([]model.Turn, 0, len(turns))
	for _, turn := range turns {
		role := turn.Role
		if role != model.RoleAssistant {
			role = model.RoleUser
		}
		if len(out) == 0 && role == model.RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + turn.Content
			continue
		}
		out = append(out, model.Turn{Role: role, Content: turn.Content, Timestamp: turn.Timestamp})
	}
	return out
}
