// Package agent produces assistant replies from a conversation transcript.
package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/logging"
	"github.com/adx-agent/backend/internal/model"
)

// Providers understood by NewGenerator.
const (
	ProviderDemo      = "demo"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// geminiBaseURL is Google's OpenAI-compatible endpoint.
const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultSystemPrompt is sent ahead of every conversation.
const DefaultSystemPrompt = "You are ADX Agent, an assistant that operates remote desktop sandboxes on behalf of the user. Answer concisely."

// DefaultMaxTokens caps the reply length requested from providers.
const DefaultMaxTokens = 1024

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderGemini:    "gemini-2.0-flash",
}

// Request is the input of a single generation.
type Request struct {
	// Turns is the conversation so far, oldest first.
	Turns []model.Turn
	// Context describes the surrounding session state.
	Context string
}

// LastUserMessage returns the content of the latest user turn.
func (r Request) LastUserMessage() string {
	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].Role == model.RoleUser {
			return r.Turns[i].Content
		}
	}
	return ""
}

// Generator turns a transcript into reply text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Model names the model replies come from.
	Model() string
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Model reports "func".
func (f Func) Model() string {
	return "func"
}

// Config selects and configures a provider.
type Config struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// NewGenerator builds the generator named by cfg.Provider. Without an API key
// every provider degrades to the demo generator. An empty provider with a key
// means openai.
func NewGenerator(cfg Config, logger *zap.Logger) (Generator, error) {
	logger = logging.OrNop(logger).Named("agent")

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "":
		provider = ProviderOpenAI
		if cfg.APIKey == "" {
			provider = ProviderDemo
		}
	case ProviderDemo, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return nil, model.NewError(model.KindInvalidArgument, "unknown AI provider: "+cfg.Provider, nil)
	}

	if provider != ProviderDemo && cfg.APIKey == "" {
		logger.Warn("AI provider key not configured, using demo mode", zap.String("provider", provider))
		provider = ProviderDemo
	}

	if cfg.Model == "" {
		cfg.Model = defaultModels[provider]
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	var gen Generator
	switch provider {
	case ProviderOpenAI:
		gen = NewOpenAIGenerator(cfg)
	case ProviderGemini:
		if cfg.BaseURL == "" {
			cfg.BaseURL = geminiBaseURL
		}
		gen = NewOpenAIGenerator(cfg)
	case ProviderAnthropic:
		gen = NewAnthropicGenerator(cfg)
	default:
		gen = NewDemoGenerator()
	}

	logger.Info("response generator ready", zap.String("provider", provider), zap.String("model", gen.Model()))
	return gen, nil
}

func systemPrompt(base, context string) string {
	if context == "" {
		return base
	}
	return base + "\n\n" + context
}
