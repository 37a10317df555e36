// Package config loads server configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/adx-agent/backend/internal/agent"
	"github.com/adx-agent/backend/internal/logging"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       logging.Config  `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AI        agent.Config    `mapstructure:"ai"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Chat      ChatConfig      `mapstructure:"chat"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GinMode         string        `mapstructure:"gin_mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig locates the execution journal.
type DatabaseConfig struct {
	// Path of the sqlite journal. Empty disables journaling.
	Path string `mapstructure:"path"`
}

// SandboxConfig holds the sandbox provider credential, the simulated
// provisioner delays and the endpoint scheme.
type SandboxConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	ProvisionDelay   time.Duration `mapstructure:"provision_delay"`
	ExecDelay        time.Duration `mapstructure:"exec_delay"`
	ProvisionTimeout time.Duration `mapstructure:"provision_timeout"`
	EndpointHost     string        `mapstructure:"endpoint_host"`
	VNCPort          int           `mapstructure:"vnc_port"`
	WebPort          int           `mapstructure:"web_port"`
}

// StreamConfig tunes agent exchanges.
type StreamConfig struct {
	ToolCallDelay time.Duration `mapstructure:"tool_call_delay"`
}

// ChatConfig tunes chat exchanges.
type ChatConfig struct {
	ContextSize int `mapstructure:"context_size"`
}

// WebSocketConfig tunes the broadcast hub.
type WebSocketConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// envBindings maps config keys to environment variables, first set wins.
var envBindings = map[string][]string{
	"server.host":               {"HOST"},
	"server.port":               {"PORT"},
	"server.gin_mode":           {"GIN_MODE"},
	"server.shutdown_timeout":   {"SHUTDOWN_TIMEOUT"},
	"log.level":                 {"LOG_LEVEL"},
	"log.development":           {"LOG_DEVELOPMENT"},
	"database.path":             {"DB_PATH"},
	"ai.provider":               {"AI_PROVIDER"},
	"ai.model":                  {"AI_MODEL"},
	"ai.api_key":                {"AI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_GENERATIVE_AI_API_KEY"},
	"ai.base_url":               {"AI_BASE_URL"},
	"ai.max_tokens":             {"AI_MAX_TOKENS"},
	"sandbox.api_key":           {"SANDBOX_API_KEY", "E2B_API_KEY"},
	"sandbox.provision_delay":   {"SANDBOX_PROVISION_DELAY"},
	"sandbox.exec_delay":        {"SANDBOX_EXEC_DELAY"},
	"sandbox.provision_timeout": {"SANDBOX_PROVISION_TIMEOUT"},
	"sandbox.endpoint_host":     {"SANDBOX_ENDPOINT_HOST"},
	"stream.tool_call_delay":    {"STREAM_TOOL_CALL_DELAY"},
	"chat.context_size":         {"CHAT_CONTEXT_SIZE"},
	"websocket.history_size":    {"WS_HISTORY_SIZE"},
}

// providerKeys lets a provider-specific key select its provider when none is
// named explicitly.
var providerKeys = []struct{ env, provider string }{
	{"OPENAI_API_KEY", agent.ProviderOpenAI},
	{"ANTHROPIC_API_KEY", agent.ProviderAnthropic},
	{"GOOGLE_GENERATIVE_AI_API_KEY", agent.ProviderGemini},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.path", "./data/adx.db")

	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.max_tokens", agent.DefaultMaxTokens)
	v.SetDefault("ai.system_prompt", agent.DefaultSystemPrompt)

	v.SetDefault("sandbox.api_key", "")
	v.SetDefault("sandbox.provision_delay", 2*time.Second)
	v.SetDefault("sandbox.exec_delay", 100*time.Millisecond)
	v.SetDefault("sandbox.provision_timeout", 2*time.Minute)
	v.SetDefault("sandbox.endpoint_host", "localhost")
	v.SetDefault("sandbox.vnc_port", 5900)
	v.SetDefault("sandbox.web_port", 6080)

	v.SetDefault("stream.tool_call_delay", 500*time.Millisecond)
	v.SetDefault("chat.context_size", 10)
	v.SetDefault("websocket.history_size", 50)
}

// Load reads configuration into v (a fresh instance when nil). path names an
// optional config file; when set it must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.AI.Provider == "" && cfg.AI.APIKey != "" {
		for _, pk := range providerKeys {
			if os.Getenv(pk.env) == cfg.AI.APIKey {
				cfg.AI.Provider = pk.provider
				break
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		result = multierror.Append(result, fmt.Errorf("server.gin_mode %q must be debug, release or test", c.Server.GinMode))
	}
	if c.Sandbox.ProvisionDelay < 0 || c.Sandbox.ExecDelay < 0 {
		result = multierror.Append(result, errors.New("sandbox delays must not be negative"))
	}
	if c.Sandbox.ProvisionTimeout <= 0 {
		result = multierror.Append(result, errors.New("sandbox.provision_timeout must be positive"))
	}
	if c.Stream.ToolCallDelay < 0 {
		result = multierror.Append(result, errors.New("stream.tool_call_delay must not be negative"))
	}
	if c.Chat.ContextSize <= 0 {
		result = multierror.Append(result, errors.New("chat.context_size must be positive"))
	}
	if c.WebSocket.HistorySize < 0 {
		result = multierror.Append(result, errors.New("websocket.history_size must not be negative"))
	}

	return result.ErrorOrNil()
}

// AIConfigured reports whether an AI provider credential is present.
func (c *Config) AIConfigured() bool {
	return c.AI.APIKey != ""
}

// SandboxConfigured reports whether the sandbox provider credential is present.
func (c *Config) SandboxConfigured() bool {
	return c.Sandbox.APIKey != ""
}
