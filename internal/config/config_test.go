package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adx-agent/backend/internal/agent"
)

// clearEnv unsets every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
			os.Unsetenv(env)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.ProvisionDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.ToolCallDelay)
	assert.Equal(t, 10, cfg.Chat.ContextSize)
	assert.Equal(t, 5900, cfg.Sandbox.VNCPort)
	assert.Equal(t, agent.DefaultMaxTokens, cfg.AI.MaxTokens)
	assert.False(t, cfg.AIConfigured())
	assert.False(t, cfg.SandboxConfigured())
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("E2B_API_KEY", "e2b")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("STREAM_TOOL_CALL_DELAY", "50ms")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "e2b", cfg.Sandbox.APIKey)
	assert.Equal(t, "sk-ant", cfg.AI.APIKey)
	assert.Equal(t, agent.ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, 50*time.Millisecond, cfg.Stream.ToolCallDelay)
	assert.True(t, cfg.Log.Development)
	assert.True(t, cfg.SandboxConfigured())
}

func TestLoadExplicitProviderWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("GOOGLE_GENERATIVE_AI_API_KEY", "g")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "g", cfg.AI.APIKey)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 7000
  gin_mode: debug
sandbox:
  provision_delay: 1s
  endpoint_host: sandbox.internal
websocket:
  history_size: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("PORT", "7001")

	cfg, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port, "environment overrides file")
	assert.Equal(t, "debug", cfg.Server.GinMode)
	assert.Equal(t, time.Second, cfg.Sandbox.ProvisionDelay)
	assert.Equal(t, "sandbox.internal", cfg.Sandbox.EndpointHost)
	assert.Equal(t, 5, cfg.WebSocket.HistorySize)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(nil, "")
	require.NoError(t, err)

	cfg.Server.Port = 0
	cfg.Server.GinMode = "loud"
	cfg.Chat.ContextSize = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "gin_mode")
	assert.Contains(t, err.Error(), "context_size")
}
