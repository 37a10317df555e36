package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	wrapped := fmt.Errorf("destroy: %w", ErrSandboxNotFound)

	assert.True(t, errors.Is(wrapped, ErrSandboxNotFound))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrSessionNotFound))
	assert.False(t, errors.Is(wrapped, ErrUnconfigured))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: Unconfigured("sandbox provider key"), want: KindUnconfigured},
		{name: "deadline", err: fmt.Errorf("exec: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "canceled", err: context.Canceled, want: KindCancelled},
		{name: "plain", err: errors.New("boom"), want: KindInternal},
		{name: "cause is kept", err: NewError(KindUpstreamFailure, "generate", errors.New("503")), want: KindUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindUpstreamFailure, "provider call failed", cause)

	assert.Equal(t, "provider call failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestSandboxConfigDefaults(t *testing.T) {
	cfg := SandboxConfig{}.WithDefaults()

	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DefaultDisplay, cfg.Display)
	assert.Equal(t, DefaultTools(), cfg.Tools)
	assert.Equal(t, DefaultMemory, cfg.Memory)
	assert.Equal(t, DefaultCPU, cfg.CPU)

	custom := SandboxConfig{Environment: "debian", Tools: []string{}, CPU: 8}.WithDefaults()
	assert.Equal(t, "debian", custom.Environment)
	assert.Empty(t, custom.Tools)
	assert.Equal(t, 8, custom.CPU)
	assert.Equal(t, DefaultMemory, custom.Memory)
}

func TestDeriveEndpointsIsStable(t *testing.T) {
	scheme := DefaultEndpointScheme()

	first := DeriveEndpoints(scheme, "abc-123")
	second := DeriveEndpoints(scheme, "abc-123")

	require.Equal(t, first, second)
	assert.Equal(t, "vnc://localhost:5900/abc-123", first.VNCURL)
	assert.Equal(t, "http://localhost:6080/vnc.html?id=abc-123", first.WebInterface)
	assert.Equal(t, "/api/execute?sandbox_id=abc-123", first.Endpoints.Execute)
	assert.Equal(t, "/api/sandbox/status/abc-123", first.Endpoints.Status)
}

func TestSandboxCloneIsDeep(t *testing.T) {
	s := &Sandbox{ID: "s1", Config: SandboxConfig{Tools: []string{"browser"}}}
	c := s.Clone()
	c.Config.Tools[0] = "terminal"
	c.Status = SandboxStatusRunning

	assert.Equal(t, "browser", s.Config.Tools[0])
	assert.Empty(t, s.Status)
}

func TestSandboxRequestValidate(t *testing.T) {
	assert.NoError(t, (&SandboxRequest{Action: SandboxActionCreate}).Validate())
	assert.ErrorIs(t, (&SandboxRequest{Action: SandboxActionStatus}).Validate(), ErrNotFound)
	assert.ErrorIs(t, (&SandboxRequest{Action: "reboot"}).Validate(), ErrInvalidArgument)
}

func TestExecRequest(t *testing.T) {
	req := &ExecRequest{}
	assert.ErrorIs(t, req.Validate(), ErrCommandRequired)

	req.Command = "ls"
	require.NoError(t, req.Validate())
	assert.Equal(t, DefaultExecTimeout, req.TimeoutDuration())

	req.Timeout = 5
	assert.Equal(t, 5*time.Second, req.TimeoutDuration())
}

func TestExecRequestTimeoutBound(t *testing.T) {
	limit := int(MaxExecTimeout / time.Second)

	req := &ExecRequest{Command: "ls", Timeout: limit}
	require.NoError(t, req.Validate())
	assert.Equal(t, MaxExecTimeout, req.TimeoutDuration())

	for _, timeout := range []int{limit + 1, 10_000_000_000} {
		req := &ExecRequest{Command: "ls", Timeout: timeout}
		assert.ErrorIs(t, req.Validate(), ErrInvalidArgument, "timeout %d", timeout)
		assert.Equal(t, MaxExecTimeout, req.TimeoutDuration(), "timeout %d", timeout)
	}
}

func TestSummarize(t *testing.T) {
	empty := Summarize("s0", nil)
	assert.Zero(t, empty.MessageCount)
	assert.Nil(t, empty.CreatedAt)

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	turns := []Turn{
		{Role: RoleUser, Content: "hi", Timestamp: t0},
		{Role: RoleAssistant, Content: "hello", Timestamp: t0.Add(time.Second)},
	}
	s := Summarize("s1", turns)
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, t0, *s.CreatedAt)
	assert.Equal(t, t0.Add(time.Second), *s.LastActivity)
}

func TestChatRequestValidate(t *testing.T) {
	assert.ErrorIs(t, (&ChatRequest{}).Validate(), ErrContentRequired)
	assert.ErrorIs(t, (&ChatRequest{Content: "x", Role: "system"}).Validate(), ErrInvalidArgument)
	assert.NoError(t, (&ChatRequest{Content: "x"}).Validate())
}
