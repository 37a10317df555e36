// Package stream drives one exchange with the response generator and
// delivers its events, in order, to a single consumer.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/agent"
	"github.com/adx-agent/backend/internal/logging"
	"github.com/adx-agent/backend/internal/metrics"
	"github.com/adx-agent/backend/internal/model"
)

// Defaults for Config.
const (
	DefaultToolCallDelay = 500 * time.Millisecond
	DefaultBufferSize    = 4
)

// SandboxCounter reports how many sandboxes exist.
type SandboxCounter interface {
	Count() int
}

// Config holds configuration for the coordinator.
type Config struct {
	// ToolCallDelay separates the response from the tool call event.
	ToolCallDelay time.Duration
	// BufferSize is the capacity of each exchange's event channel.
	BufferSize int
}

// Request starts an exchange.
type Request struct {
	SessionID string
	Messages  []model.Turn
}

// Coordinator runs exchanges. It holds no per-exchange state and is safe for
// concurrent use.
type Coordinator struct {
	generator agent.Generator
	sandboxes SandboxCounter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	config    Config
}

// NewCoordinator creates a coordinator. sandboxes and m may be nil.
func NewCoordinator(generator agent.Generator, sandboxes SandboxCounter, config Config, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	if config.ToolCallDelay < 0 {
		config.ToolCallDelay = 0
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	return &Coordinator{
		generator: generator,
		sandboxes: sandboxes,
		metrics:   m,
		logger:    logging.OrNop(logger).Named("stream"),
		config:    config,
	}
}

// Stream starts an exchange and returns its events. The channel is closed
// after the terminal event, or as soon as ctx is done; nothing is sent after
// cancellation is observed. An empty session id is replaced by a new one.
func (c *Coordinator) Stream(ctx context.Context, req Request) <-chan Event {
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	events := make(chan Event, c.config.BufferSize)
	go c.run(ctx, req, events)
	return events
}

// Collect runs an exchange to the end and returns every event.
func (c *Coordinator) Collect(ctx context.Context, req Request) ([]Event, error) {
	var events []Event
	for event := range c.Stream(ctx, req) {
		events = append(events, event)
	}
	if err := ctx.Err(); err != nil {
		return events, model.NewError(model.KindOf(err), "stream interrupted", err)
	}
	return events, nil
}

func (c *Coordinator) run(ctx context.Context, req Request, events chan<- Event) {
	defer close(events)

	logger := c.logger.With(zap.String("session_id", req.SessionID))

	content, err := c.generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("exchange cancelled during generation")
			return
		}
		logger.Warn("generation failed", zap.Error(err))
		c.emit(ctx, events, Event{
			Type:      EventError,
			SessionID: req.SessionID,
			Timestamp: time.Now(),
			Error:     err.Error(),
		})
		return
	}

	ok := c.emit(ctx, events, Event{
		Type:      EventResponse,
		SessionID: req.SessionID,
		Timestamp: time.Now(),
		Content:   content,
		Role:      model.RoleAssistant,
		Metadata: &Metadata{
			Model:      c.generator.Model(),
			Stream:     true,
			TokensUsed: len(strings.Fields(content)),
		},
	})
	if !ok || !wait(ctx, c.config.ToolCallDelay) {
		logger.Debug("exchange cancelled")
		return
	}

	ok = c.emit(ctx, events, Event{
		Type:       EventToolCall,
		SessionID:  req.SessionID,
		Timestamp:  time.Now(),
		Tool:       "screenshot",
		Parameters: map[string]any{"region": "full"},
		Result:     "screenshot_captured",
	})
	if !ok {
		logger.Debug("exchange cancelled")
		return
	}

	c.emit(ctx, events, Event{
		Type:      EventCompletion,
		SessionID: req.SessionID,
		Timestamp: time.Now(),
	})
}

// generate calls the generator, converting a panic into an error.
func (c *Coordinator) generate(ctx context.Context, req Request) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.NewError(model.KindInternal, fmt.Sprintf("generator panic: %v", r), nil)
		}
	}()

	sandboxes := 0
	if c.sandboxes != nil {
		sandboxes = c.sandboxes.Count()
	}

	return c.generator.Generate(ctx, agent.Request{
		Turns:   req.Messages,
		Context: fmt.Sprintf("Session: %s\nAvailable sandboxes: %d\n", req.SessionID, sandboxes),
	})
}

// emit delivers one event unless ctx is done first.
func (c *Coordinator) emit(ctx context.Context, events chan<- Event, event Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- event:
		c.metrics.StreamEvent(string(event.Type))
		return true
	case <-ctx.Done():
		return false
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
