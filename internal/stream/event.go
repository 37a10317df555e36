package stream

import (
	"time"

	"github.com/adx-agent/backend/internal/model"
)

// EventType tags a stream event.
type EventType string

const (
	EventResponse   EventType = "response"
	EventToolCall   EventType = "tool_call"
	EventCompletion EventType = "completion"
	EventError      EventType = "error"
)

// Terminal reports whether t ends a stream.
func (t EventType) Terminal() bool {
	return t == EventCompletion || t == EventError
}

// Metadata describes how a response was produced.
type Metadata struct {
	Model      string `json:"model"`
	Stream     bool   `json:"stream"`
	TokensUsed int    `json:"tokens_used"`
}

// Event is one element of an exchange. Only the fields of its type are set.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// response
	Content  string     `json:"content,omitempty"`
	Role     model.Role `json:"role,omitempty"`
	Metadata *Metadata  `json:"metadata,omitempty"`

	// tool_call
	Tool       string         `json:"tool,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     string         `json:"result,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}
