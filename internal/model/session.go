package model

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single entry of a session transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummary describes a session without its transcript.
type SessionSummary struct {
	SessionID    string     `json:"session_id"`
	MessageCount int        `json:"message_count"`
	CreatedAt    *time.Time `json:"created_at"`
	LastActivity *time.Time `json:"last_activity"`
}

// Summarize builds the summary of a transcript.
func Summarize(id string, turns []Turn) SessionSummary {
	summary := SessionSummary{
		SessionID:    id,
		MessageCount: len(turns),
	}
	if len(turns) > 0 {
		first := turns[0].Timestamp
		last := turns[len(turns)-1].Timestamp
		summary.CreatedAt = &first
		summary.LastActivity = &last
	}
	return summary
}

// ChatRequest represents an inbound chat message.
type ChatRequest struct {
	Content   string `json:"content"`
	Role      Role   `json:"role"`
	SessionID string `json:"session_id"`
}

// Validate validates the chat request.
func (r *ChatRequest) Validate() error {
	if r.Content == "" {
		return ErrContentRequired
	}
	if r.Role != "" && !r.Role.Valid() {
		return NewError(KindInvalidArgument, "invalid role: "+string(r.Role), nil)
	}
	return nil
}
