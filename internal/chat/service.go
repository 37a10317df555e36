// Package chat runs a chat exchange: record the user turn, generate a reply
// from the recent context, record it and broadcast it to every live client.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/agent"
	"github.com/adx-agent/backend/internal/logging"
	"github.com/adx-agent/backend/internal/metrics"
	"github.com/adx-agent/backend/internal/model"
	"github.com/adx-agent/backend/internal/session"
)

// MessageTypeChatResponse is the type of broadcast chat replies.
const MessageTypeChatResponse = "chat_response"

// Broadcaster fans a message out to every live connection.
type Broadcaster interface {
	Broadcast(data []byte) int
}

// Reply is the result of one exchange.
type Reply struct {
	SessionID string       `json:"session_id"`
	Content   string       `json:"content"`
	Role      model.Role   `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
	Context   []model.Turn `json:"context,omitempty"`
}

// Service handles chat exchanges. It is safe for concurrent use.
type Service struct {
	store       *session.Store
	generator   agent.Generator
	broadcaster Broadcaster
	contextSize int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewService creates a chat service. broadcaster and m may be nil.
func NewService(store *session.Store, generator agent.Generator, broadcaster Broadcaster, contextSize int, m *metrics.Metrics, logger *zap.Logger) *Service {
	if contextSize <= 0 {
		contextSize = session.DefaultContextSize
	}
	return &Service{
		store:       store,
		generator:   generator,
		broadcaster: broadcaster,
		contextSize: contextSize,
		metrics:     m,
		logger:      logging.OrNop(logger).Named("chat"),
	}
}

// Send appends content as a user turn of sessionID (a new session when empty)
// and returns the assistant reply. The reply is broadcast only on success.
func (s *Service) Send(ctx context.Context, sessionID, content string) (*Reply, error) {
	if content == "" {
		return nil, model.ErrContentRequired
	}

	sessionID, _ = s.store.Append(sessionID, model.Turn{
		Role:    model.RoleUser,
		Content: content,
	})

	recent := s.store.RecentContext(sessionID, s.contextSize)
	text, err := s.generator.Generate(ctx, agent.Request{
		Turns:   recent,
		Context: fmt.Sprintf("Session: %s", sessionID),
	})
	if err != nil {
		s.metrics.ChatExchange("error")
		s.logger.Warn("reply generation failed", zap.String("session_id", sessionID), zap.Error(err))
		if kind := model.KindOf(err); kind == model.KindCancelled || kind == model.KindTimeout {
			return nil, model.NewError(kind, "reply generation interrupted", err)
		}
		return nil, model.NewError(model.KindUpstreamFailure, "failed to generate reply", err)
	}

	now := time.Now()
	s.store.Append(sessionID, model.Turn{
		Role:      model.RoleAssistant,
		Content:   text,
		Timestamp: now,
	})

	reply := &Reply{
		SessionID: sessionID,
		Content:   text,
		Role:      model.RoleAssistant,
		Timestamp: now,
		Context:   s.store.RecentContext(sessionID, s.contextSize),
	}

	s.metrics.ChatExchange("ok")
	s.broadcast(reply)
	return reply, nil
}

func (s *Service) broadcast(reply *Reply) {
	if s.broadcaster == nil {
		return
	}
	data, err := json.Marshal(map[string]any{
		"type": MessageTypeChatResponse,
		"data": reply,
	})
	if err != nil {
		s.logger.Error("failed to marshal chat broadcast", zap.Error(err))
		return
	}
	delivered := s.broadcaster.Broadcast(data)
	s.logger.Debug("chat reply broadcast",
		zap.String("session_id", reply.SessionID),
		zap.Int("delivered", delivered))
}
