package handlers

import (
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/model"
	"github.com/adx-agent/backend/internal/stream"
)

// AgentHandler runs streamed agent exchanges.
type AgentHandler struct {
	coordinator *stream.Coordinator
	logger      *zap.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(coordinator *stream.Coordinator, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// AgentRequest is the body of POST /api/ai-agent.
type AgentRequest struct {
	Messages  []model.Turn `json:"messages"`
	Stream    *bool        `json:"stream"`
	SessionID string       `json:"session_id"`
}

func (r *AgentRequest) streaming() bool {
	return r.Stream == nil || *r.Stream
}

// Run handles POST /api/ai-agent. Events are sent as server-sent events
// unless stream is false, in which case the whole exchange is returned as
// one JSON document.
func (h *AgentHandler) Run(c *gin.Context) {
	var req AgentRequest
	if !bindJSON(c, &req) {
		return
	}
	for _, turn := range req.Messages {
		if !turn.Role.Valid() {
			sendAppError(c, model.NewError(model.KindInvalidArgument, "invalid role: "+string(turn.Role), nil))
			return
		}
	}

	streamReq := stream.Request{
		SessionID: req.SessionID,
		Messages:  req.Messages,
	}
	if req.streaming() {
		h.stream(c, streamReq)
		return
	}
	h.collect(c, streamReq)
}

func (h *AgentHandler) stream(c *gin.Context, req stream.Request) {
	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for event := range h.coordinator.Stream(c.Request.Context(), req) {
		if err := sse.Encode(c.Writer, sse.Event{Data: event}); err != nil {
			// Returning cancels the request context, which stops the exchange.
			h.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		c.Writer.Flush()
	}
}

func (h *AgentHandler) collect(c *gin.Context, req stream.Request) {
	events, err := h.coordinator.Collect(c.Request.Context(), req)
	if err != nil {
		sendAppError(c, err)
		return
	}

	var response *stream.Event
	for i := range events {
		switch events[i].Type {
		case stream.EventResponse:
			response = &events[i]
		case stream.EventError:
			sendAppError(c, model.NewError(model.KindUpstreamFailure, events[i].Error, nil))
			return
		}
	}

	sessionID := req.SessionID
	if len(events) > 0 {
		sessionID = events[0].SessionID
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"session_id": sessionID,
		"response":   response,
		"events":     events,
	})
}

// RegisterRoutes registers the agent route on a Gin router group.
func (h *AgentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/ai-agent", h.Run)
}
