package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adx-agent/backend/internal/chat"
	"github.com/adx-agent/backend/internal/model"
)

// ChatHandler handles single chat exchanges over HTTP.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{chat: service}
}

// Send handles POST /api/chat. The reply is also broadcast to every
// websocket connection.
func (h *ChatHandler) Send(c *gin.Context) {
	var req model.ChatRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		sendAppError(c, err)
		return
	}

	reply, err := h.chat.Send(c.Request.Context(), req.SessionID, req.Content)
	if err != nil {
		sendAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// RegisterRoutes registers the chat route on a Gin router group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.Send)
}
