package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/ws"
)

// WebSocketHandler upgrades broadcast chat connections.
type WebSocketHandler struct {
	wsHandler *ws.Handler
	logger    *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		wsHandler: wsHandler,
		logger:    logger,
	}
}

// Connect handles GET /ws.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	// The upgrader has already written the failure response.
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
	}
}

// RegisterRoutes registers the websocket route on the engine root.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Connect)
}
