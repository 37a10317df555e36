package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adx-agent/backend/internal/model"
	"github.com/adx-agent/backend/internal/session"
)

// SessionHandler handles HTTP requests for conversation sessions.
type SessionHandler struct {
	store *session.Store
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	sessions := []model.SessionSummary{}
	for summary := range h.store.List() {
		sessions = append(sessions, summary)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get handles GET /api/sessions/:id - returns the full transcript.
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	turns, err := h.store.Transcript(id)
	if err != nil {
		sendAppError(c, err)
		return
	}

	summary := model.Summarize(id, turns)
	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"session_id":    id,
		"messages":      turns,
		"message_count": summary.MessageCount,
		"created_at":    summary.CreatedAt,
		"last_activity": summary.LastActivity,
	})
}

// Delete handles DELETE /api/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		sendAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "deleted",
		"session_id": id,
	})
}

// RegisterRoutes registers the session routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
	rg.DELETE("/sessions/:id", h.Delete)
}
