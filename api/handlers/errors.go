// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adx-agent/backend/internal/model"
)

// StatusClientClosedRequest is reported when the client went away first.
const StatusClientClosedRequest = 499

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendAppError maps err to its status code and sends it.
func sendAppError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	_ = c.Error(err)

	message := err.Error()
	var appErr *model.Error
	if errors.As(err, &appErr) && kind == model.KindInternal {
		message = "internal error"
	}
	sendError(c, statusForKind(kind), string(kind), message)
}

func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindUnconfigured:
		return http.StatusServiceUnavailable
	case model.KindInvalidArgument:
		return http.StatusBadRequest
	case model.KindUpstreamFailure:
		return http.StatusBadGateway
	case model.KindCancelled:
		return StatusClientClosedRequest
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RequireCredential rejects requests with UNCONFIGURED when a provider
// credential is absent, before the handler can mutate anything.
func RequireCredential(configured bool, slot string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !configured {
			sendAppError(c, model.Unconfigured(slot))
			return
		}
		c.Next()
	}
}

// bindJSON decodes the body into dst, replying with INVALID_ARGUMENT on
// failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		sendError(c, http.StatusBadRequest, string(model.KindInvalidArgument), "Invalid request body: "+err.Error())
		return false
	}
	return true
}
