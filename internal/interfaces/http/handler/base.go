package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pharmalytics/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(message))
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(message))
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, dto.NewErrorResponse(message))
}

// HandleError converts an error into its HTTP response. Internal errors
// report the time spent before failing.
func (h *BaseHandler) HandleError(c *gin.Context, err error, elapsed time.Duration) {
	if err == nil {
		return
	}
	status, message := dto.ErrorStatus(err)
	if status == http.StatusInternalServerError {
		// the cause is only logged; the client gets the generic message
		_ = c.Error(err)
		c.JSON(status, dto.NewTimedErrorResponse(message, elapsed))
		return
	}
	c.JSON(status, dto.NewErrorResponse(message))
}
