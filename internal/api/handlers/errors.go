package handlers

import (
	"context"
	"errors"

	"github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondError writes err with the status code of its kind
func RespondError(c *gin.Context, err error) {
	kind := apperrors.Kind(err)
	message := apperrors.Message(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		message = "The request was cancelled before the melody was finished."
	}

	status := apperrors.StatusCode(kind)
	if status >= 500 {
		fields := logger.WithContext(c)
		fields["error_kind"] = string(kind)
		logger.Error("Request failed", err, fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     string(kind),
		Message:   message,
		RequestID: c.GetString("request_id"),
	})
}

// requestIdentity returns the session id and, in gateway mode, the user id
func requestIdentity(c *gin.Context) (sessionID, userID string) {
	userID, _ = middleware.GetUserIDFromGateway(c)
	return c.GetString("session_id"), userID
}
