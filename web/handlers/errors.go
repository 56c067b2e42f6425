package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "contract-analyzer/errors"
)

// respondWithError logs the technical error and returns a user-friendly message
func respondWithError(c *gin.Context, statusCode int, technicalError error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	// Log technical error with context
	if logger != nil {
		fields = append(fields, zap.Error(technicalError))
		logger.Error("Request failed", fields...)
	}

	// Return user-friendly message
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithClientError returns a client error (no logging needed for validation errors)
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// userFacingMessage turns a validation error into its context message,
// dropping the sentinel suffix added by WrapError.
func userFacingMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if apperrors.IsInvalidInput(err) {
		msg = strings.TrimSuffix(msg, ": "+apperrors.ErrInvalidInput.Error())
	}
	return msg
}
