// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint: the
// ErrorResponse envelope, fail() for explicit failures, writeError() which
// maps service errors to statuses and codes, and ok() for success bodies.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "call not found"
//	}
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callrec-backend/internal/http/middleware"
	"github.com/tbourn/go-callrec-backend/internal/services"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"call not found"`
}

// fail aborts the request with a structured error. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// writeError maps an error returned by a service to its HTTP response.
// Internal details of 5xx errors are logged, never returned.
func writeError(c *gin.Context, err error) {
	var (
		se *storage.StorageError
		qe *services.QueueError
		mb *http.MaxBytesError
	)
	switch {
	case errors.Is(err, services.ErrCallNotFound),
		errors.Is(err, services.ErrRecordNotFound),
		errors.Is(err, services.ErrFailedTaskNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrRecordExists):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrEmptyRecording):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.As(err, &mb), isBodyTooLarge(err):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "recording exceeds the upload limit")
	case errors.As(err, &se):
		middleware.LoggerFrom(c).Error().Err(err).Msg("object store failure")
		fail(c, http.StatusBadGateway, ErrCodeStorageUnavailable, "object store unavailable")
	case errors.As(err, &qe):
		middleware.LoggerFrom(c).Error().Err(err).Str("record_id", qe.RecordID).Msg("enqueue failure")
		fail(c, http.StatusServiceUnavailable, ErrCodeQueueUnavailable, "recording stored but processing could not be scheduled")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// isBodyTooLarge catches MaxBytesReader errors that reached us without %w
// wrapping (multipart parsing flattens some of them).
func isBodyTooLarge(err error) bool {
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
