// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them instead
// of on messages. Every error response carries one of these codes together
// with the HTTP status chosen by writeError or by the handler.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "recording already submitted for this call"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodePayloadTooLarge    = "payload_too_large"
	ErrCodeInvalidTransition  = "invalid_transition"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeQueueUnavailable   = "queue_unavailable"
	ErrCodeNotReady           = "not_ready"
)
