// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they validate input, call application
// services through the narrow interfaces below, and translate results into
// HTTP responses.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/services"
)

// CallService covers call registration and the read side.
type CallService interface {
	// CreateIdempotent registers a call; a reused key replays the original.
	CreateIdempotent(ctx context.Context, key string, in services.CreateCallInput) (*domain.Call, bool, error)
	// Get returns the call, its record, ranges and a valid presigned URL.
	Get(ctx context.Context, id string) (*repo.CallDetail, error)
	// FindByPhone lists calls where phone is the caller or the receiver.
	FindByPhone(ctx context.Context, phone string) ([]domain.Call, error)
	// Search returns a filtered page and the total match count.
	Search(ctx context.Context, f services.CallFilter, page, pageSize int) ([]domain.Call, int64, error)
	// Stats returns the match count and latest update time for ETags.
	Stats(ctx context.Context, f services.CallFilter) (int64, *time.Time, error)
}

// RecordingService accepts uploaded recordings.
type RecordingService interface {
	Submit(ctx context.Context, callID, filename string, body io.Reader, size int64) (*domain.Record, error)
}

// RecoveryService exposes dead letters to operators.
type RecoveryService interface {
	ListFailed(ctx context.Context, page, pageSize int) ([]domain.FailedTask, int64, error)
	Retry(ctx context.Context, failedTaskID string) (*domain.FailedTask, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	calls      CallService
	recordings RecordingService
	recovery   RecoveryService

	// maxUpload caps recording size in bytes. Zero disables the check.
	maxUpload int64
}

// New constructs Handlers bound to the given services.
func New(calls CallService, recordings RecordingService, recovery RecoveryService, maxUpload int64) *Handlers {
	return &Handlers{calls: calls, recordings: recordings, recovery: recovery, maxUpload: maxUpload}
}
