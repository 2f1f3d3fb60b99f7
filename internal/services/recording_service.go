// Package services – RecordingService
//
// This file implements recording submission: the blob is written to the
// object store first, then the Record row and the call's move to processing
// commit together, and finally one analysis task is enqueued.
package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

const maxFilenameRunes = 255

// Enqueuer hands a record to the analysis queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, recordID string) error
}

// RecordingService accepts recordings for calls.
type RecordingService struct {
	DB    *gorm.DB
	Store storage.Gateway
	Queue Enqueuer
}

// Submit stores body as the recording of callID and schedules its analysis.
//
// Errors:
//   - ErrCallNotFound when the call does not exist, checked first
//   - ErrEmptyRecording when size is zero
//   - *storage.StorageError when the blob could not be written; nothing is committed
//   - ErrRecordExists when the call already has a recording; the new blob is left orphaned
//   - *QueueError when the task could not be enqueued after commit
func (s *RecordingService) Submit(ctx context.Context, callID, filename string, body io.Reader, size int64) (*domain.Record, error) {
	tr := otel.Tracer("services/RecordingService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("call.id", callID),
			attribute.Int64("recording.size", size),
		),
	)
	defer span.End()

	if _, err := repo.GetCall(ctx, s.DB, callID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, persistErr("get_call", err)
	}
	if size == 0 {
		return nil, ErrEmptyRecording
	}

	filename = CleanFilename(filename)
	key := storage.ObjectKey(callID, filename)
	if err := s.Store.Put(ctx, key, body, size); err != nil {
		return nil, err
	}

	var rec *domain.Record
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.CreateRecord(ctx, tx, callID, filename, key)
		if err != nil {
			return err
		}
		if err := repo.TransitionCallStatus(ctx, tx, callID, domain.StatusProcessing, domain.StatusCreated); err != nil {
			return err
		}
		rec = r
		return nil
	})
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		log.Info().Str("call_id", callID).Str("object_path", key).Msg("duplicate recording rejected, blob left orphaned")
		return nil, ErrRecordExists
	case isTransitionConflict(err):
		return nil, ErrInvalidTransition
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrCallNotFound
	case err != nil:
		return nil, persistErr("create_record", err)
	}
	span.SetAttributes(attribute.String("record.id", rec.ID))

	if err := s.Queue.Enqueue(ctx, rec.ID); err != nil {
		return rec, &QueueError{RecordID: rec.ID, Err: err}
	}
	return rec, nil
}

// CleanFilename reduces an uploaded filename to its NFC-normalized base
// name, clipped to 255 runes. Blank names become "recording".
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = norm.NFC.String(strings.TrimSpace(filepath.Base(name)))
	if name == "." || name == "/" || name == "" {
		return "recording"
	}
	if utf8.RuneCountInString(name) > maxFilenameRunes {
		r := []rune(name)
		ext := []rune(filepath.Ext(name))
		if len(ext) >= maxFilenameRunes {
			ext = nil
		}
		name = string(r[:maxFilenameRunes-len(ext)]) + string(ext)
	}
	return name
}
