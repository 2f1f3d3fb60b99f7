// Package services – RecoveryService
//
// This file implements operator recovery: listing dead-lettered tasks,
// redriving one of them, and re-enqueueing records that sat in processing
// longer than a threshold (lost tasks).
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/repo"
)

// RecoveryService exposes dead-letter inspection and redrive.
type RecoveryService struct {
	DB    *gorm.DB
	Queue Enqueuer
}

// ListFailed returns a page of dead-letter entries, newest first.
func (s *RecoveryService) ListFailed(ctx context.Context, page, pageSize int) ([]domain.FailedTask, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	items, total, err := repo.ListFailedTasks(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, persistErr("list_failed_tasks", err)
	}
	if items == nil {
		items = []domain.FailedTask{}
	}
	return items, total, nil
}

// Retry redrives a dead-lettered record: the call moves from failed back to
// processing, every dead letter of the record is removed and the record is
// enqueued again.
func (s *RecoveryService) Retry(ctx context.Context, failedTaskID string) (*domain.FailedTask, error) {
	tr := otel.Tracer("services/RecoveryService")
	ctx, span := tr.Start(ctx, "Retry",
		trace.WithAttributes(attribute.String("failed_task.id", failedTaskID)),
	)
	defer span.End()

	ft, err := repo.GetFailedTask(ctx, s.DB, failedTaskID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrFailedTaskNotFound
	}
	if err != nil {
		return nil, persistErr("get_failed_task", err)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := repo.TransitionCallStatus(ctx, tx, ft.CallID, domain.StatusProcessing, domain.StatusFailed, domain.StatusProcessing)
		if err != nil {
			return err
		}
		_, err = repo.DeleteFailedTasksForRecord(ctx, tx, ft.RecordID)
		return err
	})
	switch {
	case isTransitionConflict(err):
		return nil, ErrInvalidTransition
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrCallNotFound
	case err != nil:
		return nil, persistErr("redrive", err)
	}

	if err := s.Queue.Enqueue(ctx, ft.RecordID); err != nil {
		return ft, &QueueError{RecordID: ft.RecordID, Err: err}
	}
	log.Info().Str("record_id", ft.RecordID).Str("call_id", ft.CallID).Msg("record redriven")
	return ft, nil
}

// RequeueStale enqueues every record whose call has been processing for
// longer than olderThan. It returns how many were enqueued.
func (s *RecoveryService) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := repo.ListStaleProcessingRecordIDs(ctx, s.DB, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, persistErr("list_stale", err)
	}
	for i, id := range ids {
		if err := s.Queue.Enqueue(ctx, id); err != nil {
			return i, &QueueError{RecordID: id, Err: err}
		}
	}
	return len(ids), nil
}
