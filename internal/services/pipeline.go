// Package services – Pipeline
//
// This file implements the asynchronous analysis workflow run by the worker
// pool for one record:
//
//  1. load the record (a missing record completes the task vacuously)
//  2. make sure the call is in processing
//  3. download the blob into a private scratch directory
//  4. analyze it
//  5. in one transaction replace the silence ranges, store duration and
//     transcription, and move the call to ready
//
// Every step may run again on redelivery. Step 5 deletes and re-inserts the
// ranges so repeated runs converge on the same rows.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/analyzer"
	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/observability"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

// Dead-letter kinds, derived from the last error of an exhausted task.
const (
	KindAnalysis    = "analysis"
	KindStorage     = "storage"
	KindPersistence = "persistence"
	KindUnknown     = "unknown"
)

// Pipeline runs the analysis workflow for records.
type Pipeline struct {
	DB       *gorm.DB
	Store    storage.Gateway
	Analyzer analyzer.Analyzer

	// ScratchDir hosts per-run temporary directories. Empty uses os.TempDir.
	ScratchDir string
}

// Run executes the workflow for recordID. It is safe to call repeatedly.
func (p *Pipeline) Run(ctx context.Context, recordID string) (err error) {
	tr := otel.Tracer("services/Pipeline")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(attribute.String("record.id", recordID)),
	)
	defer func() {
		observability.Fail(span, err)
		span.End()
	}()
	logger := log.With().Str("component", "pipeline").Str("record_id", recordID).Logger()

	// 1. Load
	rec, err := repo.GetRecord(ctx, p.DB, recordID)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Error().Msg("record not found, nothing to process")
		return nil
	}
	if err != nil {
		return persistErr("load_record", err)
	}
	span.SetAttributes(attribute.String("call.id", rec.CallID))

	// 2. Processing
	proceed, err := p.startProcessing(ctx, rec.CallID)
	if err != nil || !proceed {
		return err
	}

	// 3. Download
	dir, err := os.MkdirTemp(p.ScratchDir, "callrec-*")
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "audio"+filepath.Ext(rec.ObjectPath))
	if err := p.download(ctx, rec.ObjectPath, path); err != nil {
		return err
	}

	// 4. Analyze
	started := time.Now()
	res, err := p.Analyzer.Analyze(ctx, path)
	if err != nil {
		logger.Warn().Err(err).Msg("analysis failed")
		return err
	}
	logger.Debug().
		Float64("duration", res.Duration).
		Int("silences", len(res.Silences)).
		Dur("took", time.Since(started)).
		Msg("analysis finished")

	// 5. Commit
	ranges := make([]domain.SilentRange, len(res.Silences))
	for i, iv := range res.Silences {
		ranges[i] = domain.SilentRange{Start: iv.Start, End: iv.End}
	}
	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ReplaceSilentRanges(ctx, tx, rec.ID, ranges); err != nil {
			return err
		}
		if err := repo.UpdateRecordAnalysis(ctx, tx, rec.ID, res.Duration, res.Transcription); err != nil {
			return err
		}
		return repo.TransitionCallStatus(ctx, tx, rec.CallID, domain.StatusReady, domain.StatusProcessing, domain.StatusReady)
	})
	if isTransitionConflict(err) {
		// Retrying cannot bring the call back to processing.
		return queue.Permanent(fmt.Errorf("%w: call %s left processing during analysis", ErrInvalidTransition, rec.CallID))
	}
	if err != nil {
		return persistErr("commit_analysis", err)
	}
	logger.Info().Str("call_id", rec.CallID).Float64("duration", res.Duration).Msg("record ready")
	return nil
}

// startProcessing moves the call to processing. It reports false when the
// call is dead-lettered and the task must not run.
func (p *Pipeline) startProcessing(ctx context.Context, callID string) (bool, error) {
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.TransitionCallStatus(ctx, tx, callID, domain.StatusProcessing, domain.StatusCreated, domain.StatusProcessing)
	})
	if err == nil {
		return true, nil
	}
	if !isTransitionConflict(err) {
		return false, persistErr("start_processing", err)
	}

	call, gerr := repo.GetCall(ctx, p.DB, callID)
	if gerr != nil {
		return false, persistErr("start_processing", gerr)
	}
	switch call.Status {
	case domain.StatusReady:
		// Redelivered after completion: re-run, the call stays ready.
		return true, nil
	case domain.StatusFailed:
		log.Warn().Str("component", "pipeline").Str("call_id", callID).Msg("call is dead-lettered, skipping until redriven")
		return false, nil
	default:
		return false, queue.Permanent(fmt.Errorf("%w: call %s is %s", ErrInvalidTransition, callID, call.Status))
	}
}

func (p *Pipeline) download(ctx context.Context, key, path string) error {
	rc, err := p.Store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("scratch file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return &storage.StorageError{Op: "get", Key: key, Err: err}
	}
	return f.Close()
}

// deadLetterPayload is stored as FailedTask.Payload.
type deadLetterPayload struct {
	RecordID   string    `json:"record_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
	Reason     string    `json:"reason,omitempty"`
}

// MarkFailed records an exhausted task: it writes a FailedTask and moves the
// call from processing to failed in one transaction. A call that is not in
// processing keeps its status.
func (p *Pipeline) MarkFailed(ctx context.Context, task queue.Task, attempts int, lastErr error) error {
	tr := otel.Tracer("services/Pipeline")
	ctx, span := tr.Start(ctx, "MarkFailed",
		trace.WithAttributes(
			attribute.String("record.id", task.RecordID),
			attribute.Int("attempts", attempts),
		),
	)
	defer span.End()

	rec, err := repo.GetRecord(ctx, p.DB, task.RecordID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persistErr("load_record", err)
	}

	kind, reason := classify(lastErr)
	payload, err := json.Marshal(deadLetterPayload{
		RecordID:   task.RecordID,
		EnqueuedAt: task.EnqueuedAt,
		Attempts:   attempts,
		Reason:     reason,
	})
	if err != nil {
		return err
	}
	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}

	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateFailedTask(ctx, tx, rec.ID, rec.CallID, kind, attempts, msg, payload); err != nil {
			return err
		}
		err := repo.TransitionCallStatus(ctx, tx, rec.CallID, domain.StatusFailed, domain.StatusProcessing)
		if isTransitionConflict(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return persistErr("mark_failed", err)
	}
	log.Error().
		Str("component", "pipeline").
		Str("record_id", rec.ID).
		Str("call_id", rec.CallID).
		Str("kind", kind).
		Int("attempts", attempts).
		Msg("record dead-lettered")
	return nil
}

// OnExhausted adapts MarkFailed to queue.ExhaustedFunc.
func (p *Pipeline) OnExhausted(ctx context.Context, task queue.Task, attempts int, lastErr error) {
	if err := p.MarkFailed(ctx, task, attempts, lastErr); err != nil {
		log.Error().Err(err).Str("record_id", task.RecordID).Msg("could not dead-letter task")
	}
}

func classify(err error) (kind, reason string) {
	var (
		ae *analyzer.AnalysisError
		se *storage.StorageError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ae):
		return KindAnalysis, ae.Reason
	case errors.As(err, &se):
		return KindStorage, se.Op
	case errors.As(err, &pe):
		return KindPersistence, pe.Op
	default:
		return KindUnknown, ""
	}
}
