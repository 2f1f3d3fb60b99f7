// Package services defines the business logic for calls, recording uploads,
// the analysis pipeline and dead-letter recovery.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-callrec-backend/internal/repo"
)

var (
	// ErrCallNotFound indicates that the referenced call does not exist.
	ErrCallNotFound = errors.New("call not found")

	// ErrRecordNotFound indicates that the call has no recording yet, or the
	// referenced record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists is returned when a recording was already submitted for
	// the call. Exactly one recording is accepted per call.
	ErrRecordExists = errors.New("recording already submitted for this call")

	// ErrEmptyRecording is returned when an uploaded recording has no bytes.
	ErrEmptyRecording = errors.New("recording is empty")

	// ErrInvalidInput is returned for malformed caller input (phone numbers,
	// filters, timestamps).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a call is not in a state that
	// allows the requested status change.
	ErrInvalidTransition = errors.New("invalid call status transition")

	// ErrFailedTaskNotFound indicates that the dead-letter entry does not exist.
	ErrFailedTaskNotFound = errors.New("failed task not found")
)

// PersistenceError wraps a database failure inside a service operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// QueueError is returned when a task could not be handed to the queue after
// its database state was committed. The record is recoverable with
// `callrec requeue --stale`.
type QueueError struct {
	RecordID string
	Err      error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("enqueue record %s: %v", e.RecordID, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

// isTransitionConflict reports whether a status update was refused, either
// because the call moved on or because the state machine forbids the move.
func isTransitionConflict(err error) bool {
	return errors.Is(err, repo.ErrStaleStatus) || errors.Is(err, repo.ErrIllegalTransition)
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
