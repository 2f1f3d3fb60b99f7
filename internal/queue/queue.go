// Package queue delivers recording-analysis tasks to a pool of workers.
//
// Two backends implement Queue: an in-process channel queue for single
// binary deployments and tests, and a Redis reliable list queue that keeps
// in-flight tasks on a processing list until they are acknowledged.
// Delivery is at-least-once; handlers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-callrec-backend/internal/config"
)

// ErrClosed is returned by Enqueue and Dequeue after Close.
var ErrClosed = errors.New("queue closed")

// Task asks a worker to analyze one recording.
type Task struct {
	RecordID   string    `json:"record_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (t Task) encode() (string, error) {
	b, err := json.Marshal(t)
	return string(b), err
}

func decodeTask(raw string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if t.RecordID == "" {
		return Task{}, errors.New("decode task: missing record_id")
	}
	return t, nil
}

// Delivery is a dequeued task. Ack must be called once the task is done,
// whether it succeeded or was dead-lettered.
type Delivery struct {
	Task Task
	ack  func(ctx context.Context) error
}

// Ack removes the task from the queue for good.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue is the transport between the HTTP layer and the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, recordID string) error
	// Dequeue waits up to the configured poll timeout for a task and returns
	// (nil, nil) when none arrived.
	Dequeue(ctx context.Context) (*Delivery, error)
	Ping(ctx context.Context) error
	Close() error
}

// DepthReporter is implemented by backends that can report their backlog.
type DepthReporter interface {
	// Depth returns the number of tasks waiting and the number delivered but
	// not yet acknowledged.
	Depth(ctx context.Context) (pending, inFlight int64, err error)
}

// New builds the queue selected by cfg.Backend.
func New(ctx context.Context, cfg config.QueueConfig) (Queue, error) {
	switch cfg.Backend {
	case config.QueueMemory, "":
		return NewMemory(1024, cfg.PollTimeout), nil
	case config.QueueRedis:
		rdb, err := OpenRedis(ctx, RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			return nil, err
		}
		return NewRedis(rdb, cfg.Name, cfg.PollTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
