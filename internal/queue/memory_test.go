package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-callrec-backend/internal/config"
)

func TestMemory_EnqueueDequeue(t *testing.T) {
	q := NewMemory(4, 10*time.Millisecond)
	ctx := context.Background()
	if err := q.Enqueue(ctx, "r1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d", q.Len())
	}
	d, err := q.Dequeue(ctx)
	if err != nil || d == nil || d.Task.RecordID != "r1" || d.Task.EnqueuedAt.IsZero() {
		t.Fatalf("Dequeue = %+v, %v", d, err)
	}
	if err := d.Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	// Empty queue times out with (nil, nil).
	d, err = q.Dequeue(ctx)
	if d != nil || err != nil {
		t.Fatalf("expected poll timeout, got %+v, %v", d, err)
	}
}

func TestMemory_FullQueueRespectsContext(t *testing.T) {
	q := NewMemory(1, 10*time.Millisecond)
	_ = q.Enqueue(context.Background(), "r1")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, "r2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemory_Depth(t *testing.T) {
	q := NewMemory(4, 10*time.Millisecond)
	ctx := context.Background()
	_ = q.Enqueue(ctx, "r1")
	_ = q.Enqueue(ctx, "r2")

	d, _ := q.Dequeue(ctx)
	if pending, inFlight, err := q.Depth(ctx); err != nil || pending != 1 || inFlight != 1 {
		t.Fatalf("Depth = %d/%d, %v; want 1/1", pending, inFlight, err)
	}
	_ = d.Ack(ctx)
	_ = d.Ack(ctx)
	if _, inFlight, _ := q.Depth(ctx); inFlight != 0 {
		t.Fatalf("in flight after ack = %d; want 0", inFlight)
	}

	_ = q.Close()
	if _, _, err := q.Depth(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Depth after Close = %v; want ErrClosed", err)
	}
}

func TestMemory_Close(t *testing.T) {
	q := NewMemory(1, time.Second)
	_ = q.Close()
	_ = q.Close()
	if err := q.Enqueue(context.Background(), "r1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDecodeTask(t *testing.T) {
	raw, _ := Task{RecordID: "r1"}.encode()
	got, err := decodeTask(raw)
	if err != nil || got.RecordID != "r1" {
		t.Fatalf("decodeTask = %+v, %v", got, err)
	}
	if _, err := decodeTask(`{"record_id":""}`); err == nil {
		t.Fatalf("expected error for empty record id")
	}
	if _, err := decodeTask("not json"); err == nil {
		t.Fatalf("expected error for bad json")
	}
}

func TestNew_Backends(t *testing.T) {
	q, err := New(context.Background(), config.QueueConfig{Backend: config.QueueMemory, PollTimeout: time.Second})
	if err != nil {
		t.Fatalf("New memory: %v", err)
	}
	if _, ok := q.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", q)
	}
	if _, err := New(context.Background(), config.QueueConfig{Backend: "sqs"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
