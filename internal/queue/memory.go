package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is a bounded in-process queue. Tasks do not survive a restart;
// use `callrec requeue --stale` to recover records left in processing.
type Memory struct {
	ch       chan Task
	poll     time.Duration
	inFlight atomic.Int64

	once   sync.Once
	closed chan struct{}
}

// NewMemory returns a queue holding up to size pending tasks.
func NewMemory(size int, poll time.Duration) *Memory {
	if size < 1 {
		size = 1
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Memory{ch: make(chan Task, size), poll: poll, closed: make(chan struct{})}
}

func (m *Memory) Enqueue(ctx context.Context, recordID string) error {
	t := Task{RecordID: recordID, EnqueuedAt: time.Now().UTC()}
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- t:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(m.poll)
	defer timer.Stop()
	select {
	case t := <-m.ch:
		m.inFlight.Add(1)
		var once sync.Once
		return &Delivery{Task: t, ack: func(context.Context) error {
			once.Do(func() { m.inFlight.Add(-1) })
			return nil
		}}, nil
	case <-timer.C:
		return nil, nil
	case <-m.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of pending tasks.
func (m *Memory) Len() int { return len(m.ch) }

// Depth reports pending tasks and deliveries not yet acknowledged.
func (m *Memory) Depth(context.Context) (pending, inFlight int64, err error) {
	select {
	case <-m.closed:
		return 0, 0, ErrClosed
	default:
	}
	return int64(len(m.ch)), m.inFlight.Load(), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
