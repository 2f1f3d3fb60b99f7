package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func runPool(t *testing.T, p *Pool) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	return func() {
		cancel()
		p.Wait()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	q := NewMemory(8, 10*time.Millisecond)
	var calls atomic.Int32
	var done atomic.Bool
	baseOK := testutil.ToFloat64(tasksTotal.WithLabelValues(OutcomeSucceeded))
	baseRetries := testutil.ToFloat64(taskRetries)

	p := &Pool{
		Queue:       q,
		Concurrency: 2,
		Policy:      RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
		Handle: func(ctx context.Context, recordID string) error {
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			done.Store(true)
			return nil
		},
		OnExhausted: func(context.Context, Task, int, error) {
			t.Errorf("must not exhaust")
		},
	}
	stop := runPool(t, p)
	defer stop()

	if err := q.Enqueue(context.Background(), "r1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, done.Load)
	waitFor(t, func() bool { return testutil.ToFloat64(tasksTotal.WithLabelValues(OutcomeSucceeded)) == baseOK+1 })

	if calls.Load() != 3 {
		t.Fatalf("handler calls = %d; want 3", calls.Load())
	}
	if got := testutil.ToFloat64(taskRetries) - baseRetries; got != 2 {
		t.Fatalf("retries = %v; want 2", got)
	}
}

func TestPool_ExhaustedCallsDeadLetter(t *testing.T) {
	q := NewMemory(8, 10*time.Millisecond)
	var (
		mu       sync.Mutex
		gotTask  Task
		gotTries int
		gotErr   error
		fired    atomic.Bool
	)
	boom := errors.New("bad audio")
	p := &Pool{
		Queue:       q,
		Concurrency: 1,
		Policy:      RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
		Handle:      func(context.Context, string) error { return boom },
		OnExhausted: func(_ context.Context, task Task, attempts int, err error) {
			mu.Lock()
			gotTask, gotTries, gotErr = task, attempts, err
			mu.Unlock()
			fired.Store(true)
		},
	}
	stop := runPool(t, p)
	defer stop()

	_ = q.Enqueue(context.Background(), "r-bad")
	waitFor(t, fired.Load)

	mu.Lock()
	defer mu.Unlock()
	if gotTask.RecordID != "r-bad" || gotTries != 4 || !errors.Is(gotErr, boom) {
		t.Fatalf("dead letter = %+v attempts=%d err=%v", gotTask, gotTries, gotErr)
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	q := NewMemory(8, 10*time.Millisecond)
	var calls atomic.Int32
	var ok atomic.Bool
	p := &Pool{
		Queue:       q,
		Concurrency: 1,
		Policy:      RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond},
		Handle: func(context.Context, string) error {
			if calls.Add(1) == 1 {
				panic("kaboom")
			}
			ok.Store(true)
			return nil
		},
	}
	stop := runPool(t, p)
	defer stop()

	_ = q.Enqueue(context.Background(), "r1")
	waitFor(t, ok.Load)
}

func TestPool_SamplesQueueDepth(t *testing.T) {
	q := NewMemory(8, 10*time.Millisecond)
	release := make(chan struct{})
	p := &Pool{
		Queue:         q,
		Concurrency:   1,
		DepthInterval: 5 * time.Millisecond,
		Handle: func(ctx context.Context, _ string) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		_ = q.Enqueue(context.Background(), id)
	}
	stop := runPool(t, p)
	defer stop()
	defer close(release)

	waitFor(t, func() bool {
		return testutil.ToFloat64(queueDepth.WithLabelValues("pending")) == 2 &&
			testutil.ToFloat64(queueDepth.WithLabelValues("in_flight")) == 1
	})
}

func TestPool_StopsOnClose(t *testing.T) {
	q := NewMemory(1, 10*time.Millisecond)
	p := &Pool{Queue: q, Concurrency: 3, Handle: func(context.Context, string) error { return nil }}
	p.Start(context.Background())
	_ = q.Close()

	done := make(chan struct{})
	go func() { p.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop after queue close")
	}
}
