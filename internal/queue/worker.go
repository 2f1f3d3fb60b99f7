package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_total",
			Help: "Processed pipeline tasks by outcome (succeeded, exhausted, interrupted).",
		},
		[]string{"outcome"},
	)

	taskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_task_retries_total",
			Help: "Retries scheduled after a failed pipeline attempt.",
		},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_task_duration_seconds",
			Help:    "Wall time of a pipeline task including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	tasksInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_tasks_inflight",
			Help: "Pipeline tasks currently being handled.",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Tasks in the queue backend by state (pending, in_flight), sampled by the worker pool.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, taskRetries, taskDuration, tasksInflight, queueDepth)
}

// DefaultDepthInterval is how often the pool samples queue depth.
const DefaultDepthInterval = 15 * time.Second

// Task outcomes.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomeExhausted   = "exhausted"
	OutcomeInterrupted = "interrupted"
)

// Handler processes one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, recordID string) error

// ExhaustedFunc is called once a task has used its whole retry budget.
type ExhaustedFunc func(ctx context.Context, task Task, attempts int, lastErr error)

// Pool runs Concurrency loops that dequeue tasks and apply Policy around
// Handle.
type Pool struct {
	Queue       Queue
	Handle      Handler
	OnExhausted ExhaustedFunc
	Policy      RetryPolicy
	Concurrency int
	// DepthInterval is the queue depth sampling period for backends that
	// implement DepthReporter. Zero uses DefaultDepthInterval.
	DepthInterval time.Duration

	wg      sync.WaitGroup
	sampler chan struct{}
}

// Start launches the worker loops. They stop when ctx is done; use Wait to
// block until in-flight tasks return.
func (p *Pool) Start(ctx context.Context) {
	n := p.Concurrency
	if n < 1 {
		n = 1
	}
	log.Info().Str("component", "worker").Int("concurrency", n).Msg("starting worker pool")
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runLoop(ctx, i+1)
	}

	if dr, ok := p.Queue.(DepthReporter); ok {
		loops := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(loops)
		}()
		p.sampler = make(chan struct{})
		go p.sampleDepth(ctx, dr, loops)
	}
}

// Wait blocks until every loop started by Start has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
	if p.sampler != nil {
		<-p.sampler
	}
}

// sampleDepth publishes the queue backlog until ctx is done or the worker
// loops have exited.
func (p *Pool) sampleDepth(ctx context.Context, dr DepthReporter, loops <-chan struct{}) {
	defer close(p.sampler)
	interval := p.DepthInterval
	if interval <= 0 {
		interval = DefaultDepthInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		recordDepth(ctx, dr)
		select {
		case <-ctx.Done():
			return
		case <-loops:
			return
		case <-t.C:
		}
	}
}

func recordDepth(ctx context.Context, dr DepthReporter) {
	pending, inFlight, err := dr.Depth(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrClosed) {
			log.Warn().Err(err).Str("component", "worker").Msg("queue depth unavailable")
		}
		return
	}
	queueDepth.WithLabelValues("pending").Set(float64(pending))
	queueDepth.WithLabelValues("in_flight").Set(float64(inFlight))
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			log.Info().Str("component", "worker").Int("worker_id", workerID).Msg("worker loop stopped")
			return
		}
		d, err := p.Queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				log.Info().Str("component", "worker").Int("worker_id", workerID).Msg("queue closed")
				return
			}
			if ctx.Err() != nil {
				continue
			}
			log.Warn().Err(err).Str("component", "worker").Int("worker_id", workerID).Msg("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if d == nil {
			continue
		}
		p.process(ctx, workerID, d)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, d *Delivery) {
	tasksInflight.Inc()
	defer tasksInflight.Dec()
	start := time.Now()
	logger := log.With().
		Str("component", "worker").
		Int("worker_id", workerID).
		Str("record_id", d.Task.RecordID).
		Logger()

	attempts, err := p.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return p.safeHandle(ctx, d.Task.RecordID)
	}, func(err error, wait time.Duration, attempt int) {
		taskRetries.Inc()
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("task attempt failed")
	})

	outcome := OutcomeSucceeded
	switch {
	case err == nil:
		logger.Info().Int("attempts", attempts).Msg("task completed")
	case ctx.Err() != nil:
		// Leave the task unacknowledged so a reliable backend can redeliver it.
		outcome = OutcomeInterrupted
		logger.Warn().Err(err).Int("attempts", attempts).Msg("task interrupted by shutdown")
	default:
		outcome = OutcomeExhausted
		logger.Error().Err(err).Int("attempts", attempts).Msg("task exhausted retries")
		if p.OnExhausted != nil {
			p.OnExhausted(context.WithoutCancel(ctx), d.Task, attempts, err)
		}
	}
	tasksTotal.WithLabelValues(outcome).Inc()
	taskDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if outcome == OutcomeInterrupted {
		return
	}
	if err := d.Ack(context.WithoutCancel(ctx)); err != nil {
		logger.Warn().Err(err).Msg("ack failed")
	}
}

func (p *Pool) safeHandle(ctx context.Context, recordID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "worker").Str("record_id", recordID).Interface("panic", r).Msg("task handler panic")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.Handle(ctx, recordID)
}
