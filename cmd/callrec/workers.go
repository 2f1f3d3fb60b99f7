package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/analyzer"
	"github.com/tbourn/go-callrec-backend/internal/config"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/services"
	"github.com/tbourn/go-callrec-backend/internal/storage"
	"github.com/tbourn/go-callrec-backend/internal/sysutil"
)

// newPool wires the analysis pipeline behind the retrying worker pool.
func newPool(cfg config.Config, db *gorm.DB, store storage.Gateway, q queue.Queue) (*queue.Pool, error) {
	an, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		return nil, err
	}
	if err := sysutil.EnsureDir(cfg.Analyzer.ScratchDir); err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	p := &services.Pipeline{
		DB:         db,
		Store:      store,
		Analyzer:   an,
		ScratchDir: cfg.Analyzer.ScratchDir,
	}
	return &queue.Pool{
		Queue:       q,
		Handle:      p.Run,
		OnExhausted: p.OnExhausted,
		Policy:      queue.RetryPolicy{MaxRetries: cfg.Queue.MaxRetries, Backoff: cfg.Queue.Backoff},
		Concurrency: cfg.Queue.Concurrency,
	}, nil
}

// recoverInFlight puts tasks held by consumers that stopped heartbeating
// back on the pending list, now and then once per lease period until ctx is
// done. Only the Redis backend survives restarts.
func recoverInFlight(ctx context.Context, q queue.Queue) {
	rq, ok := q.(*queue.Redis)
	if !ok {
		return
	}
	recoverOnce(ctx, rq)
	go func() {
		t := time.NewTicker(queue.DefaultLeaseTTL)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				recoverOnce(ctx, rq)
			}
		}
	}()
}

func recoverOnce(ctx context.Context, rq *queue.Redis) {
	n, err := rq.Recover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("recover in-flight tasks")
		}
		return
	}
	if n > 0 {
		log.Info().Int("tasks", n).Msg("recovered in-flight tasks")
	}
}
