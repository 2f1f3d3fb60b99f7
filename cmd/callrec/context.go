package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/config"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/storage"
	"github.com/tbourn/go-callrec-backend/internal/sysutil"
)

// commandContext lazily opens the shared dependencies of a subcommand and
// releases them in close. Tests pre-populate the fields to inject fakes.
type commandContext struct {
	configOnce sync.Once
	cfg        config.Config
	configErr  error

	db    *gorm.DB
	store storage.Gateway
	queue queue.Queue

	closers []func() error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) config() (config.Config, error) {
	c.configOnce.Do(func() {
		c.cfg, c.configErr = config.Load()
		if c.configErr != nil {
			c.configErr = fmt.Errorf("load config: %w", c.configErr)
		}
	})
	return c.cfg, c.configErr
}

func (c *commandContext) database() (*gorm.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		if err := sysutil.EnsureParentDir(cfg.Database.Path); err != nil {
			return nil, err
		}
	}
	db, err := repo.Open(cfg.Database, cfg.OTEL.Enabled)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return db, nil
}

// objectStore builds the configured gateway and makes sure its bucket exists.
func (c *commandContext) objectStore(ctx context.Context) (storage.Gateway, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	if cl, ok := store.(io.Closer); ok {
		c.closers = append(c.closers, cl.Close)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

func (c *commandContext) taskQueue(ctx context.Context) (queue.Queue, error) {
	if c.queue != nil {
		return c.queue, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	q, err := queue.New(ctx, cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	c.queue = q
	c.closers = append(c.closers, q.Close)
	return q, nil
}

// close releases everything opened by this context, newest first.
func (c *commandContext) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close dependency")
		}
	}
	c.closers = nil
}
