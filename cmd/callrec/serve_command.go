package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-callrec-backend/internal/http"
	"github.com/tbourn/go-callrec-backend/internal/observability"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/sysutil"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		workers     bool
		autoMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, unless disabled, the analysis workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(runCtx, stop, ctx, workers, autoMigrate)
		},
	}
	defWorkers := sysutil.IsTruthy(sysutil.FirstNonEmpty(os.Getenv("SERVE_WORKERS"), "true"))
	cmd.Flags().BoolVar(&workers, "workers", defWorkers, "Run the worker pool in this process")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Apply schema migrations before serving")
	return cmd
}

func runServe(ctx context.Context, stop context.CancelFunc, cctx *commandContext, workers, autoMigrate bool) error {
	cfg, err := cctx.config()
	if err != nil {
		return err
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Process{Version: version, Role: "serve"})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := cctx.database()
	if err != nil {
		return err
	}
	if autoMigrate {
		if err := repo.AutoMigrate(db); err != nil {
			return err
		}
	}
	store, err := cctx.objectStore(ctx)
	if err != nil {
		return err
	}
	q, err := cctx.taskQueue(ctx)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Store: store, Queue: q}, cfg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	var pool *queue.Pool
	if workers {
		if pool, err = newPool(cfg, db, store, q); err != nil {
			return err
		}
		recoverInFlight(ctx, q)
		pool.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("workers", workers).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("http server failed")
	}
	// Stops the worker loops as well.
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if pool != nil {
		pool.Wait()
	}
	log.Info().Msg("stopped")
	return serveErr
}
