package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-callrec-backend/internal/observability"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run only the analysis worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(runCtx, ctx, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address for /metrics and /health (empty disables)")
	return cmd
}

func runWorker(ctx context.Context, cctx *commandContext, metricsAddr string) error {
	cfg, err := cctx.config()
	if err != nil {
		return err
	}
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Process{Version: version, Role: "worker"})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	db, err := cctx.database()
	if err != nil {
		return err
	}
	store, err := cctx.objectStore(ctx)
	if err != nil {
		return err
	}
	q, err := cctx.taskQueue(ctx)
	if err != nil {
		return err
	}
	pool, err := newPool(cfg, db, store, q)
	if err != nil {
		return err
	}

	var srv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server failed")
			}
		}()
	}

	recoverInFlight(ctx, q)
	pool.Start(ctx)
	log.Info().Int("concurrency", cfg.Queue.Concurrency).Str("queue", cfg.Queue.Backend).Msg("worker running")

	<-ctx.Done()
	pool.Wait()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
	log.Info().Msg("worker stopped")
	return nil
}
