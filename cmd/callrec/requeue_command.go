package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-callrec-backend/internal/config"
	"github.com/tbourn/go-callrec-backend/internal/services"
)

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	var stale time.Duration
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Enqueue again every record stuck in processing",
		Long: "Finds calls that have been in processing for longer than --stale and " +
			"enqueues their records again. Use it after a queue outage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stale <= 0 {
				return errors.New("--stale must be positive")
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if cfg.Queue.Backend == config.QueueMemory && ctx.queue == nil {
				log.Warn().Msg("memory queue is local to this process; tasks will not reach other workers")
			}
			db, err := ctx.database()
			if err != nil {
				return err
			}
			q, err := ctx.taskQueue(cmd.Context())
			if err != nil {
				return err
			}
			svc := &services.RecoveryService{DB: db, Queue: q}
			n, err := svc.RequeueStale(cmd.Context(), stale)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d records\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&stale, "stale", 30*time.Minute, "Minimum time a call has been processing")
	return cmd
}
