package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-callrec-backend/internal/services"
	"github.com/tbourn/go-callrec-backend/internal/utils"
)

func newFailedTasksCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "failed-tasks",
		Aliases: []string{"dlq"},
		Short:   "Inspect and redrive dead-lettered analysis tasks",
	}
	cmd.AddCommand(newFailedTasksListCommand(ctx))
	cmd.AddCommand(newFailedTasksRetryCommand(ctx))
	return cmd
}

func (c *commandContext) recoveryService(cmd *cobra.Command, withQueue bool) (*services.RecoveryService, error) {
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	svc := &services.RecoveryService{DB: db}
	if withQueue {
		q, err := c.taskQueue(cmd.Context())
		if err != nil {
			return nil, err
		}
		svc.Queue = q
	}
	return svc, nil
}

func newFailedTasksListCommand(ctx *commandContext) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.recoveryService(cmd, false)
			if err != nil {
				return err
			}
			items, total, err := svc.ListFailed(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintln(out, "No failed tasks")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, ft := range items {
				rows = append(rows, []string{
					ft.ID,
					ft.RecordID,
					ft.CallID,
					ft.Kind,
					strconv.Itoa(ft.Attempts),
					oneLine(ft.LastError),
					ft.CreatedAt.UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Record", "Call", "Kind", "Attempts", "Last error", "Failed at"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			meta := utils.NewPageMeta(utils.Page{Number: max(page, 1), Size: pageSizeOrDefault(pageSize)}, total)
			fmt.Fprintf(out, "Page %d of %d (%d total)\n", meta.Page, meta.TotalPages, meta.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Items per page")
	return cmd
}

func newFailedTasksRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <failed-task-id>",
		Short: "Move the call back to processing and enqueue its record again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.recoveryService(cmd, true)
			if err != nil {
				return err
			}
			ft, err := svc.Retry(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued record %s (call %s)\n", ft.RecordID, ft.CallID)
			return nil
		},
	}
}

func pageSizeOrDefault(n int) int {
	if n < 1 {
		return 20
	}
	return n
}

// oneLine keeps multi-line errors inside a single table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
