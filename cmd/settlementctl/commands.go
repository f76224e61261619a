package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dwarvesf/treasury-settlement/internal/reconciliation"
	"github.com/dwarvesf/treasury-settlement/internal/server"
)

func reconcileCmd() *cobra.Command {
	var start, end string
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep across every active tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := sweepWindow(start, end, window, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				report, err := app.Reconcile(ctx, w)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Window start, RFC3339")
	cmd.Flags().StringVar(&end, "end", "", "Window end, RFC3339")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "Trailing window length when --start is not set")

	return cmd
}

// sweepWindow uses the explicit bounds when given, otherwise the trailing
// window ending at end (or now).
func sweepWindow(start, end string, window time.Duration, now time.Time) (reconciliation.Window, error) {
	to := now
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return reconciliation.Window{}, fmt.Errorf("invalid --end: %w", err)
		}
		to = t
	}
	w := reconciliation.Trailing(to, window)
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return reconciliation.Window{}, fmt.Errorf("invalid --start: %w", err)
		}
		w.Start = t
	}
	return w, w.Validate()
}

func sweepEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-events",
		Short: "Remove processed webhook events past their retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				return app.SweepIdempotency(ctx)
			})
		},
	}
}

func partitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Manage tenant partitions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create [tenant-id]",
		Short: "Create the tenant's partition; safe to repeat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				if err := app.Resolver.CreatePartition(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "partition ready for %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "exists [tenant-id]",
		Short: "Report whether the tenant's partition is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				ok, err := app.Resolver.PartitionExists(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%t\n", ok)
				return nil
			})
		},
	})

	return cmd
}

func convertScheduledCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "convert-scheduled [tenant-id]",
		Short: "Run the tenant's scheduled conversion once",
		Long: `Evaluates the tenant's active rule on the schedule trigger and buys
when it asks to. Repeating a run id never buys twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				runID = uuid.NewString()
			}
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				res, err := app.Controller.TriggerScheduledConversion(ctx, args[0], runID)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Idempotency key for this run; a new one is generated when empty")

	return cmd
}
