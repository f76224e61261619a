package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwarvesf/treasury-settlement/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "settlementctl",
		Short:        "Operator commands for the settlement pipeline",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(sweepEventsCmd())
	rootCmd.AddCommand(partitionCmd())
	rootCmd.AddCommand(convertScheduledCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp wires the pipeline for one command and releases it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *server.App) error) error {
	appConfig, logger, err := server.LoadConfig()
	if err != nil {
		return err
	}
	app, err := server.NewApp(appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(cmd.Context(), app)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
