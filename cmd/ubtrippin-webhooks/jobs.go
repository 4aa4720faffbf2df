package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the delivery loop without the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()

		a.logger.Info("worker started", "poll_interval", a.cfg.Worker.PollInterval)
		a.hooks.Start(ctx)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.hooks.Stop(shutdownCtx); err != nil {
			a.logger.Error("worker stop", "error", err)
		}
		a.logger.Info("worker stopped")
		return nil
	},
}

var processBatchCmd = &cobra.Command{
	Use:   "process-batch",
	Short: "Run one delivery cycle and print its result as JSON",
	Long: `Run one delivery cycle and print its result as JSON.

Meant for cron-style schedulers. Overlapping runs are safe: each queue entry
is claimed by exactly one cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.hooks.ProcessBatch(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(res)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete deliveries older than the retention horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.hooks.Sweep(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d deliveries\n", n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the webhook tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.Migrate(cmd.Context()); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
