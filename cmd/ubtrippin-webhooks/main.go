// Command ubtrippin-webhooks runs the UBTrippin webhook delivery subsystem:
// the admin API, the delivery worker, and the maintenance jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ubtrippin-webhooks",
	Short: "UBTrippin outbound webhook delivery",
	Long: `ubtrippin-webhooks delivers trip events to customer webhooks.

Events are queued by the dispatcher and sent by the worker, either in-process
(serve, worker) or one cycle at a time from a scheduler (process-batch).
Configuration comes from an optional file and UBTRIPPIN_* environment
variables, e.g. UBTRIPPIN_STORE_DSN or UBTRIPPIN_VAULT_MASTER_KEY.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ubtrippin-webhooks %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(processBatchCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
}
