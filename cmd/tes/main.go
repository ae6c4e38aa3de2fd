package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/cmd/tes/commands"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/logger"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/version"
)

var rootCmd = &cobra.Command{
	Use:   "tes",
	Short: "TES - developer control plane for the odds platform",
	Long: `TES - developer-facing control plane.

A single-process HTTP/WebSocket server that aggregates live telemetry about
itself and its worker processes, routes typed requests to static, file-backed
and computational endpoints, and orchestrates pre-spawned worker children.

Available commands:
  server - Start the dev console server
  worker - (internal) run as a pool worker child

Examples:
  tes server               # start on the resolved port (default 3002)
  tes server --port=0      # random port
  tes version              # print build info`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput := os.Getenv("NODE_ENV") == "production" || os.Getenv("BUN_ENV") == "production"
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func main() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase verbosity (-v, -vv)")
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
