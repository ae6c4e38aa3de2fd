package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/logger"
)

// WorkerCmd is the hidden subcommand the pool uses to spawn worker children.
// A worker idles on a heartbeat until the pool signals it.
var WorkerCmd = &cobra.Command{
	Use:    "worker",
	Hidden: true,
	Short:  "Run as a pool worker child (internal)",
	RunE:   runWorker,
}

var (
	workerID   string
	workerType string
)

func init() {
	WorkerCmd.Flags().StringVar(&workerID, "id", "", "Worker id assigned by the pool")
	WorkerCmd.Flags().StringVar(&workerType, "type", "api", "Worker type")
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.Named("worker")
	log.Infow("Worker started",
		"worker_id", workerID,
		"type", workerType,
		"pid", os.Getpid(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Infow("Worker stopping", "worker_id", workerID, "signal", sig.String())
			return nil
		case <-heartbeat.C:
			log.Debugw("Worker heartbeat", "worker_id", workerID)
		}
	}
}
