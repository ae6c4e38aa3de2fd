package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/config"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/logger"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/server"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/version"
)

// ServerCmd starts the TES dev console server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the dev console server",
	Long:    `Launch the TES dev console: dashboard, dev API, worker pool and live WebSocket streams.`,
	RunE:    runServer,
}

var (
	serverPort      int
	serverRegistry  string
	serverPresetDir string
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", -1, "Listen port (overrides BUN_PORT/PORT/NODE_PORT; 0 = random)")
	ServerCmd.Flags().StringVar(&serverRegistry, "version-registry", "versions.json", "Version registry file (optional)")
	ServerCmd.Flags().StringVar(&serverPresetDir, "preset-dir", "presets", "Directory for spline presets")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	cfg.Server.Port = config.ResolvePort(serverPort, cfg.Server.Port)

	log := logger.Named("server")

	opts := server.Options{
		PresetDir: serverPresetDir,
	}
	if _, statErr := os.Stat(serverRegistry); statErr == nil {
		opts.VersionRegistryPath = serverRegistry
	}

	srv, err := server.NewTESServer(cfg, log, opts)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	printBanner(cfg)

	// Signal-driven shutdown: one Stop call runs the LIFO teardown stack
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infow("Signal received, shutting down", "signal", sig.String())
		_ = srv.Stop()
	}()

	return srv.Start()
}

func printBanner(cfg *config.Config) {
	info := version.Get()
	pterm.DefaultBox.WithTitle("TES dev console").Println(fmt.Sprintf(
		"version  %s\nhost     %s\nport     %d\nenv      %s\nworkers  %d",
		info.Version,
		cfg.Server.Hostname,
		cfg.Server.Port,
		cfg.Server.Env,
		cfg.Workers.PoolSize,
	))
}
