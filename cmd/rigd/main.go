// rigd - Instrument rig device server
//
// rigd runs in two modes from the same binary:
//   - server mode (default): reads the config, spawns one worker process
//     per device entry, supervises them, and serves a status API
//   - worker mode (`rigd worker --entry NAME`): hosts one entry's
//     devices behind an rpc daemon; spawned by the server, but can also
//     be run by hand for a single device
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/instrumentd/rig-core/internal/sim"
	_ "github.com/instrumentd/rig-core/migrations"

	"github.com/instrumentd/rig-core/internal/infrastructure/config"
	"github.com/instrumentd/rig-core/internal/infrastructure/logging"
	"github.com/instrumentd/rig-core/internal/server"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to server or worker mode, separated from main for
// testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments after the binary name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "worker" {
		return runWorker(ctx, args[1:])
	}
	return runServer(ctx, args)
}

// runServer is the parent mode: supervise one worker process per
// configured device entry.
func runServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rigd", flag.ContinueOnError)
	cfgPath := fs.String("config", getConfigPath(), "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting rigd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", *cfgPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	srv, err := server.New(cfg, *cfgPath, server.DefaultRegistry(), log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}

	log.Info("rigd stopped")
	return nil
}

// runWorker is the child mode: host a single device entry. The server
// spawns these, passing its own config path through so both sides read
// the same entry definitions.
func runWorker(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rigd worker", flag.ContinueOnError)
	cfgPath := fs.String("config", getConfigPath(), "path to the YAML configuration file")
	entry := fs.String("entry", "", "name of the device entry to serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entry == "" {
		return fmt.Errorf("worker mode requires --entry")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version).With("entry", *entry)
	log.Info("starting worker",
		"version", version,
		"entry", *entry,
	)

	if err := server.RunWorker(ctx, cfg, *entry, server.DefaultRegistry(), log); err != nil {
		return fmt.Errorf("running worker: %w", err)
	}

	log.Info("worker stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RIGCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RIGCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
