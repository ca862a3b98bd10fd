/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the practice engine: runs the HTTP server,
  generates tasks from the shell, and seeds compliance calendars.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve       Start the HTTP API
  generate    Generate (or preview) one period's tasks for a firm
  seed        Load the standard calendar or a calendar file into a firm

GLOBAL FLAGS:
  --config    YAML configuration file (default: practice.yaml, optional)
  --db        SQLite database path, overrides database.path
              Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN (serve):
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the lock client and database connection
  4. Exit

EXAMPLES:
  # Serve with a config file
  ./server serve --config=./practice.yaml

  # Seed the standard calendar for a firm
  ./server seed --firm=firm-1

  # Generate GSTR-3B for March 2024 for two clients
  ./server generate --firm=firm-1 --period=2024-03 --code=GSTR-3B \
      --clients=acme,beta --actor=partner-1

ENVIRONMENT:
  PRACTICE_PORT, PRACTICE_DB, PRACTICE_LOG_LEVEL, PRACTICE_REDIS_ADDR
  (see config/config.go). A .env file in the working directory is loaded.

SEE ALSO:
  - api/server.go: Router configuration
  - engine/generator.go: Generation runs
  - config/config.go: Configuration
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ledgerly/practice-engine/config"
	"github.com/ledgerly/practice-engine/engine"
	"github.com/ledgerly/practice-engine/lock"
	"github.com/ledgerly/practice-engine/store/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Compliance task generation for accounting practices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "practice.yaml", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newSeedCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the dependencies shared by every command.
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	store     *sqlite.Store
	generator *engine.Generator
	closers   []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store}
	a.closers = append(a.closers, store.Close)

	var locker engine.Locker
	if cfg.UsesRedisLock() {
		rl, err := lock.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rl.Close)
		locker = rl
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis generation lock")
	} else {
		locker = lock.NewMemory()
	}

	a.generator = &engine.Generator{
		Compliance: store,
		Rosters:    store,
		Relations:  store,
		Tasks:      store,
		Runs:       store,
		Locker:     locker,
		Builder: &engine.BatchBuilder{
			Eligibility: engine.NewEligibilityFilter(cfg.Generation.CategoryOverrides),
		},
		Logger: logger,
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("close failed")
		}
	}
}
