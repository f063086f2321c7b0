// Package main provides the CLI entry point for huddle, a real-time group
// and direct chat server.
//
// # Basic Usage
//
// Start the server:
//
//	huddle serve --config huddle.yaml
//
// Manage database migrations:
//
//	huddle migrate up
//	huddle migrate status
//
// Check a configuration file:
//
//	huddle config validate --config huddle.yaml
//
// # Environment Variables
//
// A .env file in the working directory is loaded before anything else, so
// ${VAR} references in huddle.yaml can be kept out of the file itself.
//
//   - HUDDLE_CONFIG: Path to configuration file (default: huddle.yaml)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/huddle/internal/backoff"
	"github.com/haasonsaas/huddle/internal/config"
	"github.com/haasonsaas/huddle/internal/storage"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "huddle.yaml"

func main() {
	_ = godotenv.Load(".env")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "huddle",
		Short: "huddle - real-time group and direct chat server",
		Long: `huddle serves group chats, direct messages, reactions and mentions to
authenticated websocket clients.

Storage: in-memory, PostgreSQL or SQLite.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildConfigCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit flag, then HUDDLE_CONFIG.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" && path != defaultConfigPath {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("HUDDLE_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}

func poolConfig(cfg *config.Config) *storage.PoolConfig {
	pool := storage.DefaultPoolConfig()
	if cfg.Database.MaxConnections > 0 {
		pool.MaxOpenConns = cfg.Database.MaxConnections
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return pool
}

// openStores builds the configured backend. SQL backends are retried with
// backoff while the database comes up, then migrated when auto_migrate is set.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.StoreSet, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if driver == "" || driver == "memory" {
		return storage.NewMemoryStores(), nil
	}

	var stores storage.StoreSet
	err := backoff.Retry(ctx, backoff.DefaultPolicy(), cfg.Database.ConnectAttempts, func(int) error {
		var err error
		stores, err = storage.NewSQLStoresFromDSN(driver, cfg.Database.URL, poolConfig(cfg))
		return err
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn("database not reachable, retrying", "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return storage.StoreSet{}, err
	}

	if cfg.Database.AutoMigrate {
		if err := storage.MigrateDSN(driver, cfg.Database.URL); err != nil {
			_ = stores.Close()
			return storage.StoreSet{}, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return stores, nil
}
