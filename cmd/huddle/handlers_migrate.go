package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/huddle/internal/config"
	"github.com/haasonsaas/huddle/internal/storage"
)

// openMigrator opens a dedicated handle for the configured SQL store.
// Closing the migrator closes the handle.
func openMigrator(configPath string) (*storage.Migrator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if driver == "memory" {
		return nil, fmt.Errorf("database.driver is memory; nothing to migrate")
	}
	db, err := storage.OpenDB(driver, cfg.Database.URL, poolConfig(cfg))
	if err != nil {
		return nil, err
	}
	migrator, err := storage.NewMigrator(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return migrator, nil
}

func runMigrateUp(cmd *cobra.Command, configPath string, steps int) error {
	slog.Info("running database migrations", "config", configPath, "steps", steps)
	migrator, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(steps); err != nil {
		return err
	}
	return printMigrationStatus(cmd, migrator)
}

func runMigrateDown(cmd *cobra.Command, configPath string, steps int) error {
	slog.Warn("rolling back migrations", "config", configPath, "steps", steps)
	migrator, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Down(steps); err != nil {
		return err
	}
	return printMigrationStatus(cmd, migrator)
}

func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	migrator, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck
	return printMigrationStatus(cmd, migrator)
}

func printMigrationStatus(cmd *cobra.Command, migrator *storage.Migrator) error {
	status, err := migrator.Status()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if status.Version == 0 {
		fmt.Fprintln(out, "Schema version: none (no migrations applied)")
		return nil
	}
	fmt.Fprintf(out, "Schema version: %d\n", status.Version)
	if status.Dirty {
		fmt.Fprintln(out, "Warning: the last migration failed part way; fix the schema and force the version.")
	}
	return nil
}
