package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the chat server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long: `Start the huddle websocket server.

The server will:
1. Load configuration from the specified file (or huddle.yaml)
2. Open the configured store, applying migrations when auto_migrate is set
3. Serve websocket clients, /healthz, /readyz and /metrics

On SIGINT/SIGTERM open connections are closed with 1001 (going away) and the
HTTP server drains within server.shutdown_timeout.`,
		Example: `  # Start with default config
  huddle serve

  # Start with custom config and debug logging
  huddle serve --config /etc/huddle/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")
	return cmd
}

// buildMigrateCmd creates the "migrate" command group.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Manage the schema of the PostgreSQL or SQLite store named in the config.

The in-memory store has no schema and needs no migrations.`,
	}
	cmd.AddCommand(buildMigrateUpCmd(), buildMigrateDownCmd(), buildMigrateStatusCmd())
	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run pending migrations",
		Example: `  # Apply all pending migrations
  huddle migrate up

  # Apply only the next migration
  huddle migrate up --steps 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, resolveConfigPath(configPath), steps)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func buildMigrateDownCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		Long: `Rollback the last N database migrations.

Rolling back drops tables and their data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(cmd, resolveConfigPath(configPath), steps)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var configPath string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(configPath))
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for huddle.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	cmd.AddCommand(validateCmd, schemaCmd)
	return cmd
}

// buildTokenCmd creates the "token" command used to mint test identities.
func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     int64
		username   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for a user",
		Long: `Issue a JWT signed with auth.jwt_secret.

Production tokens come from the identity service; this is for local
development and smoke tests.`,
		Example: `  huddle token --user-id 42 --username grace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(cmd, resolveConfigPath(configPath), userID, username)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "User ID to embed")
	cmd.Flags().StringVar(&username, "username", "", "Username to embed")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
