package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/huddle/internal/auth"
	"github.com/haasonsaas/huddle/internal/config"
	"github.com/haasonsaas/huddle/pkg/models"
)

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid\n", configPath)
	fmt.Fprintf(out, "  listen:   %s%s\n", cfg.Server.Addr(), cfg.Server.WSPath)
	fmt.Fprintf(out, "  database: %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  api keys: %d\n", len(cfg.Auth.APIKeys))
	fmt.Fprintf(out, "  jwt:      %t\n", cfg.Auth.JWTSecret != "")
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err
}

func runTokenIssue(cmd *cobra.Command, configPath string, userID int64, username string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}
	token, err := auth.NewService(authConfig(cfg)).GenerateJWT(&models.User{ID: userID, Username: username})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
