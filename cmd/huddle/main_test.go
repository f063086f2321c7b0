package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/huddle/internal/auth"
	"github.com/haasonsaas/huddle/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "config", "token"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("HUDDLE_CONFIG", "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Fatalf("resolveConfigPath(\"\") = %q", got)
	}
	if got := resolveConfigPath("/etc/huddle.yaml"); got != "/etc/huddle.yaml" {
		t.Fatalf("explicit path = %q", got)
	}

	t.Setenv("HUDDLE_CONFIG", "/srv/huddle.yaml")
	if got := resolveConfigPath(defaultConfigPath); got != "/srv/huddle.yaml" {
		t.Fatalf("env path = %q", got)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	path := writeConfig(t, `
auth:
  api_keys:
    - key: k1
      user_id: 1
      username: alice
`)

	out, err := execute(t, "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "api keys: 1") {
		t.Fatalf("unexpected output: %s", out)
	}

	bad := writeConfig(t, "database:\n  driver: mongo\n")
	if _, err := execute(t, "config", "validate", "--config", bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	out, err := execute(t, "config", "schema")
	if err != nil {
		t.Fatalf("config schema error = %v", err)
	}
	if !strings.Contains(out, "jwt_secret") {
		t.Fatalf("schema output missing auth fields")
	}
}

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: local-dev\n")

	out, err := execute(t, "token", "--config", path, "--user-id", "42", "--username", "grace")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	svc := auth.NewService(auth.Config{JWTSecret: "local-dev"})
	user, err := svc.ValidateJWT(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if user.ID != 42 || user.Username != "grace" {
		t.Fatalf("user = %+v", user)
	}
}

func TestMigrateCommandsSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "huddle.db")
	path := writeConfig(t, `
database:
  driver: sqlite
  url: `+dbPath+`
auth:
  jwt_secret: x
`)

	out, err := execute(t, "migrate", "status", "--config", path)
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if !strings.Contains(out, "none") {
		t.Fatalf("fresh database status = %s", out)
	}

	out, err = execute(t, "migrate", "up", "--config", path)
	if err != nil {
		t.Fatalf("migrate up error = %v", err)
	}
	if !strings.Contains(out, "Schema version: ") || strings.Contains(out, "none") {
		t.Fatalf("migrate up output = %s", out)
	}

	out, err = execute(t, "migrate", "down", "--config", path, "--steps", "0")
	if err != nil {
		t.Fatalf("migrate down error = %v", err)
	}
	if !strings.Contains(out, "none") {
		t.Fatalf("migrate down output = %s", out)
	}
}

func TestMigrateRejectsMemoryStore(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: x\n")
	if _, err := execute(t, "migrate", "up", "--config", path); err == nil {
		t.Fatal("expected error for memory driver")
	}
}

func TestOpenStoresAndAuthConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "k", UserID: 9, Username: "ivy"}}

	stores, err := openStores(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	if stores.Users == nil || stores.Messages == nil {
		t.Fatal("memory stores not wired")
	}

	user, err := auth.NewService(authConfig(cfg)).Authenticate("k")
	if err != nil || user.ID != 9 {
		t.Fatalf("Authenticate() = %+v, %v", user, err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "huddle.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestApplyLogLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: levelVar}))

	applyLogLevel(logger, levelVar, "info")
	if buf.Len() != 0 {
		t.Fatalf("unchanged level logged: %s", buf.String())
	}

	applyLogLevel(logger, levelVar, "error")
	if levelVar.Level() != slog.LevelError {
		t.Fatalf("level = %s, want ERROR", levelVar.Level())
	}
	// The change notice is logged at info, after the switch, so it is filtered.
	if strings.Contains(buf.String(), "log level changed") {
		t.Fatalf("unexpected output: %s", buf.String())
	}

	applyLogLevel(logger, levelVar, "debug")
	if levelVar.Level() != slog.LevelDebug || !strings.Contains(buf.String(), "to=DEBUG") {
		t.Fatalf("level = %s, output = %s", levelVar.Level(), buf.String())
	}
}
