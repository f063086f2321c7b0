package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "huddle.yaml", `
auth:
  api_keys:
    - key: k1
      user_id: 1
      username: alice
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Server.WSPath != "/ws" || cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Database.Driver != "memory" || cfg.Database.MaxConnections != 25 {
		t.Fatalf("database defaults = %+v", cfg.Database)
	}
	if cfg.Chat.AuthTimeout != 10*time.Second || cfg.Chat.HistoryLimit != 50 || cfg.Chat.SendBuffer != 64 {
		t.Fatalf("chat defaults = %+v", cfg.Chat)
	}
	if cfg.Chat.RateLimit.PerSecond != 20 || cfg.Chat.RateLimit.Burst != 40 {
		t.Fatalf("rate limit defaults = %+v", cfg.Chat.RateLimit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Tracing.ServiceName != "huddle" || cfg.Tracing.SamplingRate != 1.0 {
		t.Fatalf("tracing defaults = %+v", cfg.Tracing)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, "huddle.yaml", `
version: 1
server:
  host: 127.0.0.1
  http_port: 9000
  ws_path: /chat
  shutdown_timeout: 5s
database:
  driver: sqlite
  url: file:huddle.db
  auto_migrate: true
auth:
  jwt_secret: s3cret
chat:
  auth_timeout: 3s
  max_message_length: 1000
  rate_limit:
    per_second: 5
    burst: 10
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" || cfg.Server.WSPath != "/chat" || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Database.Driver != "sqlite" || !cfg.Database.AutoMigrate {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Chat.AuthTimeout != 3*time.Second || cfg.Chat.MaxMessageLength != 1000 || cfg.Chat.RateLimit.Burst != 10 {
		t.Fatalf("chat = %+v", cfg.Chat)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("HUDDLE_TEST_SECRET", "from-env")
	path := writeConfig(t, "huddle.yaml", `
auth:
  jwt_secret: ${HUDDLE_TEST_SECRET}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "huddle.yaml", `
server:
  host: 0.0.0.0
  grpc_port: 50051
auth:
  jwt_secret: x
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "no identity mechanism",
			body:    "server:\n  http_port: 8080\n",
			wantErr: "jwt_secret or api_keys",
		},
		{
			name:    "unknown driver",
			body:    "auth:\n  jwt_secret: x\ndatabase:\n  driver: mongo\n",
			wantErr: "database.driver",
		},
		{
			name:    "sql driver without url",
			body:    "auth:\n  jwt_secret: x\ndatabase:\n  driver: postgres\n",
			wantErr: "database.url",
		},
		{
			name:    "api key without user",
			body:    "auth:\n  api_keys:\n    - key: k\n",
			wantErr: "user_id",
		},
		{
			name:    "duplicate api key",
			body:    "auth:\n  api_keys:\n    - {key: k, user_id: 1}\n    - {key: k, user_id: 2}\n",
			wantErr: "duplicated",
		},
		{
			name:    "history limit too large",
			body:    "auth:\n  jwt_secret: x\nchat:\n  history_limit: 1000\n",
			wantErr: "history_limit",
		},
		{
			name:    "bad log format",
			body:    "auth:\n  jwt_secret: x\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "future version",
			body:    "version: 9\nauth:\n  jwt_secret: x\n",
			wantErr: "newer than this build",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "huddle.yaml", tt.body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var verr *ConfigValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ConfigValidationError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q in error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(base, []byte("server:\n  http_port: 7000\n  host: 10.0.0.1\nauth:\n  jwt_secret: base\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	path := filepath.Join(dir, "huddle.yaml")
	if err := os.WriteFile(path, []byte("$include: base.yaml\nserver:\n  http_port: 7100\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 7100 || cfg.Server.Host != "10.0.0.1" || cfg.Auth.JWTSecret != "base" {
		t.Fatalf("merged config = %+v %+v", cfg.Server, cfg.Auth)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(b, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Load(a)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "huddle.json5", `{
  // comments are allowed
  auth: { api_keys: [{ key: "k", user_id: 7, username: "grace" }] },
  chat: { send_buffer: 16 }
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chat.SendBuffer != 16 || len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].UserID != 7 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "huddle.yaml", "auth:\n  jwt_secret: a\n---\nauth:\n  jwt_secret: b\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for multiple documents")
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if !strings.Contains(string(data), "rate_limit") {
		t.Fatalf("schema does not describe chat.rate_limit")
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
