// Package config loads and validates huddle.yaml.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main configuration structure for huddle.
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	WSPath          string        `yaml:"ws_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

type DatabaseConfig struct {
	// Driver is one of memory, postgres or sqlite.
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	// ConnectAttempts bounds startup retries while the database comes up.
	ConnectAttempts int           `yaml:"connect_attempts"`
}

type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenExpiry time.Duration  `yaml:"token_expiry"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig binds a static key to a user identity.
type APIKeyConfig struct {
	Key      string `yaml:"key"`
	UserID   int64  `yaml:"user_id"`
	Username string `yaml:"username"`
}

type ChatConfig struct {
	AuthTimeout          time.Duration   `yaml:"auth_timeout"`
	MaxMessageLength     int             `yaml:"max_message_length"`
	MaxGroupNameLength   int             `yaml:"max_group_name_length"`
	MaxDescriptionLength int             `yaml:"max_description_length"`
	HistoryLimit         int             `yaml:"history_limit"`
	SendBuffer           int             `yaml:"send_buffer"`
	RateLimit            RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a per-connection token bucket.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Watch re-reads logging.level when the config file changes. Other keys
	// take effect on restart.
	Watch bool `yaml:"watch"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// ConfigValidationError lists every problem found in a config file.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + strings.Join(e.Issues, "; ")
}

// Load reads, expands, decodes, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied and an in-memory store.
// It still needs an identity mechanism before it validates.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.WSPath == "" {
		cfg.Server.WSPath = "/ws"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.ConnectAttempts == 0 {
		cfg.Database.ConnectAttempts = 5
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Chat.AuthTimeout == 0 {
		cfg.Chat.AuthTimeout = 10 * time.Second
	}
	if cfg.Chat.MaxMessageLength == 0 {
		cfg.Chat.MaxMessageLength = 4000
	}
	if cfg.Chat.MaxGroupNameLength == 0 {
		cfg.Chat.MaxGroupNameLength = 100
	}
	if cfg.Chat.MaxDescriptionLength == 0 {
		cfg.Chat.MaxDescriptionLength = 500
	}
	if cfg.Chat.HistoryLimit == 0 {
		cfg.Chat.HistoryLimit = 50
	}
	if cfg.Chat.SendBuffer == 0 {
		cfg.Chat.SendBuffer = 64
	}
	if cfg.Chat.RateLimit.PerSecond == 0 {
		cfg.Chat.RateLimit.PerSecond = 20
	}
	if cfg.Chat.RateLimit.Burst == 0 {
		cfg.Chat.RateLimit.Burst = 40
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "huddle"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

func validate(cfg *Config) error {
	var issues []string

	if err := ValidateVersion(cfg.Version); err != nil {
		issues = append(issues, err.Error())
	}

	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		issues = append(issues, fmt.Sprintf("server.http_port %d is out of range", cfg.Server.HTTPPort))
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		issues = append(issues, "server.ws_path must start with /")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "memory":
	case "postgres", "sqlite":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			issues = append(issues, fmt.Sprintf("database.url is required for driver %q", cfg.Database.Driver))
		}
	default:
		issues = append(issues, fmt.Sprintf("database.driver %q is not supported (memory, postgres, sqlite)", cfg.Database.Driver))
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" && len(cfg.Auth.APIKeys) == 0 {
		issues = append(issues, "auth requires jwt_secret or api_keys")
	}
	seenKeys := map[string]bool{}
	for i, key := range cfg.Auth.APIKeys {
		if strings.TrimSpace(key.Key) == "" {
			issues = append(issues, fmt.Sprintf("auth.api_keys[%d].key is required", i))
		} else if seenKeys[key.Key] {
			issues = append(issues, fmt.Sprintf("auth.api_keys[%d].key is duplicated", i))
		}
		seenKeys[key.Key] = true
		if key.UserID <= 0 {
			issues = append(issues, fmt.Sprintf("auth.api_keys[%d].user_id must be positive", i))
		}
	}

	if cfg.Chat.MaxMessageLength < 0 || cfg.Chat.MaxGroupNameLength < 0 || cfg.Chat.MaxDescriptionLength < 0 {
		issues = append(issues, "chat length limits must not be negative")
	}
	if cfg.Chat.HistoryLimit < 0 || cfg.Chat.HistoryLimit > 200 {
		issues = append(issues, "chat.history_limit must be between 1 and 200")
	}
	if cfg.Chat.RateLimit.PerSecond < 0 || cfg.Chat.RateLimit.Burst < 0 {
		issues = append(issues, "chat.rate_limit must not be negative")
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json or text", cfg.Logging.Format))
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
