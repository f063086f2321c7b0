package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/huddle/internal/auth"
	"github.com/haasonsaas/huddle/internal/chat"
	"github.com/haasonsaas/huddle/internal/config"
	"github.com/haasonsaas/huddle/internal/gateway"
	"github.com/haasonsaas/huddle/internal/observability"
	"github.com/haasonsaas/huddle/internal/registry"
	"github.com/haasonsaas/huddle/internal/storage"
)

// runServe loads configuration, wires every component and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	levelVar := new(slog.LevelVar)
	logger := observability.NewLogger(observability.LogConfig{
		Level:    level,
		Format:   cfg.Logging.Format,
		LevelVar: levelVar,
	})
	slog.SetDefault(logger)

	logger.Info("starting huddle",
		"version", version,
		"commit", commit,
		"config", configPath,
		"driver", cfg.Database.Driver,
	)

	tracer, shutdownTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Logging.Watch && !debug {
		watcher, err := config.Watch(ctx, configPath, 0, logger, func(next *config.Config) {
			applyLogLevel(logger, levelVar, next.Logging.Level)
		})
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			defer watcher.Close() //nolint:errcheck
		}
	}

	var stores storage.StoreSet
	err = observability.WithSpan(ctx, tracer, "storage.open", func(ctx context.Context, span trace.Span) error {
		tracer.SetAttributes(span, "db.system", cfg.Database.Driver)
		stores, err = openStores(ctx, cfg, logger)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer stores.Close() //nolint:errcheck

	svc, err := chat.NewService(chat.Options{
		Stores:   stores,
		Registry: registry.New(logger),
		Config: chat.Config{
			MaxMessageLength:     cfg.Chat.MaxMessageLength,
			MaxGroupNameLength:   cfg.Chat.MaxGroupNameLength,
			MaxDescriptionLength: cfg.Chat.MaxDescriptionLength,
			HistoryLimit:         cfg.Chat.HistoryLimit,
		},
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat service: %w", err)
	}

	server, err := gateway.NewServer(gateway.Options{
		Config: gateway.Config{
			WSPath:        cfg.Server.WSPath,
			AuthTimeout:   cfg.Chat.AuthTimeout,
			SendBuffer:    cfg.Chat.SendBuffer,
			RatePerSecond: cfg.Chat.RateLimit.PerSecond,
			RateBurst:     cfg.Chat.RateLimit.Burst,
		},
		Chat:     svc,
		Auth:     auth.NewService(authConfig(cfg)),
		Store:    stores,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
		Gatherer: reg,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	addr, err := server.Start(cfg.Server.Addr())
	if err != nil {
		return err
	}
	logger.Info("huddle started", "addr", addr.String(), "ws_path", cfg.Server.WSPath)

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("huddle stopped gracefully")
	return nil
}

// applyLogLevel switches the live log level when the reloaded config asks
// for a different one.
func applyLogLevel(logger *slog.Logger, levelVar *slog.LevelVar, raw string) {
	next := observability.LogLevelFromString(raw)
	if prev := levelVar.Level(); prev != next {
		levelVar.Set(next)
		logger.Info("log level changed", "from", prev.String(), "to", next.String())
	}
}

func authConfig(cfg *config.Config) auth.Config {
	keys := make([]auth.APIKeyConfig, 0, len(cfg.Auth.APIKeys))
	for _, key := range cfg.Auth.APIKeys {
		keys = append(keys, auth.APIKeyConfig{
			Key:      key.Key,
			UserID:   key.UserID,
			Username: key.Username,
		})
	}
	return auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     keys,
	}
}
