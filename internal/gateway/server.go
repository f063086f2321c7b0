// Package gateway exposes the chat engine over HTTP and websockets.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/huddle/internal/auth"
	"github.com/haasonsaas/huddle/internal/chat"
	"github.com/haasonsaas/huddle/internal/observability"
)

const (
	defaultWSPath        = "/ws"
	defaultAuthTimeout   = 10 * time.Second
	defaultSendBuffer    = 64
	defaultRatePerSecond = 20
	defaultRateBurst     = 40
)

// Config tunes the transport.
type Config struct {
	WSPath        string
	AuthTimeout   time.Duration
	SendBuffer    int
	RatePerSecond float64
	RateBurst     int
}

func (c Config) withDefaults() Config {
	if c.WSPath == "" {
		c.WSPath = defaultWSPath
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = defaultRatePerSecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = defaultRateBurst
	}
	return c
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires a Server.
type Options struct {
	Config   Config
	Chat     *chat.Service
	Auth     *auth.Service
	Store    Pinger
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Gatherer prometheus.Gatherer
}

// Server owns the HTTP surface and every live websocket session.
type Server struct {
	cfg      Config
	chat     *chat.Service
	auth     *auth.Service
	store    Pinger
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	mu         sync.Mutex
	sessions   map[string]*wsSession
	draining   bool
	httpServer *http.Server
}

// NewServer validates opts and builds a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Chat == nil {
		return nil, errors.New("gateway: chat service is required")
	}
	if !opts.Auth.Enabled() {
		return nil, errors.New("gateway: no identity mechanism configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      opts.Config.withDefaults(),
		chat:     opts.Chat,
		auth:     opts.Auth,
		store:    opts.Store,
		logger:   logger.With("component", "gateway"),
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		sessions: make(map[string]*wsSession),
	}, nil
}

func (s *Server) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst)
}

// track registers a session; it fails once the server is draining.
func (s *Server) track(session *wsSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.sessions[session.id] = session
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// SessionCount returns the number of open websocket sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseSessions stops accepting websocket upgrades and closes every open
// session with 1001 (going away).
func (s *Server) CloseSessions() {
	s.mu.Lock()
	s.draining = true
	open := make([]*wsSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()

	for _, session := range open {
		session.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	if len(open) > 0 {
		s.logger.Info("closed websocket sessions", "count", len(open))
	}
}
