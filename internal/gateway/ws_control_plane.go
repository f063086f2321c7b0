package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/huddle/internal/auth"
	"github.com/haasonsaas/huddle/internal/chat"
	"github.com/haasonsaas/huddle/internal/observability"
	"github.com/haasonsaas/huddle/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	wsCommandTimeout  = 30 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errSessionClosed  = errors.New("session closed")
)

// wsSession is one websocket connection. It implements registry.Conn so the
// chat fanout can queue frames on it.
type wsSession struct {
	server  *Server
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	id       string
	openedAt time.Time
	user     atomic.Pointer[models.User]

	sendMu sync.RWMutex
	send   chan []byte
	closed bool

	closeOnce sync.Once
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	headerUser := s.authenticateRequest(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	session := &wsSession{
		server:   s,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		limiter:  s.newLimiter(),
		id:       uuid.NewString(),
		openedAt: time.Now(),
		send:     make(chan []byte, s.cfg.SendBuffer),
	}
	session.ctx = observability.AddConnID(session.ctx, session.id)

	if !s.track(session) {
		_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		session.close()
		return
	}
	session.run(headerUser)
}

func (s *wsSession) run(headerUser *models.User) {
	defer s.close()
	go s.writeLoop()

	if headerUser != nil {
		if err := s.bind(headerUser, ""); err != nil {
			s.sendError("", err)
			return
		}
	} else {
		go s.awaitAuth()
	}
	s.readLoop()
}

// ID implements registry.Conn.
func (s *wsSession) ID() string { return s.id }

// Send implements registry.Conn. It never blocks: a full buffer drops the
// frame for this connection only.
func (s *wsSession) Send(payload []byte) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return errSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *wsSession) userID() int64 {
	if user := s.user.Load(); user != nil {
		return user.ID
	}
	return 0
}

// awaitAuth closes the connection if it has not authenticated in time.
func (s *wsSession) awaitAuth() {
	timer := time.NewTimer(s.server.cfg.AuthTimeout)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
	case <-timer.C:
		if s.user.Load() == nil {
			s.sendError("", chat.Errorf(chat.CodeUnauthenticated, "authentication timeout"))
			s.server.logger.InfoContext(s.ctx, "closing unauthenticated connection")
			s.closeWith(websocket.ClosePolicyViolation, "authentication timeout")
		}
	}
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if user := s.user.Load(); user != nil {
			s.server.chat.Disconnect(user.ID, s.id)
			s.server.metrics.ConnectionClosed(time.Since(s.openedAt).Seconds())
			s.server.logger.InfoContext(s.ctx, "connection closed", "user_id", user.ID)
		}
		s.server.untrack(s.id)

		s.sendMu.Lock()
		s.closed = true
		close(s.send)
		s.sendMu.Unlock()

		_ = s.conn.Close() //nolint:errcheck
	})
}

// closeWith sends a close frame with code and tears the session down.
func (s *wsSession) closeWith(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsWriteWait))
	s.close()
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.server.logger.DebugContext(s.ctx, "websocket read error", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleFrame(data)
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.cancel()
				_ = s.conn.Close() //nolint:errcheck
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				s.cancel()
				_ = s.conn.Close() //nolint:errcheck
				return
			}
		}
	}
}

// handleFrame decodes, authorizes, rate limits and executes one client frame.
// Failures are reported to this connection only.
func (s *wsSession) handleFrame(data []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError("", chat.Errorf(chat.CodeValidation, "malformed JSON"))
		return
	}
	if err := validateWSCommand(data, env.Type); err != nil {
		s.sendError(env.RequestID, err)
		return
	}

	if !s.limiter.Allow() {
		s.server.metrics.RecordCommand(env.Type, strings.ToLower(string(chat.CodeRateLimited)), 0)
		s.sendError(env.RequestID, chat.Errorf(chat.CodeRateLimited, "too many commands"))
		return
	}
	if env.Type == cmdAuthenticate {
		s.handleAuthenticate(env, data)
		return
	}
	if s.user.Load() == nil {
		s.sendError(env.RequestID, chat.Errorf(chat.CodeUnauthenticated, "authenticate first"))
		return
	}

	// A command that started before a disconnect still runs to completion.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), wsCommandTimeout)
	defer cancel()
	ctx = observability.AddRequestID(ctx, env.RequestID)
	ctx = observability.AddUserID(ctx, s.userID())
	ctx = auth.WithUser(ctx, s.user.Load())
	ctx, span := s.server.tracer.TraceCommand(ctx, env.Type, s.userID())
	defer span.End()

	start := time.Now()
	err := s.dispatch(ctx, env.Type, data)
	status := "ok"
	if err != nil {
		status = strings.ToLower(string(chat.CodeOf(err)))
		s.server.tracer.RecordError(span, err)
		s.sendError(env.RequestID, err)
	}
	s.server.metrics.RecordCommand(env.Type, status, time.Since(start).Seconds())
}

func (s *wsSession) handleAuthenticate(env wsEnvelope, raw []byte) {
	if s.user.Load() != nil {
		s.sendError(env.RequestID, chat.Errorf(chat.CodeValidation, "already authenticated"))
		return
	}
	p, err := decodeParams[wsAuthenticateParams](raw)
	if err != nil {
		s.sendError(env.RequestID, err)
		return
	}
	user, err := s.server.auth.Authenticate(p.Token)
	if err != nil {
		s.server.metrics.RecordCommand(cmdAuthenticate, strings.ToLower(string(chat.CodeUnauthenticated)), 0)
		s.server.logger.InfoContext(s.ctx, "authentication failed", "error", err)
		s.sendError(env.RequestID, chat.Errorf(chat.CodeUnauthenticated, "invalid token"))
		return
	}
	if err := s.bind(user, env.RequestID); err != nil {
		s.sendError(env.RequestID, err)
		return
	}
	s.server.metrics.RecordCommand(cmdAuthenticate, "ok", 0)
}

// bind attaches the verified identity, registers the connection for fanout
// and confirms with auth_success.
func (s *wsSession) bind(user *models.User, requestID string) error {
	ctx, cancel := context.WithTimeout(s.ctx, wsCommandTimeout)
	defer cancel()
	if !s.user.CompareAndSwap(nil, user) {
		return chat.Errorf(chat.CodeValidation, "already authenticated")
	}
	if err := s.server.chat.Connect(ctx, user, s); err != nil {
		s.user.Store(nil)
		return err
	}
	s.server.metrics.ConnectionOpened()
	s.server.logger.InfoContext(s.ctx, "connection authenticated", "user_id", user.ID)

	ack := &chat.AuthSuccess{Header: chat.Header{Type: chat.EventAuthSuccess}, User: *user}
	payload, err := chat.Encode(ack, requestID)
	if err != nil {
		return err
	}
	return s.Send(payload)
}

// reply sends a query result to this connection, echoing the request ID.
func (s *wsSession) reply(ctx context.Context, ev chat.Event) error {
	payload, err := chat.Encode(ev, observability.GetRequestID(ctx))
	if err != nil {
		return err
	}
	if err := s.Send(payload); err != nil {
		s.server.metrics.EventDropped(chat.EventType(ev))
		s.server.logger.WarnContext(ctx, "dropped reply", "event", chat.EventType(ev), "error", err)
		return nil
	}
	s.server.metrics.EventDelivered(chat.EventType(ev))
	return nil
}

func (s *wsSession) sendError(requestID string, err error) {
	code := chat.CodeOf(err)
	if code == chat.CodeInternal {
		s.server.logger.ErrorContext(s.ctx, "command failed", "request_id", requestID, "error", err)
	}
	ev := &chat.ErrorEvent{
		Header:  chat.Header{Type: chat.EventError},
		Code:    code,
		Message: chat.PublicMessage(err),
	}
	payload, encErr := chat.Encode(ev, requestID)
	if encErr != nil {
		return
	}
	_ = s.Send(payload) //nolint:errcheck
}

// authenticateRequest accepts credentials presented on the upgrade request.
func (s *Server) authenticateRequest(r *http.Request) *models.User {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if user, err := s.auth.Authenticate(authHeader); err == nil {
			return user
		}
	}
	apiKey := r.Header.Get("X-API-Key")
	if apiKey != "" {
		if user, err := s.auth.ValidateAPIKey(apiKey); err == nil {
			return user
		}
	}
	return nil
}
