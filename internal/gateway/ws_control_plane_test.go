package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/huddle/internal/storage"
	"github.com/haasonsaas/huddle/pkg/models"
)

const readTimeout = 5 * time.Second

type wsTestEnv struct {
	srv *Server
	ts  *httptest.Server
}

func newWSTestEnv(t *testing.T, cfg Config) *wsTestEnv {
	t.Helper()
	srv, err := NewServer(Options{
		Config: cfg,
		Chat:   testChat(t, storage.NewMemoryStores()),
		Auth:   testAuth(),
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseSessions()
		ts.Close()
	})
	return &wsTestEnv{srv: srv, ts: ts}
}

type wsTestClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *wsTestEnv) dial(t *testing.T, header http.Header) *wsTestClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + defaultWSPath
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return &wsTestClient{t: t, conn: conn}
}

// login dials and authenticates with an API key.
func (e *wsTestEnv) login(t *testing.T, key string) *wsTestClient {
	t.Helper()
	c := e.dial(t, nil)
	c.send(map[string]any{"type": "authenticate", "token": key})
	c.expect("auth_success")
	return c
}

func (c *wsTestClient) send(frame map[string]any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("write error = %v", err)
	}
}

func (c *wsTestClient) sendRaw(raw string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		c.t.Fatalf("write error = %v", err)
	}
}

func (c *wsTestClient) read() map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read error = %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		c.t.Fatalf("decode frame %s: %v", data, err)
	}
	return frame
}

// expect reads until a frame of eventType arrives.
func (c *wsTestClient) expect(eventType string) map[string]any {
	c.t.Helper()
	for {
		frame := c.read()
		if frame["type"] == eventType {
			return frame
		}
		if frame["type"] == "error" && eventType != "error" {
			c.t.Fatalf("waiting for %s, got error %v", eventType, frame)
		}
	}
}

// expectClose reads until the server closes the connection and returns the
// close code.
func (c *wsTestClient) expectClose() int {
	c.t.Helper()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return ce.Code
			}
			c.t.Fatalf("read error = %v, want close frame", err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWSAuthenticate(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	c := env.dial(t, nil)

	c.send(map[string]any{"type": "authenticate", "requestId": "auth-1", "token": "alice-key"})
	ack := c.expect("auth_success")
	if ack["requestId"] != "auth-1" {
		t.Fatalf("requestId = %v, want auth-1", ack["requestId"])
	}
	user := ack["user"].(map[string]any)
	if user["id"] != float64(1) || user["username"] != "alice" {
		t.Fatalf("user = %v", user)
	}

	c.send(map[string]any{"type": "authenticate", "requestId": "auth-2", "token": "alice-key"})
	errFrame := c.expect("error")
	if errFrame["code"] != "VALIDATION" || errFrame["requestId"] != "auth-2" {
		t.Fatalf("second authenticate = %v", errFrame)
	}
}

func TestWSAuthenticateWithJWT(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	token, err := env.srv.auth.GenerateJWT(&models.User{ID: 3, Username: "charlie"})
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	c := env.dial(t, nil)
	c.send(map[string]any{"type": "authenticate", "token": "Bearer " + token})
	ack := c.expect("auth_success")
	if ack["user"].(map[string]any)["username"] != "charlie" {
		t.Fatalf("auth_success = %v", ack)
	}
}

func TestWSRejectsCommandsBeforeAuth(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	c := env.dial(t, nil)

	c.send(map[string]any{"type": "get_user_groups", "requestId": "r1"})
	frame := c.expect("error")
	if frame["code"] != "UNAUTHENTICATED" || frame["requestId"] != "r1" {
		t.Fatalf("frame = %v", frame)
	}

	c.send(map[string]any{"type": "authenticate", "requestId": "r2", "token": "nope"})
	frame = c.expect("error")
	if frame["code"] != "UNAUTHENTICATED" || frame["message"] != "invalid token" {
		t.Fatalf("frame = %v", frame)
	}

	// The connection stays usable after a failed attempt.
	c.send(map[string]any{"type": "authenticate", "token": "bob-key"})
	c.expect("auth_success")
}

func TestWSValidationErrors(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	c := env.login(t, "alice-key")

	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"type":`},
		{name: "unknown command", raw: `{"type":"self_destruct","requestId":"x"}`},
		{name: "missing field", raw: `{"type":"send_group_message","groupId":"g"}`},
		{name: "wrong type", raw: `{"type":"block_user","userId":"bob"}`},
		{name: "bad timestamp", raw: `{"type":"get_direct_messages","userId":2,"before":"last week"}`},
	}
	// One connection serves every case, so these run sequentially on t.
	for _, tt := range tests {
		c.sendRaw(tt.raw)
		frame := c.expect("error")
		if frame["code"] != "VALIDATION" {
			t.Fatalf("%s: code = %v, want VALIDATION (%v)", tt.name, frame["code"], frame)
		}
	}
}

func TestWSPing(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	c := env.login(t, "alice-key")

	c.send(map[string]any{"type": "ping", "requestId": "p1"})
	pong := c.expect("pong")
	if pong["requestId"] != "p1" {
		t.Fatalf("pong = %v", pong)
	}
	if _, ok := pong["timestamp"].(string); !ok {
		t.Fatalf("pong missing timestamp: %v", pong)
	}
}

func TestWSHeaderAuthentication(t *testing.T) {
	env := newWSTestEnv(t, Config{})

	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{name: "api key header", header: http.Header{"X-Api-Key": []string{"bob-key"}}, want: "bob"},
		{name: "bearer header", header: http.Header{"Authorization": []string{"Bearer alice-key"}}, want: "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := env.dial(t, tt.header)
			ack := c.expect("auth_success")
			if ack["user"].(map[string]any)["username"] != tt.want {
				t.Fatalf("auth_success = %v", ack)
			}
		})
	}
}

func TestWSGroupFanout(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	alice := env.login(t, "alice-key")
	bob := env.login(t, "bob-key")

	alice.send(map[string]any{
		"type":           "create_group",
		"requestId":      "c1",
		"groupName":      "launch",
		"initialMembers": []int64{2},
	})
	created := alice.expect("group_created")
	if created["requestId"] != "c1" {
		t.Fatalf("actor frame requestId = %v, want c1", created["requestId"])
	}
	groupID := created["group"].(map[string]any)["groupId"].(string)

	bobCreated := bob.expect("group_created")
	if _, ok := bobCreated["requestId"]; ok {
		t.Fatalf("non-actor frame carries requestId: %v", bobCreated)
	}

	alice.send(map[string]any{
		"type":      "send_group_message",
		"requestId": "m1",
		"groupId":   groupID,
		"content":   "ship it @bob",
	})
	sent := alice.expect("group_message_sent")
	if sent["requestId"] != "m1" {
		t.Fatalf("group_message_sent = %v", sent)
	}
	incoming := bob.expect("new_group_message")
	msg := incoming["message"].(map[string]any)
	if msg["content"] != "ship it @bob" || msg["senderId"] != float64(1) {
		t.Fatalf("new_group_message = %v", incoming)
	}
	bob.expect("mentioned_in_group")

	bob.send(map[string]any{"type": "get_group_messages", "requestId": "h1", "groupId": groupID})
	history := bob.expect("group_messages")
	if history["requestId"] != "h1" || len(history["messages"].([]any)) != 1 {
		t.Fatalf("group_messages = %v", history)
	}

	bob.send(map[string]any{"type": "get_user_groups"})
	groups := bob.expect("user_groups")
	if len(groups["groups"].([]any)) != 1 {
		t.Fatalf("user_groups = %v", groups)
	}
}

func TestWSNotMemberError(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	alice := env.login(t, "alice-key")
	charlie := env.login(t, "charlie-key")

	alice.send(map[string]any{"type": "create_group", "groupName": "private"})
	groupID := alice.expect("group_created")["group"].(map[string]any)["groupId"].(string)

	charlie.send(map[string]any{"type": "send_group_message", "requestId": "x", "groupId": groupID, "content": "hi"})
	frame := charlie.expect("error")
	if frame["code"] != "NOT_MEMBER" || frame["requestId"] != "x" {
		t.Fatalf("frame = %v", frame)
	}
}

func TestWSDirectMessagesAndBlocking(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	alice := env.login(t, "alice-key")
	bob := env.login(t, "bob-key")

	alice.send(map[string]any{"type": "send_direct_message", "requestId": "d1", "recipientId": 2, "content": "hey"})
	if sent := alice.expect("direct_message_sent"); sent["requestId"] != "d1" {
		t.Fatalf("direct_message_sent = %v", sent)
	}
	if dm := bob.expect("new_direct_message"); dm["message"].(map[string]any)["content"] != "hey" {
		t.Fatalf("new_direct_message = %v", dm)
	}

	alice.send(map[string]any{"type": "block_user", "userId": 2})
	alice.expect("user_blocked")

	bob.send(map[string]any{"type": "send_direct_message", "requestId": "d2", "recipientId": 1, "content": "why"})
	frame := bob.expect("error")
	if frame["code"] != "USER_BLOCKED" {
		t.Fatalf("frame = %v", frame)
	}

	alice.send(map[string]any{"type": "get_blocked_users"})
	blocked := alice.expect("blocked_users")
	ids := blocked["userIds"].([]any)
	if len(ids) != 1 || ids[0] != float64(2) {
		t.Fatalf("blocked_users = %v", blocked)
	}
}

func TestWSAuthTimeout(t *testing.T) {
	env := newWSTestEnv(t, Config{AuthTimeout: 50 * time.Millisecond})
	c := env.dial(t, nil)

	if code := c.expectClose(); code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
	}
	waitFor(t, func() bool { return env.srv.SessionCount() == 0 })
}

func TestWSRateLimited(t *testing.T) {
	env := newWSTestEnv(t, Config{RatePerSecond: 0.001, RateBurst: 2})
	c := env.dial(t, http.Header{"X-Api-Key": []string{"alice-key"}})
	c.expect("auth_success")

	for i := 0; i < 2; i++ {
		c.send(map[string]any{"type": "ping"})
		c.expect("pong")
	}
	c.send(map[string]any{"type": "ping", "requestId": "over"})
	frame := c.expect("error")
	if frame["code"] != "RATE_LIMITED" || frame["requestId"] != "over" {
		t.Fatalf("frame = %v", frame)
	}
}

func TestWSCloseSessions(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	c := env.login(t, "alice-key")
	waitFor(t, func() bool { return env.srv.SessionCount() == 1 })

	env.srv.CloseSessions()
	if code := c.expectClose(); code != websocket.CloseGoingAway {
		t.Fatalf("close code = %d, want %d", code, websocket.CloseGoingAway)
	}
	waitFor(t, func() bool { return env.srv.SessionCount() == 0 })

	late := env.dial(t, nil)
	if code := late.expectClose(); code != websocket.CloseGoingAway {
		t.Fatalf("late close code = %d, want %d", code, websocket.CloseGoingAway)
	}
}

func TestWSDisconnectUntracks(t *testing.T) {
	env := newWSTestEnv(t, Config{})
	c := env.login(t, "alice-key")
	waitFor(t, func() bool { return env.srv.SessionCount() == 1 })

	c.conn.Close()
	waitFor(t, func() bool { return env.srv.SessionCount() == 0 })
}

func TestSessionSend(t *testing.T) {
	s := &wsSession{send: make(chan []byte, 1)}

	if err := s.Send([]byte("one")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := s.Send([]byte("two")); err != errSendBufferFull {
		t.Fatalf("Send() error = %v, want errSendBufferFull", err)
	}

	s.sendMu.Lock()
	s.closed = true
	s.sendMu.Unlock()
	if err := s.Send([]byte("three")); err != errSessionClosed {
		t.Fatalf("Send() error = %v, want errSessionClosed", err)
	}
}
