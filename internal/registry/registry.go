// Package registry tracks live authenticated connections per user.
package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Conn is a live transport handle bound to one authenticated user.
// Send must not block; implementations queue or drop.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Registry maps user IDs to every live connection they hold.
//
// Thread Safety:
// Registry is safe for concurrent use. No sends happen while the lock is held.
type Registry struct {
	mu     sync.RWMutex
	conns  map[int64]map[string]Conn
	logger *slog.Logger
}

// New creates an empty registry. If logger is nil, slog.Default() is used.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[int64]map[string]Conn),
		logger: logger.With("component", "registry"),
	}
}

// Add binds conn to userID. Re-adding the same connection ID replaces it.
func (r *Registry) Add(userID int64, conn Conn) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	byID, ok := r.conns[userID]
	if !ok {
		byID = make(map[string]Conn)
		r.conns[userID] = byID
	}
	byID[conn.ID()] = conn
	total := len(byID)
	r.mu.Unlock()

	r.logger.Debug("connection registered", "user_id", userID, "conn_id", conn.ID(), "user_connections", total)
}

// Remove unbinds the connection. Unknown connections are ignored.
func (r *Registry) Remove(userID int64, connID string) {
	r.mu.Lock()
	byID, ok := r.conns[userID]
	if ok {
		delete(byID, connID)
		if len(byID) == 0 {
			delete(r.conns, userID)
		}
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("connection removed", "user_id", userID, "conn_id", connID)
	}
}

// ConnectionsFor returns a snapshot of the user's live connections ordered by
// connection ID. The slice is empty when the user is offline.
func (r *Registry) ConnectionsFor(userID int64) []Conn {
	r.mu.RLock()
	byID := r.conns[userID]
	out := make([]Conn, 0, len(byID))
	for _, conn := range byID {
		out = append(out, conn)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// Count returns the number of live connections and distinct users.
func (r *Registry) Count() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, byID := range r.conns {
		connections += len(byID)
	}
	return connections, len(r.conns)
}
