// Package chat implements the real-time chat engine: group lifecycle,
// group and direct messaging, reactions, blocking and event fanout.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/huddle/internal/observability"
	"github.com/haasonsaas/huddle/internal/registry"
	"github.com/haasonsaas/huddle/internal/storage"
	"github.com/haasonsaas/huddle/pkg/models"
)

const (
	defaultMaxMessageLength     = 4000
	defaultMaxGroupNameLength   = 100
	defaultMaxDescriptionLength = 500
	defaultHistoryLimit         = 50
	maxHistoryLimit             = 200
	maxReactionLength           = 32
)

// Config bounds user supplied input.
type Config struct {
	MaxMessageLength     int
	MaxGroupNameLength   int
	MaxDescriptionLength int
	HistoryLimit         int
}

func (c Config) withDefaults() Config {
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = defaultMaxMessageLength
	}
	if c.MaxGroupNameLength <= 0 {
		c.MaxGroupNameLength = defaultMaxGroupNameLength
	}
	if c.MaxDescriptionLength <= 0 {
		c.MaxDescriptionLength = defaultMaxDescriptionLength
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.HistoryLimit > maxHistoryLimit {
		c.HistoryLimit = maxHistoryLimit
	}
	return c
}

// Options wires a Service.
type Options struct {
	Stores   storage.StoreSet
	Registry *registry.Registry
	Config   Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Service executes chat commands. Every mutation is authorized, persisted and
// only then fanned out; errors are returned to the caller and never broadcast.
//
// Thread Safety:
// Service is safe for concurrent use. Mutations of one group, or of one
// direct conversation, are serialized on a lane keyed by that conversation.
type Service struct {
	users     storage.UserStore
	groups    storage.GroupStore
	messages  storage.MessageStore
	reactions storage.ReactionStore
	blocks    storage.BlockStore

	guard    *Guard
	registry *registry.Registry
	lanes    *lanes
	clean    *sanitizer

	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time
	newID   func() string
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	stores := opts.Stores
	if stores.Users == nil || stores.Blocks == nil || stores.Groups == nil || stores.Messages == nil || stores.Reactions == nil {
		return nil, errors.New("chat: all stores are required")
	}
	if opts.Registry == nil {
		return nil, errors.New("chat: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		users:     stores.Users,
		groups:    stores.Groups,
		messages:  stores.Messages,
		reactions: stores.Reactions,
		blocks:    stores.Blocks,
		guard:     NewGuard(stores.Blocks),
		registry:  opts.Registry,
		lanes:     newLanes(),
		clean:     newSanitizer(),
		cfg:       opts.Config.withDefaults(),
		logger:    logger.With("component", "chat"),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		now:       now,
		newID:     newID,
	}, nil
}

// Guard exposes the block guard.
func (s *Service) Guard() *Guard { return s.guard }

// Connect caches the user's identity and registers the connection for fanout.
func (s *Service) Connect(ctx context.Context, user *models.User, conn registry.Conn) error {
	if user == nil || user.ID <= 0 {
		return Errorf(CodeUnauthenticated, "user is required")
	}
	cached := *user
	cached.UpdatedAt = s.now()
	if err := s.users.Upsert(ctx, &cached); err != nil {
		return storeErr("cache user", err)
	}
	s.registry.Add(user.ID, conn)
	return nil
}

// Disconnect unregisters the connection. Nothing persisted is affected.
func (s *Service) Disconnect(userID int64, connID string) {
	s.registry.Remove(userID, connID)
}

// withLane runs fn while holding the lane for key.
func (s *Service) withLane(ctx context.Context, key string, fn func() error) error {
	release, err := s.lanes.acquire(ctx, key)
	if err != nil {
		return &Error{Code: CodeInternal, Message: "lane acquire", Err: err}
	}
	defer release()
	return fn()
}

// activeGroup loads a group. Inactive groups report NOT_FOUND so their
// existence is not leaked.
func (s *Service) activeGroup(ctx context.Context, groupID string) (*models.Group, error) {
	if groupID == "" {
		return nil, Errorf(CodeValidation, "groupId is required")
	}
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Errorf(CodeNotFound, "group not found")
		}
		return nil, storeErr("load group", err)
	}
	if !group.Active {
		return nil, Errorf(CodeNotFound, "group not found")
	}
	return group, nil
}

// memberSnapshot returns the current membership and fails with NOT_MEMBER
// when userID is not part of it.
func (s *Service) memberSnapshot(ctx context.Context, groupID string, userID int64) ([]models.Member, error) {
	members, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return nil, storeErr("load members", err)
	}
	for _, m := range members {
		if m.UserID == userID {
			return members, nil
		}
	}
	return nil, Errorf(CodeNotMember, "not a member of this group")
}

// loadMessage fetches a message of the requested kind. A message the viewer
// deleted for themselves is reported as missing.
func (s *Service) loadMessage(ctx context.Context, messageID string, isGroup bool, viewerID int64) (*models.Message, error) {
	if messageID == "" {
		return nil, Errorf(CodeValidation, "messageId is required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Errorf(CodeNotFound, "message not found")
		}
		return nil, storeErr("load message", err)
	}
	if msg.IsGroup != isGroup || msg.HiddenFor(viewerID) {
		return nil, Errorf(CodeNotFound, "message not found")
	}
	return msg, nil
}

func (s *Service) historyLimit(limit int) int {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		return s.cfg.HistoryLimit
	}
	return limit
}

func (s *Service) attachReactions(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	byMessage, err := s.reactions.ListForMessages(ctx, ids)
	if err != nil {
		return storeErr("load reactions", err)
	}
	for _, m := range msgs {
		m.Reactions = byMessage[m.ID]
	}
	return nil
}

func (s *Service) username(ctx context.Context, userID int64) string {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Username
}

func requireUser(id int64, field string) error {
	if id <= 0 {
		return Errorf(CodeValidation, "%s is required", field)
	}
	return nil
}

func (s *Service) logFailure(ctx context.Context, op string, err error) {
	if CodeOf(err) != CodeInternal {
		return
	}
	s.metrics.RecordError("chat", op)
	s.logger.ErrorContext(ctx, fmt.Sprintf("%s failed", op), "error", err)
}
