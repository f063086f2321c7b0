package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/huddle/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// UserStore caches identities seen at authentication time.
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id int64) (*models.User, error)
}

// BlockStore persists directed block relationships.
type BlockStore interface {
	// Block is idempotent.
	Block(ctx context.Context, blockerID, blockedID int64) error
	// Unblock is idempotent.
	Unblock(ctx context.Context, blockerID, blockedID int64) error
	// IsBlocked checks both directions.
	IsBlocked(ctx context.Context, a, b int64) (bool, error)
	// Related returns every user with a block relationship to userID in either direction.
	Related(ctx context.Context, userID int64) ([]int64, error)
	// ListBlocked returns the users blockerID has blocked.
	ListBlocked(ctx context.Context, blockerID int64) ([]int64, error)
}

// GroupStore persists group metadata and membership.
type GroupStore interface {
	// Create inserts the group and its initial members atomically.
	Create(ctx context.Context, group *models.Group, memberIDs []int64) error
	// Get returns the group whether or not it is active.
	Get(ctx context.Context, id string) (*models.Group, error)
	Update(ctx context.Context, id, name, description string, updatedAt time.Time) error
	Deactivate(ctx context.Context, id string, at time.Time) error
	// AddMember reports false when the user already is a member.
	AddMember(ctx context.Context, groupID string, userID int64, joinedAt time.Time) (bool, error)
	// RemoveMember reports false when the user was not a member.
	RemoveMember(ctx context.Context, groupID string, userID int64) (bool, error)
	IsMember(ctx context.Context, groupID string, userID int64) (bool, error)
	// Members returns a snapshot of the membership ordered by join time.
	Members(ctx context.Context, groupID string) ([]models.Member, error)
	// ListForUser returns active groups the user belongs to with MemberCount populated.
	ListForUser(ctx context.Context, userID int64) ([]*models.Group, error)
}

// MessageQuery selects a page of history, newest first.
type MessageQuery struct {
	ViewerID int64
	Limit    int
	Before   time.Time
}

// MessageStore persists direct and group messages.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	// Get returns the message with DeletedFor populated.
	Get(ctx context.Context, id string) (*models.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	// DeleteForEveryone marks the row deleted and scrubs its content.
	DeleteForEveryone(ctx context.Context, id string) error
	// HideFor is idempotent.
	HideFor(ctx context.Context, id string, userID int64) error
	// ListGroup and ListDirect skip messages hidden for the viewer.
	ListGroup(ctx context.Context, groupID string, q MessageQuery) ([]*models.Message, error)
	ListDirect(ctx context.Context, a, b int64, q MessageQuery) ([]*models.Message, error)
}

// ReactionStore persists reactions, one per user per message.
type ReactionStore interface {
	Upsert(ctx context.Context, reaction *models.Reaction) error
	// Delete reports false when the user had no reaction.
	Delete(ctx context.Context, messageID string, userID int64) (bool, error)
	ListForMessages(ctx context.Context, messageIDs []string) (map[string][]models.Reaction, error)
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Users     UserStore
	Blocks    BlockStore
	Groups    GroupStore
	Messages  MessageStore
	Reactions ReactionStore
	ping      func(ctx context.Context) error
	closer    func() error
}

// Ping checks the backing database, if any.
func (s StoreSet) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
