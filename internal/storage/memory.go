package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/huddle/pkg/models"
)

// NewMemoryStores builds a StoreSet held entirely in process memory.
func NewMemoryStores() StoreSet {
	users := NewMemoryUserStore()
	return StoreSet{
		Users:     users,
		Blocks:    NewMemoryBlockStore(),
		Groups:    NewMemoryGroupStore(users),
		Messages:  NewMemoryMessageStore(),
		Reactions: NewMemoryReactionStore(users),
	}
}

// MemoryUserStore provides an in-memory UserStore.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[int64]models.User
}

// NewMemoryUserStore creates an in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[int64]models.User)}
}

func (s *MemoryUserStore) Upsert(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("user is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryUserStore) Get(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryUserStore) username(id int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id].Username
}

type blockKey struct {
	blocker int64
	blocked int64
}

// MemoryBlockStore provides an in-memory BlockStore.
type MemoryBlockStore struct {
	mu     sync.RWMutex
	blocks map[blockKey]time.Time
}

// NewMemoryBlockStore creates an in-memory block store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{blocks: make(map[blockKey]time.Time)}
}

func (s *MemoryBlockStore) Block(ctx context.Context, blockerID, blockedID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := blockKey{blocker: blockerID, blocked: blockedID}
	if _, ok := s.blocks[key]; !ok {
		s.blocks[key] = time.Now()
	}
	return nil
}

func (s *MemoryBlockStore) Unblock(ctx context.Context, blockerID, blockedID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, blockKey{blocker: blockerID, blocked: blockedID})
	return nil
}

func (s *MemoryBlockStore) IsBlocked(ctx context.Context, a, b int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ab := s.blocks[blockKey{blocker: a, blocked: b}]
	_, ba := s.blocks[blockKey{blocker: b, blocked: a}]
	return ab || ba, nil
}

func (s *MemoryBlockStore) Related(ctx context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[int64]bool{}
	out := []int64{}
	for key := range s.blocks {
		var other int64
		switch userID {
		case key.blocker:
			other = key.blocked
		case key.blocked:
			other = key.blocker
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryBlockStore) ListBlocked(ctx context.Context, blockerID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []int64{}
	for key := range s.blocks {
		if key.blocker == blockerID {
			out = append(out, key.blocked)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// MemoryGroupStore provides an in-memory GroupStore.
type MemoryGroupStore struct {
	mu      sync.RWMutex
	users   *MemoryUserStore
	groups  map[string]*models.Group
	members map[string]map[int64]time.Time
}

// NewMemoryGroupStore creates an in-memory group store. Usernames are
// resolved through users.
func NewMemoryGroupStore(users *MemoryUserStore) *MemoryGroupStore {
	return &MemoryGroupStore{
		users:   users,
		groups:  make(map[string]*models.Group),
		members: make(map[string]map[int64]time.Time),
	}
}

func (s *MemoryGroupStore) Create(ctx context.Context, group *models.Group, memberIDs []int64) error {
	if group == nil || group.ID == "" {
		return fmt.Errorf("group is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[group.ID]; exists {
		return ErrAlreadyExists
	}
	stored := *group
	s.groups[group.ID] = &stored
	rows := make(map[int64]time.Time, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := rows[id]; !ok {
			rows[id] = group.CreatedAt
		}
	}
	s.members[group.ID] = rows
	return nil
}

func (s *MemoryGroupStore) Get(ctx context.Context, id string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *group
	out.MemberCount = len(s.members[id])
	return &out, nil
}

func (s *MemoryGroupStore) Update(ctx context.Context, id, name, description string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return ErrNotFound
	}
	group.Name = name
	group.Description = description
	group.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryGroupStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return ErrNotFound
	}
	group.Active = false
	group.UpdatedAt = at
	return nil
}

func (s *MemoryGroupStore) AddMember(ctx context.Context, groupID string, userID int64, joinedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return false, ErrNotFound
	}
	rows := s.members[groupID]
	if _, ok := rows[userID]; ok {
		return false, nil
	}
	rows[userID] = joinedAt
	return true, nil
}

func (s *MemoryGroupStore) RemoveMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return false, ErrNotFound
	}
	rows := s.members[groupID]
	if _, ok := rows[userID]; !ok {
		return false, nil
	}
	delete(rows, userID)
	return true, nil
}

func (s *MemoryGroupStore) IsMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

func (s *MemoryGroupStore) Members(ctx context.Context, groupID string) ([]models.Member, error) {
	s.mu.RLock()
	rows, ok := s.members[groupID]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrNotFound
	}
	out := make([]models.Member, 0, len(rows))
	for userID, joined := range rows {
		out = append(out, models.Member{GroupID: groupID, UserID: userID, JoinedAt: joined})
	}
	s.mu.RUnlock()

	for i := range out {
		out[i].Username = s.users.username(out[i].UserID)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *MemoryGroupStore) ListForUser(ctx context.Context, userID int64) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Group{}
	for id, rows := range s.members {
		if _, ok := rows[userID]; !ok {
			continue
		}
		group := s.groups[id]
		if group == nil || !group.Active {
			continue
		}
		copied := *group
		copied.MemberCount = len(rows)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryMessageStore provides an in-memory MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
	order    []string
}

// NewMemoryMessageStore creates an in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string]*models.Message)}
}

func (s *MemoryMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return ErrAlreadyExists
	}
	stored := *msg
	stored.DeletedFor = nil
	stored.Mentions = nil
	stored.Reactions = nil
	s.messages[msg.ID] = &stored
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *MemoryMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (s *MemoryMessageStore) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Content = content
	edited := editedAt
	msg.EditedAt = &edited
	return nil
}

func (s *MemoryMessageStore) DeleteForEveryone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Scrub()
	return nil
}

func (s *MemoryMessageStore) HideFor(ctx context.Context, id string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	if !msg.HiddenFor(userID) {
		msg.DeletedFor = append(msg.DeletedFor, userID)
	}
	return nil
}

func (s *MemoryMessageStore) ListGroup(ctx context.Context, groupID string, q MessageQuery) ([]*models.Message, error) {
	return s.list(q, func(msg *models.Message) bool {
		return msg.IsGroup && msg.GroupID == groupID
	}), nil
}

func (s *MemoryMessageStore) ListDirect(ctx context.Context, a, b int64, q MessageQuery) ([]*models.Message, error) {
	return s.list(q, func(msg *models.Message) bool {
		if msg.IsGroup {
			return false
		}
		return (msg.SenderID == a && msg.RecipientID == b) || (msg.SenderID == b && msg.RecipientID == a)
	}), nil
}

func (s *MemoryMessageStore) list(q MessageQuery, match func(*models.Message) bool) []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Message{}
	for i := len(s.order) - 1; i >= 0; i-- {
		msg := s.messages[s.order[i]]
		if !match(msg) || msg.HiddenFor(q.ViewerID) {
			continue
		}
		if !q.Before.IsZero() && !msg.CreatedAt.Before(q.Before) {
			continue
		}
		out = append(out, copyMessage(msg))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

func copyMessage(msg *models.Message) *models.Message {
	out := *msg
	out.DeletedFor = append([]int64(nil), msg.DeletedFor...)
	if msg.EditedAt != nil {
		edited := *msg.EditedAt
		out.EditedAt = &edited
	}
	return &out
}

type reactionKey struct {
	messageID string
	userID    int64
}

// MemoryReactionStore provides an in-memory ReactionStore.
type MemoryReactionStore struct {
	mu        sync.RWMutex
	users     *MemoryUserStore
	reactions map[reactionKey]models.Reaction
}

// NewMemoryReactionStore creates an in-memory reaction store.
func NewMemoryReactionStore(users *MemoryUserStore) *MemoryReactionStore {
	return &MemoryReactionStore{users: users, reactions: make(map[reactionKey]models.Reaction)}
}

func (s *MemoryReactionStore) Upsert(ctx context.Context, reaction *models.Reaction) error {
	if reaction == nil || reaction.MessageID == "" || strings.TrimSpace(reaction.Reaction) == "" {
		return fmt.Errorf("reaction is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *reaction
	stored.Username = ""
	s.reactions[reactionKey{messageID: reaction.MessageID, userID: reaction.UserID}] = stored
	return nil
}

func (s *MemoryReactionStore) Delete(ctx context.Context, messageID string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reactionKey{messageID: messageID, userID: userID}
	if _, ok := s.reactions[key]; !ok {
		return false, nil
	}
	delete(s.reactions, key)
	return true, nil
}

func (s *MemoryReactionStore) ListForMessages(ctx context.Context, messageIDs []string) (map[string][]models.Reaction, error) {
	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	s.mu.RLock()
	out := map[string][]models.Reaction{}
	for key, reaction := range s.reactions {
		if wanted[key.messageID] {
			out[key.messageID] = append(out[key.messageID], reaction)
		}
	}
	s.mu.RUnlock()

	for id, list := range out {
		for i := range list {
			list[i].Username = s.users.username(list[i].UserID)
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
		out[id] = list
	}
	return out, nil
}
