package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/huddle/internal/storage"
	"github.com/haasonsaas/huddle/pkg/models"
)

var errDiskFull = errors.New("pq: could not extend file: disk full")

type failingMessages struct {
	storage.MessageStore
	fail atomic.Bool
}

func (s *failingMessages) Create(ctx context.Context, msg *models.Message) error {
	if s.fail.Load() {
		return errDiskFull
	}
	return s.MessageStore.Create(ctx, msg)
}

type failingReactions struct {
	storage.ReactionStore
	fail atomic.Bool
}

func (s *failingReactions) Upsert(ctx context.Context, reaction *models.Reaction) error {
	if s.fail.Load() {
		return errDiskFull
	}
	return s.ReactionStore.Upsert(ctx, reaction)
}

func newFailingHarness(t *testing.T) (*harness, *failingMessages, *failingReactions) {
	t.Helper()
	stores := storage.NewMemoryStores()
	messages := &failingMessages{MessageStore: stores.Messages}
	reactions := &failingReactions{ReactionStore: stores.Reactions}
	stores.Messages = messages
	stores.Reactions = reactions
	return newHarnessWithStores(t, stores), messages, reactions
}

func assertInternalWithoutFanout(t *testing.T, h *harness, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	if CodeOf(err) != CodeInternal {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeInternal)
	}
	if msg := PublicMessage(err); strings.Contains(msg, "disk full") {
		t.Fatalf("public message leaks store error: %q", msg)
	}
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("error does not wrap the store failure: %v", err)
	}
	for id, conn := range h.conns {
		if got := conn.types(); len(got) != 0 {
			t.Errorf("user %d received %v after failed write", id, got)
		}
	}
}

func TestSendGroupMessageStoreFailure(t *testing.T) {
	h, messages, _ := newFailingHarness(t)
	ctx := context.Background()
	groupID := h.group(t, bob, charlie)

	messages.fail.Store(true)
	_, err := h.svc.SendGroupMessage(ctx, alice, groupID, "hello @bob")
	assertInternalWithoutFanout(t, h, err)

	messages.fail.Store(false)
	msgs, err := h.svc.GetGroupMessages(ctx, alice, groupID, 0, time.Time{})
	if err != nil {
		t.Fatalf("GetGroupMessages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("history = %d messages, want 0", len(msgs))
	}
}

func TestSendDirectMessageStoreFailure(t *testing.T) {
	h, messages, _ := newFailingHarness(t)

	messages.fail.Store(true)
	_, err := h.svc.SendDirectMessage(context.Background(), alice, bob, "hi")
	assertInternalWithoutFanout(t, h, err)
}

func TestAddGroupReactionStoreFailure(t *testing.T) {
	h, _, reactions := newFailingHarness(t)
	ctx := context.Background()
	groupID := h.group(t, bob)

	msg, err := h.svc.SendGroupMessage(ctx, alice, groupID, "ship it")
	if err != nil {
		t.Fatalf("SendGroupMessage() error = %v", err)
	}
	h.resetFrames()

	reactions.fail.Store(true)
	_, err = h.svc.AddGroupReaction(ctx, bob, msg.ID, "👍")
	assertInternalWithoutFanout(t, h, err)
}
