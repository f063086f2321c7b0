package chat

import (
	"context"

	"github.com/haasonsaas/huddle/internal/storage"
)

// Guard answers block queries. It reads through to the store on every call
// so a block is enforced the moment it is committed.
type Guard struct {
	blocks storage.BlockStore
}

// NewGuard creates a guard over blocks.
func NewGuard(blocks storage.BlockStore) *Guard {
	return &Guard{blocks: blocks}
}

// IsBlocked reports whether a blocked b or b blocked a.
func (g *Guard) IsBlocked(ctx context.Context, a, b int64) (bool, error) {
	if a == b {
		return false, nil
	}
	return g.blocks.IsBlocked(ctx, a, b)
}

// Check fails with USER_BLOCKED when a and b have a block between them.
func (g *Guard) Check(ctx context.Context, a, b int64) error {
	blocked, err := g.IsBlocked(ctx, a, b)
	if err != nil {
		return storeErr("check block", err)
	}
	if blocked {
		return Errorf(CodeUserBlocked, "user is blocked")
	}
	return nil
}

// CheckAgainst fails with USER_BLOCKED when target has a block relationship
// with any of others.
func (g *Guard) CheckAgainst(ctx context.Context, target int64, others []int64) error {
	if len(others) == 0 {
		return nil
	}
	related, err := g.blocks.Related(ctx, target)
	if err != nil {
		return storeErr("check block", err)
	}
	if len(related) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(related))
	for _, id := range related {
		set[id] = true
	}
	for _, id := range others {
		if id != target && set[id] {
			return Errorf(CodeUserBlocked, "user is blocked")
		}
	}
	return nil
}
