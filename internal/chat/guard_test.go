package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/huddle/internal/storage"
)

type failingBlocks struct {
	storage.BlockStore
}

func (failingBlocks) IsBlocked(context.Context, int64, int64) (bool, error) {
	return false, errors.New("db down")
}

func (failingBlocks) Related(context.Context, int64) ([]int64, error) {
	return nil, errors.New("db down")
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	blocks := storage.NewMemoryBlockStore()
	if err := blocks.Block(ctx, 1, 2); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	guard := NewGuard(blocks)

	tests := []struct {
		name string
		a, b int64
		code Code
	}{
		{"blocker side", 1, 2, CodeUserBlocked},
		{"blocked side", 2, 1, CodeUserBlocked},
		{"unrelated", 1, 3, ""},
		{"self", 1, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, guard.Check(ctx, tt.a, tt.b), tt.code)
		})
	}

	wantCode(t, guard.CheckAgainst(ctx, 3, []int64{1, 4}), "")
	wantCode(t, guard.CheckAgainst(ctx, 2, []int64{3, 1}), CodeUserBlocked)
	wantCode(t, guard.CheckAgainst(ctx, 2, nil), "")
}

func TestGuardStoreFailureIsInternal(t *testing.T) {
	guard := NewGuard(failingBlocks{})
	ctx := context.Background()

	wantCode(t, guard.Check(ctx, 1, 2), CodeInternal)
	wantCode(t, guard.CheckAgainst(ctx, 1, []int64{2}), CodeInternal)
}
