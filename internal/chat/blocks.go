package chat

import (
	"context"
	"errors"

	"github.com/haasonsaas/huddle/internal/storage"
)

// BlockUser records that the actor blocks userID. Existing shared
// memberships are left alone; only new additions, direct messages and
// reactions between the two are rejected from now on.
func (s *Service) BlockUser(ctx context.Context, actorID, userID int64) (err error) {
	defer func() { s.logFailure(ctx, "block_user", err) }()

	if err := s.blockTarget(ctx, actorID, userID); err != nil {
		return err
	}
	if err := s.blocks.Block(ctx, actorID, userID); err != nil {
		return storeErr("block user", err)
	}
	s.logger.InfoContext(ctx, "user blocked", "user_id", actorID, "blocked_id", userID)
	s.deliverOne(ctx, actorID, actorID, &UserBlockChange{
		Header: newHeader(EventUserBlocked),
		UserID: userID,
	})
	return nil
}

// UnblockUser removes the actor's block on userID. Idempotent.
func (s *Service) UnblockUser(ctx context.Context, actorID, userID int64) (err error) {
	defer func() { s.logFailure(ctx, "unblock_user", err) }()

	if err := requireUser(userID, "userId"); err != nil {
		return err
	}
	if userID == actorID {
		return Errorf(CodeValidation, "cannot unblock yourself")
	}
	if err := s.blocks.Unblock(ctx, actorID, userID); err != nil {
		return storeErr("unblock user", err)
	}
	s.logger.InfoContext(ctx, "user unblocked", "user_id", actorID, "unblocked_id", userID)
	s.deliverOne(ctx, actorID, actorID, &UserBlockChange{
		Header: newHeader(EventUserUnblocked),
		UserID: userID,
	})
	return nil
}

// GetBlockedUsers lists the users the actor has blocked.
func (s *Service) GetBlockedUsers(ctx context.Context, actorID int64) (ids []int64, err error) {
	defer func() { s.logFailure(ctx, "get_blocked_users", err) }()

	ids, err = s.blocks.ListBlocked(ctx, actorID)
	if err != nil {
		return nil, storeErr("list blocked", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (s *Service) blockTarget(ctx context.Context, actorID, userID int64) error {
	if err := requireUser(userID, "userId"); err != nil {
		return err
	}
	if userID == actorID {
		return Errorf(CodeValidation, "cannot block yourself")
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Errorf(CodeNotFound, "user not found")
		}
		return storeErr("load user", err)
	}
	return nil
}
