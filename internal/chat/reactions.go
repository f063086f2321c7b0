package chat

import (
	"context"

	"github.com/haasonsaas/huddle/pkg/models"
)

// AddGroupReaction sets the actor's reaction on a group message, replacing
// any previous one. Reacting to a message from a user with a block
// relationship to the actor fails with USER_BLOCKED.
func (s *Service) AddGroupReaction(ctx context.Context, actorID int64, messageID, reaction string) (out *models.Reaction, err error) {
	defer func() { s.logFailure(ctx, "add_group_reaction", err) }()

	reaction, err = s.clean.text("reaction", reaction, true, maxReactionLength)
	if err != nil {
		return nil, err
	}
	peek, err := s.loadMessage(ctx, messageID, true, actorID)
	if err != nil {
		return nil, err
	}

	err = s.withLane(ctx, groupLane(peek.GroupID), func() error {
		members, current, err := s.reactionTarget(ctx, actorID, messageID, peek.GroupID)
		if err != nil {
			return err
		}
		if err := s.guard.Check(ctx, actorID, current.SenderID); err != nil {
			return err
		}

		out = &models.Reaction{
			MessageID: messageID,
			UserID:    actorID,
			Username:  usernameIn(members, actorID),
			Reaction:  reaction,
			CreatedAt: s.now(),
		}
		if err := s.reactions.Upsert(ctx, out); err != nil {
			return storeErr("save reaction", err)
		}
		s.deliver(ctx, actorID, models.MemberIDs(members), &GroupReactionAdded{
			Header:    newHeader(EventGroupReactionAdded),
			GroupID:   current.GroupID,
			MessageID: messageID,
			Reaction:  *out,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveGroupReaction clears the actor's reaction. Removing a reaction that
// does not exist succeeds; members are told whether anything changed.
func (s *Service) RemoveGroupReaction(ctx context.Context, actorID int64, messageID string) (removed bool, err error) {
	defer func() { s.logFailure(ctx, "remove_group_reaction", err) }()

	peek, err := s.loadMessage(ctx, messageID, true, actorID)
	if err != nil {
		return false, err
	}

	err = s.withLane(ctx, groupLane(peek.GroupID), func() error {
		members, current, err := s.reactionTarget(ctx, actorID, messageID, peek.GroupID)
		if err != nil {
			return err
		}
		removed, err = s.reactions.Delete(ctx, messageID, actorID)
		if err != nil {
			return storeErr("remove reaction", err)
		}
		s.deliver(ctx, actorID, models.MemberIDs(members), &GroupReactionRemoved{
			Header:    newHeader(EventGroupReactionRemoved),
			GroupID:   current.GroupID,
			MessageID: messageID,
			UserID:    actorID,
			Removed:   removed,
		})
		return nil
	})
	return removed, err
}

// reactionTarget re-reads the group and message under the lane.
func (s *Service) reactionTarget(ctx context.Context, actorID int64, messageID, groupID string) ([]models.Member, *models.Message, error) {
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return nil, nil, err
	}
	members, err := s.memberSnapshot(ctx, groupID, actorID)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.loadMessage(ctx, messageID, true, actorID)
	if err != nil {
		return nil, nil, err
	}
	if current.DeletedForEveryone {
		return nil, nil, Errorf(CodeNotFound, "message not found")
	}
	return members, current, nil
}
