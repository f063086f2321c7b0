package chat

import (
	"context"
	"time"

	"github.com/haasonsaas/huddle/internal/mentions"
	"github.com/haasonsaas/huddle/internal/storage"
	"github.com/haasonsaas/huddle/pkg/models"
)

// SendGroupMessage persists a group message and fans it out. The sender's
// connections receive group_message_sent, every other member receives
// new_group_message, and each mentioned member additionally receives
// mentioned_in_group.
func (s *Service) SendGroupMessage(ctx context.Context, actorID int64, groupID, content string) (msg *models.Message, err error) {
	defer func() { s.logFailure(ctx, "send_group_message", err) }()

	content, err = s.clean.text("content", content, true, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	err = s.withLane(ctx, groupLane(groupID), func() error {
		if _, err := s.activeGroup(ctx, groupID); err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, groupID, actorID)
		if err != nil {
			return err
		}

		msg = &models.Message{
			ID:             s.newID(),
			SenderID:       actorID,
			SenderUsername: usernameIn(members, actorID),
			IsGroup:        true,
			GroupID:        groupID,
			Content:        content,
			CreatedAt:      s.now(),
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return storeErr("persist message", err)
		}
		s.metrics.MessagePersisted("group")

		msg.Mentions = mentions.Parse(content, members, actorID)
		s.metrics.MentionsSent(len(msg.Mentions))

		s.deliverOne(ctx, actorID, actorID, &GroupMessage{
			Header:  newHeader(EventGroupMessageSent),
			GroupID: groupID,
			Message: msg,
		})
		others := make([]int64, 0, len(members))
		for _, m := range members {
			if m.UserID != actorID {
				others = append(others, m.UserID)
			}
		}
		s.deliver(ctx, actorID, others, &GroupMessage{
			Header:  newHeader(EventNewGroupMessage),
			GroupID: groupID,
			Message: msg,
		})
		s.deliver(ctx, actorID, mentions.UserIDs(msg.Mentions), &GroupMessage{
			Header:  newHeader(EventMentionedInGroup),
			GroupID: groupID,
			Message: msg,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// EditGroupMessage replaces the content of the actor's own message. Mentions
// are recomputed for the edited event but no new mention notifications are
// sent.
func (s *Service) EditGroupMessage(ctx context.Context, actorID int64, messageID, newContent string) (msg *models.Message, err error) {
	defer func() { s.logFailure(ctx, "edit_group_message", err) }()

	newContent, err = s.clean.text("newContent", newContent, true, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	peek, err := s.loadMessage(ctx, messageID, true, actorID)
	if err != nil {
		return nil, err
	}

	err = s.withLane(ctx, groupLane(peek.GroupID), func() error {
		if _, err := s.activeGroup(ctx, peek.GroupID); err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, peek.GroupID, actorID)
		if err != nil {
			return err
		}
		current, err := s.loadMessage(ctx, messageID, true, actorID)
		if err != nil {
			return err
		}
		if current.DeletedForEveryone {
			return Errorf(CodeNotFound, "message not found")
		}
		if current.SenderID != actorID {
			return Errorf(CodeForbidden, "only the sender can edit a message")
		}

		editedAt := s.now()
		if err := s.messages.UpdateContent(ctx, messageID, newContent, editedAt); err != nil {
			return storeErr("edit message", err)
		}
		current.Content = newContent
		current.EditedAt = &editedAt
		current.SenderUsername = usernameIn(members, current.SenderID)
		current.Mentions = mentions.Parse(newContent, members, actorID)
		if err := s.attachReactions(ctx, []*models.Message{current}); err != nil {
			return err
		}
		msg = current

		s.deliver(ctx, actorID, models.MemberIDs(members), &GroupMessage{
			Header:  newHeader(EventGroupMessageEdited),
			GroupID: current.GroupID,
			Message: current,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteGroupMessage deletes a message for everyone (sender only) or hides
// it for the actor. A non-sender asking for everyone gets delete-for-me.
// It reports whether the delete applied to everyone.
func (s *Service) DeleteGroupMessage(ctx context.Context, actorID int64, messageID string, forEveryone bool) (everyone bool, err error) {
	defer func() { s.logFailure(ctx, "delete_group_message", err) }()

	peek, err := s.loadMessage(ctx, messageID, true, actorID)
	if err != nil {
		return false, err
	}

	err = s.withLane(ctx, groupLane(peek.GroupID), func() error {
		if _, err := s.activeGroup(ctx, peek.GroupID); err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, peek.GroupID, actorID)
		if err != nil {
			return err
		}
		current, err := s.loadMessage(ctx, messageID, true, actorID)
		if err != nil {
			return err
		}

		everyone = forEveryone && current.SenderID == actorID
		if forEveryone && !everyone {
			s.logger.DebugContext(ctx, "downgrading delete to delete-for-me", "message_id", messageID, "user_id", actorID)
		}
		ev := &GroupMessageDeleted{
			Header:            newHeader(EventGroupMessageDeleted),
			GroupID:           current.GroupID,
			MessageID:         messageID,
			DeleteForEveryone: everyone,
			DeletedBy:         actorID,
		}

		if !everyone {
			if err := s.messages.HideFor(ctx, messageID, actorID); err != nil {
				return storeErr("hide message", err)
			}
			s.deliverOne(ctx, actorID, actorID, ev)
			return nil
		}

		if current.DeletedForEveryone {
			return Errorf(CodeNotFound, "message not found")
		}
		if err := s.messages.DeleteForEveryone(ctx, messageID); err != nil {
			return storeErr("delete message", err)
		}
		s.deliver(ctx, actorID, models.MemberIDs(members), ev)
		return nil
	})
	return everyone, err
}

// GetGroupMessages returns a page of history, newest first, excluding
// messages the actor deleted for themselves.
func (s *Service) GetGroupMessages(ctx context.Context, actorID int64, groupID string, limit int, before time.Time) (msgs []*models.Message, err error) {
	defer func() { s.logFailure(ctx, "get_group_messages", err) }()

	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := s.memberSnapshot(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	msgs, err = s.messages.ListGroup(ctx, groupID, storage.MessageQuery{
		ViewerID: actorID,
		Limit:    s.historyLimit(limit),
		Before:   before,
	})
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	for _, m := range msgs {
		if m.SenderUsername == "" {
			m.SenderUsername = usernameIn(members, m.SenderID)
		}
		if m.DeletedForEveryone {
			m.Scrub()
		}
	}
	if err := s.attachReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func usernameIn(members []models.Member, userID int64) string {
	for _, m := range members {
		if m.UserID == userID {
			return m.Username
		}
	}
	return ""
}
