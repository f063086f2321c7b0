package chat

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/huddle/internal/storage"
	"github.com/haasonsaas/huddle/pkg/models"
)

// SendDirectMessage persists a one-to-one message. The sender's connections
// receive direct_message_sent and the recipient's receive new_direct_message.
func (s *Service) SendDirectMessage(ctx context.Context, actorID, recipientID int64, content string) (msg *models.Message, err error) {
	defer func() { s.logFailure(ctx, "send_direct_message", err) }()

	if err := requireUser(recipientID, "recipientId"); err != nil {
		return nil, err
	}
	if recipientID == actorID {
		return nil, Errorf(CodeValidation, "cannot message yourself")
	}
	content, err = s.clean.text("content", content, true, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.Get(ctx, recipientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Errorf(CodeNotFound, "user not found")
		}
		return nil, storeErr("load user", err)
	}

	err = s.withLane(ctx, directLane(actorID, recipientID), func() error {
		if err := s.guard.Check(ctx, actorID, recipientID); err != nil {
			return err
		}
		msg = &models.Message{
			ID:             s.newID(),
			SenderID:       actorID,
			SenderUsername: s.username(ctx, actorID),
			RecipientID:    recipientID,
			Content:        content,
			CreatedAt:      s.now(),
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return storeErr("persist message", err)
		}
		s.metrics.MessagePersisted("direct")

		s.deliverOne(ctx, actorID, actorID, &DirectMessage{
			Header:  newHeader(EventDirectMessageSent),
			Message: msg,
		})
		s.deliverOne(ctx, actorID, recipientID, &DirectMessage{
			Header:  newHeader(EventNewDirectMessage),
			Message: msg,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// EditDirectMessage replaces the content of the actor's own direct message.
func (s *Service) EditDirectMessage(ctx context.Context, actorID int64, messageID, newContent string) (msg *models.Message, err error) {
	defer func() { s.logFailure(ctx, "edit_direct_message", err) }()

	newContent, err = s.clean.text("newContent", newContent, true, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	peek, err := s.directMessage(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	a, b := peek.Participants()

	err = s.withLane(ctx, directLane(a, b), func() error {
		current, err := s.directMessage(ctx, messageID, actorID)
		if err != nil {
			return err
		}
		if current.DeletedForEveryone {
			return Errorf(CodeNotFound, "message not found")
		}
		if current.SenderID != actorID {
			return Errorf(CodeForbidden, "only the sender can edit a message")
		}
		if err := s.guard.Check(ctx, a, b); err != nil {
			return err
		}

		editedAt := s.now()
		if err := s.messages.UpdateContent(ctx, messageID, newContent, editedAt); err != nil {
			return storeErr("edit message", err)
		}
		current.Content = newContent
		current.EditedAt = &editedAt
		if err := s.attachReactions(ctx, []*models.Message{current}); err != nil {
			return err
		}
		msg = current

		s.deliver(ctx, actorID, []int64{a, b}, &DirectMessage{
			Header:  newHeader(EventDirectMessageEdited),
			Message: current,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteDirectMessage follows the same for-everyone / for-me rules as group
// messages. It reports whether the delete applied to both parties.
func (s *Service) DeleteDirectMessage(ctx context.Context, actorID int64, messageID string, forEveryone bool) (everyone bool, err error) {
	defer func() { s.logFailure(ctx, "delete_direct_message", err) }()

	peek, err := s.directMessage(ctx, messageID, actorID)
	if err != nil {
		return false, err
	}
	a, b := peek.Participants()

	err = s.withLane(ctx, directLane(a, b), func() error {
		current, err := s.directMessage(ctx, messageID, actorID)
		if err != nil {
			return err
		}
		everyone = forEveryone && current.SenderID == actorID
		ev := &DirectMessageDeleted{
			Header:            newHeader(EventDirectMessageDeleted),
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
		s.deliver(ctx, actorID, []int64{a, b}, ev)
		return nil
	})
	return everyone, err
}

// GetDirectMessages returns a page of the conversation between the actor and
// otherID, newest first.
func (s *Service) GetDirectMessages(ctx context.Context, actorID, otherID int64, limit int, before time.Time) (msgs []*models.Message, err error) {
	defer func() { s.logFailure(ctx, "get_direct_messages", err) }()

	if err := requireUser(otherID, "userId"); err != nil {
		return nil, err
	}
	if otherID == actorID {
		return nil, Errorf(CodeValidation, "userId must be another user")
	}
	msgs, err = s.messages.ListDirect(ctx, actorID, otherID, storage.MessageQuery{
		ViewerID: actorID,
		Limit:    s.historyLimit(limit),
		Before:   before,
	})
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	for _, m := range msgs {
		if m.DeletedForEveryone {
			m.Scrub()
		}
	}
	if err := s.attachReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// directMessage loads a direct message the actor takes part in. Outsiders
// see NOT_FOUND.
func (s *Service) directMessage(ctx context.Context, messageID string, actorID int64) (*models.Message, error) {
	msg, err := s.loadMessage(ctx, messageID, false, actorID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID && msg.RecipientID != actorID {
		return nil, Errorf(CodeNotFound, "message not found")
	}
	return msg, nil
}
