package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/haasonsaas/huddle/internal/auth"
	"github.com/haasonsaas/huddle/internal/chat"
)

// Client command types.
const (
	cmdAuthenticate        = "authenticate"
	cmdPing                = "ping"
	cmdCreateGroup         = "create_group"
	cmdGetGroupInfo        = "get_group_info"
	cmdUpdateGroupInfo     = "update_group_info"
	cmdAddGroupMember      = "add_group_member"
	cmdRemoveGroupMember   = "remove_group_member"
	cmdLeaveGroup          = "leave_group"
	cmdDeleteGroup         = "delete_group"
	cmdGetUserGroups       = "get_user_groups"
	cmdSendGroupMessage    = "send_group_message"
	cmdEditGroupMessage    = "edit_group_message"
	cmdDeleteGroupMessage  = "delete_group_message"
	cmdGetGroupMessages    = "get_group_messages"
	cmdAddGroupReaction    = "add_group_reaction"
	cmdRemoveGroupReaction = "remove_group_reaction"
	cmdSendDirectMessage   = "send_direct_message"
	cmdEditDirectMessage   = "edit_direct_message"
	cmdDeleteDirectMessage = "delete_direct_message"
	cmdGetDirectMessages   = "get_direct_messages"
	cmdBlockUser           = "block_user"
	cmdUnblockUser         = "unblock_user"
	cmdGetBlockedUsers     = "get_blocked_users"
)

// wsEnvelope carries the fields shared by every client frame.
type wsEnvelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

type wsAuthenticateParams struct {
	Token string `json:"token"`
}

type wsCreateGroupParams struct {
	GroupName        string  `json:"groupName"`
	GroupDescription string  `json:"groupDescription"`
	InitialMembers   []int64 `json:"initialMembers"`
}

type wsGroupParams struct {
	GroupID string `json:"groupId"`
}

type wsUpdateGroupInfoParams struct {
	GroupID string            `json:"groupId"`
	Updates chat.GroupUpdates `json:"updates"`
}

type wsGroupMemberParams struct {
	GroupID string `json:"groupId"`
	UserID  int64  `json:"userId"`
}

type wsSendGroupMessageParams struct {
	GroupID string `json:"groupId"`
	Content string `json:"content"`
}

type wsEditMessageParams struct {
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
}

type wsDeleteMessageParams struct {
	MessageID         string `json:"messageId"`
	DeleteForEveryone bool   `json:"deleteForEveryone"`
}

type wsHistoryParams struct {
	GroupID string `json:"groupId"`
	UserID  int64  `json:"userId"`
	Limit   int    `json:"limit"`
	Before  string `json:"before"`
}

type wsReactionParams struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type wsSendDirectMessageParams struct {
	RecipientID int64  `json:"recipientId"`
	Content     string `json:"content"`
}

type wsUserParams struct {
	UserID int64 `json:"userId"`
}

func decodeParams[T any](raw []byte) (T, error) {
	var params T
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, chat.Errorf(chat.CodeValidation, "malformed payload")
	}
	return params, nil
}

func parseBefore(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	before, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, chat.Errorf(chat.CodeValidation, "before must be an RFC 3339 timestamp")
	}
	return before, nil
}

// dispatch runs an authenticated command. Mutations answer the actor through
// fanout; queries reply on this session only.
func (s *wsSession) dispatch(ctx context.Context, commandType string, raw []byte) error {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return chat.Errorf(chat.CodeUnauthenticated, "authenticate first")
	}
	svc := s.server.chat
	actorID := user.ID

	switch commandType {
	case cmdPing:
		return s.reply(ctx, &chat.Pong{Header: chat.Header{Type: chat.EventPong}, Timestamp: time.Now().UTC()})

	case cmdCreateGroup:
		p, err := decodeParams[wsCreateGroupParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.CreateGroup(ctx, actorID, p.GroupName, p.GroupDescription, p.InitialMembers)
		return err

	case cmdGetGroupInfo:
		p, err := decodeParams[wsGroupParams](raw)
		if err != nil {
			return err
		}
		view, err := svc.GetGroupInfo(ctx, actorID, p.GroupID)
		if err != nil {
			return err
		}
		return s.reply(ctx, &chat.GroupInfo{Header: chat.Header{Type: chat.EventGroupInfo}, Group: *view})

	case cmdUpdateGroupInfo:
		p, err := decodeParams[wsUpdateGroupInfoParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.UpdateGroupInfo(ctx, actorID, p.GroupID, p.Updates)
		return err

	case cmdAddGroupMember:
		p, err := decodeParams[wsGroupMemberParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.AddMember(ctx, actorID, p.GroupID, p.UserID)
		return err

	case cmdRemoveGroupMember:
		p, err := decodeParams[wsGroupMemberParams](raw)
		if err != nil {
			return err
		}
		return svc.RemoveMember(ctx, actorID, p.GroupID, p.UserID)

	case cmdLeaveGroup:
		p, err := decodeParams[wsGroupParams](raw)
		if err != nil {
			return err
		}
		return svc.LeaveGroup(ctx, actorID, p.GroupID)

	case cmdDeleteGroup:
		p, err := decodeParams[wsGroupParams](raw)
		if err != nil {
			return err
		}
		return svc.DeleteGroup(ctx, actorID, p.GroupID)

	case cmdGetUserGroups:
		groups, err := svc.GetUserGroups(ctx, actorID)
		if err != nil {
			return err
		}
		return s.reply(ctx, &chat.UserGroups{Header: chat.Header{Type: chat.EventUserGroups}, Groups: groups})

	case cmdSendGroupMessage:
		p, err := decodeParams[wsSendGroupMessageParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.SendGroupMessage(ctx, actorID, p.GroupID, p.Content)
		return err

	case cmdEditGroupMessage:
		p, err := decodeParams[wsEditMessageParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.EditGroupMessage(ctx, actorID, p.MessageID, p.NewContent)
		return err

	case cmdDeleteGroupMessage:
		p, err := decodeParams[wsDeleteMessageParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.DeleteGroupMessage(ctx, actorID, p.MessageID, p.DeleteForEveryone)
		return err

	case cmdGetGroupMessages:
		p, err := decodeParams[wsHistoryParams](raw)
		if err != nil {
			return err
		}
		before, err := parseBefore(p.Before)
		if err != nil {
			return err
		}
		msgs, err := svc.GetGroupMessages(ctx, actorID, p.GroupID, p.Limit, before)
		if err != nil {
			return err
		}
		return s.reply(ctx, &chat.GroupMessages{Header: chat.Header{Type: chat.EventGroupMessages}, GroupID: p.GroupID, Messages: msgs})

	case cmdAddGroupReaction:
		p, err := decodeParams[wsReactionParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.AddGroupReaction(ctx, actorID, p.MessageID, p.Reaction)
		return err

	case cmdRemoveGroupReaction:
		p, err := decodeParams[wsReactionParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.RemoveGroupReaction(ctx, actorID, p.MessageID)
		return err

	case cmdSendDirectMessage:
		p, err := decodeParams[wsSendDirectMessageParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.SendDirectMessage(ctx, actorID, p.RecipientID, p.Content)
		return err

	case cmdEditDirectMessage:
		p, err := decodeParams[wsEditMessageParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.EditDirectMessage(ctx, actorID, p.MessageID, p.NewContent)
		return err

	case cmdDeleteDirectMessage:
		p, err := decodeParams[wsDeleteMessageParams](raw)
		if err != nil {
			return err
		}
		_, err = svc.DeleteDirectMessage(ctx, actorID, p.MessageID, p.DeleteForEveryone)
		return err

	case cmdGetDirectMessages:
		p, err := decodeParams[wsHistoryParams](raw)
		if err != nil {
			return err
		}
		before, err := parseBefore(p.Before)
		if err != nil {
			return err
		}
		msgs, err := svc.GetDirectMessages(ctx, actorID, p.UserID, p.Limit, before)
		if err != nil {
			return err
		}
		return s.reply(ctx, &chat.DirectMessages{Header: chat.Header{Type: chat.EventDirectMessages}, UserID: p.UserID, Messages: msgs})

	case cmdBlockUser:
		p, err := decodeParams[wsUserParams](raw)
		if err != nil {
			return err
		}
		return svc.BlockUser(ctx, actorID, p.UserID)

	case cmdUnblockUser:
		p, err := decodeParams[wsUserParams](raw)
		if err != nil {
			return err
		}
		return svc.UnblockUser(ctx, actorID, p.UserID)

	case cmdGetBlockedUsers:
		ids, err := svc.GetBlockedUsers(ctx, actorID)
		if err != nil {
			return err
		}
		return s.reply(ctx, &chat.BlockedUsers{Header: chat.Header{Type: chat.EventBlockedUsers}, UserIDs: ids})

	default:
		return chat.Errorf(chat.CodeValidation, "unknown command type %q", commandType)
	}
}
