package chat

import (
	"encoding/json"
	"time"

	"github.com/haasonsaas/huddle/pkg/models"
)

// Server event types.
const (
	EventAuthSuccess          = "auth_success"
	EventError                = "error"
	EventPong                 = "pong"
	EventGroupCreated         = "group_created"
	EventGroupInfo            = "group_info"
	EventGroupUpdated         = "group_updated"
	EventGroupDeleted         = "group_deleted"
	EventUserGroups           = "user_groups"
	EventMemberAdded          = "member_added"
	EventMemberRemoved        = "member_removed"
	EventLeftGroup            = "left_group"
	EventGroupMessageSent     = "group_message_sent"
	EventNewGroupMessage      = "new_group_message"
	EventMentionedInGroup     = "mentioned_in_group"
	EventGroupMessageEdited   = "group_message_edited"
	EventGroupMessageDeleted  = "group_message_deleted"
	EventGroupMessages        = "group_messages"
	EventGroupReactionAdded   = "group_reaction_added"
	EventGroupReactionRemoved = "group_reaction_removed"
	EventDirectMessageSent    = "direct_message_sent"
	EventNewDirectMessage     = "new_direct_message"
	EventDirectMessageEdited  = "direct_message_edited"
	EventDirectMessageDeleted = "direct_message_deleted"
	EventDirectMessages       = "direct_messages"
	EventUserBlocked          = "user_blocked"
	EventUserUnblocked        = "user_unblocked"
	EventBlockedUsers         = "blocked_users"
)

// Header is embedded in every server event. RequestID echoes the client's
// requestId on frames sent to the actor.
type Header struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Header) header() *Header { return h }

// Event is any server to client frame.
type Event interface {
	header() *Header
}

// EventType returns the wire type of ev.
func EventType(ev Event) string {
	return ev.header().Type
}

// Encode marshals ev with the given request ID.
func Encode(ev Event, requestID string) ([]byte, error) {
	h := ev.header()
	prev := h.RequestID
	h.RequestID = requestID
	defer func() { h.RequestID = prev }()
	return json.Marshal(ev)
}

// GroupView is a group with its membership snapshot.
type GroupView struct {
	models.Group
	Members []models.Member `json:"members"`
}

type AuthSuccess struct {
	Header
	User models.User `json:"user"`
}

type ErrorEvent struct {
	Header
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

type Pong struct {
	Header
	Timestamp time.Time `json:"timestamp"`
}

type GroupCreated struct {
	Header
	Group GroupView `json:"group"`
}

type GroupInfo struct {
	Header
	Group GroupView `json:"group"`
}

// GroupUpdates carries the fields changed by update_group_info.
type GroupUpdates struct {
	GroupName        *string `json:"groupName,omitempty"`
	GroupDescription *string `json:"groupDescription,omitempty"`
}

type GroupUpdated struct {
	Header
	GroupID   string        `json:"groupId"`
	Updates   GroupUpdates  `json:"updates"`
	UpdatedBy int64         `json:"updatedBy"`
	Group     *models.Group `json:"group"`
}

type GroupDeleted struct {
	Header
	GroupID   string `json:"groupId"`
	DeletedBy int64  `json:"deletedBy"`
}

type UserGroups struct {
	Header
	Groups []*models.Group `json:"groups"`
}

type MemberAdded struct {
	Header
	GroupID       string        `json:"groupId"`
	Member        models.Member `json:"member"`
	AddedBy       int64         `json:"addedBy"`
	AlreadyMember bool          `json:"alreadyMember,omitempty"`
	Group         *models.Group `json:"group,omitempty"`
}

type MemberRemoved struct {
	Header
	GroupID   string `json:"groupId"`
	UserID    int64  `json:"userId"`
	RemovedBy int64  `json:"removedBy"`
	WasMember bool   `json:"wasMember"`
}

type LeftGroup struct {
	Header
	GroupID     string `json:"groupId"`
	UserID      int64  `json:"userId"`
	Deactivated bool   `json:"deactivated,omitempty"`
}

// GroupMessage is shared by group_message_sent, new_group_message,
// mentioned_in_group and group_message_edited.
type GroupMessage struct {
	Header
	GroupID string          `json:"groupId"`
	Message *models.Message `json:"message"`
}

type GroupMessageDeleted struct {
	Header
	GroupID           string `json:"groupId"`
	MessageID         string `json:"messageId"`
	DeleteForEveryone bool   `json:"deleteForEveryone"`
	DeletedBy         int64  `json:"deletedBy"`
}

type GroupMessages struct {
	Header
	GroupID  string            `json:"groupId"`
	Messages []*models.Message `json:"messages"`
}

type GroupReactionAdded struct {
	Header
	GroupID   string          `json:"groupId"`
	MessageID string          `json:"messageId"`
	Reaction  models.Reaction `json:"reaction"`
}

type GroupReactionRemoved struct {
	Header
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
	UserID    int64  `json:"userId"`
	Removed   bool   `json:"removed"`
}

// DirectMessage is shared by direct_message_sent, new_direct_message and
// direct_message_edited.
type DirectMessage struct {
	Header
	Message *models.Message `json:"message"`
}

type DirectMessageDeleted struct {
	Header
	MessageID         string `json:"messageId"`
	DeleteForEveryone bool   `json:"deleteForEveryone"`
	DeletedBy         int64  `json:"deletedBy"`
}

type DirectMessages struct {
	Header
	UserID   int64             `json:"userId"`
	Messages []*models.Message `json:"messages"`
}

// UserBlockChange is shared by user_blocked and user_unblocked.
type UserBlockChange struct {
	Header
	UserID int64 `json:"userId"`
}

type BlockedUsers struct {
	Header
	UserIDs []int64 `json:"userIds"`
}

func newHeader(eventType string) Header {
	return Header{Type: eventType}
}
