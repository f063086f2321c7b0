package models

import (
	"encoding/json"
	"time"
)

// Message is a persisted chat message. Direct and group messages share one
// shape and are discriminated by IsGroup.
type Message struct {
	ID                 string     `json:"id"`
	SenderID           int64      `json:"senderId"`
	SenderUsername     string     `json:"senderUsername,omitempty"`
	IsGroup            bool       `json:"isGroup"`
	GroupID            string     `json:"groupId,omitempty"`
	RecipientID        int64      `json:"recipientId,omitempty"`
	Content            string     `json:"content"`
	CreatedAt          time.Time  `json:"createdAt"`
	EditedAt           *time.Time `json:"editedAt,omitempty"`
	DeletedForEveryone bool       `json:"deletedForEveryone"`
	DeletedFor         []int64    `json:"-"`
	Reactions          []Reaction `json:"reactions,omitempty"`
	Mentions           []Mention  `json:"mentions"`
}

// MarshalJSON always emits mentions as a list, empty when there are none.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire Message
	out := wire(m)
	if out.Mentions == nil {
		out.Mentions = []Mention{}
	}
	return json.Marshal(out)
}

// HiddenFor reports whether userID deleted the message for themselves.
func (m *Message) HiddenFor(userID int64) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// Participants returns the two user IDs of a direct message.
func (m *Message) Participants() (int64, int64) {
	return m.SenderID, m.RecipientID
}

// Scrub clears the content of a message deleted for everyone.
func (m *Message) Scrub() {
	m.Content = ""
	m.Mentions = nil
	m.DeletedForEveryone = true
}

// Mention is derived at send time and never stored on its own.
type Mention struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Everyone bool   `json:"everyone,omitempty"`
}

// Reaction is a single user's reaction to a message. A user holds at most
// one reaction per message.
type Reaction struct {
	MessageID string    `json:"messageId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"createdAt"`
}
