package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageHiddenFor(t *testing.T) {
	msg := &Message{ID: "m1", SenderID: 1, DeletedFor: []int64{2, 3}}

	tests := []struct {
		userID int64
		want   bool
	}{
		{userID: 1, want: false},
		{userID: 2, want: true},
		{userID: 3, want: true},
		{userID: 4, want: false},
	}
	for _, tt := range tests {
		if got := msg.HiddenFor(tt.userID); got != tt.want {
			t.Errorf("HiddenFor(%d) = %v, want %v", tt.userID, got, tt.want)
		}
	}
}

func TestMessageScrub(t *testing.T) {
	msg := &Message{
		ID:       "m1",
		Content:  "secret plans",
		Mentions: []Mention{{UserID: 2, Username: "bob"}},
	}
	msg.Scrub()
	if msg.Content != "" {
		t.Fatalf("expected empty content, got %q", msg.Content)
	}
	if !msg.DeletedForEveryone {
		t.Fatal("expected DeletedForEveryone to be set")
	}
	if msg.Mentions != nil {
		t.Fatalf("expected mentions cleared, got %v", msg.Mentions)
	}
}

func TestMemberIDs(t *testing.T) {
	members := []Member{{UserID: 3}, {UserID: 1}, {UserID: 2}}
	ids := MemberIDs(members)
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("MemberIDs() = %v", ids)
	}
	if got := MemberIDs(nil); len(got) != 0 {
		t.Fatalf("MemberIDs(nil) = %v, want empty", got)
	}
}

func TestMessageJSONMentionsList(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{name: "nil mentions", msg: &Message{ID: "m1"}, want: `"mentions":[]`},
		{name: "scrubbed", msg: func() *Message { m := &Message{ID: "m2", Content: "x"}; m.Scrub(); return m }(), want: `"mentions":[]`},
		{name: "with mention", msg: &Message{ID: "m3", Mentions: []Mention{{UserID: 2, Username: "bob"}}}, want: `"mentions":[{"userId":2,"username":"bob"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Fatalf("json = %s, want %s", data, tt.want)
			}
			if strings.Contains(string(data), "deletedFor\"") {
				t.Fatalf("json leaks per-user deletions: %s", data)
			}
		})
	}
}
