package gateway

import (
	"strings"
	"testing"

	"github.com/haasonsaas/huddle/internal/chat"
)

func TestInitWSSchemas(t *testing.T) {
	if err := initWSSchemas(); err != nil {
		t.Fatalf("initWSSchemas() error = %v", err)
	}
	if err := initWSSchemas(); err != nil {
		t.Fatalf("initWSSchemas() second call error = %v", err)
	}
}

func TestSupportedWSCommands(t *testing.T) {
	got := map[string]bool{}
	for _, name := range supportedWSCommands() {
		got[name] = true
	}
	for _, want := range []string{
		cmdAuthenticate, cmdPing, cmdCreateGroup, cmdGetGroupInfo, cmdUpdateGroupInfo,
		cmdAddGroupMember, cmdRemoveGroupMember, cmdLeaveGroup, cmdDeleteGroup, cmdGetUserGroups,
		cmdSendGroupMessage, cmdEditGroupMessage, cmdDeleteGroupMessage, cmdGetGroupMessages,
		cmdAddGroupReaction, cmdRemoveGroupReaction, cmdSendDirectMessage, cmdEditDirectMessage,
		cmdDeleteDirectMessage, cmdGetDirectMessages, cmdBlockUser, cmdUnblockUser, cmdGetBlockedUsers,
	} {
		if !got[want] {
			t.Errorf("missing schema for %q", want)
		}
	}
}

func TestValidateWSCommand(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantErr     bool
		wantMessage string
	}{
		{
			name: "authenticate",
			raw:  `{"type":"authenticate","token":"abc"}`,
		},
		{
			name:    "authenticate without token",
			raw:     `{"type":"authenticate"}`,
			wantErr: true,
		},
		{
			name: "create group",
			raw:  `{"type":"create_group","requestId":"r1","groupName":"team","initialMembers":[2,3]}`,
		},
		{
			name:        "create group with string member",
			raw:         `{"type":"create_group","groupName":"team","initialMembers":["bob"]}`,
			wantErr:     true,
			wantMessage: "initialMembers/0",
		},
		{
			name:    "add member with fractional id",
			raw:     `{"type":"add_group_member","groupId":"g","userId":1.5}`,
			wantErr: true,
		},
		{
			name: "add member",
			raw:  `{"type":"add_group_member","groupId":"g","userId":2}`,
		},
		{
			name:        "send message missing content",
			raw:         `{"type":"send_group_message","groupId":"g"}`,
			wantErr:     true,
			wantMessage: "send_group_message",
		},
		{
			name:    "update with no fields",
			raw:     `{"type":"update_group_info","groupId":"g","updates":{}}`,
			wantErr: true,
		},
		{
			name:    "update with unknown field",
			raw:     `{"type":"update_group_info","groupId":"g","updates":{"owner":1}}`,
			wantErr: true,
		},
		{
			name: "update name only",
			raw:  `{"type":"update_group_info","groupId":"g","updates":{"groupName":"x"}}`,
		},
		{
			name:    "delete flag must be boolean",
			raw:     `{"type":"delete_group_message","messageId":"m","deleteForEveryone":"yes"}`,
			wantErr: true,
		},
		{
			name:        "unknown command",
			raw:         `{"type":"launch_rockets"}`,
			wantErr:     true,
			wantMessage: "unknown command",
		},
		{
			name:    "missing type",
			raw:     `{"groupId":"g"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "requestId must be string",
			raw:     `{"type":"ping","requestId":7}`,
			wantErr: true,
		},
		{
			name: "history with paging",
			raw:  `{"type":"get_direct_messages","userId":2,"limit":20,"before":"2024-01-01T00:00:00Z"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commandType := extractType(tt.raw)
			err := validateWSCommand([]byte(tt.raw), commandType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateWSCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if code := chat.CodeOf(err); code != chat.CodeValidation {
				t.Fatalf("code = %q, want VALIDATION", code)
			}
			if tt.wantMessage != "" && !strings.Contains(err.Error(), tt.wantMessage) {
				t.Fatalf("error %q does not mention %q", err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestParseBefore(t *testing.T) {
	if got, err := parseBefore(""); err != nil || !got.IsZero() {
		t.Fatalf("parseBefore(\"\") = %v, %v", got, err)
	}
	if _, err := parseBefore("2024-05-01T10:00:00.123Z"); err != nil {
		t.Fatalf("parseBefore() error = %v", err)
	}
	if _, err := parseBefore("yesterday"); chat.CodeOf(err) != chat.CodeValidation {
		t.Fatalf("parseBefore(bad) error = %v, want VALIDATION", err)
	}
}

// extractType mirrors what the read loop does before validation.
func extractType(raw string) string {
	env, err := decodeParams[wsEnvelope]([]byte(raw))
	if err != nil {
		return ""
	}
	return env.Type
}
