// Package mentions resolves @handle and @everyone tokens against a group
// membership snapshot.
package mentions

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/haasonsaas/huddle/pkg/models"
)

// Everyone is the handle that expands to every member except the sender.
const Everyone = "everyone"

// An @ only starts a mention at the beginning of the text or after a
// character that cannot be part of a handle, so addresses like a@b.com are
// ignored. Handles may contain letters and digits from any script.
var mentionPattern = regexp.MustCompile(`(^|[^\p{L}\p{M}\p{N}_.@-])@([\p{L}\p{N}_][\p{L}\p{M}\p{N}_.-]*)`)

// fold is the comparison form of a handle or username: NFC composed and
// lowercased, so "JOSE\u0301" and "josé" match.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Handles returns the raw handles in content in order of appearance,
// lowercased and without duplicates. Trailing dots are trimmed so
// "@bob." at the end of a sentence still matches bob.
func Handles(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(norm.NFC.String(content), -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		handle := fold(strings.TrimRight(match[2], ".-"))
		if handle == "" || seen[handle] {
			continue
		}
		seen[handle] = true
		out = append(out, handle)
	}
	return out
}

// Parse resolves mentions in content against members. Each member appears at
// most once in the result, the sender never appears, and handles that match
// no member are dropped. Direct handles come first in order of appearance,
// followed by any @everyone expansion in membership order.
func Parse(content string, members []models.Member, senderID int64) []models.Mention {
	handles := Handles(content)
	if len(handles) == 0 || len(members) == 0 {
		return []models.Mention{}
	}

	byHandle := make(map[string]models.Member, len(members))
	for _, member := range members {
		name := fold(strings.TrimSpace(member.Username))
		if name == "" {
			continue
		}
		if _, taken := byHandle[name]; !taken {
			byHandle[name] = member
		}
	}

	out := []models.Mention{}
	seen := map[int64]bool{senderID: true}
	everyone := false
	for _, handle := range handles {
		if handle == Everyone {
			everyone = true
			continue
		}
		member, ok := byHandle[handle]
		if !ok || seen[member.UserID] {
			continue
		}
		seen[member.UserID] = true
		out = append(out, models.Mention{UserID: member.UserID, Username: member.Username})
	}
	if everyone {
		for _, member := range members {
			if seen[member.UserID] {
				continue
			}
			seen[member.UserID] = true
			out = append(out, models.Mention{UserID: member.UserID, Username: member.Username, Everyone: true})
		}
	}
	return out
}

// UserIDs lists the mentioned user IDs in order.
func UserIDs(mentions []models.Mention) []int64 {
	out := make([]int64, 0, len(mentions))
	for _, m := range mentions {
		out = append(out, m.UserID)
	}
	return out
}
