package models

import "time"

// Group is a multi-user conversation. Groups are never hard-deleted; they are
// deactivated when the last member leaves or the creator tears them down.
type Group struct {
	ID          string    `json:"groupId"`
	Name        string    `json:"groupName"`
	Description string    `json:"groupDescription"`
	CreatorID   int64     `json:"createdBy"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	MemberCount int       `json:"memberCount"`
}

// Member is a group membership row joined with the cached username.
type Member struct {
	GroupID  string    `json:"-"`
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

// MemberIDs returns the user IDs of members.
func MemberIDs(members []Member) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}
