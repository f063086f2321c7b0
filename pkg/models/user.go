package models

import "time"

// User is an identity supplied by the external auth collaborator. Only the
// username is cached locally for display and mention resolution.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	UpdatedAt time.Time `json:"-"`
}

// Block records that BlockerID blocked BlockedID.
type Block struct {
	BlockerID int64     `json:"blockerId"`
	BlockedID int64     `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}
