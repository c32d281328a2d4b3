package models

import (
	"time"
)

// Group is the read-model row for a group chat's metadata.
type Group struct {
	ID        string    `json:"id"` // group identity like "123456789@g.us"
	Subject   *string   `json:"subject,omitempty"`
	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember is one row of a group's membership. The member set for a group
// is always replaced wholesale on refresh, never diffed incrementally.
type GroupMember struct {
	GroupID  string    `json:"group_id"`
	MemberID string    `json:"member_id"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}
