package models

import (
	"time"
)

// Contact is a read-model row for an identity seen on the wire. Rows are
// upserted on any inbound or outbound activity and never deleted
// automatically.
type Contact struct {
	ID          string     `json:"id"` // protocol identity like "1234567890@c.us"
	Name        *string    `json:"name,omitempty"`
	PushName    *string    `json:"push_name,omitempty"`
	IsKnownUser bool       `json:"is_known_user"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// GetDisplayName returns the best available display name for the contact.
func (c *Contact) GetDisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.PushName != nil && *c.PushName != "" {
		return *c.PushName
	}
	return c.ID
}
