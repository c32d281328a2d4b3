package models

import (
	"time"
)

// Chat is the read-model row for a conversation. Subject is nil for 1:1
// chats. LastActivity only moves forward in time; the upsert path enforces
// that.
type Chat struct {
	ID            string    `json:"id"`
	Subject       *string   `json:"subject,omitempty"`
	IsGroup       bool      `json:"is_group"`
	UnreadCount   int       `json:"unread_count"`
	LastMessageID *string   `json:"last_message_id,omitempty"`
	LastActivity  time.Time `json:"last_activity"`
}

// GetDisplayName returns the chat subject, falling back to the identity.
func (c *Chat) GetDisplayName() string {
	if c.Subject != nil && *c.Subject != "" {
		return *c.Subject
	}
	return c.ID
}
