package models

import (
	"time"
)

// Channel is a locally-managed broadcast list: messages sent to a channel
// fan out to every member individually.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ChannelMember struct {
	ChannelID string    `json:"channel_id"`
	ContactID string    `json:"contact_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// BroadcastStatus is the per-recipient outcome of a fan-out send.
type BroadcastStatus string

const (
	BroadcastStatusSent   BroadcastStatus = "sent"
	BroadcastStatusFailed BroadcastStatus = "failed"
)

// BroadcastResult records the outcome for a single recipient. A broadcast
// returns one of these per member, never an aggregate error.
type BroadcastResult struct {
	Recipient string          `json:"recipient"`
	Status    BroadcastStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
}
