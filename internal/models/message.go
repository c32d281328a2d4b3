package models

import (
	"time"
)

// MessageType classifies the canonical shape of a message regardless of the
// payload variant it arrived as.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeImage       MessageType = "image"
	MessageTypeVideo       MessageType = "video"
	MessageTypeDocument    MessageType = "document"
	MessageTypeSticker     MessageType = "sticker"
	MessageTypeContact     MessageType = "contact"
	MessageTypeUnsupported MessageType = "unsupported"
)

type MessageStatus string

const (
	MessageStatusReceived  MessageStatus = "received"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Message is the canonical, storage-ready representation of a chat message.
// ID is the protocol-assigned message id; re-ingesting the same id is an
// idempotent upsert where only Status may change.
type Message struct {
	ID              string        `json:"id"`
	ChatID          string        `json:"chat_id"`
	SenderID        string        `json:"sender_id"`
	FromMe          bool          `json:"from_me"`
	Body            *string       `json:"body,omitempty"`
	Type            MessageType   `json:"type"`
	Timestamp       time.Time     `json:"timestamp"`
	Status          MessageStatus `json:"status"`
	MediaID         *int64        `json:"media_id,omitempty"`
	Links           []string      `json:"links,omitempty"`
	QuotedMessageID *string       `json:"quoted_message_id,omitempty"`
}

// ChannelMessage mirrors a broadcast into per-channel history. Channels are a
// distinct delivery concept from chats, so they keep their own table.
type ChannelMessage struct {
	ID        string        `json:"id"`
	ChannelID string        `json:"channel_id"`
	SenderID  string        `json:"sender_id"`
	Body      string        `json:"body"`
	Type      MessageType   `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status"`
}
