package types

import (
	"strings"

	"whatsgate/internal/models"
)

// Envelope is one raw protocol message as delivered by the transport. The
// shape mirrors the multi-device wire format: a routing key plus exactly one
// populated payload variant.
type Envelope struct {
	Key              *EnvelopeKey     `json:"key,omitempty"`
	PushName         string           `json:"pushName,omitempty"`
	MessageTimestamp *models.FlexTime `json:"messageTimestamp,omitempty"`
	Payload          *Payload         `json:"message,omitempty"`
}

// EnvelopeKey routes an envelope: which chat, which sender, whether it is an
// echo of our own send.
type EnvelopeKey struct {
	RemoteJID   string `json:"remoteJid"`
	Participant string `json:"participant,omitempty"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
}

// Payload carries exactly one message variant. Variants not listed here are
// treated as unsupported by the normalizer, never dropped silently.
type Payload struct {
	Conversation *string          `json:"conversation,omitempty"`
	ExtendedText *ExtendedText    `json:"extendedTextMessage,omitempty"`
	Image        *MediaAttachment `json:"imageMessage,omitempty"`
	Video        *MediaAttachment `json:"videoMessage,omitempty"`
	Document     *DocumentPayload `json:"documentMessage,omitempty"`
	Sticker      *MediaAttachment `json:"stickerMessage,omitempty"`
	ContactCard  *ContactCard     `json:"contactMessage,omitempty"`
}

type ExtendedText struct {
	Text            string `json:"text"`
	QuotedMessageID string `json:"stanzaId,omitempty"`
}

type MediaAttachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type DocumentPayload struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype,omitempty"`
	Title    string `json:"title,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type ContactCard struct {
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard,omitempty"`
}

// EventType enumerates transport stream events.
type EventType string

const (
	EventQR       EventType = "qr"
	EventOpen     EventType = "open"
	EventClosed   EventType = "closed"
	EventMessages EventType = "messages"
)

// Event is one occurrence on the transport stream: a pairing challenge, a
// connection state change, or a batch of inbound envelopes.
type Event struct {
	Type         EventType  `json:"type"`
	QR           string     `json:"qr,omitempty"`
	SelfIdentity string     `json:"me,omitempty"`
	CloseCode    int        `json:"closeCode,omitempty"`
	Envelopes    []Envelope `json:"messages,omitempty"`
}

// CloseCodeLoggedOut is the one close code that ends a session for good.
// Every other code is treated as recoverable.
const CloseCodeLoggedOut = 401

func IsRecoverableClose(code int) bool {
	return code != CloseCodeLoggedOut
}

// SendResult is the protocol acknowledgement for an outbound send.
type SendResult struct {
	MessageID string          `json:"messageId"`
	Timestamp models.FlexTime `json:"timestamp"`
}

// GroupMetadata is the live group snapshot fetched on demand.
type GroupMetadata struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Creator      string        `json:"owner,omitempty"`
	Participants []Participant `json:"participants"`
}

type Participant struct {
	JID          string `json:"id"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// NormalizeJID strips the per-device suffix from the user part, so every
// device of one account maps to the same identity.
func NormalizeJID(jid string) string {
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return jid
	}
	user, domain := jid[:at], jid[at:]
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}
	return user + domain
}

// IsGroupJID reports whether an identity addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}
