package types

import "context"

// Transport is the protocol boundary the gateway talks through. The wire
// format behind it stays opaque; implementations hand the gateway decoded
// events and accept canonical send calls.
type Transport interface {
	// Dial opens the event stream. The returned channel closes when the
	// stream ends; the session layer decides whether to redial.
	Dial(ctx context.Context) (<-chan Event, error)

	// SendText delivers one text message to a chat or contact identity.
	SendText(ctx context.Context, chatID, text string) (*SendResult, error)

	// GroupMetadata fetches the live snapshot for one group.
	GroupMetadata(ctx context.Context, groupID string) (*GroupMetadata, error)

	// Logout ends the pairing permanently.
	Logout(ctx context.Context) error

	Close() error
}
