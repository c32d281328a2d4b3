package bus

import "time"

// Event kinds published by the gateway. Subscribers filter by prefix, so
// "session." matches every session lifecycle event.
const (
	KindSessionQR     = "session.qr"
	KindSessionStatus = "session.status"
	KindMessageNew    = "message.new"
)

// Event is one domain occurrence published to in-process subscribers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
