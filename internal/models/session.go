package models

// SessionState is the connection lifecycle state of the gateway's single
// protocol session.
type SessionState string

const (
	SessionStateIdle    SessionState = "idle"
	SessionStatePairing SessionState = "pairing"
	SessionStateOpen    SessionState = "open"
	SessionStateClosed  SessionState = "closed"
)

// Session is a snapshot of the gateway session. It is owned and mutated only
// by the connection manager; everyone else reads copies.
type Session struct {
	State            SessionState `json:"state"`
	SelfIdentity     string       `json:"self_identity,omitempty"`
	PairingChallenge string       `json:"pairing_challenge,omitempty"`
	// Terminal is set when the session closed for a non-recoverable reason
	// (explicit logout, invalidated credentials). A terminal close is never
	// reconnected automatically.
	Terminal    bool   `json:"terminal,omitempty"`
	CloseReason string `json:"close_reason,omitempty"`
}
