package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"whatsgate/internal/bus"
	apperrors "whatsgate/internal/errors"
	"whatsgate/internal/metrics"
	"whatsgate/internal/models"
	"whatsgate/pkg/waproto/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, transport types.Transport) (*ConnectionManager, *bus.Bus, *fakeDirectory) {
	t.Helper()

	db := newFakeDirectory()
	events := bus.New()
	normalizer := NewNormalizer(db, &fakeMedia{}, nil, events, metrics.NewRegistry(), quietLogger())

	cm := NewConnectionManager(transport, normalizer, events, metrics.NewRegistry(), quietLogger(), models.ReconnectConfig{
		InitialBackoffMs: 5,
		MaxBackoffMs:     20,
		Multiplier:       2,
	})
	t.Cleanup(func() { _ = cm.Close() })
	return cm, events, db
}

func waitForState(t *testing.T, cm *ConnectionManager, state models.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cm.Status().State == state {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached state %q (now %q)", state, cm.Status().State)
}

func TestSessionOpensAndNormalizesMessages(t *testing.T) {
	transport := newFakeTransport()
	stream := transport.addStream()

	cm, events, db := newTestManager(t, transport)

	qrCh, unsub := events.Subscribe(bus.KindSessionQR, 4)
	defer unsub()

	require.NoError(t, cm.Connect())

	stream <- types.Event{Type: types.EventQR, QR: "pairing-payload"}
	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "555:9@c.us"}

	waitForState(t, cm, models.SessionStateOpen)
	assert.Equal(t, "555@c.us", cm.Status().SelfIdentity)

	// The pairing challenge went out as a PNG data URL.
	select {
	case evt := <-qrCh:
		payload, ok := evt.Payload.(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(payload, "data:image/png;base64,"))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pairing event")
	}

	text := "inbound"
	stream <- types.Event{Type: types.EventMessages, Envelopes: []types.Envelope{{
		Key:     &types.EnvelopeKey{RemoteJID: "1@c.us", ID: "IN1"},
		Payload: &types.Payload{Conversation: &text},
	}}}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, _ := db.GetMessage(context.Background(), "IN1"); msg != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("inbound message never reached the directory")
}

func TestRecoverableCloseReconnects(t *testing.T) {
	transport := newFakeTransport()
	first := transport.addStream()
	second := transport.addStream()

	cm, _, _ := newTestManager(t, transport)
	require.NoError(t, cm.Connect())

	first <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	waitForState(t, cm, models.SessionStateOpen)

	first <- types.Event{Type: types.EventClosed, CloseCode: 408}
	close(first)

	// The manager redials and the session opens again.
	second <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		transport.mu.Lock()
		dials := transport.dialCount
		transport.mu.Unlock()
		if dials >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitForState(t, cm, models.SessionStateOpen)
	assert.GreaterOrEqual(t, transport.dialCount, 2)
}

func TestLoggedOutCloseIsTerminal(t *testing.T) {
	transport := newFakeTransport()
	stream := transport.addStream()

	cm, _, _ := newTestManager(t, transport)
	require.NoError(t, cm.Connect())

	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	waitForState(t, cm, models.SessionStateOpen)

	stream <- types.Event{Type: types.EventClosed, CloseCode: types.CloseCodeLoggedOut}
	close(stream)

	waitForState(t, cm, models.SessionStateClosed)
	status := cm.Status()
	assert.True(t, status.Terminal)

	// No redial happens after a terminal close.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, transport.dialCount)
}

func TestConnectAfterTerminalCloseStartsFreshPairing(t *testing.T) {
	transport := newFakeTransport()
	first := transport.addStream()
	second := transport.addStream()

	cm, _, _ := newTestManager(t, transport)
	require.NoError(t, cm.Connect())

	first <- types.Event{Type: types.EventClosed, CloseCode: types.CloseCodeLoggedOut}
	close(first)
	waitForState(t, cm, models.SessionStateClosed)
	require.True(t, cm.Status().Terminal)

	// Give the session loop a moment to wind down fully.
	time.Sleep(50 * time.Millisecond)

	// An explicit Connect re-pairs from scratch.
	require.NoError(t, cm.Connect())
	second <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	waitForState(t, cm, models.SessionStateOpen)
	assert.False(t, cm.Status().Terminal)
}

func TestDialFailureBacksOffAndRetries(t *testing.T) {
	transport := newFakeTransport()
	transport.dialErrs = []error{assert.AnError, assert.AnError}
	stream := transport.addStream()

	cm, _, _ := newTestManager(t, transport)
	require.NoError(t, cm.Connect())

	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	waitForState(t, cm, models.SessionStateOpen)
	assert.Equal(t, 3, transport.dialCount)
}

func TestSendTextRequiresOpenSession(t *testing.T) {
	transport := newFakeTransport()
	cm, _, _ := newTestManager(t, transport)

	_, err := cm.SendText(context.Background(), "1@c.us", "hi")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.GetCode(err))
}

func TestLogoutCancelsPendingReconnect(t *testing.T) {
	transport := newFakeTransport()
	stream := transport.addStream()

	cm, _, _ := newTestManager(t, transport)
	require.NoError(t, cm.Connect())

	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	waitForState(t, cm, models.SessionStateOpen)

	// Drop the connection, then log out while the reconnect timer is armed.
	stream <- types.Event{Type: types.EventClosed, CloseCode: 408}
	close(stream)
	waitForState(t, cm, models.SessionStateClosed)

	require.NoError(t, cm.Logout(context.Background()))

	status := cm.Status()
	assert.True(t, status.Terminal)
	assert.True(t, transport.loggedOut)

	dialsAtLogout := transport.dialCount
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, dialsAtLogout, transport.dialCount, "reconnect fired after logout")
}

func TestConnectTwiceIsNoOp(t *testing.T) {
	transport := newFakeTransport()
	stream := transport.addStream()

	cm, _, _ := newTestManager(t, transport)
	require.NoError(t, cm.Connect())
	require.NoError(t, cm.Connect())

	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "me@c.us"}
	waitForState(t, cm, models.SessionStateOpen)
	assert.Equal(t, 1, transport.dialCount)
}
