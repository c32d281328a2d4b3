package service

import (
	"context"
	"fmt"
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

func newTestGateway(t *testing.T, transport *fakeTransport) (*Gateway, *ConnectionManager, *fakeDirectory) {
	t.Helper()

	db := newFakeDirectory()
	events := bus.New()
	registry := metrics.NewRegistry()
	normalizer := NewNormalizer(db, &fakeMedia{}, nil, events, registry, quietLogger())
	cm := NewConnectionManager(transport, normalizer, events, registry, quietLogger(), models.ReconnectConfig{
		InitialBackoffMs: 5, MaxBackoffMs: 20, Multiplier: 2,
	})
	t.Cleanup(func() { _ = cm.Close() })

	engine := NewBroadcastEngine(db, cm, registry, quietLogger())
	return NewGateway(db, cm, engine, quietLogger()), cm, db
}

func openSession(t *testing.T, gw *Gateway, cm *ConnectionManager, transport *fakeTransport) {
	t.Helper()
	stream := transport.addStream()
	require.NoError(t, gw.Connect())
	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "555@c.us"}
	waitForState(t, cm, models.SessionStateOpen)
}

func TestGatewaySendTextRecordsHistory(t *testing.T) {
	transport := newFakeTransport()
	transport.sendResult = &types.SendResult{MessageID: "OUT1"}
	gw, cm, db := newTestGateway(t, transport)
	openSession(t, gw, cm, transport)

	msg, err := gw.SendText(context.Background(), "777:4@c.us", "hello")
	require.NoError(t, err)
	assert.Equal(t, "OUT1", msg.ID)
	assert.Equal(t, "777@c.us", msg.ChatID)
	assert.True(t, msg.FromMe)
	assert.Equal(t, "555@c.us", msg.SenderID)

	stored, err := db.GetMessage(context.Background(), "OUT1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	chat, err := db.GetChat(context.Background(), "777@c.us")
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, "OUT1", *chat.LastMessageID)
}

func TestGatewaySendKeepsUnreadCount(t *testing.T) {
	transport := newFakeTransport()
	gw, cm, db := newTestGateway(t, transport)

	stream := transport.addStream()
	require.NoError(t, gw.Connect())
	stream <- types.Event{Type: types.EventOpen, SelfIdentity: "555@c.us"}
	waitForState(t, cm, models.SessionStateOpen)

	text := "ping"
	for i := 1; i <= 3; i++ {
		stream <- types.Event{Type: types.EventMessages, Envelopes: []types.Envelope{{
			Key:     &types.EnvelopeKey{RemoteJID: "777@c.us", ID: fmt.Sprintf("IN%d", i)},
			Payload: &types.Payload{Conversation: &text},
		}}}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if chat, _ := db.GetChat(context.Background(), "777@c.us"); chat != nil && chat.UnreadCount == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	msg, err := gw.SendText(context.Background(), "777@c.us", "reply")
	require.NoError(t, err)

	// Replying bumps the chat but leaves the unread inbound messages counted.
	chat, err := db.GetChat(context.Background(), "777@c.us")
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, 3, chat.UnreadCount)
	require.NotNil(t, chat.LastMessageID)
	assert.Equal(t, msg.ID, *chat.LastMessageID)
}

func TestGatewaySendTextValidation(t *testing.T) {
	transport := newFakeTransport()
	gw, _, _ := newTestGateway(t, transport)

	_, err := gw.SendText(context.Background(), "1@c.us", "")
	require.Error(t, err)

	_, err = gw.SendText(context.Background(), "1@c.us", "hi")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.GetCode(err))
}

func TestGatewayGroupMembersLiveRefresh(t *testing.T) {
	transport := newFakeTransport()
	transport.groupMeta = &types.GroupMetadata{
		ID:      "123@g.us",
		Subject: "team chat",
		Creator: "555@c.us",
		Participants: []types.Participant{
			{JID: "1:7@c.us", IsAdmin: true},
			{JID: "2@c.us"},
		},
	}
	gw, cm, db := newTestGateway(t, transport)
	openSession(t, gw, cm, transport)

	members, err := gw.GetGroupMembers(context.Background(), "123@g.us")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "1@c.us", members[0].MemberID)
	assert.True(t, members[0].IsAdmin)

	groups, err := db.GetGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].Subject)
	assert.Equal(t, "team chat", *groups[0].Subject)
}

func TestGatewayGroupMembersFallsBackToStored(t *testing.T) {
	transport := newFakeTransport()
	gw, _, db := newTestGateway(t, transport)

	// Session never opened: live refresh is unavailable.
	require.NoError(t, db.ReplaceGroupMembers(context.Background(), "123@g.us", []models.GroupMember{
		{GroupID: "123@g.us", MemberID: "1@c.us"},
	}))

	members, err := gw.GetGroupMembers(context.Background(), "123@g.us")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "1@c.us", members[0].MemberID)
}

func TestGatewayChannelLifecycle(t *testing.T) {
	transport := newFakeTransport()
	gw, cm, _ := newTestGateway(t, transport)
	openSession(t, gw, cm, transport)

	channel, err := gw.CreateChannel(context.Background(), "announcements")
	require.NoError(t, err)
	require.NotEmpty(t, channel.ID)

	require.NoError(t, gw.AddChannelMember(context.Background(), channel.ID, "1@c.us"))
	require.NoError(t, gw.AddChannelMember(context.Background(), channel.ID, "2@c.us"))

	err = gw.AddChannelMember(context.Background(), "missing", "1@c.us")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	members, err := gw.GetChannelMembers(context.Background(), channel.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	results, _, err := gw.Broadcast(context.Background(), channel.ID, "ship it")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, models.BroadcastStatusSent, r.Status)
	}

	history, err := gw.GetChannelMessages(context.Background(), channel.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "555@c.us", history[0].SenderID)

	require.NoError(t, gw.RemoveChannelMember(context.Background(), channel.ID, "1@c.us"))
	members, err = gw.GetChannelMembers(context.Background(), channel.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestGatewayLogout(t *testing.T) {
	transport := newFakeTransport()
	gw, cm, _ := newTestGateway(t, transport)
	openSession(t, gw, cm, transport)

	require.NoError(t, gw.Logout(context.Background()))
	status := gw.Status()
	assert.Equal(t, models.SessionStateClosed, status.State)
	assert.True(t, status.Terminal)
	assert.True(t, transport.loggedOut)

	_, err := gw.SendText(context.Background(), "1@c.us", "late")
	require.Error(t, err)
}

func TestGatewayEmptyChannelNameRejected(t *testing.T) {
	transport := newFakeTransport()
	gw, _, _ := newTestGateway(t, transport)

	_, err := gw.CreateChannel(context.Background(), "")
	require.Error(t, err)
}
