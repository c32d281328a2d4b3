package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJID(t *testing.T) {
	tests := []struct {
		name string
		jid  string
		want string
	}{
		{"plain user", "1234567890@c.us", "1234567890@c.us"},
		{"device suffix stripped", "1234567890:17@c.us", "1234567890@c.us"},
		{"group untouched", "123456-7890@g.us", "123456-7890@g.us"},
		{"no domain", "1234567890", "1234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeJID(tt.jid))
		})
	}
}

func TestIsGroupJID(t *testing.T) {
	assert.True(t, IsGroupJID("123456789@g.us"))
	assert.False(t, IsGroupJID("123456789@c.us"))
}

func TestIsRecoverableClose(t *testing.T) {
	assert.False(t, IsRecoverableClose(CloseCodeLoggedOut))
	assert.True(t, IsRecoverableClose(408))
	assert.True(t, IsRecoverableClose(0))
}

func TestEnvelopeDecoding(t *testing.T) {
	raw := `{
		"key": {"remoteJid": "1234567890@c.us", "fromMe": false, "id": "MSG1"},
		"pushName": "Alice",
		"messageTimestamp": 1755691200,
		"message": {"imageMessage": {"url": "https://cdn.example/img", "mimetype": "image/jpeg", "caption": "look"}}
	}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))

	require.NotNil(t, env.Key)
	assert.Equal(t, "MSG1", env.Key.ID)
	assert.Equal(t, "Alice", env.PushName)
	require.NotNil(t, env.MessageTimestamp)
	assert.Equal(t, time.Unix(1755691200, 0).UTC(), env.MessageTimestamp.Time)
	require.NotNil(t, env.Payload)
	require.NotNil(t, env.Payload.Image)
	assert.Equal(t, "look", env.Payload.Image.Caption)
	assert.Nil(t, env.Payload.Conversation)
}

func TestEnvelopeDecodingStringTimestamp(t *testing.T) {
	raw := `{
		"key": {"remoteJid": "1@c.us", "fromMe": true, "id": "MSG2"},
		"messageTimestamp": "2026-08-20T12:00:00Z",
		"message": {"conversation": "hi"}
	}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC), env.MessageTimestamp.Time)
	require.NotNil(t, env.Payload.Conversation)
	assert.Equal(t, "hi", *env.Payload.Conversation)
}
