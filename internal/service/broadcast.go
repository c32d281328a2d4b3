package service

import (
	"context"
	"time"

	apperrors "whatsgate/internal/errors"
	"whatsgate/internal/metrics"
	"whatsgate/internal/models"
	"whatsgate/internal/privacy"
	"whatsgate/pkg/waproto/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sender is the outbound surface the broadcast engine needs; satisfied by
// the connection manager.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) (*types.SendResult, error)
}

// BroadcastEngine fans one message out to every member of a channel. Each
// recipient gets its own send and its own result; one failing member never
// aborts the rest.
type BroadcastEngine struct {
	db      Directory
	sender  Sender
	metrics *metrics.Registry
	logger  *logrus.Logger
}

func NewBroadcastEngine(db Directory, sender Sender, registry *metrics.Registry, logger *logrus.Logger) *BroadcastEngine {
	return &BroadcastEngine{db: db, sender: sender, metrics: registry, logger: logger}
}

// Broadcast sends text to every member of channelID sequentially, in member
// order. It returns one result per member plus the channel-history mirror it
// recorded. A channel with no members is a hard error, not an empty success.
func (b *BroadcastEngine) Broadcast(ctx context.Context, channelID, senderID, text string) ([]models.BroadcastResult, *models.ChannelMessage, error) {
	channel, err := b.db.GetChannel(ctx, channelID)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to load channel")
	}
	if channel == nil {
		return nil, nil, apperrors.New(apperrors.ErrCodeNotFound, "channel not found").WithContext("channel_id", channelID)
	}

	members, err := b.db.GetChannelMembers(ctx, channelID)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to load channel members")
	}
	if len(members) == 0 {
		return nil, nil, apperrors.ErrEmptyChannel
	}

	results := make([]models.BroadcastResult, 0, len(members))
	anySent := false
	for _, member := range members {
		result := models.BroadcastResult{Recipient: member.ID}

		sendResult, err := b.sender.SendText(ctx, member.ID, text)
		if err != nil {
			result.Status = models.BroadcastStatusFailed
			result.Error = err.Error()
			b.metrics.Increment("broadcast_failures")
			b.logger.WithError(err).WithField("recipient", privacy.MaskIdentity(member.ID)).Warn("Broadcast send failed")
		} else {
			result.Status = models.BroadcastStatusSent
			anySent = true
			b.metrics.Increment("broadcast_sends")
			b.recordRecipientMessage(ctx, member.ID, senderID, text, sendResult)
		}
		results = append(results, result)
	}

	mirror := &models.ChannelMessage{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		SenderID:  senderID,
		Body:      text,
		Type:      models.MessageTypeText,
		Timestamp: time.Now().UTC(),
		Status:    models.MessageStatusSent,
	}
	if !anySent {
		mirror.Status = models.MessageStatusFailed
	}
	if err := b.db.SaveChannelMessage(ctx, mirror); err != nil {
		b.logger.WithError(err).Warn("Failed to mirror broadcast into channel history")
	}

	return results, mirror, nil
}

// recordRecipientMessage mirrors a successful per-recipient send into the
// recipient's chat history. Failures here are logged only; the send already
// happened.
func (b *BroadcastEngine) recordRecipientMessage(ctx context.Context, recipient, senderID, text string, result *types.SendResult) {
	timestamp := time.Now().UTC()
	messageID := uuid.NewString()
	if result != nil {
		if result.MessageID != "" {
			messageID = result.MessageID
		}
		if !result.Timestamp.IsZero() {
			timestamp = result.Timestamp.UTC()
		}
	}

	msg := &models.Message{
		ID:        messageID,
		ChatID:    recipient,
		SenderID:  senderID,
		FromMe:    true,
		Body:      &text,
		Type:      models.MessageTypeText,
		Timestamp: timestamp,
		Status:    models.MessageStatusSent,
	}
	if err := b.db.SaveMessage(ctx, msg); err != nil {
		b.logger.WithError(err).Warn("Failed to record broadcast message")
		return
	}

	chat := &models.Chat{
		ID:            recipient,
		IsGroup:       types.IsGroupJID(recipient),
		LastMessageID: &messageID,
		LastActivity:  timestamp,
	}
	if err := b.db.TouchChat(ctx, chat); err != nil {
		b.logger.WithError(err).Warn("Failed to refresh chat after broadcast")
	}
}
