package service

import (
	"context"
	"time"

	apperrors "whatsgate/internal/errors"
	"whatsgate/internal/models"
	"whatsgate/pkg/waproto/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Gateway is the command surface of the service: session control, sends,
// directory reads, channel management, and broadcast. The HTTP server calls
// only this type.
type Gateway struct {
	db        Directory
	conn      *ConnectionManager
	broadcast *BroadcastEngine
	logger    *logrus.Logger
}

func NewGateway(db Directory, conn *ConnectionManager, broadcast *BroadcastEngine, logger *logrus.Logger) *Gateway {
	return &Gateway{db: db, conn: conn, broadcast: broadcast, logger: logger}
}

func (g *Gateway) Connect() error {
	return g.conn.Connect()
}

func (g *Gateway) Logout(ctx context.Context) error {
	return g.conn.Logout(ctx)
}

func (g *Gateway) Status() models.Session {
	return g.conn.Status()
}

// SendText delivers one text message and records it in the sender's history.
func (g *Gateway) SendText(ctx context.Context, chatID, text string) (*models.Message, error) {
	if text == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "message text cannot be empty")
	}
	chatID = types.NormalizeJID(chatID)

	result, err := g.conn.SendText(ctx, chatID, text)
	if err != nil {
		return nil, err
	}

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
		ChatID:    chatID,
		SenderID:  g.conn.Status().SelfIdentity,
		FromMe:    true,
		Body:      &text,
		Type:      models.MessageTypeText,
		Timestamp: timestamp,
		Status:    models.MessageStatusSent,
	}
	if err := g.db.SaveMessage(ctx, msg); err != nil {
		g.logger.WithError(err).Warn("Sent message could not be recorded")
	}

	chat := &models.Chat{
		ID:            chatID,
		IsGroup:       types.IsGroupJID(chatID),
		LastMessageID: &messageID,
		LastActivity:  timestamp,
	}
	if err := g.db.TouchChat(ctx, chat); err != nil {
		g.logger.WithError(err).Warn("Chat could not be refreshed after send")
	}

	return msg, nil
}

func (g *Gateway) GetChats(ctx context.Context) ([]models.Chat, error) {
	return g.db.GetChats(ctx)
}

func (g *Gateway) GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	return g.db.GetMessages(ctx, types.NormalizeJID(chatID), limit)
}

func (g *Gateway) GetGroups(ctx context.Context) ([]models.Group, error) {
	return g.db.GetGroups(ctx)
}

// GetGroupMembers returns a group's membership, refreshing from the live
// session when possible. When the session is down, the stored snapshot is
// served instead of failing.
func (g *Gateway) GetGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	groupID = types.NormalizeJID(groupID)

	meta, err := g.conn.GroupMetadata(ctx, groupID)
	if err != nil {
		g.logger.WithError(err).Debug("Live group refresh unavailable, serving stored membership")
		return g.db.GetGroupMembers(ctx, groupID)
	}

	if err := g.refreshGroup(ctx, meta); err != nil {
		g.logger.WithError(err).Warn("Failed to store refreshed group snapshot")
	}
	return g.db.GetGroupMembers(ctx, groupID)
}

func (g *Gateway) refreshGroup(ctx context.Context, meta *types.GroupMetadata) error {
	group := &models.Group{ID: types.NormalizeJID(meta.ID)}
	if meta.Subject != "" {
		subject := meta.Subject
		group.Subject = &subject
	}
	if meta.Creator != "" {
		creator := types.NormalizeJID(meta.Creator)
		group.CreatedBy = &creator
	}
	if err := g.db.UpsertGroup(ctx, group); err != nil {
		return err
	}

	members := make([]models.GroupMember, 0, len(meta.Participants))
	for _, p := range meta.Participants {
		members = append(members, models.GroupMember{
			GroupID:  group.ID,
			MemberID: types.NormalizeJID(p.JID),
			IsAdmin:  p.IsAdmin || p.IsSuperAdmin,
		})
	}
	return g.db.ReplaceGroupMembers(ctx, group.ID, members)
}

// CreateChannel creates a broadcast channel with a generated id.
func (g *Gateway) CreateChannel(ctx context.Context, name string) (*models.Channel, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "channel name cannot be empty")
	}

	channel := &models.Channel{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.db.CreateChannel(ctx, channel); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to create channel")
	}
	return channel, nil
}

func (g *Gateway) GetChannels(ctx context.Context) ([]models.Channel, error) {
	return g.db.GetChannels(ctx)
}

func (g *Gateway) AddChannelMember(ctx context.Context, channelID, contactID string) error {
	channel, err := g.db.GetChannel(ctx, channelID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to load channel")
	}
	if channel == nil {
		return apperrors.New(apperrors.ErrCodeNotFound, "channel not found").WithContext("channel_id", channelID)
	}

	return g.db.AddChannelMember(ctx, &models.ChannelMember{
		ChannelID: channelID,
		ContactID: types.NormalizeJID(contactID),
		JoinedAt:  time.Now().UTC(),
	})
}

func (g *Gateway) RemoveChannelMember(ctx context.Context, channelID, contactID string) error {
	return g.db.RemoveChannelMember(ctx, channelID, types.NormalizeJID(contactID))
}

func (g *Gateway) GetChannelMembers(ctx context.Context, channelID string) ([]models.Contact, error) {
	return g.db.GetChannelMembers(ctx, channelID)
}

// Broadcast fans text out to every channel member and returns per-recipient
// results.
func (g *Gateway) Broadcast(ctx context.Context, channelID, text string) ([]models.BroadcastResult, *models.ChannelMessage, error) {
	if text == "" {
		return nil, nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "broadcast text cannot be empty")
	}
	return g.broadcast.Broadcast(ctx, channelID, g.conn.Status().SelfIdentity, text)
}

func (g *Gateway) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]models.ChannelMessage, error) {
	return g.db.GetChannelMessages(ctx, channelID, limit)
}
