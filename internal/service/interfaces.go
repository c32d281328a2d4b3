package service

import (
	"context"

	"whatsgate/internal/models"
)

// Directory is the persistence surface the services consume. It is satisfied
// by *database.Database and mocked in tests.
type Directory interface {
	UpsertContact(ctx context.Context, contact *models.Contact) error
	UpsertChat(ctx context.Context, chat *models.Chat) error
	TouchChat(ctx context.Context, chat *models.Chat) error
	UpsertGroup(ctx context.Context, group *models.Group) error
	ReplaceGroupMembers(ctx context.Context, groupID string, members []models.GroupMember) error

	CreateChannel(ctx context.Context, channel *models.Channel) error
	AddChannelMember(ctx context.Context, member *models.ChannelMember) error
	RemoveChannelMember(ctx context.Context, channelID, contactID string) error

	GetContact(ctx context.Context, id string) (*models.Contact, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	GetChats(ctx context.Context) ([]models.Chat, error)
	GetGroups(ctx context.Context) ([]models.Group, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	GetChannels(ctx context.Context) ([]models.Channel, error)
	GetChannelMembers(ctx context.Context, channelID string) ([]models.Contact, error)

	SaveMedia(ctx context.Context, media *models.StoredMedia) (int64, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	SaveChannelMessage(ctx context.Context, msg *models.ChannelMessage) error
	GetChannelMessages(ctx context.Context, channelID string, limit int) ([]models.ChannelMessage, error)
}

// MediaFetcher downloads remote attachments. A nil result means the fetch
// failed and the message continues without media.
type MediaFetcher interface {
	FetchFromRemote(ctx context.Context, url, mimeType string) *models.StoredMedia
}

// LinkPusher forwards extracted links to an external consumer. Delivery is
// best effort.
type LinkPusher interface {
	Push(ctx context.Context, links []string) error
}
