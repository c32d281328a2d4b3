package service

import (
	"context"
	"sync"
	"time"

	"whatsgate/internal/bus"
	apperrors "whatsgate/internal/errors"
	"whatsgate/internal/metrics"
	"whatsgate/internal/models"
	"whatsgate/internal/privacy"
	"whatsgate/internal/tracing"
	"whatsgate/pkg/waproto/types"

	"github.com/sirupsen/logrus"
)

// Normalizer turns raw protocol envelopes into canonical messages and updates
// the directory read-model as a side effect. One bad envelope never takes its
// batch down: failures are logged and counted, the rest proceed.
type Normalizer struct {
	db      Directory
	media   MediaFetcher
	links   LinkPusher
	events  *bus.Bus
	metrics *metrics.Registry
	logger  *logrus.Logger
	locks   *chatLocks
}

func NewNormalizer(db Directory, media MediaFetcher, links LinkPusher, events *bus.Bus, registry *metrics.Registry, logger *logrus.Logger) *Normalizer {
	return &Normalizer{
		db:      db,
		media:   media,
		links:   links,
		events:  events,
		metrics: registry,
		logger:  logger,
		locks:   newChatLocks(),
	}
}

// ProcessBatch ingests one delivery of envelopes. Envelopes for the same chat
// are processed in arrival order; distinct chats proceed concurrently. The
// per-chat lock also serializes against chats still being worked from earlier
// batches.
func (n *Normalizer) ProcessBatch(ctx context.Context, envelopes []types.Envelope) {
	byChat := make(map[string][]types.Envelope)
	var order []string
	for _, env := range envelopes {
		chatID := ""
		if env.Key != nil {
			chatID = types.NormalizeJID(env.Key.RemoteJID)
		}
		if _, seen := byChat[chatID]; !seen {
			order = append(order, chatID)
		}
		byChat[chatID] = append(byChat[chatID], env)
	}

	var wg sync.WaitGroup
	for _, chatID := range order {
		group := byChat[chatID]
		wg.Add(1)
		go func(chatID string, group []types.Envelope) {
			defer wg.Done()

			unlock := n.locks.acquire(chatID)
			defer unlock()

			for _, env := range group {
				n.processEnvelope(ctx, env)
			}
		}(chatID, group)
	}
	wg.Wait()
}

func (n *Normalizer) processEnvelope(ctx context.Context, env types.Envelope) {
	ctx, span := tracing.StartSpan(ctx, "normalize_envelope")
	defer span.End()

	msg, err := n.Normalize(ctx, env)
	if err != nil {
		n.metrics.Increment("messages_rejected")
		tracing.RecordError(ctx, err)
		id := ""
		if env.Key != nil {
			id = privacy.MaskMessageID(env.Key.ID)
		}
		n.logger.WithError(err).WithField("message_id", id).Warn("Failed to normalize envelope")
		return
	}
	if msg == nil {
		// Echo of our own send.
		n.metrics.Increment("echoes_skipped")
		return
	}

	n.metrics.Increment("messages_normalized")
	n.events.Publish(bus.NewEvent(bus.KindMessageNew, msg))

	if n.links != nil && len(msg.Links) > 0 {
		n.metrics.Add("links_extracted", int64(len(msg.Links)))
		links := msg.Links
		go func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := n.links.Push(pushCtx, links); err != nil {
				n.logger.WithError(err).Debug("Link push failed")
			}
		}()
	}
}

// Normalize converts one envelope into a stored canonical message. It returns
// (nil, nil) for echoes of our own sends; those carry no new information.
func (n *Normalizer) Normalize(ctx context.Context, env types.Envelope) (*models.Message, error) {
	if env.Key == nil || env.Key.ID == "" || env.Key.RemoteJID == "" {
		return nil, apperrors.New(apperrors.ErrCodeNormalization, "envelope is missing its routing key")
	}
	if env.Payload == nil {
		return nil, apperrors.New(apperrors.ErrCodeNormalization, "envelope has no payload")
	}
	if env.Key.FromMe {
		return nil, nil
	}

	chatID := types.NormalizeJID(env.Key.RemoteJID)
	isGroup := types.IsGroupJID(chatID)
	senderID := chatID
	if isGroup && env.Key.Participant != "" {
		senderID = types.NormalizeJID(env.Key.Participant)
	}

	timestamp := time.Now().UTC()
	if env.MessageTimestamp != nil && !env.MessageTimestamp.IsZero() {
		timestamp = env.MessageTimestamp.UTC()
	}

	msgType, body, attachment, quotedID := decodePayload(env.Payload)

	var mediaID *int64
	if attachment != nil {
		mediaID = n.storeAttachment(ctx, attachment)
	}

	var links []string
	if body != nil {
		links = ExtractLinks(*body)
	}

	if err := n.updateDirectory(ctx, env, chatID, senderID, isGroup, timestamp); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:              env.Key.ID,
		ChatID:          chatID,
		SenderID:        senderID,
		FromMe:          false,
		Body:            body,
		Type:            msgType,
		Timestamp:       timestamp,
		Status:          models.MessageStatusReceived,
		MediaID:         mediaID,
		Links:           links,
		QuotedMessageID: quotedID,
	}

	// The upsert is idempotent, so one blind retry is safe.
	if err := n.db.SaveMessage(ctx, msg); err != nil {
		n.logger.WithError(err).WithField("message_id", privacy.MaskMessageID(msg.ID)).Warn("Message save failed, retrying once")
		if err := n.db.SaveMessage(ctx, msg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to save message")
		}
	}

	return msg, nil
}

func (n *Normalizer) storeAttachment(ctx context.Context, att *types.MediaAttachment) *int64 {
	if att.URL == "" {
		// Nothing to fetch; the message keeps going without media.
		n.metrics.Increment("media_fetch_failed")
		return nil
	}

	stored := n.media.FetchFromRemote(ctx, att.URL, att.MimeType)
	if stored == nil {
		n.metrics.Increment("media_fetch_failed")
		return nil
	}

	id, err := n.db.SaveMedia(ctx, stored)
	if err != nil {
		n.metrics.Increment("media_fetch_failed")
		n.logger.WithError(err).Warn("Failed to record stored media, keeping message without attachment")
		return nil
	}
	n.metrics.Increment("media_stored")
	return &id
}

func (n *Normalizer) updateDirectory(ctx context.Context, env types.Envelope, chatID, senderID string, isGroup bool, timestamp time.Time) error {
	contact := &models.Contact{
		ID:          senderID,
		IsKnownUser: true,
		LastSeen:    &timestamp,
	}
	if env.PushName != "" {
		pushName := env.PushName
		contact.PushName = &pushName
	}
	if err := n.db.UpsertContact(ctx, contact); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to upsert contact")
	}

	unread := 1
	if existing, err := n.db.GetChat(ctx, chatID); err == nil && existing != nil {
		unread = existing.UnreadCount + 1
	}

	messageID := env.Key.ID
	chat := &models.Chat{
		ID:            chatID,
		IsGroup:       isGroup,
		UnreadCount:   unread,
		LastMessageID: &messageID,
		LastActivity:  timestamp,
	}
	if err := n.db.UpsertChat(ctx, chat); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to upsert chat")
	}
	return nil
}

// decodePayload maps the populated payload variant to a canonical type, body,
// attachment, and quoted-message reference. Unknown variants are preserved as
// unsupported messages rather than dropped.
func decodePayload(p *types.Payload) (models.MessageType, *string, *types.MediaAttachment, *string) {
	switch {
	case p.Conversation != nil:
		return models.MessageTypeText, nonEmpty(*p.Conversation), nil, nil

	case p.ExtendedText != nil:
		var quoted *string
		if p.ExtendedText.QuotedMessageID != "" {
			q := p.ExtendedText.QuotedMessageID
			quoted = &q
		}
		return models.MessageTypeText, nonEmpty(p.ExtendedText.Text), nil, quoted

	case p.Image != nil:
		return models.MessageTypeImage, nonEmpty(p.Image.Caption), p.Image, nil

	case p.Video != nil:
		return models.MessageTypeVideo, nonEmpty(p.Video.Caption), p.Video, nil

	case p.Document != nil:
		title := p.Document.Title
		if title == "" {
			title = p.Document.FileName
		}
		att := &types.MediaAttachment{URL: p.Document.URL, MimeType: p.Document.MimeType}
		return models.MessageTypeDocument, nonEmpty(title), att, nil

	case p.Sticker != nil:
		return models.MessageTypeSticker, nil, p.Sticker, nil

	case p.ContactCard != nil:
		return models.MessageTypeContact, nonEmpty(p.ContactCard.DisplayName), nil, nil

	default:
		return models.MessageTypeUnsupported, nil, nil, nil
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
