package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"whatsgate/internal/constants"
	"whatsgate/internal/models"
)

// SaveMedia inserts a stored-media row and returns its id. Media rows are
// append-only; a failed fetch never produces a row.
func (d *Database) SaveMedia(ctx context.Context, media *models.StoredMedia) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_name, file_path, mime_type, size, created_at)
		VALUES (?, ?, ?, ?, ?)`, d.tables.media)

	createdAt := media.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := withRetry(ctx, func() error {
		res, err := d.db.ExecContext(ctx, query,
			media.FileName, media.FilePath, media.MimeType, media.Size, formatTime(createdAt))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	}, "SaveMedia")
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetMedia returns one stored-media row by id, or nil when unknown.
func (d *Database) GetMedia(ctx context.Context, id int64) (*models.StoredMedia, error) {
	query := fmt.Sprintf(`
		SELECT id, file_name, file_path, mime_type, size, created_at
		FROM %s WHERE id = ?`, d.tables.media)

	var media models.StoredMedia
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&media.ID, &media.FileName, &media.FilePath,
		&media.MimeType, &media.Size, &media.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return &media, nil
}

// GetMediaByFileName looks a stored-media row up by its file name, used when
// serving content over HTTP.
func (d *Database) GetMediaByFileName(ctx context.Context, fileName string) (*models.StoredMedia, error) {
	query := fmt.Sprintf(`
		SELECT id, file_name, file_path, mime_type, size, created_at
		FROM %s WHERE file_name = ?`, d.tables.media)

	var media models.StoredMedia
	err := d.db.QueryRowContext(ctx, query, fileName).Scan(
		&media.ID, &media.FileName, &media.FilePath,
		&media.MimeType, &media.Size, &media.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return &media, nil
}

// SaveMessage persists one canonical message. Saving an id that already
// exists is an idempotent upsert where only the status is refreshed; every
// other stored field keeps its original value.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, sender_id, from_me, body, msg_type, timestamp, status, media_id, links, quoted_msg_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status`, d.tables.messages)

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			msg.ID, msg.ChatID, msg.SenderID, msg.FromMe, msg.Body,
			string(msg.Type), formatTime(msg.Timestamp), string(msg.Status),
			msg.MediaID, joinLinks(msg.Links), msg.QuotedMessageID)
		return err
	}, "SaveMessage")
}

// GetMessage returns one message by id, or nil when unknown.
func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, sender_id, from_me, body, msg_type, timestamp, status, media_id, links, quoted_msg_id
		FROM %s WHERE id = ?`, d.tables.messages)

	msg, err := scanMessage(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessages lists a chat's messages newest first, capped at limit.
func (d *Database) GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = constants.DefaultMessageLimit
	}
	query := fmt.Sprintf(`
		SELECT id, chat_id, sender_id, from_me, body, msg_type, timestamp, status, media_id, links, quoted_msg_id
		FROM %s WHERE chat_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, d.tables.messages)

	rows, err := d.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// SaveChannelMessage mirrors one broadcast into channel history. Re-saving
// the same id only refreshes the status.
func (d *Database) SaveChannelMessage(ctx context.Context, msg *models.ChannelMessage) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, channel_id, sender_id, body, msg_type, timestamp, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status`, d.tables.channelMessages)

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			msg.ID, msg.ChannelID, msg.SenderID, msg.Body,
			string(msg.Type), formatTime(msg.Timestamp), string(msg.Status))
		return err
	}, "SaveChannelMessage")
}

// GetChannelMessages lists a channel's broadcast history newest first.
func (d *Database) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]models.ChannelMessage, error) {
	if limit <= 0 {
		limit = constants.DefaultChannelLimit
	}
	query := fmt.Sprintf(`
		SELECT id, channel_id, sender_id, body, msg_type, timestamp, status
		FROM %s WHERE channel_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, d.tables.channelMessages)

	rows, err := d.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.ChannelMessage
	for rows.Next() {
		var msg models.ChannelMessage
		var msgType, status string
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Body,
			&msgType, &msg.Timestamp, &status); err != nil {
			return nil, fmt.Errorf("failed to scan channel message: %w", err)
		}
		msg.Type = models.MessageType(msgType)
		msg.Status = models.MessageStatus(status)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var msgType, status string
	var links sql.NullString

	err := row.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.FromMe, &msg.Body,
		&msgType, &msg.Timestamp, &status, &msg.MediaID, &links, &msg.QuotedMessageID)
	if err != nil {
		return nil, err
	}

	msg.Type = models.MessageType(msgType)
	msg.Status = models.MessageStatus(status)
	if links.Valid && links.String != "" {
		msg.Links = strings.Split(links.String, ",")
	}
	return &msg, nil
}

// joinLinks flattens extracted links into a single comma-separated column.
func joinLinks(links []string) interface{} {
	if len(links) == 0 {
		return nil
	}
	return strings.Join(links, ",")
}
