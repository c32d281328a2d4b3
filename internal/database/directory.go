package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"whatsgate/internal/models"
)

// UpsertContact inserts or partially updates a contact. Nullable fields that
// the caller leaves nil keep their stored value; a re-upsert never erases a
// previously learned name.
func (d *Database) UpsertContact(ctx context.Context, contact *models.Contact) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, push_name, is_known_user, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(excluded.name, name),
			push_name = COALESCE(excluded.push_name, push_name),
			is_known_user = excluded.is_known_user,
			last_seen = COALESCE(excluded.last_seen, last_seen)`, d.tables.contacts)

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			contact.ID, contact.Name, contact.PushName,
			contact.IsKnownUser, formatTimePtr(contact.LastSeen))
		return err
	}, "UpsertContact")
}

// UpsertChat inserts or updates a chat row. last_activity is monotonic: the
// stored value never moves backwards even when events arrive out of order.
func (d *Database) UpsertChat(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, subject, is_group, unread_count, last_message_id, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = COALESCE(excluded.subject, subject),
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			last_message_id = COALESCE(excluded.last_message_id, last_message_id),
			last_activity = MAX(last_activity, excluded.last_activity)`, d.tables.chats)

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			chat.ID, chat.Subject, chat.IsGroup, chat.UnreadCount,
			chat.LastMessageID, formatTime(chat.LastActivity))
		return err
	}, "UpsertChat")
}

// TouchChat records outbound activity on a chat: it bumps last_message_id
// and last_activity without touching unread_count, which is owned by the
// inbound path. A new row starts with zero unread.
func (d *Database) TouchChat(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, subject, is_group, unread_count, last_message_id, last_activity)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = COALESCE(excluded.subject, subject),
			is_group = excluded.is_group,
			last_message_id = COALESCE(excluded.last_message_id, last_message_id),
			last_activity = MAX(last_activity, excluded.last_activity)`, d.tables.chats)

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			chat.ID, chat.Subject, chat.IsGroup,
			chat.LastMessageID, formatTime(chat.LastActivity))
		return err
	}, "TouchChat")
}

// UpsertGroup inserts or updates group metadata. created_by and created_at
// are written once and kept on later refreshes.
func (d *Database) UpsertGroup(ctx context.Context, group *models.Group) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, subject, created_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = COALESCE(excluded.subject, subject)`, d.tables.groups)

	createdAt := group.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			group.ID, group.Subject, group.CreatedBy, formatTime(createdAt))
		return err
	}, "UpsertGroup")
}

// ReplaceGroupMembers swaps a group's member set wholesale inside one
// transaction. After it returns, the stored membership is exactly the given
// slice regardless of what was there before.
func (d *Database) ReplaceGroupMembers(ctx context.Context, groupID string, members []models.GroupMember) error {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE group_id = ?`, d.tables.groupMembers)
	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (group_id, member_id, is_admin, joined_at)
		VALUES (?, ?, ?, ?)`, d.tables.groupMembers)

	return withRetry(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, deleteQuery, groupID); err != nil {
			return fmt.Errorf("failed to clear members: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, insertQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range members {
			joinedAt := m.JoinedAt
			if joinedAt.IsZero() {
				joinedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, groupID, m.MemberID, m.IsAdmin, formatTime(joinedAt)); err != nil {
				return fmt.Errorf("failed to insert member %s: %w", m.MemberID, err)
			}
		}

		return tx.Commit()
	}, "ReplaceGroupMembers")
}

// CreateChannel inserts a broadcast channel. Re-creating an existing id only
// refreshes the name.
func (d *Database) CreateChannel(ctx context.Context, channel *models.Channel) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name`, d.tables.channels)

	createdAt := channel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, channel.ID, channel.Name, formatTime(createdAt))
		return err
	}, "CreateChannel")
}

// AddChannelMember adds a contact to a channel. Adding the same contact twice
// is a no-op enforced by the unique (channel_id, contact_id) constraint.
func (d *Database) AddChannelMember(ctx context.Context, member *models.ChannelMember) error {
	query := fmt.Sprintf(`
		INSERT OR IGNORE INTO %s (channel_id, contact_id, joined_at)
		VALUES (?, ?, ?)`, d.tables.channelMembers)

	joinedAt := member.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, member.ChannelID, member.ContactID, formatTime(joinedAt))
		return err
	}, "AddChannelMember")
}

// RemoveChannelMember deletes one membership row. Removing an absent member
// is not an error.
func (d *Database) RemoveChannelMember(ctx context.Context, channelID, contactID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE channel_id = ? AND contact_id = ?`, d.tables.channelMembers)

	return withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, channelID, contactID)
		return err
	}, "RemoveChannelMember")
}

// GetContact returns one contact by identity, or nil when unknown.
func (d *Database) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	query := fmt.Sprintf(`
		SELECT id, name, push_name, is_known_user, last_seen
		FROM %s WHERE id = ?`, d.tables.contacts)

	var contact models.Contact
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&contact.ID, &contact.Name, &contact.PushName,
		&contact.IsKnownUser, &contact.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &contact, nil
}

// GetChat returns one chat by identity, or nil when unknown.
func (d *Database) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT id, subject, is_group, unread_count, last_message_id, last_activity
		FROM %s WHERE id = ?`, d.tables.chats)

	var chat models.Chat
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID, &chat.Subject, &chat.IsGroup, &chat.UnreadCount,
		&chat.LastMessageID, &chat.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

// GetChats lists all chats ordered by most recent activity first.
func (d *Database) GetChats(ctx context.Context) ([]models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT id, subject, is_group, unread_count, last_message_id, last_activity
		FROM %s ORDER BY last_activity DESC`, d.tables.chats)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.Subject, &chat.IsGroup,
			&chat.UnreadCount, &chat.LastMessageID, &chat.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// GetGroups lists all known groups.
func (d *Database) GetGroups(ctx context.Context) ([]models.Group, error) {
	query := fmt.Sprintf(`
		SELECT id, subject, created_by, created_at
		FROM %s ORDER BY created_at DESC`, d.tables.groups)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []models.Group
	for rows.Next() {
		var group models.Group
		if err := rows.Scan(&group.ID, &group.Subject, &group.CreatedBy, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// GetGroupMembers lists the current membership of one group.
func (d *Database) GetGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	query := fmt.Sprintf(`
		SELECT group_id, member_id, is_admin, joined_at
		FROM %s WHERE group_id = ? ORDER BY member_id`, d.tables.groupMembers)

	rows, err := d.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.MemberID, &m.IsAdmin, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetChannel returns one channel by id, or nil when unknown.
func (d *Database) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	query := fmt.Sprintf(`SELECT id, name, created_at FROM %s WHERE id = ?`, d.tables.channels)

	var channel models.Channel
	err := d.db.QueryRowContext(ctx, query, id).Scan(&channel.ID, &channel.Name, &channel.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &channel, nil
}

// GetChannels lists all broadcast channels.
func (d *Database) GetChannels(ctx context.Context) ([]models.Channel, error) {
	query := fmt.Sprintf(`SELECT id, name, created_at FROM %s ORDER BY created_at DESC`, d.tables.channels)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []models.Channel
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// GetChannelMembers resolves a channel's membership to full contact rows so
// the broadcast path gets display names without a second lookup. Members with
// no contact row yet come back with just the identity filled in.
func (d *Database) GetChannelMembers(ctx context.Context, channelID string) ([]models.Contact, error) {
	query := fmt.Sprintf(`
		SELECT m.contact_id, c.name, c.push_name, COALESCE(c.is_known_user, 1), c.last_seen
		FROM %s m
		LEFT JOIN %s c ON c.id = m.contact_id
		WHERE m.channel_id = ?
		ORDER BY m.joined_at, m.id`, d.tables.channelMembers, d.tables.contacts)

	rows, err := d.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []models.Contact
	for rows.Next() {
		var contact models.Contact
		if err := rows.Scan(&contact.ID, &contact.Name, &contact.PushName,
			&contact.IsKnownUser, &contact.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan channel member: %w", err)
		}
		members = append(members, contact)
	}
	return members, rows.Err()
}
