package migrations

import (
	"fmt"
	"regexp"
	"strings"
)

// Table prefixes are caller-assigned so multiple tenants can co-locate in a
// single database file. The DDL is templated at runtime rather than shipped
// as static migration files because every table name carries the prefix.

var prefixPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidatePrefix rejects prefixes that could not be used as an identifier
// fragment. Prefixes are interpolated into DDL, so they are restricted to
// identifier characters.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid table prefix %q: must match %s", prefix, prefixPattern.String())
	}
	return nil
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS {{prefix}}_contacts (
    id TEXT PRIMARY KEY,
    name TEXT,
    push_name TEXT,
    is_known_user INTEGER NOT NULL DEFAULT 1,
    last_seen TIMESTAMP
);

CREATE TABLE IF NOT EXISTS {{prefix}}_chats (
    id TEXT PRIMARY KEY,
    subject TEXT,
    is_group INTEGER NOT NULL DEFAULT 0,
    unread_count INTEGER NOT NULL DEFAULT 0,
    last_message_id TEXT,
    last_activity TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS {{prefix}}_groups (
    id TEXT PRIMARY KEY,
    subject TEXT,
    created_by TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS {{prefix}}_group_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    is_admin INTEGER NOT NULL DEFAULT 0,
    joined_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_{{prefix}}_group_members_group
    ON {{prefix}}_group_members(group_id);

CREATE TABLE IF NOT EXISTS {{prefix}}_media (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name TEXT NOT NULL,
    file_path TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS {{prefix}}_messages (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL,
    sender_id TEXT,
    from_me INTEGER NOT NULL DEFAULT 0,
    body TEXT,
    msg_type TEXT NOT NULL DEFAULT 'text',
    timestamp TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'received',
    media_id INTEGER REFERENCES {{prefix}}_media(id),
    links TEXT,
    quoted_msg_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_{{prefix}}_messages_chat_ts
    ON {{prefix}}_messages(chat_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS {{prefix}}_channels (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS {{prefix}}_channel_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    channel_id TEXT NOT NULL,
    contact_id TEXT NOT NULL,
    joined_at TIMESTAMP NOT NULL,
    UNIQUE(channel_id, contact_id)
);

CREATE TABLE IF NOT EXISTS {{prefix}}_channel_messages (
    id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL,
    sender_id TEXT,
    body TEXT,
    msg_type TEXT NOT NULL DEFAULT 'text',
    timestamp TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'sent'
);

CREATE INDEX IF NOT EXISTS idx_{{prefix}}_channel_messages_channel_ts
    ON {{prefix}}_channel_messages(channel_id, timestamp DESC);
`

// Schema returns the full DDL for one tenant prefix.
func Schema(prefix string) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	return strings.ReplaceAll(schemaTemplate, "{{prefix}}", prefix), nil
}
