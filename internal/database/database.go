package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"whatsgate/internal/migrations"
	"whatsgate/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the persistence backend for the directory read-model: contacts,
// chats, groups and their members, channels and their members, messages,
// channel history, and stored-media rows. Every table carries the
// caller-assigned tenant prefix.
type Database struct {
	db     *sql.DB
	tables tableNames
}

type tableNames struct {
	contacts        string
	chats           string
	groups          string
	groupMembers    string
	media           string
	messages        string
	channels        string
	channelMembers  string
	channelMessages string
}

func tablesFor(prefix string) tableNames {
	return tableNames{
		contacts:        prefix + "_contacts",
		chats:           prefix + "_chats",
		groups:          prefix + "_groups",
		groupMembers:    prefix + "_group_members",
		media:           prefix + "_media",
		messages:        prefix + "_messages",
		channels:        prefix + "_channels",
		channelMembers:  prefix + "_channel_members",
		channelMessages: prefix + "_channel_messages",
	}
}

// New opens (creating if needed) the database at dbPath and ensures the
// schema for the given table prefix exists.
func New(dbPath, tablePrefix string) (*Database, error) {
	if err := security.ValidateDataPath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if err := migrations.ValidatePrefix(tablePrefix); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.Schema(tablePrefix)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to build schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db, tables: tablesFor(tablePrefix)}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
