package models

import (
	"time"
)

// StoredMedia describes one binary asset persisted to content storage.
// Rows are owned exclusively by the media store; messages reference them
// through Message.MediaID.
type StoredMedia struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
