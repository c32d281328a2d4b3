package database

import (
	"time"
)

// All timestamps are stored in one canonical representation: UTC, millisecond
// precision, fixed width. Fixed width keeps lexicographic comparison (used by
// the monotonic last_activity upsert) equivalent to chronological order.
const storedTimeLayout = "2006-01-02 15:04:05.000+00:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// formatTimePtr maps nil (or zero) times to a SQL NULL.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}
