package privacy

import (
	"strings"
)

// MaskIdentity masks a protocol identity for logging, keeping the last four
// characters of the user part and the full domain so log lines stay
// correlatable without exposing the address.
// Example: "1234567890@c.us" -> "******7890@c.us"
func MaskIdentity(id string) string {
	if id == "" {
		return ""
	}

	user := id
	domain := ""
	if at := strings.IndexByte(id, '@'); at >= 0 {
		user = id[:at]
		domain = id[at:]
	}

	if len(user) <= 4 {
		return strings.Repeat("*", len(user)) + domain
	}
	return strings.Repeat("*", len(user)-4) + user[len(user)-4:] + domain
}

// MaskMessageID masks a protocol message id, keeping the last four
// characters for debugging.
func MaskMessageID(id string) string {
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}
