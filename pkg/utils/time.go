package utils

import "time"

// timestampLayouts are the formats the storage API emits: RFC 3339, and
// naive ISO 8601 timestamps with or without fractional seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a server timestamp. Naive timestamps are read as UTC.
// Unparseable values yield the zero time.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
