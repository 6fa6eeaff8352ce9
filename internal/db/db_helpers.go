package db

import (
	"database/sql"
	"time"
)

// TimeFormat is the layout SQLite's datetime('now') produces
const TimeFormat = "2006-01-02 15:04:05"

// The sqlite driver returns DATETIME columns as time.Time, which
// database/sql renders as RFC 3339 when scanned into a string.
var timeLayouts = []string{TimeFormat, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"}

// ParseTime parses a time read back from SQLite in any of the forms the
// driver produces. Unparseable input yields the zero time.
func ParseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ParseNullTime parses a nullable time string from SQLite
func ParseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	return ParseTime(ns.String)
}

// NullTimeString converts a time to a nullable string for SQLite storage
func NullTimeString(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(TimeFormat)
}

// TimeString converts a time to its UTC storage form
func TimeString(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
