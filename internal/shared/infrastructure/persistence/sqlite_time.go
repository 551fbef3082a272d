package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLite has no native timestamp type; timestamps are stored as RFC 3339
// strings in UTC so lexical ordering matches chronological ordering.

// FormatSQLiteTime renders a timestamp for storage.
func FormatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatSQLiteTimePtr renders an optional timestamp for storage.
func FormatSQLiteTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatSQLiteTime(*t), Valid: true}
}

// ParseSQLiteTime parses a stored timestamp.
func ParseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// ParseSQLiteTimePtr parses an optional stored timestamp.
func ParseSQLiteTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := ParseSQLiteTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
