package database

import (
	"database/sql"
	"time"
)

// TimeLayout is how SQLite stores instants: UTC with fixed-width
// nanoseconds so that text comparison orders correctly.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DateLayout is how calendar dates are stored.
const DateLayout = "2006-01-02"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullTime renders an optional instant, nil for NULL.
func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime reads a TimeLayout value.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// ParseNullTime reads an optional TimeLayout column.
func ParseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
