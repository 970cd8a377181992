package repository

import (
	"database/sql"
	"strings"
	"time"
)

// timeLayout is a fixed-width UTC timestamp so that text comparison and
// ORDER BY agree with chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a sql.NullString into a *time.Time.
// Returns nil if the value is NULL, empty, or fails to parse.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableTimeToString converts a *time.Time to a storage value.
// Returns nil (SQL NULL) if the pointer is nil.
func nullableTimeToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullableIntToValue converts a *int to a storage value.
// Returns nil (SQL NULL) if the pointer is nil.
func nullableIntToValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullableString converts a *string to a storage value.
func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// boolToInt converts a Go bool to an integer (0 or 1) for storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// intToBool converts a stored integer (0 or 1) to a Go bool.
func intToBool(i int) bool {
	return i != 0
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
