package expiration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the timestamp format the membership API reads and writes.
const Layout = "2006-01-02 15:04:05"

const (
	zeroDate = "0000-00-00 00:00:00"
	never    = "Never"
)

var ErrUnsupportedPeriod = errors.New("unsupported billing period")

// Format renders t in UTC using Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a remote timestamp. Sentinels and empty values fail.
func Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == zeroDate || strings.EqualFold(raw, never) {
		return time.Time{}, fmt.Errorf("no expiration: %q", raw)
	}
	if t, err := time.ParseInLocation(Layout, raw, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable expiration %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// IsValid reports whether raw is a real expiration strictly after now.
func IsValid(raw string, now time.Time) bool {
	t, err := Parse(raw)
	if err != nil {
		return false
	}
	return t.After(now)
}

// FromPeriodEnd converts a billing period end in epoch seconds.
func FromPeriodEnd(epochSeconds int64) time.Time {
	return time.Unix(epochSeconds, 0).UTC()
}

// Default adds count periods of unit to createdAt. Months and years keep the
// day of month and clamp to the last day when the target month is shorter.
func Default(createdAt time.Time, unit string, count int) (time.Time, error) {
	if count <= 0 {
		return time.Time{}, fmt.Errorf("%w: count %d", ErrUnsupportedPeriod, count)
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "day", "days":
		return createdAt.AddDate(0, 0, count), nil
	case "week", "weeks":
		return createdAt.AddDate(0, 0, 7*count), nil
	case "month", "months":
		return addMonths(createdAt, count), nil
	case "year", "years":
		return addMonths(createdAt, 12*count), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedPeriod, unit)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
