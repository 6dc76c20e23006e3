package utils

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ISO8601 is the layout used for every timestamp the engine emits.
const ISO8601 = "2006-01-02T15:04:05Z07:00"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseISO8601 parses an ISO-8601 timestamp. A trailing "Z" is accepted as UTC and
// timestamps without an offset are read as UTC.
func ParseISO8601(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if strings.HasSuffix(value, "Z") {
		value = strings.TrimSuffix(value, "Z") + "+00:00"
	}
	var lastErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse time: %w", lastErr)
}

// FormatISO8601 renders t in UTC with second precision.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// DurationMinutes returns the absolute distance between two timestamps in minutes.
func DurationMinutes(start, end time.Time) float64 {
	return math.Abs(end.Sub(start).Minutes())
}
