package services

import (
	"strings"
	"time"
)

// Accepted deadline formats. Date-only values are read in the server zone.
var deadlineLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDeadline parses a project deadline and truncates it to the start of
// its calendar day in loc. ok is false for empty or malformed values.
func ParseDeadline(value string, loc *time.Location) (day time.Time, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return StartOfDay(t, loc), true
		}
	}
	return time.Time{}, false
}

// StartOfDay returns midnight of t's calendar day in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DeadlinePassed reports whether the deadline's day is strictly before the
// day containing now. ok is false when the deadline cannot be parsed.
func DeadlinePassed(deadline string, now time.Time, loc *time.Location) (passed bool, ok bool) {
	day, ok := ParseDeadline(deadline, loc)
	if !ok {
		return false, false
	}
	return day.Before(StartOfDay(now, loc)), true
}
