// Package timefmt centralizes the handful of local-clock string
// formats used in log buffers and session status (spec.md §4.5, §5).
package timefmt

import (
	"fmt"
	"time"
)

// LogBufferClock formats a timestamp for the "[HH:MM:SS]" prefix of a
// per-client log buffer entry.
func LogBufferClock(t time.Time) string {
	return t.Format("15:04:05")
}

// LastEventTime formats a fire timestamp for the last_event_time
// status field: 12-hour clock with AM/PM marker.
func LastEventTime(t time.Time) string {
	return t.Format("03:04:05 PM")
}

// NextEventTime formats an upcoming fire timestamp for the
// next_event_time status field: weekday abbreviation plus 12-hour
// clock, no seconds.
func NextEventTime(t time.Time) string {
	return t.Format("Mon 03:04 PM")
}

// Countdown renders a duration until the next event as the
// "HH:MM:SS" string the UI displays as next_event_countdown. Negative
// durations clamp to zero.
func Countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
