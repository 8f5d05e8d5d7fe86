// Package observability implements the Observability Surface contract
// (spec.md §4.6): next/last event metadata, per-client log buffers,
// and the total_client_warnings counter.
package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/starscheduler/starscheduler/internal/metrics"
	"github.com/starscheduler/starscheduler/internal/util/timefmt"
)

// LogBuffer is a per-client, append-only, in-memory result log
// (spec.md §4.5). No eviction within the process lifetime.
type LogBuffer struct {
	mu      sync.Mutex
	entries map[string][]string
}

// NewLogBuffer constructs an empty LogBuffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{entries: make(map[string][]string)}
}

// Append records one driver result for clientID in the
// "[HH:MM:SS] [COMMAND] <summary>\n[STDOUT]…[STDERR]…" format.
func (b *LogBuffer) Append(clientID, command, stdout, stderr string, at time.Time) {
	summary := command
	if len(summary) > 80 {
		summary = summary[:80] + "…"
	}
	line := fmt.Sprintf("[%s] [%s] %s\n[STDOUT]%s[STDERR]%s", timefmt.LogBufferClock(at), command, summary, stdout, stderr)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[clientID] = append(b.entries[clientID], line)
}

// Lines returns a copy of clientID's log lines, oldest first.
func (b *LogBuffer) Lines(clientID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.entries[clientID]...)
}

// Status is the full snapshot exposed to the (external) management
// UI, guarded as one struct under a single RWMutex
// (spec.md §5's "simpler: guard the whole struct" resolution).
type Status struct {
	mu sync.RWMutex

	nextEventName string
	nextEventTime time.Time
	hasNext       bool

	lastEventName   string
	lastEventTime   time.Time
	lastEventOffset time.Duration
	hasLast         bool

	totalClientWarnings int64
}

// NewStatus constructs an empty Status.
func NewStatus() *Status {
	return &Status{}
}

// SetNextEvent records the next scheduled firing.
func (s *Status) SetNextEvent(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventName = name
	s.nextEventTime = at
	s.hasNext = true
}

// RecordFire records a completed firing's observability fields:
// last_event_name, last_event_time, and last_event_offset (actual
// minus target, signed).
func (s *Status) RecordFire(name string, target, actual time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEventName = name
	s.lastEventTime = actual
	s.lastEventOffset = actual.Sub(target)
	s.hasLast = true
}

// RecordWarning increments total_client_warnings. Per the Open
// Question resolution, this single call site is used both for
// connect failures and for non-empty stderr results, so the counter
// counts both uniformly.
func (s *Status) RecordWarning() {
	s.mu.Lock()
	s.totalClientWarnings++
	s.mu.Unlock()
	metrics.ClientWarningsTotal.Inc()
}

// Snapshot is the read-only view returned to callers.
type Snapshot struct {
	NextEventName      string
	NextEventTime      string
	NextEventDT        time.Time
	NextEventCountdown string
	HasNext            bool

	LastEventName   string
	LastEventTime   string
	LastEventOffset float64 // seconds
	HasLast         bool

	TotalClientWarnings int64
}

// Snapshot computes next_event_countdown as a pure function of
// next_event_dt - now, exactly as spec.md §4.4 requires.
func (s *Status) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{
		HasNext:             s.hasNext,
		HasLast:             s.hasLast,
		TotalClientWarnings: s.totalClientWarnings,
	}
	if s.hasNext {
		out.NextEventName = s.nextEventName
		out.NextEventTime = timefmt.NextEventTime(s.nextEventTime)
		out.NextEventDT = s.nextEventTime
		out.NextEventCountdown = timefmt.Countdown(s.nextEventTime.Sub(now))
	}
	if s.hasLast {
		out.LastEventName = s.lastEventName
		out.LastEventTime = timefmt.LastEventTime(s.lastEventTime)
		out.LastEventOffset = s.lastEventOffset.Seconds()
	}
	return out
}
