package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogBufferAppendAndLines(t *testing.T) {
	buf := NewLogBuffer()
	at := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)
	buf.Append("c1", "echo hi", "hi\n", "", at)

	lines := buf.Lines("c1")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "[14:05:09]")
	assert.Contains(t, lines[0], "[echo hi]")
	assert.Contains(t, lines[0], "[STDOUT]hi\n[STDERR]")
}

func TestLogBufferTruncatesLongCommandSummary(t *testing.T) {
	buf := NewLogBuffer()
	long := strings.Repeat("x", 100)
	buf.Append("c1", long, "", "", time.Now())

	line := buf.Lines("c1")[0]
	assert.Contains(t, line, strings.Repeat("x", 80)+"…")
}

func TestLogBufferIsolatesByClient(t *testing.T) {
	buf := NewLogBuffer()
	buf.Append("c1", "a", "", "", time.Now())
	buf.Append("c2", "b", "", "", time.Now())

	assert.Len(t, buf.Lines("c1"), 1)
	assert.Len(t, buf.Lines("c2"), 1)
	assert.Empty(t, buf.Lines("unknown"))
}

func TestLogBufferLinesReturnsCopy(t *testing.T) {
	buf := NewLogBuffer()
	buf.Append("c1", "a", "", "", time.Now())
	lines := buf.Lines("c1")
	lines[0] = "mutated"
	assert.NotEqual(t, "mutated", buf.Lines("c1")[0])
}

func TestStatusSnapshotBeforeAnyEvent(t *testing.T) {
	s := NewStatus()
	snap := s.Snapshot(time.Now())
	assert.False(t, snap.HasNext)
	assert.False(t, snap.HasLast)
	assert.Equal(t, int64(0), snap.TotalClientWarnings)
}

func TestStatusSnapshotNextEventCountdown(t *testing.T) {
	s := NewStatus()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	s.SetNextEvent("Morning Cue", now.Add(90*time.Second))

	snap := s.Snapshot(now)
	assert.True(t, snap.HasNext)
	assert.Equal(t, "Morning Cue", snap.NextEventName)
	assert.Equal(t, "00:01:30", snap.NextEventCountdown)
}

func TestStatusSnapshotCountdownClampsPastEvents(t *testing.T) {
	s := NewStatus()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	s.SetNextEvent("Already Fired", now.Add(-time.Minute))

	snap := s.Snapshot(now)
	assert.Equal(t, "00:00:00", snap.NextEventCountdown)
}

func TestStatusRecordFirePopulatesLastEventOffset(t *testing.T) {
	s := NewStatus()
	target := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	actual := target.Add(3 * time.Second)
	s.RecordFire("Noon Spot", target, actual)

	snap := s.Snapshot(actual)
	assert.True(t, snap.HasLast)
	assert.Equal(t, "Noon Spot", snap.LastEventName)
	assert.Equal(t, 3.0, snap.LastEventOffset)
}

func TestStatusRecordWarningIncrements(t *testing.T) {
	s := NewStatus()
	s.RecordWarning()
	s.RecordWarning()

	snap := s.Snapshot(time.Now())
	assert.Equal(t, int64(2), snap.TotalClientWarnings)
}
