package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starscheduler/starscheduler/internal/model"
)

func TestExpandHoursAMPM(t *testing.T) {
	hours := expandHours([]model.HourRule{{Hour: 3, Period: "AM/PM"}})
	assert.True(t, hours[3])
	assert.True(t, hours[15])
	assert.Len(t, hours, 2)
}

func TestExpandHoursAMPMTwelve(t *testing.T) {
	hours := expandHours([]model.HourRule{{Hour: 12, Period: "AM/PM"}})
	assert.True(t, hours[0])
	assert.True(t, hours[12])
	assert.Len(t, hours, 2)
}

func TestExpandHoursPMTwelveIsNoon(t *testing.T) {
	hours := expandHours([]model.HourRule{{Hour: 12, Period: "PM"}})
	assert.True(t, hours[12])
	assert.Len(t, hours, 1)
}

func TestExpandHoursAMTwelveIsMidnight(t *testing.T) {
	hours := expandHours([]model.HourRule{{Hour: 12, Period: "AM"}})
	assert.True(t, hours[0])
	assert.Len(t, hours, 1)
}

func TestExpandHoursEmptyMeansEveryHour(t *testing.T) {
	hours := expandHours(nil)
	assert.Len(t, hours, 24)
}

func TestExpandMinutesEmptyBaseIsZero(t *testing.T) {
	minutes := expandMinutes(nil, 5)
	assert.True(t, minutes[5])
	assert.Len(t, minutes, 1)
}

func TestExpandMinutesWraps(t *testing.T) {
	minutes := expandMinutes([]int{50}, 20)
	assert.True(t, minutes[10])
}

// TestBuildSpecThreePMThirty exercises spec.md §8's concrete example:
// hours=[{3,PM}], ten_minute_bases=[30], minute_offset=0. The fire-one-
// minute-early shift only moves the hour back when the target minute
// is 0; here the target minute is 30, so only the minute shifts: the
// registered trigger is 15:29 daily.
func TestBuildSpecThreePMThirty(t *testing.T) {
	e := model.Event{
		DisplayName:    "Afternoon",
		Enabled:        true,
		Hours:          []model.HourRule{{Hour: 3, Period: "PM"}},
		TenMinuteBases: []int{30},
	}
	spec, err := BuildSpec(e)
	require.NoError(t, err)
	assert.Equal(t, "29 15 * * *", spec.Expression)
}

// TestBuildSpecOnTheHourShiftsHourBack covers the minute==0 wraparound
// case: a target of exactly HH:00 shifts back to (HH-1):59.
func TestBuildSpecOnTheHourShiftsHourBack(t *testing.T) {
	e := model.Event{
		DisplayName: "TopOfHour",
		Enabled:     true,
		Hours:       []model.HourRule{{Hour: 9, Period: "AM"}},
	}
	spec, err := BuildSpec(e)
	require.NoError(t, err)
	assert.Equal(t, "59 8 * * *", spec.Expression)
}

func TestWeekOfMonth(t *testing.T) {
	assert.Equal(t, 1, WeekOfMonth(3))
	assert.Equal(t, 1, WeekOfMonth(7))
	assert.Equal(t, 2, WeekOfMonth(8))
	assert.Equal(t, 2, WeekOfMonth(14))
	assert.Equal(t, 5, WeekOfMonth(31))
}

func TestAllowedWeeks(t *testing.T) {
	assert.True(t, Allowed(nil, 15))
	assert.True(t, Allowed([]int{2, 4}, 8))
	assert.False(t, Allowed([]int{2, 4}, 3))
	assert.False(t, Allowed([]int{1}, 10)) // week ordinal 2
}

func TestDaysAndMonthsPassthrough(t *testing.T) {
	e := model.Event{
		DisplayName: "WeeklyReport",
		Enabled:     true,
		Days:        []string{"Monday", "Friday"},
		Months:      []int{1, 6},
	}
	spec, err := BuildSpec(e)
	require.NoError(t, err)
	assert.Contains(t, spec.Expression, "mon,fri")
	assert.Contains(t, spec.Expression, "1,6")
}
