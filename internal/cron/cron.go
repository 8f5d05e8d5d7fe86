// Package cron translates an Event's hour/minute/day/month/week rules
// into a cron-trigger schedule (spec.md §4.4). BuildSpec is a pure
// function over model.Event; week-of-month is not expressible as a
// cron field and is checked separately at fire time via Allowed.
package cron

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/starscheduler/starscheduler/internal/model"
)

var dayAbbrev = map[string]string{
	"Sunday":    "sun",
	"Monday":    "mon",
	"Tuesday":   "tue",
	"Wednesday": "wed",
	"Thursday":  "thu",
	"Friday":    "fri",
	"Saturday":  "sat",
}

// expandHours turns an Event's Hours rules into the set of 0-23
// values the job should fire in, per spec.md §4.4's AM/PM expansion
// table. An empty rule list means "every hour".
func expandHours(rules []model.HourRule) map[int]bool {
	hours := make(map[int]bool)
	for _, r := range rules {
		switch r.Period {
		case "AM/PM":
			hours[r.Hour%12] = true
			if r.Hour == 12 {
				hours[12] = true
			} else {
				hours[(r.Hour%12)+12] = true
			}
		case "PM":
			if r.Hour != 12 {
				hours[r.Hour+12] = true
			} else {
				hours[12] = true
			}
		case "AM":
			if r.Hour == 12 {
				hours[0] = true
			} else {
				hours[r.Hour] = true
			}
		default:
			hours[r.Hour] = true
		}
	}
	if len(hours) == 0 {
		for h := 0; h < 24; h++ {
			hours[h] = true
		}
	}
	return hours
}

// expandMinutes turns TenMinuteBases + MinuteOffset into the set of
// 0-59 minutes the job targets. An empty base list behaves as {0}.
func expandMinutes(bases []int, offset int) map[int]bool {
	if len(bases) == 0 {
		bases = []int{0}
	}
	minutes := make(map[int]bool, len(bases))
	for _, b := range bases {
		minutes[((b+offset)%60+60)%60] = true
	}
	return minutes
}

// Spec is the assembled 5-field cron expression plus the parsed
// robfig/cron/v3 schedule it produces.
type Spec struct {
	Expression string
	Schedule   robfigcron.Schedule
}

// BuildSpec implements spec.md §4.4's translation rules exactly,
// including the "fire one minute early" shift: both the minute and
// (for minute==0 only) the hour fields are shifted back by one so the
// dispatch planner has setup time before the nominal target.
func BuildSpec(e model.Event) (Spec, error) {
	hours := expandHours(e.Hours)
	minutes := expandMinutes(e.TenMinuteBases, e.MinuteOffset)

	adjustedMinutes := make(map[int]bool, len(minutes))
	for m := range minutes {
		adjustedMinutes[((m-1)%60+60)%60] = true
	}

	adjustedHours := make(map[int]bool)
	for m := range minutes {
		for h := range hours {
			if m == 0 {
				adjustedHours[((h-1)%24+24)%24] = true
			} else {
				adjustedHours[h] = true
			}
		}
	}
	if len(adjustedHours) == 0 {
		adjustedHours = hours
	}

	dayOfWeek := "*"
	if len(e.Days) > 0 {
		parts := make([]string, 0, len(e.Days))
		for _, d := range e.Days {
			if abbr, ok := dayAbbrev[d]; ok {
				parts = append(parts, abbr)
			} else {
				parts = append(parts, strings.ToLower(d))
			}
		}
		dayOfWeek = strings.Join(parts, ",")
	}

	month := "*"
	if len(e.Months) > 0 {
		parts := make([]string, 0, len(e.Months))
		for _, m := range e.Months {
			parts = append(parts, strconv.Itoa(m))
		}
		month = strings.Join(parts, ",")
	}

	expr := fmt.Sprintf("%s %s * %s %s",
		joinSortedInts(adjustedMinutes),
		joinSortedInts(adjustedHours),
		month,
		dayOfWeek,
	)

	schedule, err := robfigcron.ParseStandard(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("cron: build spec for %q: %w", e.DisplayName, err)
	}
	return Spec{Expression: expr, Schedule: schedule}, nil
}

func joinSortedInts(set map[int]bool) string {
	vals := make([]int, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// WeekOfMonth returns the 1-based week ordinal of a day-of-month, per
// spec.md §4.4: ((day-1) div 7) + 1.
func WeekOfMonth(day int) int {
	return ((day - 1) / 7) + 1
}

// Allowed reports whether day (1-31) is permitted by weeks. An empty
// weeks list allows every day.
func Allowed(weeks []int, day int) bool {
	if len(weeks) == 0 {
		return true
	}
	ord := WeekOfMonth(day)
	for _, w := range weeks {
		if w == ord {
			return true
		}
	}
	return false
}
