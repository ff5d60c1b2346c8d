package model

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// TaskType is the persisted tag that tells single and daily tasks apart.
type TaskType string

const (
	TaskTypeSingle TaskType = "single"
	TaskTypeDaily  TaskType = "daily"
)

// UnlimitedDurationMinutes is the length of an occurrence of an unlimited daily task.
const UnlimitedDurationMinutes = 24 * 60

// Task represents a planner item. Exactly one of Single and Daily is set;
// the task type is derived from which one it is.
type Task struct {
	ID              uint
	Title           string `validate:"required"`
	DurationMinutes int    `validate:"gte=0,lte=1440"`
	Description     string `validate:"max=300"`
	ScheduledTime   *civil.Time
	IsCompleted     bool
	CreatedAt       time.Time

	Single *SingleDetails
	Daily  *DailyDetails
}

// SingleDetails holds the fields specific to a one-off task.
type SingleDetails struct {
	ExecutionDate *time.Time
}

// DailyDetails holds the recurrence rule of a daily task.
// Weekdays use Monday=0 .. Sunday=6.
type DailyDetails struct {
	Weekdays    []int `validate:"required,min=1,max=7,dive,gte=0,lte=6"`
	IsUnlimited bool
}

// Type returns the task type, or an empty string for a task with no variant.
func (t Task) Type() TaskType {
	switch {
	case t.Daily != nil:
		return TaskTypeDaily
	case t.Single != nil:
		return TaskTypeSingle
	default:
		return ""
	}
}

func (t Task) IsRecurring() bool {
	return t.Daily != nil
}

func (t Task) IsUnlimited() bool {
	return t.Daily != nil && t.Daily.IsUnlimited
}

// OccurrenceDuration is the duration copied onto occurrences of the task.
func (t Task) OccurrenceDuration() int {
	if t.IsUnlimited() {
		return UnlimitedDurationMinutes
	}
	return t.DurationMinutes
}

// HasWeekday reports whether the daily rule includes the given weekday index.
func (d DailyDetails) HasWeekday(idx int) bool {
	for _, wd := range d.Weekdays {
		if wd == idx {
			return true
		}
	}
	return false
}

// WeekdayIndex returns the weekday of d with Monday=0 .. Sunday=6.
func WeekdayIndex(d civil.Date) int {
	return (int(d.In(time.UTC).Weekday()) + 6) % 7
}

// NormalizeWeekdays sorts the weekday indices and drops duplicates.
func NormalizeWeekdays(days []int) []int {
	out := make([]int, 0, len(days))
	seen := make(map[int]struct{}, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
