package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func TestTask_Type(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want TaskType
	}{
		{name: "single", task: Task{Single: &SingleDetails{}}, want: TaskTypeSingle},
		{name: "daily", task: Task{Daily: &DailyDetails{Weekdays: []int{0}}}, want: TaskTypeDaily},
		{name: "no variant", task: Task{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Type())
			assert.Equal(t, tt.want == TaskTypeDaily, tt.task.IsRecurring())
		})
	}
}

func TestTask_OccurrenceDuration(t *testing.T) {
	bounded := Task{DurationMinutes: 45, Daily: &DailyDetails{Weekdays: []int{1}}}
	unlimited := Task{DurationMinutes: 45, Daily: &DailyDetails{Weekdays: []int{1}, IsUnlimited: true}}
	single := Task{DurationMinutes: 30, Single: &SingleDetails{}}

	assert.Equal(t, 45, bounded.OccurrenceDuration())
	assert.Equal(t, UnlimitedDurationMinutes, unlimited.OccurrenceDuration())
	assert.Equal(t, 30, single.OccurrenceDuration())
}

func TestWeekdayIndex(t *testing.T) {
	// 2024-01-01 is a Monday.
	monday := civil.Date{Year: 2024, Month: time.January, Day: 1}
	for i := 0; i < 7; i++ {
		assert.Equal(t, i, WeekdayIndex(monday.AddDays(i)))
	}
}

func TestNormalizeWeekdays(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, NormalizeWeekdays([]int{4, 0, 2, 4, 0}))
	assert.Empty(t, NormalizeWeekdays(nil))
}

func TestDailyDetails_HasWeekday(t *testing.T) {
	d := DailyDetails{Weekdays: []int{0, 2, 4}}
	assert.True(t, d.HasWeekday(2))
	assert.False(t, d.HasWeekday(3))
}

func TestOccurrence_StartEnd(t *testing.T) {
	occ := Occurrence{
		Date:            civil.Date{Year: 2024, Month: time.March, Day: 5},
		StartTime:       civil.Time{Hour: 9, Minute: 30},
		DurationMinutes: 90,
	}

	start := occ.Start(time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.March, 5, 11, 0, 0, 0, time.UTC), occ.End(time.UTC))
	assert.False(t, occ.IsAllDay())
	assert.Equal(t, 570, MinuteOfDay(occ.StartTime))

	occ.DurationMinutes = UnlimitedDurationMinutes
	assert.True(t, occ.IsAllDay())
}

func TestErrors_Is(t *testing.T) {
	var err error = &ValidationError{Field: "Title", Reason: "is required"}
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))

	err = fmt.Errorf("load: %w", &NotFoundError{Entity: "task", ID: 7})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.EqualError(t, err, "load: task 7 not found")

	cause := errors.New("disk I/O error")
	err = &StoreError{Op: "create task", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "create task: disk I/O error")
}
