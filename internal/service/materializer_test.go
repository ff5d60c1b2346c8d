package service

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-planner/internal/model"
)

func TestMaterializer_Horizon(t *testing.T) {
	m := NewMaterializer(0, zerolog.Nop())
	assert.Equal(t, DefaultHorizonDays, m.HorizonDays())

	from, until := m.Horizon(date(time.January, 1))
	assert.Equal(t, date(time.January, 1), from)
	assert.Equal(t, date(time.January, 31), until)

	from, until = NewMaterializer(7, zerolog.Nop()).Horizon(date(time.February, 26))
	assert.Equal(t, date(time.February, 26), from)
	assert.Equal(t, date(time.March, 4), until)
}

func TestMaterializer_DatesMatchWeekdays(t *testing.T) {
	m := NewMaterializer(DefaultHorizonDays, zerolog.Nop())
	weekdays := []int{0, 2, 4}
	from, until := m.Horizon(date(time.January, 1))

	dates, err := m.Dates(weekdays, from, until)
	require.NoError(t, err)

	var want []civil.Date
	for d := from; !d.After(until); d = d.AddDays(1) {
		wd := model.WeekdayIndex(d)
		if wd == 0 || wd == 2 || wd == 4 {
			want = append(want, d)
		}
	}
	assert.Equal(t, want, dates)
	assert.Len(t, dates, 14)
	assert.Equal(t, date(time.January, 31), dates[len(dates)-1])
}

func TestMaterializer_DatesStartMidWeek(t *testing.T) {
	m := NewMaterializer(DefaultHorizonDays, zerolog.Nop())

	// 2024-01-03 is a Wednesday; Monday must not be pulled in before it.
	dates, err := m.Dates([]int{0}, date(time.January, 3), date(time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date(time.January, 8)}, dates)

	dates, err = m.Dates([]int{6}, date(time.January, 1), date(time.January, 6))
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestMaterializer_DatesEdgeCases(t *testing.T) {
	m := NewMaterializer(DefaultHorizonDays, zerolog.Nop())

	dates, err := m.Dates(nil, date(time.January, 1), date(time.January, 31))
	require.NoError(t, err)
	assert.Empty(t, dates)

	dates, err = m.Dates([]int{0}, date(time.January, 10), date(time.January, 1))
	require.NoError(t, err)
	assert.Empty(t, dates)

	_, err = m.Dates([]int{9}, date(time.January, 1), date(time.January, 31))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMaterializer_AcrossLeapDay(t *testing.T) {
	m := NewMaterializer(DefaultHorizonDays, zerolog.Nop())

	// 2024-02-29 is a Thursday.
	dates, err := m.Dates([]int{3}, date(time.February, 26), date(time.March, 7))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date(time.February, 29), date(time.March, 7)}, dates)
}

func TestMaterializer_ExpandWithoutTimeCreatesNothing(t *testing.T) {
	env := setupEnv(t, DefaultHorizonDays)
	ctx := context.Background()

	task := dailyTask("Floating", nil, 0, 1, 2, 3, 4, 5, 6)
	_, err := env.catalog.AddDailyTask(ctx, task)
	require.NoError(t, err)

	n, err := env.materializer.Expand(ctx, env.occurrences, task, date(time.January, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.countFor(t, task.ID))
}

func TestMaterializer_RejectsSingleTask(t *testing.T) {
	env := setupEnv(t, DefaultHorizonDays)
	ctx := context.Background()

	task := singleTask("once")
	_, err := env.catalog.AddSingleTask(ctx, task)
	require.NoError(t, err)

	_, err = env.materializer.Materialize(ctx, env.occurrences, task, at(9, 0), date(time.January, 1), date(time.January, 31))
	assert.ErrorIs(t, err, model.ErrValidation)
}
