package service

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"timeline-planner/internal/model"
	"timeline-planner/internal/repository"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(days int) { c.now = c.now.AddDate(0, 0, days) }

type testEnv struct {
	store        *repository.SQLStore
	catalog      *TaskService
	occurrences  *OccurrenceService
	materializer *Materializer
	reconciler   *Reconciler
	clock        *fakeClock
}

// 2024-01-01 is a Monday.
var monday = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.Local)

func setupEnv(t *testing.T, horizonDays int) *testEnv {
	t.Helper()
	db, err := repository.NewDB(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := repository.NewStore(db)
	log := zerolog.Nop()
	clock := &fakeClock{now: monday}
	catalog := NewTaskService(store, log)
	catalog.now = clock.Now
	occs := NewOccurrenceService(store, log)
	mat := NewMaterializer(horizonDays, log)
	return &testEnv{
		store:        store,
		catalog:      catalog,
		occurrences:  occs,
		materializer: mat,
		reconciler:   NewReconciler(store, catalog, occs, mat, log, WithClock(clock.Now)),
		clock:        clock,
	}
}

func at(h, m int) civil.Time {
	return civil.Time{Hour: h, Minute: m}
}

func timePtr(h, m int) *civil.Time {
	t := at(h, m)
	return &t
}

func date(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2024, Month: m, Day: d}
}

func dailyTask(title string, scheduled *civil.Time, weekdays ...int) *model.Task {
	return &model.Task{
		Title:           title,
		DurationMinutes: 30,
		ScheduledTime:   scheduled,
		Daily:           &model.DailyDetails{Weekdays: weekdays},
	}
}

func singleTask(title string) *model.Task {
	return &model.Task{
		Title:           title,
		DurationMinutes: 45,
		Single:          &model.SingleDetails{},
	}
}

func (e *testEnv) allOccurrences(t *testing.T) []model.Occurrence {
	t.Helper()
	occs, err := e.store.SelectOccurrencesBetween(context.Background(), date(time.January, 1).AddDays(-365), date(time.January, 1).AddDays(730))
	require.NoError(t, err)
	return occs
}

func (e *testEnv) countFor(t *testing.T, taskID uint) int64 {
	t.Helper()
	n, err := e.store.CountOccurrencesByTask(context.Background(), taskID)
	require.NoError(t, err)
	return n
}
