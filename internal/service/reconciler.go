package service

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"timeline-planner/internal/model"
	"timeline-planner/internal/repository"
)

// PlaceOutcome tells whether placing a task created occurrences or moved existing ones.
type PlaceOutcome string

const (
	PlaceCreated PlaceOutcome = "created"
	PlaceMoved   PlaceOutcome = "moved"
)

// PlaceResult describes the effect of PlaceTask.
type PlaceResult struct {
	Outcome  PlaceOutcome
	Affected int
}

// Reconciler applies user actions to the catalog and the schedule so both stay consistent.
// Every method runs as one store transaction.
type Reconciler struct {
	store        repository.Store
	catalog      *TaskService
	occurrences  *OccurrenceService
	materializer *Materializer
	log          zerolog.Logger
	now          func() time.Time
}

type ReconcilerOption func(*Reconciler)

// WithClock overrides the source of "today".
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

func NewReconciler(store repository.Store, catalog *TaskService, occurrences *OccurrenceService, materializer *Materializer, log zerolog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:        store,
		catalog:      catalog,
		occurrences:  occurrences,
		materializer: materializer,
		log:          log.With().Str("component", "reconciler").Logger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today is the current local date as seen by the reconciler.
func (r *Reconciler) Today() civil.Date {
	return civil.DateOf(r.now())
}

func (r *Reconciler) inTx(ctx context.Context, fn func(catalog *TaskService, occs *OccurrenceService) error) error {
	return r.store.Transaction(ctx, func(tx repository.Store) error {
		return fn(r.catalog.withStore(tx), r.occurrences.withStore(tx))
	})
}

func (r *Reconciler) CreateSingleTask(ctx context.Context, task *model.Task) (uint, error) {
	if task != nil && task.CreatedAt.IsZero() {
		task.CreatedAt = r.now()
	}
	return r.catalog.AddSingleTask(ctx, task)
}

// CreateDailyTask stores the task and, when it has a scheduled time, materializes
// it over the horizon. Either both happen or neither does.
func (r *Reconciler) CreateDailyTask(ctx context.Context, task *model.Task) (uint, int, error) {
	if task != nil && task.CreatedAt.IsZero() {
		task.CreatedAt = r.now()
	}
	var id uint
	var created int
	err := r.inTx(ctx, func(catalog *TaskService, occs *OccurrenceService) error {
		var err error
		if id, err = catalog.AddDailyTask(ctx, task); err != nil {
			return err
		}
		created, err = r.materializer.Expand(ctx, occs, task, r.Today())
		return err
	})
	if err != nil {
		if task != nil {
			task.ID = 0
		}
		return 0, 0, err
	}
	return id, created, nil
}

// PlaceTask puts a task on the timeline at date and time. An unscheduled daily
// task is expanded over the horizon from today at that time; an unscheduled
// single task gets one occurrence. A scheduled task is moved instead: all
// occurrences of a daily task take the new time, a single task's occurrence
// takes the new date and time.
func (r *Reconciler) PlaceTask(ctx context.Context, taskID uint, date civil.Date, at civil.Time) (PlaceResult, error) {
	if err := validateDate(date); err != nil {
		return PlaceResult{}, err
	}
	if err := validateClock(at); err != nil {
		return PlaceResult{}, err
	}

	var res PlaceResult
	err := r.inTx(ctx, func(catalog *TaskService, occs *OccurrenceService) error {
		task, err := catalog.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		scheduled, err := occs.IsTaskScheduled(ctx, taskID)
		if err != nil {
			return err
		}

		if !scheduled {
			res.Outcome = PlaceCreated
			if task.IsRecurring() {
				from, until := r.materializer.Horizon(r.Today())
				res.Affected, err = r.materializer.Materialize(ctx, occs, task, at, from, until)
				return err
			}
			if _, err := occs.insertFor(ctx, task, date, at); err != nil {
				return err
			}
			res.Affected = 1
			return nil
		}

		res.Outcome = PlaceMoved
		if task.IsRecurring() {
			n, err := occs.UpdateOccurrenceTime(ctx, taskID, at, nil)
			res.Affected = int(n)
			return err
		}
		n, err := occs.UpdateOccurrenceTime(ctx, taskID, at, &date)
		if err != nil {
			return err
		}
		if n == 0 {
			n, err = occs.store.MoveLatestOccurrence(ctx, taskID, date, at)
			if err != nil {
				return err
			}
		}
		res.Affected = int(n)
		return nil
	})
	if err != nil {
		return PlaceResult{}, err
	}

	r.log.Info().
		Uint("task_id", taskID).
		Str("date", date.String()).
		Str("start", at.String()).
		Str("outcome", string(res.Outcome)).
		Int("affected", res.Affected).
		Msg("task placed")
	return res, nil
}

// UnscheduleOccurrence removes one dated occurrence; other dates of the task stay.
func (r *Reconciler) UnscheduleOccurrence(ctx context.Context, occurrenceID uint) error {
	return r.occurrences.RemoveOccurrence(ctx, occurrenceID)
}

// UnscheduleTask removes every occurrence of the task.
func (r *Reconciler) UnscheduleTask(ctx context.Context, taskID uint) (int64, error) {
	var n int64
	err := r.inTx(ctx, func(_ *TaskService, occs *OccurrenceService) error {
		var err error
		n, err = occs.RemoveAllOccurrencesOfTask(ctx, taskID)
		return err
	})
	return n, err
}

func (r *Reconciler) DeleteTask(ctx context.Context, taskID uint) error {
	return r.catalog.RemoveTask(ctx, taskID)
}

// EditTask updates the task, moves all of its occurrences to the new scheduled
// time if there is one, and refreshes the title, duration and description copied
// onto them. Weekday changes do not add or remove existing occurrences.
func (r *Reconciler) EditTask(ctx context.Context, task *model.Task) error {
	err := r.inTx(ctx, func(catalog *TaskService, occs *OccurrenceService) error {
		if err := catalog.UpdateTask(ctx, task); err != nil {
			return err
		}
		if task.ScheduledTime != nil {
			if _, err := occs.UpdateOccurrenceTime(ctx, task.ID, *task.ScheduledTime, nil); err != nil {
				return err
			}
		}
		_, err := occs.store.UpdateOccurrenceDetails(ctx, task.ID, task.Title, task.OccurrenceDuration(), task.Description)
		return err
	})
	if err != nil {
		return err
	}
	r.log.Info().Uint("task_id", task.ID).Msg("task edited")
	return nil
}

func (r *Reconciler) SetTaskCompleted(ctx context.Context, taskID uint, completed bool) error {
	return r.catalog.SetTaskCompleted(ctx, taskID, completed)
}

func (r *Reconciler) SetOccurrenceCompleted(ctx context.Context, occurrenceID uint, completed bool) error {
	return r.occurrences.SetOccurrenceCompleted(ctx, occurrenceID, completed)
}

// TopUpHorizon extends every scheduled daily task so that it is materialized up
// to today+horizon, continuing after its latest occurrence at that occurrence's
// time. It returns the number of occurrences created.
func (r *Reconciler) TopUpHorizon(ctx context.Context) (int, error) {
	today := r.Today()
	_, until := r.materializer.Horizon(today)

	total := 0
	err := r.inTx(ctx, func(catalog *TaskService, occs *OccurrenceService) error {
		tasks, err := catalog.ListTasks(ctx)
		if err != nil {
			return err
		}
		for i := range tasks {
			task := &tasks[i]
			if !task.IsRecurring() {
				continue
			}
			latest, err := occs.store.SelectLatestOccurrence(ctx, task.ID)
			if err != nil {
				return err
			}
			if latest == nil {
				continue
			}
			from := latest.Date.AddDays(1)
			if from.Before(today) {
				from = today
			}
			if until.Before(from) {
				continue
			}
			n, err := r.materializer.Materialize(ctx, occs, task, latest.StartTime, from, until)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.log.Info().Int("created", total).Str("until", until.String()).Msg("horizon topped up")
	return total, nil
}
