package service

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"timeline-planner/internal/model"
	"timeline-planner/internal/repository"
)

// OccurrenceService owns the materialized schedule.
type OccurrenceService struct {
	store repository.Store
	log   zerolog.Logger
}

func NewOccurrenceService(store repository.Store, log zerolog.Logger) *OccurrenceService {
	return &OccurrenceService{
		store: store,
		log:   log.With().Str("component", "occurrences").Logger(),
	}
}

func (s *OccurrenceService) withStore(store repository.Store) *OccurrenceService {
	c := *s
	c.store = store
	return &c
}

// AddOccurrence places occ.TaskID at occ.Date and occ.StartTime. The title,
// duration and description are copied from the task; occ.ID is set on success.
func (s *OccurrenceService) AddOccurrence(ctx context.Context, occ *model.Occurrence) (uint, error) {
	if occ == nil {
		return 0, &model.ValidationError{Reason: "occurrence is required"}
	}
	if err := validateDate(occ.Date); err != nil {
		return 0, err
	}
	if err := validateClock(occ.StartTime); err != nil {
		return 0, err
	}
	task, err := s.store.SelectTask(ctx, occ.TaskID)
	if err != nil {
		return 0, err
	}
	id, err := s.insertFor(ctx, task, occ.Date, occ.StartTime)
	if err != nil {
		return 0, err
	}
	occ.ID = id
	return id, nil
}

func (s *OccurrenceService) insertFor(ctx context.Context, task *model.Task, date civil.Date, at civil.Time) (uint, error) {
	occ := model.Occurrence{
		TaskID:          task.ID,
		Date:            date,
		StartTime:       at,
		Title:           task.Title,
		DurationMinutes: task.OccurrenceDuration(),
		Description:     task.Description,
	}
	id, err := s.store.InsertOccurrence(ctx, &occ)
	if err != nil {
		return 0, err
	}
	s.log.Debug().
		Uint("task_id", task.ID).
		Uint("occurrence_id", id).
		Str("date", date.String()).
		Str("start", at.String()).
		Msg("occurrence added")
	return id, nil
}

// OccurrencesForDate returns the day's occurrences ordered by start time.
func (s *OccurrenceService) OccurrencesForDate(ctx context.Context, date civil.Date) ([]model.Occurrence, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	return s.store.SelectOccurrencesByDate(ctx, date)
}

// OccurrencesBetween returns the occurrences dated within [from, to].
func (s *OccurrenceService) OccurrencesBetween(ctx context.Context, from, to civil.Date) ([]model.Occurrence, error) {
	if err := validateDate(from); err != nil {
		return nil, err
	}
	if err := validateDate(to); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, &model.ValidationError{Field: "Date", Reason: "range end is before its start"}
	}
	return s.store.SelectOccurrencesBetween(ctx, from, to)
}

// UpdateOccurrenceTime moves the task's occurrence on date to the new start time.
// With a nil date every occurrence of the task is moved.
func (s *OccurrenceService) UpdateOccurrenceTime(ctx context.Context, taskID uint, at civil.Time, date *civil.Date) (int64, error) {
	if err := validateClock(at); err != nil {
		return 0, err
	}
	if date != nil {
		if err := validateDate(*date); err != nil {
			return 0, err
		}
	}
	if _, err := s.store.SelectTask(ctx, taskID); err != nil {
		return 0, err
	}
	n, err := s.store.UpdateOccurrenceTime(ctx, taskID, at, date)
	if err != nil {
		return 0, err
	}
	ev := s.log.Info().Uint("task_id", taskID).Str("start", at.String()).Int64("updated", n)
	if date != nil {
		ev = ev.Str("date", date.String())
	}
	ev.Msg("occurrence time updated")
	return n, nil
}

// SetOccurrenceCompleted marks a single dated occurrence done or not done.
func (s *OccurrenceService) SetOccurrenceCompleted(ctx context.Context, id uint, completed bool) error {
	if err := s.store.UpdateOccurrenceCompleted(ctx, id, completed); err != nil {
		return err
	}
	s.log.Info().Uint("occurrence_id", id).Bool("completed", completed).Msg("occurrence completion changed")
	return nil
}

func (s *OccurrenceService) RemoveOccurrence(ctx context.Context, id uint) error {
	if err := s.store.DeleteOccurrence(ctx, id); err != nil {
		return err
	}
	s.log.Info().Uint("occurrence_id", id).Msg("occurrence removed")
	return nil
}

// RemoveAllOccurrencesOfTask returns the task to the unscheduled pool.
func (s *OccurrenceService) RemoveAllOccurrencesOfTask(ctx context.Context, taskID uint) (int64, error) {
	if _, err := s.store.SelectTask(ctx, taskID); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteOccurrencesByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	s.log.Info().Uint("task_id", taskID).Int64("removed", n).Msg("task unscheduled")
	return n, nil
}

// IsTaskScheduled reports whether any occurrence references the task.
// Unknown ids are simply not scheduled.
func (s *OccurrenceService) IsTaskScheduled(ctx context.Context, taskID uint) (bool, error) {
	n, err := s.store.CountOccurrencesByTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
