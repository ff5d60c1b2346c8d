package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"gorm.io/gorm"

	"timeline-planner/internal/model"
)

// TaskStore persists tasks together with their type-specific rows.
type TaskStore interface {
	InsertTask(ctx context.Context, task *model.Task) (uint, error)
	SelectAllTasks(ctx context.Context) ([]model.Task, error)
	SelectTask(ctx context.Context, id uint) (*model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	UpdateTaskCompleted(ctx context.Context, id uint, completed bool) error
	DeleteTaskCascade(ctx context.Context, id uint) error
}

// OccurrenceStore persists the materialized schedule.
type OccurrenceStore interface {
	InsertOccurrence(ctx context.Context, occ *model.Occurrence) (uint, error)
	SelectOccurrence(ctx context.Context, id uint) (*model.Occurrence, error)
	SelectOccurrencesByDate(ctx context.Context, date civil.Date) ([]model.Occurrence, error)
	SelectOccurrencesBetween(ctx context.Context, from, to civil.Date) ([]model.Occurrence, error)
	SelectLatestOccurrence(ctx context.Context, taskID uint) (*model.Occurrence, error)
	SelectScheduledTaskIDs(ctx context.Context) ([]uint, error)
	UpdateOccurrenceTime(ctx context.Context, taskID uint, start civil.Time, date *civil.Date) (int64, error)
	MoveLatestOccurrence(ctx context.Context, taskID uint, date civil.Date, start civil.Time) (int64, error)
	UpdateOccurrenceDetails(ctx context.Context, taskID uint, title string, durationMinutes int, description string) (int64, error)
	UpdateOccurrenceCompleted(ctx context.Context, id uint, completed bool) error
	DeleteOccurrence(ctx context.Context, id uint) error
	DeleteOccurrencesByTask(ctx context.Context, taskID uint) (int64, error)
	CountOccurrencesByTask(ctx context.Context, taskID uint) (int64, error)
}

// Store is the record store consumed by the planner services.
type Store interface {
	TaskStore
	OccurrenceStore
	// Transaction runs fn against a store bound to a single transaction.
	// Any error returned by fn rolls the transaction back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// SQLStore implements Store on top of gorm.
type SQLStore struct {
	*TaskRepository
	*OccurrenceRepository
	db *gorm.DB
}

func NewStore(db *gorm.DB) *SQLStore {
	return &SQLStore{
		TaskRepository:       NewTaskRepository(db),
		OccurrenceRepository: NewOccurrenceRepository(db),
		db:                   db,
	}
}

func (s *SQLStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func storeErr(op string, err error) error {
	var notFound *model.NotFoundError
	if errors.As(err, &notFound) {
		return err
	}
	var storeError *model.StoreError
	if errors.As(err, &storeError) {
		return err
	}
	return &model.StoreError{Op: op, Err: err}
}
