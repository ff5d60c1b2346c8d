package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"timeline-planner/internal/model"
	"timeline-planner/internal/repository"
)

// TaskService owns the task catalog.
type TaskService struct {
	store repository.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewTaskService(store repository.Store, log zerolog.Logger) *TaskService {
	return &TaskService{
		store: store,
		log:   log.With().Str("component", "catalog").Logger(),
		now:   time.Now,
	}
}

func (s *TaskService) withStore(store repository.Store) *TaskService {
	c := *s
	c.store = store
	return &c
}

// AddSingleTask stores a one-off task and returns its id. task.ID is set as well.
func (s *TaskService) AddSingleTask(ctx context.Context, task *model.Task) (uint, error) {
	if task != nil && task.Daily != nil {
		return 0, &model.ValidationError{Field: "Type", Reason: "daily task passed as single"}
	}
	if task != nil && task.Single == nil {
		task.Single = &model.SingleDetails{}
	}
	return s.add(ctx, task)
}

// AddDailyTask stores a recurring task and returns its id. It does not materialize occurrences.
func (s *TaskService) AddDailyTask(ctx context.Context, task *model.Task) (uint, error) {
	if task != nil && task.Single != nil {
		return 0, &model.ValidationError{Field: "Type", Reason: "single task passed as daily"}
	}
	if task != nil && task.Daily == nil {
		return 0, &model.ValidationError{Field: "Weekdays", Reason: "is required"}
	}
	return s.add(ctx, task)
}

func (s *TaskService) add(ctx context.Context, task *model.Task) (uint, error) {
	if err := prepareTask(task); err != nil {
		return 0, err
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}

	id, err := s.store.InsertTask(ctx, task)
	if err != nil {
		return 0, err
	}
	task.ID = id

	s.log.Info().
		Uint("task_id", id).
		Str("type", string(task.Type())).
		Str("title", task.Title).
		Msg("task created")
	return id, nil
}

// UpdateTask rewrites every field of an existing task except its id, created_at and type.
func (s *TaskService) UpdateTask(ctx context.Context, task *model.Task) error {
	if task == nil {
		return &model.ValidationError{Reason: "task is required"}
	}
	existing, err := s.store.SelectTask(ctx, task.ID)
	if err != nil {
		return err
	}
	if err := prepareTask(task); err != nil {
		return err
	}
	if task.Type() != existing.Type() {
		return &model.ValidationError{Field: "Type", Reason: fmt.Sprintf("cannot change from %s to %s", existing.Type(), task.Type())}
	}
	task.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	s.log.Info().Uint("task_id", task.ID).Msg("task updated")
	return nil
}

// RemoveTask deletes the task together with all of its occurrences.
func (s *TaskService) RemoveTask(ctx context.Context, id uint) error {
	if err := s.store.DeleteTaskCascade(ctx, id); err != nil {
		return err
	}
	s.log.Info().Uint("task_id", id).Msg("task removed")
	return nil
}

func (s *TaskService) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.store.SelectAllTasks(ctx)
}

func (s *TaskService) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	return s.store.SelectTask(ctx, id)
}

func (s *TaskService) IsRecurring(ctx context.Context, id uint) (bool, error) {
	task, err := s.store.SelectTask(ctx, id)
	if err != nil {
		return false, err
	}
	return task.IsRecurring(), nil
}

// SetTaskCompleted sets the overall done flag. Occurrences are left untouched.
func (s *TaskService) SetTaskCompleted(ctx context.Context, id uint, completed bool) error {
	if err := s.store.UpdateTaskCompleted(ctx, id, completed); err != nil {
		return err
	}
	s.log.Info().Uint("task_id", id).Bool("completed", completed).Msg("task completion changed")
	return nil
}

// ListUnscheduled returns the tasks that have no occurrence at all.
func (s *TaskService) ListUnscheduled(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.store.SelectAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.SelectScheduledTaskIDs(ctx)
	if err != nil {
		return nil, err
	}
	scheduled := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		scheduled[id] = struct{}{}
	}

	pool := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if _, ok := scheduled[task.ID]; !ok {
			pool = append(pool, task)
		}
	}
	return pool, nil
}
