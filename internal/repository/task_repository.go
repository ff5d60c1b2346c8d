package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"timeline-planner/internal/model"
)

// TaskRepository handles CRUD for tasks and their single/daily rows.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// InsertTask writes the generic task row and its type row, and returns the new id.
func (r *TaskRepository) InsertTask(ctx context.Context, task *model.Task) (uint, error) {
	rec := newTaskRecord(task)
	rec.ID = 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return insertTypeRow(tx, rec.ID, task)
	})
	if err != nil {
		return 0, storeErr("create task", err)
	}
	return rec.ID, nil
}

func insertTypeRow(tx *gorm.DB, taskID uint, task *model.Task) error {
	switch task.Type() {
	case model.TaskTypeSingle:
		row := newSingleTaskRecord(taskID, task.Single)
		return tx.Create(&row).Error
	case model.TaskTypeDaily:
		row := newDailyTaskRecord(taskID, task.Daily)
		return tx.Create(&row).Error
	default:
		return fmt.Errorf("task %d has no type", taskID)
	}
}

func (r *TaskRepository) SelectAllTasks(ctx context.Context) ([]model.Task, error) {
	db := r.db.WithContext(ctx)

	var records []taskRecord
	if err := db.Order("id ASC").Find(&records).Error; err != nil {
		return nil, storeErr("list tasks", err)
	}

	var singles []singleTaskRecord
	if err := db.Find(&singles).Error; err != nil {
		return nil, storeErr("list single tasks", err)
	}
	singleByID := make(map[uint]singleTaskRecord, len(singles))
	for _, s := range singles {
		singleByID[s.TaskID] = s
	}

	var dailies []dailyTaskRecord
	if err := db.Find(&dailies).Error; err != nil {
		return nil, storeErr("list daily tasks", err)
	}
	dailyByID := make(map[uint]dailyTaskRecord, len(dailies))
	for _, d := range dailies {
		dailyByID[d.TaskID] = d
	}

	tasks := make([]model.Task, 0, len(records))
	for _, rec := range records {
		task, err := assembleTask(rec, singleByID, dailyByID)
		if err != nil {
			return nil, storeErr("list tasks", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (r *TaskRepository) SelectTask(ctx context.Context, id uint) (*model.Task, error) {
	db := r.db.WithContext(ctx)

	var rec taskRecord
	if err := db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.NotFoundError{Entity: "task", ID: id}
		}
		return nil, storeErr("find task", err)
	}

	singles := map[uint]singleTaskRecord{}
	dailies := map[uint]dailyTaskRecord{}
	switch model.TaskType(rec.TaskType) {
	case model.TaskTypeSingle:
		row, err := selectTypeRow[singleTaskRecord](db, id)
		if err != nil {
			return nil, storeErr("find single task", err)
		}
		singles[id] = row
	case model.TaskTypeDaily:
		row, err := selectTypeRow[dailyTaskRecord](db, id)
		if err != nil {
			return nil, storeErr("find daily task", err)
		}
		dailies[id] = row
	}

	task, err := assembleTask(rec, singles, dailies)
	if err != nil {
		return nil, storeErr("find task", err)
	}
	return &task, nil
}

func selectTypeRow[T singleTaskRecord | dailyTaskRecord](db *gorm.DB, taskID uint) (T, error) {
	var row T
	err := db.Where("task_id = ?", taskID).First(&row).Error
	return row, err
}

func assembleTask(rec taskRecord, singles map[uint]singleTaskRecord, dailies map[uint]dailyTaskRecord) (model.Task, error) {
	task, err := rec.toModel()
	if err != nil {
		return task, err
	}
	switch model.TaskType(rec.TaskType) {
	case model.TaskTypeSingle:
		row, ok := singles[rec.ID]
		if !ok {
			return task, fmt.Errorf("task %d: missing single_tasks row", rec.ID)
		}
		if task.Single, err = row.toModel(); err != nil {
			return task, err
		}
	case model.TaskTypeDaily:
		row, ok := dailies[rec.ID]
		if !ok {
			return task, fmt.Errorf("task %d: missing daily_tasks row", rec.ID)
		}
		if task.Daily, err = row.toModel(); err != nil {
			return task, err
		}
	default:
		return task, fmt.Errorf("task %d: unknown type %q", rec.ID, rec.TaskType)
	}
	return task, nil
}

// UpdateTask rewrites every field except id, created_at and the task type.
func (r *TaskRepository) UpdateTask(ctx context.Context, task *model.Task) error {
	rec := newTaskRecord(task)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskRecord{}).
			Where("id = ? AND task_type = ?", task.ID, rec.TaskType).
			Updates(map[string]interface{}{
				"title":            rec.Title,
				"duration_minutes": rec.DurationMinutes,
				"description":      rec.Description,
				"scheduled_time":   rec.ScheduledTime,
				"is_completed":     rec.IsCompleted,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &model.NotFoundError{Entity: "task", ID: task.ID}
		}
		return updateTypeRow(tx, task)
	})
	if err != nil {
		return storeErr("update task", err)
	}
	return nil
}

func updateTypeRow(tx *gorm.DB, task *model.Task) error {
	switch task.Type() {
	case model.TaskTypeSingle:
		row := newSingleTaskRecord(task.ID, task.Single)
		return tx.Model(&singleTaskRecord{}).Where("task_id = ?", task.ID).
			Update("execution_date", row.ExecutionDate).Error
	case model.TaskTypeDaily:
		row := newDailyTaskRecord(task.ID, task.Daily)
		return tx.Model(&dailyTaskRecord{}).Where("task_id = ?", task.ID).
			Updates(map[string]interface{}{
				"weekdays":     row.Weekdays,
				"is_unlimited": row.IsUnlimited,
			}).Error
	default:
		return fmt.Errorf("task %d has no type", task.ID)
	}
}

func (r *TaskRepository) UpdateTaskCompleted(ctx context.Context, id uint, completed bool) error {
	res := r.db.WithContext(ctx).Model(&taskRecord{}).Where("id = ?", id).Update("is_completed", completed)
	if res.Error != nil {
		return storeErr("complete task", res.Error)
	}
	if res.RowsAffected == 0 {
		return &model.NotFoundError{Entity: "task", ID: id}
	}
	return nil
}

// DeleteTaskCascade removes the task's occurrences, its type row and the task itself.
func (r *TaskRepository) DeleteTaskCascade(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&occurrenceRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", id).Delete(&singleTaskRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", id).Delete(&dailyTaskRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&taskRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &model.NotFoundError{Entity: "task", ID: id}
		}
		return nil
	})
	if err != nil {
		return storeErr("delete task", err)
	}
	return nil
}
