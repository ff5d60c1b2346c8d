package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"gorm.io/gorm"

	"timeline-planner/internal/model"
)

// OccurrenceRepository handles the scheduled_tasks table.
type OccurrenceRepository struct {
	db *gorm.DB
}

func NewOccurrenceRepository(db *gorm.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

func (r *OccurrenceRepository) InsertOccurrence(ctx context.Context, occ *model.Occurrence) (uint, error) {
	rec := newOccurrenceRecord(occ)
	rec.ID = 0
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, storeErr("create occurrence", err)
	}
	return rec.ID, nil
}

func (r *OccurrenceRepository) SelectOccurrence(ctx context.Context, id uint) (*model.Occurrence, error) {
	var rec occurrenceRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.NotFoundError{Entity: "occurrence", ID: id}
		}
		return nil, storeErr("find occurrence", err)
	}
	occ, err := rec.toModel()
	if err != nil {
		return nil, storeErr("find occurrence", err)
	}
	return &occ, nil
}

// SelectOccurrencesByDate returns the occurrences of one day ordered by start time.
func (r *OccurrenceRepository) SelectOccurrencesByDate(ctx context.Context, date civil.Date) ([]model.Occurrence, error) {
	var records []occurrenceRecord
	if err := r.db.WithContext(ctx).Where("date = ?", date.String()).
		Order("start_time ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, storeErr("list occurrences", err)
	}
	return toOccurrences(records)
}

// SelectOccurrencesBetween returns occurrences with from <= date <= to.
func (r *OccurrenceRepository) SelectOccurrencesBetween(ctx context.Context, from, to civil.Date) ([]model.Occurrence, error) {
	var records []occurrenceRecord
	if err := r.db.WithContext(ctx).Where("date >= ? AND date <= ?", from.String(), to.String()).
		Order("date ASC, start_time ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, storeErr("list occurrences", err)
	}
	return toOccurrences(records)
}

// SelectLatestOccurrence returns the task's occurrence with the greatest date, or nil.
func (r *OccurrenceRepository) SelectLatestOccurrence(ctx context.Context, taskID uint) (*model.Occurrence, error) {
	var records []occurrenceRecord
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("date DESC, id DESC").
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, storeErr("find latest occurrence", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	occ, err := records[0].toModel()
	if err != nil {
		return nil, storeErr("find latest occurrence", err)
	}
	return &occ, nil
}

func (r *OccurrenceRepository) SelectScheduledTaskIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&occurrenceRecord{}).
		Distinct().
		Order("task_id ASC").
		Pluck("task_id", &ids).Error; err != nil {
		return nil, storeErr("list scheduled tasks", err)
	}
	return ids, nil
}

// UpdateOccurrenceTime sets the start time of the task's occurrence on date,
// or of every occurrence of the task when date is nil.
func (r *OccurrenceRepository) UpdateOccurrenceTime(ctx context.Context, taskID uint, start civil.Time, date *civil.Date) (int64, error) {
	q := r.db.WithContext(ctx).Model(&occurrenceRecord{}).Where("task_id = ?", taskID)
	if date != nil {
		q = q.Where("date = ?", date.String())
	}
	res := q.Update("start_time", start.String())
	if res.Error != nil {
		return 0, storeErr("update occurrence time", res.Error)
	}
	return res.RowsAffected, nil
}

// MoveLatestOccurrence relocates the most recently created occurrence of the task.
func (r *OccurrenceRepository) MoveLatestOccurrence(ctx context.Context, taskID uint, date civil.Date, start civil.Time) (int64, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&occurrenceRecord{}).
		Where("task_id = ?", taskID).
		Order("id DESC").
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return 0, storeErr("move occurrence", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&occurrenceRecord{}).
		Where("id = ?", ids[0]).
		Updates(map[string]interface{}{
			"date":       date.String(),
			"start_time": start.String(),
		})
	if res.Error != nil {
		return 0, storeErr("move occurrence", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateOccurrenceDetails refreshes the task snapshot kept on each occurrence.
func (r *OccurrenceRepository) UpdateOccurrenceDetails(ctx context.Context, taskID uint, title string, durationMinutes int, description string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&occurrenceRecord{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{
			"title":            title,
			"duration_minutes": durationMinutes,
			"description":      optionalString(description),
		})
	if res.Error != nil {
		return 0, storeErr("update occurrence details", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OccurrenceRepository) UpdateOccurrenceCompleted(ctx context.Context, id uint, completed bool) error {
	res := r.db.WithContext(ctx).Model(&occurrenceRecord{}).Where("id = ?", id).Update("is_completed", completed)
	if res.Error != nil {
		return storeErr("complete occurrence", res.Error)
	}
	if res.RowsAffected == 0 {
		return &model.NotFoundError{Entity: "occurrence", ID: id}
	}
	return nil
}

func (r *OccurrenceRepository) DeleteOccurrence(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&occurrenceRecord{})
	if res.Error != nil {
		return storeErr("delete occurrence", res.Error)
	}
	if res.RowsAffected == 0 {
		return &model.NotFoundError{Entity: "occurrence", ID: id}
	}
	return nil
}

func (r *OccurrenceRepository) DeleteOccurrencesByTask(ctx context.Context, taskID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&occurrenceRecord{})
	if res.Error != nil {
		return 0, storeErr("delete task occurrences", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OccurrenceRepository) CountOccurrencesByTask(ctx context.Context, taskID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&occurrenceRecord{}).Where("task_id = ?", taskID).Count(&count).Error; err != nil {
		return 0, storeErr("count occurrences", err)
	}
	return count, nil
}

func toOccurrences(records []occurrenceRecord) ([]model.Occurrence, error) {
	out := make([]model.Occurrence, 0, len(records))
	for _, rec := range records {
		occ, err := rec.toModel()
		if err != nil {
			return nil, storeErr("decode occurrence", err)
		}
		out = append(out, occ)
	}
	return out, nil
}
