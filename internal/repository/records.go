package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"timeline-planner/internal/model"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

type taskRecord struct {
	ID              uint   `gorm:"primaryKey"`
	Title           string `gorm:"not null"`
	DurationMinutes int    `gorm:"not null"`
	Description     *string
	ScheduledTime   *string
	IsCompleted     bool   `gorm:"not null;default:false"`
	TaskType        string `gorm:"not null;index"`
	CreatedAt       string `gorm:"not null"`
}

func (taskRecord) TableName() string { return "tasks" }

type singleTaskRecord struct {
	TaskID        uint `gorm:"primaryKey;autoIncrement:false"`
	ExecutionDate *string
}

func (singleTaskRecord) TableName() string { return "single_tasks" }

type dailyTaskRecord struct {
	TaskID      uint   `gorm:"primaryKey;autoIncrement:false"`
	Weekdays    string `gorm:"not null"`
	IsUnlimited bool   `gorm:"not null;default:false"`
}

func (dailyTaskRecord) TableName() string { return "daily_tasks" }

type occurrenceRecord struct {
	ID              uint   `gorm:"primaryKey"`
	TaskID          uint   `gorm:"not null;index;index:idx_scheduled_task_date,priority:1"`
	Date            string `gorm:"not null;index;index:idx_scheduled_task_date,priority:2"`
	StartTime       string `gorm:"not null"`
	IsCompleted     bool   `gorm:"not null;default:false"`
	Title           string `gorm:"not null"`
	DurationMinutes int    `gorm:"not null"`
	Description     *string
}

func (occurrenceRecord) TableName() string { return "scheduled_tasks" }

func newTaskRecord(task *model.Task) taskRecord {
	return taskRecord{
		ID:              task.ID,
		Title:           task.Title,
		DurationMinutes: task.DurationMinutes,
		Description:     optionalString(task.Description),
		ScheduledTime:   encodeOptionalTime(task.ScheduledTime),
		IsCompleted:     task.IsCompleted,
		TaskType:        string(task.Type()),
		CreatedAt:       task.CreatedAt.Format(timestampLayout),
	}
}

func newSingleTaskRecord(taskID uint, details *model.SingleDetails) singleTaskRecord {
	rec := singleTaskRecord{TaskID: taskID}
	if details != nil && details.ExecutionDate != nil {
		v := details.ExecutionDate.Format(timestampLayout)
		rec.ExecutionDate = &v
	}
	return rec
}

func newDailyTaskRecord(taskID uint, details *model.DailyDetails) dailyTaskRecord {
	return dailyTaskRecord{
		TaskID:      taskID,
		Weekdays:    encodeWeekdays(details.Weekdays),
		IsUnlimited: details.IsUnlimited,
	}
}

func (r taskRecord) toModel() (model.Task, error) {
	task := model.Task{
		ID:              r.ID,
		Title:           r.Title,
		DurationMinutes: r.DurationMinutes,
		IsCompleted:     r.IsCompleted,
	}
	if r.Description != nil {
		task.Description = *r.Description
	}
	if r.ScheduledTime != nil {
		t, err := civil.ParseTime(*r.ScheduledTime)
		if err != nil {
			return task, fmt.Errorf("task %d: scheduled time %q: %w", r.ID, *r.ScheduledTime, err)
		}
		task.ScheduledTime = &t
	}
	created, err := time.Parse(timestampLayout, r.CreatedAt)
	if err != nil {
		return task, fmt.Errorf("task %d: created at %q: %w", r.ID, r.CreatedAt, err)
	}
	task.CreatedAt = created
	return task, nil
}

func (r singleTaskRecord) toModel() (*model.SingleDetails, error) {
	details := &model.SingleDetails{}
	if r.ExecutionDate != nil {
		t, err := time.Parse(timestampLayout, *r.ExecutionDate)
		if err != nil {
			return nil, fmt.Errorf("task %d: execution date %q: %w", r.TaskID, *r.ExecutionDate, err)
		}
		details.ExecutionDate = &t
	}
	return details, nil
}

func (r dailyTaskRecord) toModel() (*model.DailyDetails, error) {
	days, err := decodeWeekdays(r.Weekdays)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", r.TaskID, err)
	}
	return &model.DailyDetails{Weekdays: days, IsUnlimited: r.IsUnlimited}, nil
}

func newOccurrenceRecord(occ *model.Occurrence) occurrenceRecord {
	return occurrenceRecord{
		ID:              occ.ID,
		TaskID:          occ.TaskID,
		Date:            occ.Date.String(),
		StartTime:       occ.StartTime.String(),
		IsCompleted:     occ.IsCompleted,
		Title:           occ.Title,
		DurationMinutes: occ.DurationMinutes,
		Description:     optionalString(occ.Description),
	}
}

func (r occurrenceRecord) toModel() (model.Occurrence, error) {
	occ := model.Occurrence{
		ID:              r.ID,
		TaskID:          r.TaskID,
		IsCompleted:     r.IsCompleted,
		Title:           r.Title,
		DurationMinutes: r.DurationMinutes,
	}
	if r.Description != nil {
		occ.Description = *r.Description
	}
	date, err := civil.ParseDate(r.Date)
	if err != nil {
		return occ, fmt.Errorf("occurrence %d: date %q: %w", r.ID, r.Date, err)
	}
	start, err := civil.ParseTime(r.StartTime)
	if err != nil {
		return occ, fmt.Errorf("occurrence %d: start time %q: %w", r.ID, r.StartTime, err)
	}
	occ.Date = date
	occ.StartTime = start
	return occ, nil
}

func encodeWeekdays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty weekdays")
	}
	parts := strings.Split(raw, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid weekday %q", p)
		}
		days = append(days, d)
	}
	return days, nil
}

func encodeOptionalTime(t *civil.Time) *string {
	if t == nil {
		return nil
	}
	v := t.String()
	return &v
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
