package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Occurrence is a task placed on the timeline at a date and time of day.
// Title, DurationMinutes and Description are a snapshot of the task.
type Occurrence struct {
	ID              uint
	TaskID          uint
	Date            civil.Date
	StartTime       civil.Time
	IsCompleted     bool
	Title           string
	DurationMinutes int
	Description     string
}

// Start returns the wall-clock start of the occurrence in loc.
func (o Occurrence) Start(loc *time.Location) time.Time {
	return civil.DateTime{Date: o.Date, Time: o.StartTime}.In(loc)
}

// End returns Start plus the occurrence duration.
func (o Occurrence) End(loc *time.Location) time.Time {
	return o.Start(loc).Add(time.Duration(o.DurationMinutes) * time.Minute)
}

// IsAllDay reports whether the occurrence spans a full day.
func (o Occurrence) IsAllDay() bool {
	return o.DurationMinutes >= UnlimitedDurationMinutes
}

// MinuteOfDay returns the start time as minutes after midnight.
func MinuteOfDay(t civil.Time) int {
	return t.Hour*60 + t.Minute
}
