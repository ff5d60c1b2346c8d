package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"timeline-planner/internal/model"
)

// DefaultHorizonDays is how far ahead daily tasks are materialized.
const DefaultHorizonDays = 30

// rruleWeekdays maps Monday=0 .. Sunday=6 onto rrule weekdays.
var rruleWeekdays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Materializer expands the weekday rule of a daily task into dated occurrences.
type Materializer struct {
	horizonDays int
	log         zerolog.Logger
}

func NewMaterializer(horizonDays int, log zerolog.Logger) *Materializer {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Materializer{
		horizonDays: horizonDays,
		log:         log.With().Str("component", "materializer").Logger(),
	}
}

func (m *Materializer) HorizonDays() int {
	return m.horizonDays
}

// Horizon returns the inclusive window [today, today+horizon].
func (m *Materializer) Horizon(today civil.Date) (civil.Date, civil.Date) {
	return today, today.AddDays(m.horizonDays)
}

// Dates lists every date in [from, until] whose weekday is in weekdays.
func (m *Materializer) Dates(weekdays []int, from, until civil.Date) ([]civil.Date, error) {
	if len(weekdays) == 0 || until.Before(from) {
		return nil, nil
	}
	byDay := make([]rrule.Weekday, 0, len(weekdays))
	for _, wd := range weekdays {
		if wd < 0 || wd > 6 {
			return nil, &model.ValidationError{Field: "Weekdays", Reason: fmt.Sprintf("%d is out of range 0-6", wd)}
		}
		byDay = append(byDay, rruleWeekdays[wd])
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   from.In(time.UTC),
		Until:     until.In(time.UTC),
		Byweekday: byDay,
	})
	if err != nil {
		return nil, fmt.Errorf("build recurrence: %w", err)
	}

	instants := rule.All()
	dates := make([]civil.Date, 0, len(instants))
	for _, t := range instants {
		dates = append(dates, civil.DateOf(t))
	}
	return dates, nil
}

// Materialize inserts one occurrence at the given time for every matching date
// in [from, until] and returns how many were created. The task must be daily.
func (m *Materializer) Materialize(ctx context.Context, occs *OccurrenceService, task *model.Task, at civil.Time, from, until civil.Date) (int, error) {
	if !task.IsRecurring() {
		return 0, &model.ValidationError{Field: "Type", Reason: "only daily tasks are materialized"}
	}
	if err := validateClock(at); err != nil {
		return 0, err
	}
	dates, err := m.Dates(task.Daily.Weekdays, from, until)
	if err != nil {
		return 0, err
	}
	for _, date := range dates {
		if _, err := occs.insertFor(ctx, task, date, at); err != nil {
			return 0, err
		}
	}
	m.log.Info().
		Uint("task_id", task.ID).
		Str("from", from.String()).
		Str("until", until.String()).
		Int("created", len(dates)).
		Msg("daily task materialized")
	return len(dates), nil
}

// Expand materializes the task over the horizon starting at today using its
// scheduled time. Tasks without a scheduled time stay unscheduled.
func (m *Materializer) Expand(ctx context.Context, occs *OccurrenceService, task *model.Task, today civil.Date) (int, error) {
	if task.ScheduledTime == nil {
		return 0, nil
	}
	from, until := m.Horizon(today)
	return m.Materialize(ctx, occs, task, *task.ScheduledTime, from, until)
}
