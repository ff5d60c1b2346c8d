package service

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"timeline-planner/internal/model"
)

var validate = validator.New()

// prepareTask normalizes the task in place and validates it.
func prepareTask(task *model.Task) error {
	if task == nil {
		return &model.ValidationError{Reason: "task is required"}
	}
	if (task.Single == nil) == (task.Daily == nil) {
		return &model.ValidationError{Field: "Type", Reason: "exactly one of single or daily must be set"}
	}

	task.Title = strings.TrimSpace(task.Title)
	task.Description = strings.TrimSpace(task.Description)

	if task.Daily != nil {
		task.Daily.Weekdays = model.NormalizeWeekdays(task.Daily.Weekdays)
	}
	if task.Single != nil && task.Single.ExecutionDate != nil && task.ScheduledTime == nil {
		exec := task.Single.ExecutionDate
		task.ScheduledTime = &civil.Time{Hour: exec.Hour(), Minute: exec.Minute()}
	}

	if err := validate.Struct(task); err != nil {
		return translateValidation(err)
	}
	if !task.IsUnlimited() && task.DurationMinutes <= 0 {
		return &model.ValidationError{Field: "DurationMinutes", Reason: "must be positive"}
	}
	if task.ScheduledTime != nil {
		if err := validateClock(*task.ScheduledTime); err != nil {
			return err
		}
	}
	return nil
}

func validateClock(t civil.Time) error {
	if !t.IsValid() {
		return &model.ValidationError{Field: "Time", Reason: fmt.Sprintf("%q is not a valid time of day", t.String())}
	}
	return nil
}

func validateDate(d civil.Date) error {
	if !d.IsValid() {
		return &model.ValidationError{Field: "Date", Reason: fmt.Sprintf("%q is not a valid date", d.String())}
	}
	return nil
}

func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &model.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = fmt.Sprintf("must have at least %s element(s)", fe.Param())
	case "max":
		reason = fmt.Sprintf("must be at most %s long", fe.Param())
	case "gte":
		reason = fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		reason = fmt.Sprintf("must be <= %s", fe.Param())
	default:
		reason = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return &model.ValidationError{Field: fe.Field(), Reason: reason}
}

// SnapToGrid rounds t to the nearest multiple of stepMinutes, staying within the day.
func SnapToGrid(t civil.Time, stepMinutes int) civil.Time {
	if stepMinutes <= 1 {
		return civil.Time{Hour: t.Hour, Minute: t.Minute}
	}
	total := model.MinuteOfDay(t)
	snapped := (total + stepMinutes/2) / stepMinutes * stepMinutes
	if last := (24*60 - 1) / stepMinutes * stepMinutes; snapped > last {
		snapped = last
	}
	return civil.Time{Hour: snapped / 60, Minute: snapped % 60}
}
