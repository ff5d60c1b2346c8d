package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"cloud.google.com/go/civil"

	"timeline-planner/internal/model"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	catalog     *TaskService
	occurrences *OccurrenceService
}

func NewReminderService(catalog *TaskService, occurrences *OccurrenceService) *ReminderService {
	return &ReminderService{catalog: catalog, occurrences: occurrences}
}

// DailySummary renders the timeline of date as Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, date civil.Date) (string, error) {
	occs, err := s.occurrences.OccurrencesForDate(ctx, date)
	if err != nil {
		return "", err
	}
	pool, err := s.catalog.ListUnscheduled(ctx)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>План на день</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s, %s\n\n", FormatDate(date), weekdayNames[model.WeekdayIndex(date)]))

	if len(occs) == 0 {
		builder.WriteString("— на этот день ничего не запланировано\n")
	} else {
		done := 0
		for _, occ := range occs {
			builder.WriteString(FormatOccurrence(occ))
			if occ.IsCompleted {
				done++
			}
		}
		builder.WriteString(fmt.Sprintf("\n✅ Выполнено: %d из %d\n", done, len(occs)))
	}

	if len(pool) > 0 {
		builder.WriteString(fmt.Sprintf("\n📥 Не запланировано задач: %d", len(pool)))
	}

	return strings.TrimSpace(builder.String()), nil
}

// FormatOccurrence renders one timeline line.
func FormatOccurrence(occ model.Occurrence) string {
	var sb strings.Builder

	icon := "⬜"
	if occ.IsCompleted {
		icon = "✅"
	}

	title := html.EscapeString(strings.TrimSpace(occ.Title))
	if occ.IsAllDay() {
		sb.WriteString(fmt.Sprintf("%s <b>весь день</b> %s ∞", icon, title))
	} else {
		start := model.MinuteOfDay(occ.StartTime)
		end := (start + occ.DurationMinutes) % (24 * 60)
		sb.WriteString(fmt.Sprintf("%s <b>%s–%s</b> %s", icon, FormatClock(occ.StartTime), formatMinutes(end), title))
	}

	if occ.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(occ.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

var weekdayNames = [7]string{"понедельник", "вторник", "среда", "четверг", "пятница", "суббота", "воскресенье"}

// WeekdayShortNames are the two-letter labels for Monday=0 .. Sunday=6.
var WeekdayShortNames = [7]string{"пн", "вт", "ср", "чт", "пт", "сб", "вс"}

func FormatDate(d civil.Date) string {
	return fmt.Sprintf("%02d.%02d.%04d", d.Day, int(d.Month), d.Year)
}

func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func formatMinutes(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatWeekdays renders weekday indices as "пн, ср, пт".
func FormatWeekdays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(WeekdayShortNames) {
			parts = append(parts, WeekdayShortNames[d])
		}
	}
	return strings.Join(parts, ", ")
}
