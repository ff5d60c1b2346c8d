package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeline-planner/internal/config"
	"timeline-planner/internal/model"
	"timeline-planner/internal/service"
)

const (
	btnSkip         = "⏭️ Пропустить"
	btnCancelDialog = "⏪ Отменить ввод"
	btnSingle       = "1️⃣ Разовая"
	btnDaily        = "🔁 Повторяющаяся"
	btnUnlimited    = "∞ Весь день"
	btnWeekdays     = "Будни"
	btnWeekend      = "Выходные"
	btnEveryDay     = "Каждый день"
	iconSingle      = "📌"
	iconDaily       = "🔁"
	iconDone        = "✅"
	iconScheduled   = "🗓"
	iconPool        = "📥"

	menuLabelNewTask = "➕ Новая задача"
	menuLabelToday   = "🗓 Сегодня"
	menuLabelTasks   = "📋 Задачи"
	menuLabelPool    = "📥 Не запланировано"

	maxDescriptionRunes = 300
)

var weekdayAliases = map[string]int{
	"пн": 0, "вт": 1, "ср": 2, "чт": 3, "пт": 4, "сб": 5, "вс": 6,
	"mo": 0, "tu": 1, "we": 2, "th": 3, "fr": 4, "sa": 5, "su": 6,
}

// parseWeekdays accepts indices 0-6, short names ("пн ср пт") and the
// shortcuts "будни", "выходные" and "каждый день".
func parseWeekdays(text string) ([]int, error) {
	value := strings.ToLower(strings.TrimSpace(text))
	switch value {
	case strings.ToLower(btnWeekdays):
		return []int{0, 1, 2, 3, 4}, nil
	case strings.ToLower(btnWeekend):
		return []int{5, 6}, nil
	case strings.ToLower(btnEveryDay), "ежедневно", "все":
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	}

	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("нужен хотя бы один день недели")
	}
	days := make([]int, 0, len(fields))
	for _, f := range fields {
		if idx, ok := weekdayAliases[f]; ok {
			days = append(days, idx)
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("не понимаю день недели %q", f)
		}
		days = append(days, n)
	}
	return model.NormalizeWeekdays(days), nil
}

// parseDuration returns the duration in minutes or reports an unlimited task.
func parseDuration(text string) (int, bool, error) {
	value := strings.ToLower(strings.TrimSpace(text))
	switch value {
	case "∞", strings.ToLower(btnUnlimited), "весь день", "без ограничения":
		return 0, true, nil
	}
	if h, m, ok := strings.Cut(value, ":"); ok {
		hours, err1 := strconv.Atoi(h)
		minutes, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || hours < 0 || minutes < 0 || minutes > 59 {
			return 0, false, fmt.Errorf("не понимаю длительность %q", text)
		}
		return hours*60 + minutes, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(value, "мин"), " "))
	if err != nil {
		return 0, false, fmt.Errorf("не понимаю длительность %q", text)
	}
	return n, false, nil
}

// parseDate understands "сегодня", "завтра", "+N", 2024-01-31, 31.01.2024 and 31.01.
func parseDate(text string, today civil.Date) (civil.Date, error) {
	value := strings.ToLower(strings.TrimSpace(text))
	switch value {
	case "", "сегодня", "today":
		return today, nil
	case "завтра", "tomorrow":
		return today.AddDays(1), nil
	}
	if strings.HasPrefix(value, "+") {
		n, err := strconv.Atoi(value[1:])
		if err != nil || n < 0 {
			return civil.Date{}, fmt.Errorf("не понимаю дату %q", text)
		}
		return today.AddDays(n), nil
	}
	if d, err := civil.ParseDate(value); err == nil {
		return d, nil
	}
	for _, layout := range []string{"02.01.2006", "2.1.2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return civil.DateOf(t), nil
		}
	}
	for _, layout := range []string{"02.01", "2.1"} {
		if t, err := time.Parse(layout, value); err == nil {
			d := civil.DateOf(t)
			d.Year = today.Year
			if d.IsValid() {
				return d, nil
			}
		}
	}
	return civil.Date{}, fmt.Errorf("не понимаю дату %q", text)
}

func parseClock(text string) (civil.Time, error) {
	t, err := config.ParseClock(text)
	if err != nil {
		return civil.Time{}, fmt.Errorf("время нужно в формате ЧЧ:ММ, например 09:30")
	}
	return t, nil
}

// parseDateTime parses "<date> <HH:MM>" into a local timestamp.
func parseDateTime(text string, today civil.Date, loc *time.Location) (time.Time, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("нужны дата и время, например 2024-05-20 14:30")
	}
	d, err := parseDate(fields[0], today)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseClock(fields[1])
	if err != nil {
		return time.Time{}, err
	}
	return civil.DateTime{Date: d, Time: t}.In(loc), nil
}

func parseTaskID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("ID задачи должен быть числом")
	}
	return uint(value), nil
}

type editField struct {
	key   string
	value string
}

// parseEditArgs splits "3 title=Бег; time=07:30" into the id and key/value pairs
// in the order they were typed.
func parseEditArgs(args string) (uint, []editField, error) {
	idPart, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, err := parseTaskID(idPart)
	if err != nil {
		return 0, nil, err
	}
	var changes []editField
	for _, pair := range strings.Split(rest, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return 0, nil, fmt.Errorf("ожидаю ключ=значение, получил %q", pair)
		}
		changes = append(changes, editField{
			key:   strings.ToLower(strings.TrimSpace(key)),
			value: strings.TrimSpace(value),
		})
	}
	if len(changes) == 0 {
		return 0, nil, fmt.Errorf("нечего менять")
	}
	return id, changes, nil
}

// clipDescription cuts text to maxDescriptionRunes and reports whether it did.
func clipDescription(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maxDescriptionRunes {
		return text, false
	}
	return strings.TrimSpace(string(runes[:maxDescriptionRunes])), true
}

func isYes(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "да", "yes", "y", "1", "true":
		return true
	}
	return false
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод" || value == "отмена"
}

func validationText(err *model.ValidationError) string {
	reason := err.Reason
	switch err.Field {
	case "Title":
		return "название не может быть пустым"
	case "DurationMinutes":
		return "длительность должна быть от 1 до 1440 минут"
	case "Description":
		return "описание не длиннее 300 символов"
	case "":
		return reason
	}
	if strings.HasPrefix(err.Field, "Weekdays") {
		return "выбери хотя бы один день недели (0–6)"
	}
	return err.Field + " " + reason
}

func formatTaskLine(task model.Task, scheduled bool) string {
	var b strings.Builder
	icon := iconSingle
	if task.IsRecurring() {
		icon = iconDaily
	}
	title := escape(normalizeTitle(task.Title))
	if task.IsCompleted {
		title = "<s>" + title + "</s> " + iconDone
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, task.ID, title))

	var details []string
	if task.IsUnlimited() {
		details = append(details, "весь день")
	} else {
		details = append(details, fmt.Sprintf("%d мин", task.DurationMinutes))
	}
	if task.ScheduledTime != nil {
		details = append(details, "в "+service.FormatClock(*task.ScheduledTime))
	}
	if task.Daily != nil {
		details = append(details, service.FormatWeekdays(task.Daily.Weekdays))
	}
	if task.Single != nil && task.Single.ExecutionDate != nil {
		details = append(details, task.Single.ExecutionDate.Format("02.01.2006 15:04"))
	}
	if scheduled {
		details = append(details, iconScheduled+" в расписании")
	}
	b.WriteString("   " + strings.Join(details, " · ") + "\n")

	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	return b.String()
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelToday),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelPool),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func typeKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSingle),
			tgbotapi.NewKeyboardButton(btnDaily),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func durationKeyboard(allowUnlimited bool) tgbotapi.ReplyKeyboardMarkup {
	row := tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("15"),
		tgbotapi.NewKeyboardButton("30"),
		tgbotapi.NewKeyboardButton("60"),
	)
	if allowUnlimited {
		row = append(row, tgbotapi.NewKeyboardButton(btnUnlimited))
	}
	kb := tgbotapi.NewReplyKeyboard(
		row,
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func weekdaysKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnWeekdays),
			tgbotapi.NewKeyboardButton(btnWeekend),
			tgbotapi.NewKeyboardButton(btnEveryDay),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
