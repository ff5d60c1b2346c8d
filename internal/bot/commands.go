package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeline-planner/internal/calendar"
	"timeline-planner/internal/model"
	"timeline-planner/internal/service"
)

const helpText = "ℹ️ <b>Команды</b>\n" +
	"• /new — добавить задачу пошагово\n" +
	"• /tasks — все задачи\n" +
	"• /pool — задачи, которых нет в расписании\n" +
	"• /day [дата] — расписание на день (по умолчанию сегодня)\n" +
	"• /place &lt;id&gt; &lt;дата&gt; &lt;ЧЧ:ММ&gt; — поставить задачу в расписание или перенести\n" +
	"• /unschedule &lt;id&gt; — убрать задачу из расписания целиком\n" +
	"• /edit &lt;id&gt; ключ=значение; … — изменить задачу (title, duration, desc, time, days, unlimited, date)\n" +
	"• /done &lt;id&gt; — отметить задачу выполненной или снять отметку\n" +
	"• /delete &lt;id&gt; — удалить задачу вместе с расписанием\n" +
	"• /export [дней] — выгрузить расписание в .ics\n" +
	"• /report — план на сегодня\n" +
	"• /cancel — отменить текущий ввод\n\n" +
	"Даты: <code>2024-05-20</code>, <code>20.05</code>, <code>сегодня</code>, <code>завтра</code>, <code>+3</code>."

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}
	text := fmt.Sprintf("👋 Привет, %s!\n<b>Я планировщик: раскладываю задачи по дням и времени.</b>\n\n%s", escape(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, helpText)
}

func (b *Bot) handleReport(ctx context.Context, chatID int64) error {
	text, err := b.svc.Reminders.DailySummary(ctx, b.svc.Reconciler.Today())
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleListTasks(ctx context.Context, chatID int64) error {
	tasks, err := b.svc.Catalog.ListTasks(ctx)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "Задач пока нет. Добавь новую через /new.")
	}
	pool, err := b.svc.Catalog.ListUnscheduled(ctx)
	if err != nil {
		return b.replyError(chatID, err)
	}
	unscheduled := make(map[uint]struct{}, len(pool))
	for _, task := range pool {
		unscheduled[task.ID] = struct{}{}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Задачи</b>\n\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		_, free := unscheduled[task.ID]
		builder.WriteString(formatTaskLine(task, !free))
		builder.WriteByte('\n')

		doneLabel := fmt.Sprintf("%s #%d · %s", iconDone, task.ID, shortTitle(task.Title, 20))
		if task.IsCompleted {
			doneLabel = fmt.Sprintf("↩️ #%d · %s", task.ID, shortTitle(task.Title, 20))
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(doneLabel, callbackData(cbTaskDone, task.ID, boolFlag(!task.IsCompleted))),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", callbackData(cbTaskDelete, task.ID)),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handlePool(ctx context.Context, chatID int64) error {
	pool, err := b.svc.Catalog.ListUnscheduled(ctx)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if len(pool) == 0 {
		return b.sendText(chatID, "Все задачи уже в расписании.")
	}
	var builder strings.Builder
	builder.WriteString(iconPool + " <b>Не запланировано</b>\n")
	builder.WriteString("Поставь задачу в расписание: <code>/place id дата ЧЧ:ММ</code>\n\n")
	for _, task := range pool {
		builder.WriteString(formatTaskLine(task, false))
	}
	return b.sendText(chatID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleDay(ctx context.Context, msg *tgbotapi.Message) error {
	date, err := parseDate(msg.CommandArguments(), b.svc.Reconciler.Today())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.sendDay(ctx, msg.Chat.ID, date)
}

func (b *Bot) sendDay(ctx context.Context, chatID int64, date civil.Date) error {
	occs, err := b.svc.Occurrences.OccurrencesForDate(ctx, date)
	if err != nil {
		return b.replyError(chatID, err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🗓 <b>%s</b>\n\n", service.FormatDate(date)))
	if len(occs) == 0 {
		builder.WriteString("— ничего не запланировано")
		return b.sendText(chatID, builder.String())
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, occ := range occs {
		builder.WriteString(service.FormatOccurrence(occ))

		label := fmt.Sprintf("%s %s", iconDone, shortTitle(occ.Title, 18))
		if occ.IsCompleted {
			label = fmt.Sprintf("↩️ %s", shortTitle(occ.Title, 18))
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(cbOccurrenceDone, occ.ID, boolFlag(!occ.IsCompleted), occ.Date.String())),
			tgbotapi.NewInlineKeyboardButtonData("✖ Убрать", callbackData(cbOccurrenceRemove, occ.ID, occ.Date.String())),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(msg)
	return err
}

// handlePlace is the drop target: /place <id> <date> <HH:MM>.
func (b *Bot) handlePlace(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 3 {
		return b.sendText(msg.Chat.ID, "Формат: /place 12 2024-05-20 14:30")
	}
	taskID, err := parseTaskID(fields[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	date, err := parseDate(fields[1], b.svc.Reconciler.Today())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	at, err := parseClock(fields[2])
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	at = service.SnapToGrid(at, b.cfg.Planner.SnapMinutes)

	res, err := b.svc.Reconciler.PlaceTask(ctx, taskID, date, at)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	var text string
	switch {
	case res.Outcome == service.PlaceCreated && res.Affected == 1:
		text = fmt.Sprintf("🗓 Задача #%d поставлена на %s в %s.", taskID, service.FormatDate(date), service.FormatClock(at))
	case res.Outcome == service.PlaceCreated:
		text = fmt.Sprintf("🔁 Задача #%d расписана на %d дн. вперёд в %s (записей: %d).", taskID, b.horizonDays(), service.FormatClock(at), res.Affected)
	case res.Affected > 1:
		text = fmt.Sprintf("⏱ Время задачи #%d изменено на %s во всех %d записях.", taskID, service.FormatClock(at), res.Affected)
	default:
		text = fmt.Sprintf("⏱ Задача #%d перенесена на %s в %s.", taskID, service.FormatDate(date), service.FormatClock(at))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleUnschedule(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /unschedule 12")
	}
	n, err := b.svc.Reconciler.UnscheduleTask(ctx, taskID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if n == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Задачи #%d и так нет в расписании.", taskID))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("%s Задача #%d убрана из расписания (записей: %d).", iconPool, taskID, n))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /done 12")
	}
	task, err := b.svc.Catalog.GetTask(ctx, taskID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.setTaskDone(ctx, msg.Chat.ID, task, !task.IsCompleted)
}

func (b *Bot) setTaskDone(ctx context.Context, chatID int64, task *model.Task, done bool) error {
	if err := b.svc.Reconciler.SetTaskCompleted(ctx, task.ID, done); err != nil {
		return b.replyError(chatID, err)
	}
	if done {
		return b.sendText(chatID, fmt.Sprintf("%s Задача «%s» выполнена.", iconDone, escape(normalizeTitle(task.Title))))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ Задача «%s» снова в работе.", escape(normalizeTitle(task.Title))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 12")
	}
	return b.askDeleteConfirmation(ctx, msg.Chat.ID, taskID)
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, taskID uint) error {
	task, err := b.svc.Catalog.GetTask(ctx, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	text := fmt.Sprintf("Удалить задачу «%s» (#%d) вместе со всем расписанием?", escape(normalizeTitle(task.Title)), task.ID)
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", callbackData(cbTaskDeleteConfirm, task.ID)),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Отмена", cbCancel),
	))
	return b.sendWithReplyMarkup(chatID, text, markup)
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, taskID uint) error {
	task, err := b.svc.Catalog.GetTask(ctx, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if err := b.svc.Reconciler.DeleteTask(ctx, taskID); err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(normalizeTitle(task.Title))))
}

// handleEdit applies /edit <id> key=value; key=value.
func (b *Bot) handleEdit(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, changes, err := parseEditArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error())+"\nНапример: <code>/edit 3 title=Бег; time=07:30; days=пн ср пт</code>")
	}
	task, err := b.svc.Catalog.GetTask(ctx, taskID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if err := applyEdits(task, changes, b.svc.Reconciler.Today(), time.Local); err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	if err := b.svc.Reconciler.EditTask(ctx, task); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "✏️ Задача обновлена:\n"+formatTaskLine(*task, false))
}

func applyEdits(task *model.Task, changes []editField, today civil.Date, loc *time.Location) error {
	for _, change := range changes {
		value := change.value
		switch change.key {
		case "title":
			task.Title = value
		case "desc", "description":
			if isSkipInput(value) {
				value = ""
			}
			task.Description, _ = clipDescription(value)
		case "duration":
			minutes, unlimited, err := parseDuration(value)
			if err != nil {
				return err
			}
			if unlimited {
				if task.Daily == nil {
					return fmt.Errorf("весь день доступен только для повторяющихся задач")
				}
				task.Daily.IsUnlimited = true
				continue
			}
			task.DurationMinutes = minutes
		case "time":
			if isSkipInput(value) {
				task.ScheduledTime = nil
				continue
			}
			t, err := parseClock(value)
			if err != nil {
				return err
			}
			task.ScheduledTime = &t
		case "days":
			if task.Daily == nil {
				return fmt.Errorf("дни недели есть только у повторяющихся задач")
			}
			days, err := parseWeekdays(value)
			if err != nil {
				return err
			}
			task.Daily.Weekdays = days
		case "unlimited":
			if task.Daily == nil {
				return fmt.Errorf("весь день доступен только для повторяющихся задач")
			}
			task.Daily.IsUnlimited = isYes(value)
		case "date":
			if task.Single == nil {
				return fmt.Errorf("дата есть только у разовых задач")
			}
			if isSkipInput(value) {
				task.Single.ExecutionDate = nil
				continue
			}
			at, err := parseDateTime(value, today, loc)
			if err != nil {
				return err
			}
			task.Single.ExecutionDate = &at
		default:
			return fmt.Errorf("неизвестное поле %q", change.key)
		}
	}
	return nil
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) error {
	days := b.horizonDays()
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 0 || n > 366 {
			return b.sendText(msg.Chat.ID, "Количество дней должно быть числом от 0 до 366.")
		}
		days = n
	}

	from := b.svc.Reconciler.Today()
	to := from.AddDays(days)
	occs, err := b.svc.Occurrences.OccurrencesBetween(ctx, from, to)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	ics := calendar.Export(occs, time.Local, time.Now())
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("planner-%s.ics", from.String()),
		Bytes: []byte(ics),
	})
	doc.Caption = fmt.Sprintf("📤 Расписание %s – %s, записей: %d", service.FormatDate(from), service.FormatDate(to), len(occs))
	if _, err := b.api.Send(doc); err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", msg.Chat.ID).Int("occurrences", len(occs)).Msg("schedule exported")
	return nil
}

func (b *Bot) horizonDays() int {
	if b.cfg.Planner.HorizonDays > 0 {
		return b.cfg.Planner.HorizonDays
	}
	return service.DefaultHorizonDays
}
