package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeline-planner/internal/model"
	"timeline-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageType
	stageTitle
	stageDuration
	stageDescription
	stageWeekdays
	stageDailyTime
	stageExecution
)

type conversationState struct {
	stage conversationStage
	task  model.Task
}

func (s *conversationState) recurring() bool {
	return s.task.Daily != nil
}

func (b *Bot) startNewTaskConversation(msg *tgbotapi.Message) error {
	b.log.Info().Int64("chat_id", msg.Chat.ID).Msg("start new task conversation")
	b.setConversation(msg.Chat.ID, &conversationState{stage: stageType})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> разовая или повторяющаяся?", typeKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.Chat.ID)
	if state == nil {
		return nil
	}
	b.log.Debug().Int64("chat_id", msg.Chat.ID).Int("stage", int(state.stage)).Msg("conversation step")

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageType:
		switch strings.ToLower(text) {
		case strings.ToLower(btnSingle), "разовая", "1":
			state.task.Single = &model.SingleDetails{}
		case strings.ToLower(btnDaily), "повторяющаяся", "2":
			state.task.Daily = &model.DailyDetails{}
		default:
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери вариант кнопкой ниже.", typeKeyboard())
		}
		state.stage = stageTitle
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Шаг 2:</b> как назвать задачу?", cancelKeyboard())
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Название не может быть пустым.", cancelKeyboard())
		}
		state.task.Title = text
		state.stage = stageDuration
		prompt := "⏱ Сколько минут займёт? Можно <code>45</code> или <code>1:30</code>."
		if state.recurring() {
			prompt += " Для фоновой задачи на весь день нажми «" + btnUnlimited + "»."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, durationKeyboard(state.recurring()))
	case stageDuration:
		minutes, unlimited, err := parseDuration(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error()), durationKeyboard(state.recurring()))
		}
		switch {
		case unlimited && !state.recurring():
			return b.sendWithReplyMarkup(msg.Chat.ID, "«Весь день» доступен только для повторяющихся задач.", durationKeyboard(false))
		case unlimited:
			state.task.Daily.IsUnlimited = true
		case minutes <= 0 || minutes > model.UnlimitedDurationMinutes:
			return b.sendWithReplyMarkup(msg.Chat.ID, "Длительность должна быть от 1 до 1440 минут.", durationKeyboard(state.recurring()))
		default:
			state.task.DurationMinutes = minutes
		}
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		var note string
		if !isSkipInput(text) {
			var clipped bool
			state.task.Description, clipped = clipDescription(text)
			if clipped {
				note = fmt.Sprintf("✂️ Описание сокращено до %d символов.\n", maxDescriptionRunes)
			}
		}
		if state.recurring() {
			state.stage = stageWeekdays
			return b.sendWithReplyMarkup(msg.Chat.ID, note+"📆 По каким дням? Например <code>пн ср пт</code> или кнопка ниже.", weekdaysKeyboard())
		}
		state.stage = stageExecution
		return b.sendWithReplyMarkup(msg.Chat.ID, note+"📅 Когда выполнить? Например <code>завтра 09:30</code> (или «Пропустить»).", skipKeyboard())
	case stageWeekdays:
		days, err := parseWeekdays(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error()), weekdaysKeyboard())
		}
		state.task.Daily.Weekdays = days
		state.stage = stageDailyTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "🕘 Во сколько? <code>ЧЧ:ММ</code>. Пропусти, чтобы задача осталась в списке незапланированных.", skipKeyboard())
	case stageDailyTime:
		if !isSkipInput(text) {
			at, err := parseClock(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error()), skipKeyboard())
			}
			at = service.SnapToGrid(at, b.cfg.Planner.SnapMinutes)
			state.task.ScheduledTime = &at
		}
		err := b.finishTaskCreation(ctx, msg.Chat.ID, state.task)
		b.clearConversation(msg.Chat.ID)
		return err
	case stageExecution:
		if !isSkipInput(text) {
			at, err := parseDateTime(text, b.svc.Reconciler.Today(), time.Local)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error()), skipKeyboard())
			}
			state.task.Single.ExecutionDate = &at
		}
		err := b.finishTaskCreation(ctx, msg.Chat.ID, state.task)
		b.clearConversation(msg.Chat.ID)
		return err
	default:
		b.clearConversation(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /new.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, task model.Task) error {
	var (
		id      uint
		created int
		err     error
	)
	if task.Daily != nil {
		id, created, err = b.svc.Reconciler.CreateDailyTask(ctx, &task)
	} else {
		id, err = b.svc.Reconciler.CreateSingleTask(ctx, &task)
	}
	if err != nil {
		return b.replyError(chatID, err)
	}

	b.log.Info().Uint("task_id", id).Str("type", string(task.Type())).Int("occurrences", created).Msg("task created")

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(formatTaskLine(task, created > 0))
	switch {
	case created > 0:
		summary.WriteString(fmt.Sprintf("\n🔁 Добавлено записей в расписание: %d.", created))
	default:
		summary.WriteString(fmt.Sprintf("\n%s Задача в списке незапланированных. Поставь её командой <code>/place %d дата ЧЧ:ММ</code>.", iconPool, id))
	}
	return b.sendText(chatID, summary.String())
}
