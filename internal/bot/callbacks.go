package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data is "<kind>:<id>[:<arg>...]" and stays under Telegram's 64 byte limit.
const (
	cbTaskDone          = "tdone"
	cbTaskDelete        = "tdel"
	cbTaskDeleteConfirm = "tdelok"
	cbOccurrenceDone    = "odone"
	cbOccurrenceRemove  = "orm"
	cbCancel            = "cancel"
)

func callbackData(kind string, id uint, args ...string) string {
	parts := append([]string{kind, strconv.FormatUint(uint64(id), 10)}, args...)
	return strings.Join(parts, ":")
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

type callbackPayload struct {
	kind string
	id   uint
	args []string
}

func parseCallbackData(data string) (callbackPayload, error) {
	parts := strings.Split(data, ":")
	if len(parts) == 1 && parts[0] == cbCancel {
		return callbackPayload{kind: cbCancel}, nil
	}
	if len(parts) < 2 {
		return callbackPayload{}, fmt.Errorf("malformed callback data %q", data)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return callbackPayload{}, fmt.Errorf("malformed callback id in %q", data)
	}
	return callbackPayload{kind: parts[0], id: uint(id), args: parts[2:]}, nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("answer callback")
	}
	chatID := cb.Message.Chat.ID
	b.rememberChat(chatID)

	payload, err := parseCallbackData(cb.Data)
	if err != nil {
		return err
	}

	switch payload.kind {
	case cbCancel:
		return b.sendText(chatID, "Ок, ничего не меняю.")
	case cbTaskDone:
		if len(payload.args) != 1 {
			return fmt.Errorf("malformed callback data %q", cb.Data)
		}
		task, err := b.svc.Catalog.GetTask(ctx, payload.id)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.setTaskDone(ctx, chatID, task, payload.args[0] == "1")
	case cbTaskDelete:
		return b.askDeleteConfirmation(ctx, chatID, payload.id)
	case cbTaskDeleteConfirm:
		return b.deleteTask(ctx, chatID, payload.id)
	case cbOccurrenceDone:
		if len(payload.args) != 2 {
			return fmt.Errorf("malformed callback data %q", cb.Data)
		}
		date, err := civil.ParseDate(payload.args[1])
		if err != nil {
			return fmt.Errorf("callback date: %w", err)
		}
		if err := b.svc.Reconciler.SetOccurrenceCompleted(ctx, payload.id, payload.args[0] == "1"); err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendDay(ctx, chatID, date)
	case cbOccurrenceRemove:
		if len(payload.args) != 1 {
			return fmt.Errorf("malformed callback data %q", cb.Data)
		}
		date, err := civil.ParseDate(payload.args[0])
		if err != nil {
			return fmt.Errorf("callback date: %w", err)
		}
		if err := b.svc.Reconciler.UnscheduleOccurrence(ctx, payload.id); err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendDay(ctx, chatID, date)
	default:
		return fmt.Errorf("unknown callback kind %q", payload.kind)
	}
}
