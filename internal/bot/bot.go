package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"timeline-planner/internal/config"
	"timeline-planner/internal/model"
	"timeline-planner/internal/service"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot relies on.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Services groups the planner services the bot drives.
type Services struct {
	Reconciler  *service.Reconciler
	Catalog     *service.TaskService
	Occurrences *service.OccurrenceService
	Reminders   *service.ReminderService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           telegramAPI
	svc           Services
	cfg           config.Config
	log           zerolog.Logger
	conversations map[int64]*conversationState
	chats         map[int64]struct{}
	mu            sync.Mutex
}

func New(cfg config.Config, svc Services, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log = log.With().Str("component", "bot").Logger()
	log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return newBot(api, cfg, svc, log), nil
}

func newBot(api telegramAPI, cfg config.Config, svc Services, log zerolog.Logger) *Bot {
	return &Bot{
		api:           api,
		svc:           svc,
		cfg:           cfg,
		log:           log,
		conversations: make(map[int64]*conversationState),
		chats:         make(map[int64]struct{}),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message == nil || !b.allowed(cb.Message.Chat) {
			return
		}
		if err := b.handleCallback(ctx, cb); err != nil {
			b.log.Error().Err(err).Str("data", cb.Data).Msg("handle callback")
		}
	case update.Message != nil:
		if !b.allowed(update.Message.Chat) {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Int64("chat_id", update.Message.Chat.ID).Msg("handle message")
		}
	}
}

// allowed serves private chats only, and only the owner chat when one is configured.
func (b *Bot) allowed(chat *tgbotapi.Chat) bool {
	if chat == nil || !chat.IsPrivate() {
		return false
	}
	if owner := b.cfg.Telegram.ChatID; owner != 0 && chat.ID != owner {
		b.log.Warn().Int64("chat_id", chat.ID).Msg("ignoring foreign chat")
		return false
	}
	return true
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	b.rememberChat(msg.Chat.ID)

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Info().
			Int64("chat_id", msg.Chat.ID).
			Str("command", msg.Command()).
			Str("args", msg.CommandArguments()).
			Msg("command received")
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.Chat.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /new, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg)
	case "help":
		return b.handleHelp(msg)
	case "new":
		return b.startNewTaskConversation(msg)
	case "tasks":
		return b.handleListTasks(ctx, msg.Chat.ID)
	case "pool":
		return b.handlePool(ctx, msg.Chat.ID)
	case "day":
		return b.handleDay(ctx, msg)
	case "place":
		return b.handlePlace(ctx, msg)
	case "unschedule":
		return b.handleUnschedule(ctx, msg)
	case "edit":
		return b.handleEdit(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "export":
		return b.handleExport(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg.Chat.ID)
	case "cancel":
		b.clearConversation(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(msg)
	case strings.ToLower(menuLabelToday):
		return true, b.sendDay(ctx, msg.Chat.ID, b.svc.Reconciler.Today())
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg.Chat.ID)
	case strings.ToLower(menuLabelPool):
		return true, b.handlePool(ctx, msg.Chat.ID)
	default:
		return false, nil
	}
}

// SendDailyReport sends today's plan to the owner chat, or to every chat seen
// since start when no owner is configured.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	text, err := b.svc.Reminders.DailySummary(ctx, b.svc.Reconciler.Today())
	if err != nil {
		return err
	}

	var errs []error
	for _, chatID := range b.reportChats() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("send report to %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) reportChats() []int64 {
	if owner := b.cfg.Telegram.ChatID; owner != 0 {
		return []int64{owner}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, 0, len(b.chats))
	for id := range b.chats {
		out = append(out, id)
	}
	return out
}

// replyError turns a service error into a user-facing message. Unexpected
// errors are logged and reported generically.
func (b *Bot) replyError(chatID int64, err error) error {
	var verr *model.ValidationError
	var nf *model.NotFoundError
	switch {
	case errors.As(err, &verr):
		return b.sendText(chatID, fmt.Sprintf("⚠️ Проверь данные: %s", escape(validationText(verr))))
	case errors.As(err, &nf):
		if nf.Entity == "occurrence" {
			return b.sendText(chatID, "Запись в расписании не найдена.")
		}
		return b.sendText(chatID, fmt.Sprintf("Задача #%d не найдена.", nf.ID))
	default:
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("planner operation failed")
		return b.sendText(chatID, "Что-то пошло не так, попробуй ещё раз позже.")
	}
}

func (b *Bot) rememberChat(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats[chatID] = struct{}{}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(chatID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[chatID] = state
}

func (b *Bot) getConversation(chatID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[chatID]
}

func (b *Bot) hasConversation(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[chatID]
	return ok
}

func (b *Bot) clearConversation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, chatID)
}
