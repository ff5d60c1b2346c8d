package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-planner/internal/config"
	"timeline-planner/internal/model"
	"timeline-planner/internal/repository"
	"timeline-planner/internal/service"
)

const chatID int64 = 7

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopOnce sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Text
}

// 2024-01-01 is a Monday.
var now = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.Local)

func setupBot(t *testing.T, mutate ...func(*config.Config)) (*Bot, *fakeAPI) {
	t.Helper()
	db, err := repository.NewDB(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := config.Config{
		Env:      "local",
		Telegram: config.TelegramConfig{Token: "test"},
		Planner:  config.PlannerConfig{HorizonDays: 14, SnapMinutes: 15, ReportTime: "08:00"},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	log := zerolog.Nop()
	store := repository.NewStore(db)
	catalog := service.NewTaskService(store, log)
	occs := service.NewOccurrenceService(store, log)
	mat := service.NewMaterializer(cfg.Planner.HorizonDays, log)
	svc := Services{
		Reconciler:  service.NewReconciler(store, catalog, occs, mat, log, service.WithClock(func() time.Time { return now })),
		Catalog:     catalog,
		Occurrences: occs,
		Reminders:   service.NewReminderService(catalog, occs),
	}
	api := newFakeAPI()
	return newBot(api, cfg, svc, log), api
}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func textMessage(id int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: id, FirstName: "Аня"},
		Chat: privateChat(id),
		Text: text,
	}
}

func commandMessage(id int64, text string) *tgbotapi.Message {
	msg := textMessage(id, text)
	cmd, _, _ := strings.Cut(text, " ")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return msg
}

func send(b *Bot, msg *tgbotapi.Message) {
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func say(b *Bot, lines ...string) {
	for _, line := range lines {
		send(b, textMessage(chatID, line))
	}
}

func press(b *Bot, data string) {
	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: privateChat(chatID)},
	}})
}

func occurrencesOn(t *testing.T, b *Bot, d civil.Date) []model.Occurrence {
	t.Helper()
	occs, err := b.svc.Occurrences.OccurrencesForDate(context.Background(), d)
	require.NoError(t, err)
	return occs
}

func addDaily(t *testing.T, b *Bot, title string, at civil.Time, weekdays ...int) uint {
	t.Helper()
	task := &model.Task{
		Title:           title,
		DurationMinutes: 30,
		ScheduledTime:   &at,
		Daily:           &model.DailyDetails{Weekdays: weekdays},
	}
	id, _, err := b.svc.Reconciler.CreateDailyTask(context.Background(), task)
	require.NoError(t, err)
	return id
}

func jan(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: day}
}

func TestBot_NewDailyTaskConversation(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/new"))
	assert.True(t, b.hasConversation(chatID))
	say(b, btnDaily, "Зарядка", "20", btnSkip, "пн ср пт", "07:05")

	assert.False(t, b.hasConversation(chatID))
	assert.Contains(t, api.lastText(t), "Добавлено записей в расписание: 7.")

	tasks, err := b.svc.Catalog.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []int{0, 2, 4}, tasks[0].Daily.Weekdays)
	require.NotNil(t, tasks[0].ScheduledTime)
	assert.Equal(t, civil.Time{Hour: 7}, *tasks[0].ScheduledTime)

	occs := occurrencesOn(t, b, jan(15))
	require.Len(t, occs, 1)
	assert.Equal(t, "Зарядка", occs[0].Title)
	assert.Empty(t, occurrencesOn(t, b, jan(2)))
}

func TestBot_NewDailyTaskWithoutTimeStaysInPool(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/new"))
	say(b, btnDaily, "Чтение", btnUnlimited, "перед сном", btnEveryDay, btnSkip)
	assert.Contains(t, api.lastText(t), "незапланированных")

	send(b, commandMessage(chatID, "/pool"))
	assert.Contains(t, api.lastText(t), "Чтение")
	assert.Contains(t, api.lastText(t), "весь день")
}

func TestBot_ConversationRejectsBadInput(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/new"))
	say(b, "что-то", btnSingle, "Письмо")
	say(b, btnUnlimited)
	assert.Contains(t, api.lastText(t), "только для повторяющихся")
	say(b, "0")
	assert.Contains(t, api.lastText(t), "от 1 до 1440")
	say(b, "25", btnSkip, "послезавтра утром")
	assert.True(t, b.hasConversation(chatID))

	say(b, btnCancelDialog)
	assert.False(t, b.hasConversation(chatID))
	tasks, err := b.svc.Catalog.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestBot_NewTaskClipsLongDescription(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/new"))
	say(b, btnDaily, "Зарядка", "20", strings.Repeat("д", 301))
	assert.Contains(t, api.lastText(t), "Описание сокращено до 300 символов")
	assert.True(t, b.hasConversation(chatID))

	say(b, "пн ср пт", "07:00")
	assert.False(t, b.hasConversation(chatID))
	assert.Contains(t, api.lastText(t), "Задача сохранена")

	tasks, err := b.svc.Catalog.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, strings.Repeat("д", 300), tasks[0].Description)
	assert.Len(t, occurrencesOn(t, b, jan(1)), 1)
}

func TestBot_SingleTaskPlaceAndMove(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/new"))
	say(b, btnSingle, "Письмо маме", "1:00", btnSkip, btnSkip)
	send(b, commandMessage(chatID, "/pool"))
	assert.Contains(t, api.lastText(t), "Письмо маме")

	send(b, commandMessage(chatID, "/place 1 2024-01-02 09:10"))
	assert.Contains(t, api.lastText(t), "поставлена")
	occs := occurrencesOn(t, b, jan(2))
	require.Len(t, occs, 1)
	assert.Equal(t, civil.Time{Hour: 9, Minute: 15}, occs[0].StartTime)
	assert.Equal(t, 60, occs[0].DurationMinutes)

	send(b, commandMessage(chatID, "/place 1 03.01 11:00"))
	assert.Contains(t, api.lastText(t), "перенесена")
	assert.Empty(t, occurrencesOn(t, b, jan(2)))
	occs = occurrencesOn(t, b, jan(3))
	require.Len(t, occs, 1)
	assert.Equal(t, civil.Time{Hour: 11}, occs[0].StartTime)

	send(b, commandMessage(chatID, "/pool"))
	assert.Equal(t, "Все задачи уже в расписании.", api.lastText(t))

	send(b, commandMessage(chatID, "/unschedule 1"))
	assert.Contains(t, api.lastText(t), "записей: 1")
	assert.Empty(t, occurrencesOn(t, b, jan(3)))
}

func TestBot_PlaceUnscheduledDailyExpandsFromToday(t *testing.T) {
	b, api := setupBot(t)
	task := &model.Task{Title: "Йога", DurationMinutes: 45, Daily: &model.DailyDetails{Weekdays: []int{0}}}
	id, created, err := b.svc.Reconciler.CreateDailyTask(context.Background(), task)
	require.NoError(t, err)
	require.Zero(t, created)

	send(b, commandMessage(chatID, fmt.Sprintf("/place %d +5 18:00", id)))
	assert.Contains(t, api.lastText(t), "записей: 3")
	for _, d := range []civil.Date{jan(1), jan(8), jan(15)} {
		require.Len(t, occurrencesOn(t, b, d), 1, d.String())
	}

	send(b, commandMessage(chatID, fmt.Sprintf("/place %d сегодня 19:00", id)))
	assert.Contains(t, api.lastText(t), "во всех 3 записях")
	assert.Equal(t, civil.Time{Hour: 19}, occurrencesOn(t, b, jan(8))[0].StartTime)
}

func TestBot_PlaceRejectsBadArguments(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/place 1 завтра"))
	assert.Contains(t, api.lastText(t), "Формат")
	send(b, commandMessage(chatID, "/place 1 завтра 25:00"))
	assert.Contains(t, api.lastText(t), "ЧЧ:ММ")
	send(b, commandMessage(chatID, "/place 99 завтра 10:00"))
	assert.Equal(t, "Задача #99 не найдена.", api.lastText(t))
}

func TestBot_DayViewAndOccurrenceCallbacks(t *testing.T) {
	b, api := setupBot(t)
	addDaily(t, b, "Зарядка", civil.Time{Hour: 7}, 0, 1, 2, 3, 4, 5, 6)

	send(b, commandMessage(chatID, "/day"))
	msgs := api.messages()
	last := msgs[len(msgs)-1]
	assert.Contains(t, last.Text, "07:00–07:30")
	markup, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)

	occ := occurrencesOn(t, b, jan(1))[0]
	press(b, callbackData(cbOccurrenceDone, occ.ID, boolFlag(true), jan(1).String()))
	assert.True(t, occurrencesOn(t, b, jan(1))[0].IsCompleted)
	assert.Len(t, api.requests, 1)

	press(b, callbackData(cbOccurrenceRemove, occ.ID, jan(1).String()))
	assert.Empty(t, occurrencesOn(t, b, jan(1)))
	assert.Contains(t, api.lastText(t), "ничего не запланировано")
	assert.Len(t, occurrencesOn(t, b, jan(2)), 1)

	press(b, callbackData(cbOccurrenceRemove, occ.ID, jan(1).String()))
	assert.Equal(t, "Запись в расписании не найдена.", api.lastText(t))
}

func TestBot_EditPropagatesToOccurrences(t *testing.T) {
	b, api := setupBot(t)
	id := addDaily(t, b, "Зарядка", civil.Time{Hour: 7}, 0, 2)

	send(b, commandMessage(chatID, fmt.Sprintf("/edit %d title=Растяжка; time=08:00; duration=40", id)))
	assert.Contains(t, api.lastText(t), "Задача обновлена")

	occ := occurrencesOn(t, b, jan(3))[0]
	assert.Equal(t, "Растяжка", occ.Title)
	assert.Equal(t, civil.Time{Hour: 8}, occ.StartTime)
	assert.Equal(t, 40, occ.DurationMinutes)

	send(b, commandMessage(chatID, fmt.Sprintf("/edit %d days=", id)))
	assert.Contains(t, api.lastText(t), "день недели")
	assert.Equal(t, "Растяжка", occurrencesOn(t, b, jan(3))[0].Title)
}

func TestBot_DoneAndDelete(t *testing.T) {
	b, api := setupBot(t)
	id := addDaily(t, b, "Зарядка", civil.Time{Hour: 7}, 0)

	send(b, commandMessage(chatID, fmt.Sprintf("/done %d", id)))
	assert.Contains(t, api.lastText(t), "выполнена")
	task, err := b.svc.Catalog.GetTask(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, task.IsCompleted)

	press(b, callbackData(cbTaskDone, id, boolFlag(false)))
	assert.Contains(t, api.lastText(t), "снова в работе")

	send(b, commandMessage(chatID, fmt.Sprintf("/delete %d", id)))
	msgs := api.messages()
	_, ok := msgs[len(msgs)-1].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.True(t, ok)

	press(b, cbCancel)
	_, err = b.svc.Catalog.GetTask(context.Background(), id)
	require.NoError(t, err)

	press(b, callbackData(cbTaskDeleteConfirm, id))
	assert.Contains(t, api.lastText(t), "удалена")
	_, err = b.svc.Catalog.GetTask(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, occurrencesOn(t, b, jan(8)))

	send(b, commandMessage(chatID, fmt.Sprintf("/done %d", id)))
	assert.Equal(t, fmt.Sprintf("Задача #%d не найдена.", id), api.lastText(t))
}

func TestBot_ListTasks(t *testing.T) {
	b, api := setupBot(t)
	send(b, commandMessage(chatID, "/tasks"))
	assert.Contains(t, api.lastText(t), "Задач пока нет")

	addDaily(t, b, "Зарядка", civil.Time{Hour: 7}, 0)
	_, err := b.svc.Reconciler.CreateSingleTask(context.Background(), &model.Task{
		Title: "Письмо", DurationMinutes: 10, Single: &model.SingleDetails{},
	})
	require.NoError(t, err)

	send(b, menuMessage(menuLabelTasks))
	msgs := api.messages()
	last := msgs[len(msgs)-1]
	assert.Contains(t, last.Text, "Зарядка")
	assert.Contains(t, last.Text, "Письмо")
	assert.Equal(t, 1, strings.Count(last.Text, "в расписании"))
	markup, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, 2)
}

func menuMessage(label string) *tgbotapi.Message {
	return textMessage(chatID, label)
}

func TestBot_Export(t *testing.T) {
	b, api := setupBot(t)
	addDaily(t, b, "Зарядка", civil.Time{Hour: 7}, 0, 1, 2, 3, 4, 5, 6)

	send(b, commandMessage(chatID, "/export 6"))
	api.mu.Lock()
	doc, ok := api.sent[len(api.sent)-1].(tgbotapi.DocumentConfig)
	api.mu.Unlock()
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "planner-2024-01-01.ics", file.Name)
	assert.True(t, bytes.HasPrefix(file.Bytes, []byte("BEGIN:VCALENDAR")))
	assert.Equal(t, 7, bytes.Count(file.Bytes, []byte("BEGIN:VEVENT")))
	assert.Contains(t, doc.Caption, "записей: 7")

	send(b, commandMessage(chatID, "/export много"))
	assert.Contains(t, api.lastText(t), "от 0 до 366")
}

func TestBot_ReportAndDailyReport(t *testing.T) {
	b, api := setupBot(t)
	addDaily(t, b, "Зарядка", civil.Time{Hour: 7}, 0)

	send(b, commandMessage(chatID, "/report"))
	assert.Contains(t, api.lastText(t), "План на день")
	assert.Contains(t, api.lastText(t), "Зарядка")

	before := len(api.messages())
	require.NoError(t, b.SendDailyReport(context.Background()))
	msgs := api.messages()
	require.Len(t, msgs, before+1)
	assert.Equal(t, chatID, msgs[len(msgs)-1].ChatID)
}

func TestBot_OwnerOnly(t *testing.T) {
	b, api := setupBot(t, func(c *config.Config) { c.Telegram.ChatID = 100 })

	send(b, commandMessage(chatID, "/help"))
	assert.Empty(t, api.messages())

	group := commandMessage(100, "/help")
	group.Chat.Type = "group"
	send(b, group)
	assert.Empty(t, api.messages())

	send(b, commandMessage(100, "/help"))
	assert.Len(t, api.messages(), 1)

	require.NoError(t, b.SendDailyReport(context.Background()))
	msgs := api.messages()
	require.Len(t, msgs, 2)
	assert.EqualValues(t, 100, msgs[1].ChatID)
}

func TestBot_UnknownInput(t *testing.T) {
	b, api := setupBot(t)

	send(b, commandMessage(chatID, "/frobnicate"))
	assert.Contains(t, api.lastText(t), "/help")
	say(b, "привет")
	assert.Contains(t, api.lastText(t), "/new")
}

func TestBot_StartStopsOnCancel(t *testing.T) {
	b, api := setupBot(t)
	api.updates <- tgbotapi.Update{Message: commandMessage(chatID, "/start")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	require.Eventually(t, func() bool { return len(api.messages()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Contains(t, api.lastText(t), "Привет, Аня")
}
