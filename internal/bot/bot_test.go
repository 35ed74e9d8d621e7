package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/events"
	"github.com/opencode-ai/botkit/internal/models"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []telegram.SendMessageParams
	answered []string
	menus    [][]telegram.BotCommand
}

func (f *fakeAPI) GetMe(context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 99, IsBot: true, FirstName: "Test", Username: "TestBot"}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return &telegram.Message{MessageID: int64(len(f.sent)), Chat: telegram.Chat{ID: p.ChatID}, Text: p.Text}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p telegram.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, p.CallbackQueryID)
	return nil
}

func (f *fakeAPI) SetMyCommands(_ context.Context, cmds []telegram.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = append(f.menus, cmds)
	return nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

type memRepo struct {
	mu     sync.Mutex
	events []*models.Event
}

func (r *memRepo) Create(_ context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memRepo) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testCommand struct {
	command.Info
	command.Stateless
	action   func(ctx context.Context, args command.Arguments) (command.Response, error)
	reply    func(ctx context.Context, args command.Arguments) (command.Response, error)
	callback func(ctx context.Context, q command.CallbackQuery) (command.Response, error)
	allow    func(u *telegram.User) bool
}

func (c *testCommand) Action(ctx context.Context, args command.Arguments) (command.Response, error) {
	return c.action(ctx, args)
}

func (c *testCommand) ActionReply(ctx context.Context, args command.Arguments) (command.Response, error) {
	if c.reply == nil {
		return command.Response{}, nil
	}
	return c.reply(ctx, args)
}

type callbackCommand struct{ *testCommand }

func (c callbackCommand) AnswerCallback(ctx context.Context, q command.CallbackQuery) (command.Response, error) {
	return c.callback(ctx, q)
}

type restrictedCommand struct{ *testCommand }

func (c restrictedCommand) Authorize(u *telegram.User) bool { return c.allow(u) }

type harness struct {
	bot   *Bot
	api   *fakeAPI
	queue *outbox.Queue
	repo  *memRepo
}

func newHarness(t *testing.T, cfg Config, cmds ...command.Command) *harness {
	t.Helper()
	api := &fakeAPI{}
	q := outbox.New(api, outbox.Config{
		SaturationLimit: 100,
		StandardWait:    2 * time.Millisecond,
		FailureWait:     5 * time.Millisecond,
		RateLimitWait:   time.Second,
		Window:          time.Minute,
	}, outbox.WithLogger(zerolog.Nop()))
	t.Cleanup(func() {
		q.ForceStop()
		<-q.Done()
	})

	d, err := command.NewDispatcher(command.Config{}, command.Commands(cmds...))
	require.NoError(t, err)

	repo := &memRepo{}
	b := New(d, q, cfg, WithLogger(zerolog.Nop()), WithRecorder(events.NewRecorder(repo)))
	return &harness{bot: b, api: api, queue: q, repo: repo}
}

// settle waits until every enqueued action has run.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.queue.Stats().Pending == 0 }, time.Second, time.Millisecond)
	passes := h.queue.Stats().Passes
	require.Eventually(t, func() bool { return h.queue.Stats().Passes >= passes+2 }, time.Second, time.Millisecond)
}

var (
	ann = &telegram.User{ID: 1, FirstName: "Ann", Username: "ann"}
	bob = &telegram.User{ID: 2, FirstName: "Bob", Username: "bob"}
)

func message(from *telegram.User, text string) *telegram.Message {
	return &telegram.Message{MessageID: 10, From: from, Chat: telegram.Chat{ID: 500, Type: "private"}, Text: text}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Handle = "TestBot"
	cfg.Flood = FloodConfig{Rate: -1}
	return cfg
}

func TestStartLearnsHandleAndPublishesMenu(t *testing.T) {
	cfg := testConfig()
	cfg.Handle = ""
	h := newHarness(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.bot.Start(ctx))
	assert.Equal(t, "TestBot", h.bot.Handle())

	h.settle(t)
	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	require.Len(t, h.api.menus, 1)
	names := make([]string, 0, len(h.api.menus[0]))
	for _, c := range h.api.menus[0] {
		names = append(names, c.Command)
	}
	assert.Contains(t, names, "help")
	assert.Contains(t, names, "start")
}

func TestHandleMessageStripsHandle(t *testing.T) {
	h := newHarness(t, testConfig())

	h.bot.HandleUpdate(context.Background(), telegram.Update{Message: message(ann, "/start@testbot")})
	h.settle(t)

	assert.Equal(t, []string{"Hello! Welcome! Please type /help"}, h.api.texts())
	assert.EqualValues(t, 10, h.api.sent[0].ReplyToMessageID)
	assert.Contains(t, h.repo.types(), models.EventTypeCommandCalled)
}

func TestErrorReplies(t *testing.T) {
	bad := &testCommand{
		Info: command.Info{Name: "/bad"},
		action: func(_ context.Context, args command.Arguments) (command.Response, error) {
			return command.Response{}, command.InvalidArguments(args.ArgString, "needs a number")
		},
	}
	boom := &testCommand{
		Info: command.Info{Name: "/boom"},
		action: func(context.Context, command.Arguments) (command.Response, error) {
			return command.Response{}, errors.New("kaboom")
		},
	}
	secret := restrictedCommand{&testCommand{
		Info:  command.Info{Name: "/secret"},
		allow: func(u *telegram.User) bool { return u != nil && u.ID == ann.ID },
		action: func(_ context.Context, args command.Arguments) (command.Response, error) {
			return command.Reply(args, false, "the secret"), nil
		},
	}}
	h := newHarness(t, testConfig(), bad, boom, secret)
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message(bob, "/bad x"))
	h.settle(t)
	require.Len(t, h.api.texts(), 1)
	assert.Contains(t, h.api.texts()[0], "Invalid Command Argument: ")
	assert.Contains(t, h.api.texts()[0], "needs a number")

	h.bot.HandleMessage(ctx, message(bob, "/boom"))
	h.settle(t)
	assert.Len(t, h.api.texts(), 1, "processing failures are not shown")

	h.bot.HandleMessage(ctx, message(bob, "/secret"))
	h.settle(t)
	require.Len(t, h.api.texts(), 2)
	assert.Contains(t, h.api.texts()[1], "Permission denied: ")

	h.bot.HandleMessage(ctx, message(ann, "/secret"))
	h.settle(t)
	assert.Equal(t, "the secret", h.api.texts()[2])

	types := h.repo.types()
	assert.Contains(t, types, models.EventTypeCommandFailed)
	assert.Contains(t, types, models.EventTypeUserDenied)
}

func TestErrorsWithoutSlashAreSilent(t *testing.T) {
	bad := &testCommand{
		Info: command.Info{Name: "bad"},
		action: func(_ context.Context, args command.Arguments) (command.Response, error) {
			return command.Response{}, command.InvalidArguments(args.ArgString, "no")
		},
	}
	h := newHarness(t, testConfig(), bad)

	h.bot.HandleMessage(context.Background(), message(bob, "bad input"))
	h.settle(t)
	assert.Empty(t, h.api.texts())
	assert.Contains(t, h.repo.types(), models.EventTypeCommandFailed)
}

func TestNormalMessagesOnlyReachHeldUsers(t *testing.T) {
	convo := &testCommand{
		Info: command.Info{Name: "/talk"},
		action: func(_ context.Context, args command.Arguments) (command.Response, error) {
			return command.Reply(args, true, "say something"), nil
		},
		reply: func(_ context.Context, args command.Arguments) (command.Response, error) {
			return command.Reply(args, false, "you said "+args.ArgString), nil
		},
	}
	cfg := testConfig()
	cfg.ProcessNormalMessages = false
	h := newHarness(t, cfg, convo)
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message(ann, "hello"))
	h.settle(t)
	assert.Empty(t, h.api.texts())

	h.bot.HandleMessage(ctx, message(ann, "/talk"))
	h.settle(t)
	h.bot.HandleMessage(ctx, message(ann, "hello"))
	h.settle(t)
	assert.Equal(t, []string{"say something", "you said hello"}, h.api.texts())
	assert.Contains(t, h.repo.types(), models.EventTypeCommandHeld)

	_, held := h.bot.Dispatcher().Held(ann.ID)
	assert.False(t, held)
}

func TestAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.AllowFrom = []string{"@Ann", "777"}
	h := newHarness(t, cfg)

	assert.True(t, h.bot.IsAllowed(ann, telegram.Chat{}))
	assert.False(t, h.bot.IsAllowed(bob, telegram.Chat{}))
	assert.True(t, h.bot.IsAllowed(&telegram.User{ID: 777}, telegram.Chat{}))
	assert.True(t, h.bot.IsAllowed(nil, telegram.Chat{ID: 777}))
	assert.False(t, h.bot.IsAllowed(nil, telegram.Chat{ID: -5, Username: "news"}))

	h.bot.HandleMessage(context.Background(), message(bob, "/start"))
	h.settle(t)
	assert.Empty(t, h.api.texts())
	assert.Equal(t, []models.EventType{models.EventTypeUserDenied}, h.repo.types())
}

func TestFloodGuardDropsMessages(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := NewFloodGuard(FloodConfig{Rate: 0.001, Burst: 1}, WithFloodClock(func() time.Time { return now }))

	api := &fakeAPI{}
	q := outbox.New(api, outbox.Config{StandardWait: 2 * time.Millisecond}, outbox.WithLogger(zerolog.Nop()))
	t.Cleanup(func() {
		q.ForceStop()
		<-q.Done()
	})
	d, err := command.NewDispatcher(command.Config{})
	require.NoError(t, err)
	repo := &memRepo{}
	b := New(d, q, testConfig(), WithFloodGuard(guard), WithRecorder(events.NewRecorder(repo)), WithLogger(zerolog.Nop()))

	b.HandleMessage(context.Background(), message(ann, "/start"))
	b.HandleMessage(context.Background(), message(ann, "/start"))

	require.Eventually(t, func() bool { return len(api.texts()) == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, guard.Denied(ann.ID))
	assert.Contains(t, repo.types(), models.EventTypeUserFlooded)
}

func TestMessageFilter(t *testing.T) {
	api := &fakeAPI{}
	q := outbox.New(api, outbox.Config{StandardWait: 2 * time.Millisecond}, outbox.WithLogger(zerolog.Nop()))
	t.Cleanup(func() {
		q.ForceStop()
		<-q.Done()
	})
	d, err := command.NewDispatcher(command.Config{})
	require.NoError(t, err)

	b := New(d, q, testConfig(), WithLogger(zerolog.Nop()), WithMessageFilter(func(m *telegram.Message) bool {
		return m.Chat.Type == "private"
	}))

	group := message(ann, "/start")
	group.Chat.Type = "group"
	b.HandleMessage(context.Background(), group)
	b.HandleMessage(context.Background(), message(ann, "/start"))

	require.Eventually(t, func() bool { return len(api.texts()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "Hello! Welcome! Please type /help", api.texts()[0])
}

func TestChannelPostsAreAnonymous(t *testing.T) {
	h := newHarness(t, testConfig())

	post := &telegram.Message{MessageID: 3, Chat: telegram.Chat{ID: -100, Type: "channel"}, Text: "/start"}
	h.bot.HandleUpdate(context.Background(), telegram.Update{ChannelPost: post})
	h.settle(t)

	require.Equal(t, []string{"Hello! Welcome! Please type /help"}, h.api.texts())
	assert.EqualValues(t, -100, h.api.sent[0].ChatID)
}

func TestCallbackRouting(t *testing.T) {
	buttons := callbackCommand{&testCommand{
		Info: command.Info{Name: "/buttons"},
		action: func(_ context.Context, args command.Arguments) (command.Response, error) {
			return command.Response{}, nil
		},
		callback: func(_ context.Context, q command.CallbackQuery) (command.Response, error) {
			return command.Response{Actions: []outbox.Action{
				command.SendTexts(q.Message.Chat.ID, 0, "pressed "+q.Data),
			}}, nil
		},
	}}
	h := newHarness(t, testConfig(), buttons)
	ctx := context.Background()

	h.bot.HandleUpdate(ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-1",
		From:    *ann,
		Message: message(nil, "pick one"),
		Data:    command.SignFor(buttons, "red"),
	}})
	h.bot.HandleUpdate(ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb-2",
		From: *ann,
		Data: "unsigned",
	}})
	h.settle(t)

	assert.Equal(t, []string{"pressed red"}, h.api.texts())
	h.api.mu.Lock()
	assert.ElementsMatch(t, []string{"cb-1", "cb-2"}, h.api.answered)
	h.api.mu.Unlock()
	assert.Contains(t, h.repo.types(), models.EventTypeCallbackRouted)
}

func TestIgnoresOtherUpdates(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bot.HandleUpdate(context.Background(), telegram.Update{UpdateID: 5, EditedMessage: message(ann, "/start")})
	h.settle(t)
	assert.Empty(t, h.api.texts())
}

func TestSendText(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bot.SendText(42, "a", "", "b")
	h.settle(t)
	assert.Equal(t, []string{"a", "b"}, h.api.texts())
}

func TestRecordLosses(t *testing.T) {
	repo := &memRepo{}
	handler := RecordLosses(events.NewRecorder(repo), "outbox")
	handler(outbox.Loss{Dispatched: 2, RateLimited: true, Err: telegram.ErrTooManyRequests})

	require.Len(t, repo.events, 1)
	assert.Equal(t, models.EventTypeQueueDataLost, repo.events[0].Type)
	assert.Equal(t, "outbox", repo.events[0].EntityID)
	assert.Contains(t, string(repo.events[0].Payload), `"rate_limited":true`)
}

func TestStripHandle(t *testing.T) {
	h := newHarness(t, testConfig())
	assert.Equal(t, "/help start", h.bot.stripHandle("/help@TESTBOT start"))
	assert.Equal(t, "hi  there", h.bot.stripHandle("hi @testbot there"))
	assert.Equal(t, "/help@other", h.bot.stripHandle("/help@other"))
}
