// Package bot connects Telegram updates to the command dispatcher and sends
// the resulting actions through the outbox.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/events"
	"github.com/opencode-ai/botkit/internal/logging"
	"github.com/opencode-ai/botkit/internal/models"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Config configures inbound message handling.
type Config struct {
	// Handle is the bot username. When empty it is learned with getMe on Start.
	Handle string

	// ProcessNormalMessages routes text without a leading "/" to the
	// dispatcher. Held users are always routed.
	// Default: true.
	ProcessNormalMessages bool

	// PublishCommands sends the help surface with setMyCommands on Start.
	// Default: true.
	PublishCommands bool

	// AllowFrom lists user IDs or usernames allowed to talk to the bot.
	// Empty allows everyone.
	AllowFrom []string

	Flood FloodConfig
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ProcessNormalMessages: true,
		PublishCommands:       true,
		Flood:                 DefaultFloodConfig(),
	}
}

// MessageFilter drops a message before any processing when it returns false.
type MessageFilter func(msg *telegram.Message) bool

// Bot handles updates for one Telegram bot.
type Bot struct {
	config     Config
	dispatcher *command.Dispatcher
	queue      *outbox.Queue
	filter     MessageFilter
	flood      *FloodGuard
	recorder   *events.Recorder
	logger     zerolog.Logger

	mu     sync.RWMutex
	handle string
}

// Option configures a Bot.
type Option func(*Bot)

// WithMessageFilter installs a filter run before everything else.
func WithMessageFilter(f MessageFilter) Option {
	return func(b *Bot) {
		b.filter = f
	}
}

// WithRecorder records audit events.
func WithRecorder(r *events.Recorder) Option {
	return func(b *Bot) {
		b.recorder = r
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bot) {
		b.logger = logger
	}
}

// WithFloodGuard replaces the guard built from Config.Flood.
func WithFloodGuard(g *FloodGuard) Option {
	return func(b *Bot) {
		b.flood = g
	}
}

// New creates a Bot. Actions produced by the dispatcher go to queue.
func New(dispatcher *command.Dispatcher, queue *outbox.Queue, config Config, opts ...Option) *Bot {
	b := &Bot{
		config:     config,
		dispatcher: dispatcher,
		queue:      queue,
		logger:     logging.Component("bot"),
		handle:     strings.TrimPrefix(config.Handle, "@"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.flood == nil {
		b.flood = NewFloodGuard(config.Flood)
	}

	dispatcher.OnCommandCalled(func(ctx context.Context, cmd command.Command, args command.Arguments) {
		b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
			return events.LogCommandCalled(ctx, repo, args.UserID(), models.CommandCalledPayload{
				Trigger: cmd.Trigger(),
				Input:   args.ArgString,
				ChatID:  args.Chat.ID,
			})
		})
	})
	return b
}

// Dispatcher returns the command dispatcher.
func (b *Bot) Dispatcher() *command.Dispatcher {
	return b.dispatcher
}

// Queue returns the outbox.
func (b *Bot) Queue() *outbox.Queue {
	return b.queue
}

// Handle returns the bot username without "@".
func (b *Bot) Handle() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handle
}

// Start learns the bot handle and publishes the command menu.
func (b *Bot) Start(ctx context.Context) error {
	if b.Handle() == "" {
		me, err := outbox.Call(ctx, b.queue, func(ctx context.Context, api telegram.API) (*telegram.User, error) {
			return api.GetMe(ctx)
		})
		if err != nil {
			return fmt.Errorf("get bot identity: %w", err)
		}
		b.mu.Lock()
		b.handle = me.Username
		b.mu.Unlock()
		b.logger.Info().Str("handle", me.Username).Int64("id", me.ID).Msg("bot identity")
	}

	if b.config.PublishCommands {
		cmds := b.dispatcher.Registry().BotCommands()
		b.queue.Enqueue(func(ctx context.Context, api telegram.API) error {
			return api.SetMyCommands(ctx, cmds)
		})
		b.logger.Debug().Int("commands", len(cmds)).Msg("command menu queued")
	}
	return nil
}

// Run starts the bot and processes updates from poller until ctx ends.
func (b *Bot) Run(ctx context.Context, poller *telegram.Poller) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	return poller.Run(ctx, b.HandleUpdate)
}

// HandleUpdate routes one update. Unsupported kinds are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		b.HandleMessage(ctx, u.Message)
	case u.ChannelPost != nil:
		b.HandleMessage(ctx, u.ChannelPost)
	case u.CallbackQuery != nil:
		b.HandleCallback(ctx, u.CallbackQuery)
	default:
		b.logger.Trace().Int64("update_id", u.UpdateID).Msg("ignoring update")
	}
}

// HandleMessage runs msg through the filter, allow-list and flood guard,
// dispatches it and enqueues the resulting actions.
func (b *Bot) HandleMessage(ctx context.Context, msg *telegram.Message) {
	if msg == nil {
		return
	}
	user := msg.From
	log := b.logger.With().Str("user", describe(user)).Int64("chat_id", msg.Chat.ID).Logger()
	log.Debug().Msg("message received")

	if b.filter != nil && !b.filter(msg) {
		log.Debug().Msg("message filtered out")
		return
	}
	if !b.IsAllowed(user, msg.Chat) {
		log.Info().Msg("sender not allowed")
		b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
			return events.LogUserDenied(ctx, repo, userID(user), username(user), "not in allow list")
		})
		return
	}
	if user != nil && !b.flood.Allow(user.ID) {
		log.Debug().Msg("flood limit reached")
		b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
			return events.LogUserFlooded(ctx, repo, user.ID, user.Username)
		})
		return
	}

	text := msg.Content()
	if text == "" {
		return
	}
	slash := strings.HasPrefix(text, "/")
	if !slash && !b.config.ProcessNormalMessages && !b.held(user) {
		return
	}

	text = b.stripHandle(text)
	wasHeld := b.held(user)
	args := b.dispatcher.Resolve(text, user, msg)
	actions, err := b.dispatcher.Call(ctx, args)
	if err != nil {
		b.reportError(ctx, msg, args, slash, err)
		return
	}
	b.queue.Enqueue(actions...)

	if !wasHeld {
		if cmd, ok := b.heldBy(user); ok {
			b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
				return events.LogCommandHeld(ctx, repo, user.ID, cmd.Trigger())
			})
		}
	}
	log.Debug().Str("input", text).Int("actions", len(actions)).Msg("message processed")
}

// HandleCallback answers q and routes it to the command that signed its data.
func (b *Bot) HandleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if q == nil {
		return
	}
	id := q.ID
	b.queue.Enqueue(func(ctx context.Context, api telegram.API) error {
		return api.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{CallbackQueryID: id})
	})

	var chat telegram.Chat
	if q.Message != nil {
		chat = q.Message.Chat
	}
	if !b.IsAllowed(&q.From, chat) {
		b.logger.Info().Str("user", q.From.String()).Msg("callback sender not allowed")
		return
	}
	if !b.flood.Allow(q.From.ID) {
		return
	}

	actions, err := b.dispatcher.Callback(ctx, q)
	switch {
	case errors.Is(err, command.ErrCallbackUnrouted):
		b.logger.Debug().Err(err).Str("data", q.Data).Msg("callback has no trigger bound to it, ignoring")
		return
	case err != nil:
		b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
			return events.LogCommandFailed(ctx, repo, q.From.ID, models.CommandFailedPayload{
				Input: q.Data, Kind: kindOf(err), Error: err.Error(),
			})
		})
		return
	}

	trigger, payload, _ := command.Unsign(q.Data)
	b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
		return events.LogCallbackRouted(ctx, repo, q.From.ID, trigger, payload)
	})
	b.queue.Enqueue(actions...)
}

// SendText enqueues a plain message to chatID.
func (b *Bot) SendText(chatID int64, texts ...string) {
	if action := command.SendTexts(chatID, 0, texts...); action != nil {
		b.queue.Enqueue(action)
	}
}

// IsAllowed reports whether the sender may use the bot. Entries of AllowFrom
// match a user ID or a username with or without "@". Anonymous posts are
// matched by chat ID and chat username.
func (b *Bot) IsAllowed(user *telegram.User, chat telegram.Chat) bool {
	if len(b.config.AllowFrom) == 0 {
		return true
	}
	var ids []string
	if user != nil {
		ids = append(ids, strconv.FormatInt(user.ID, 10), user.Username)
	} else {
		ids = append(ids, strconv.FormatInt(chat.ID, 10), chat.Username)
	}
	for _, allowed := range b.config.AllowFrom {
		allowed = strings.TrimPrefix(strings.TrimSpace(allowed), "@")
		if allowed == "" {
			continue
		}
		for _, id := range ids {
			if id != "" && strings.EqualFold(allowed, id) {
				return true
			}
		}
	}
	return false
}

func (b *Bot) held(user *telegram.User) bool {
	_, ok := b.heldBy(user)
	return ok
}

func (b *Bot) heldBy(user *telegram.User) (command.Command, bool) {
	if user == nil {
		return nil, false
	}
	return b.dispatcher.Held(user.ID)
}

// stripHandle removes "@handle" so "/help@mybot" dispatches as "/help".
func (b *Bot) stripHandle(text string) string {
	handle := b.Handle()
	if handle == "" {
		return text
	}
	mention := "@" + handle
	var out strings.Builder
	for i := 0; i < len(text); {
		if i+len(mention) <= len(text) && strings.EqualFold(text[i:i+len(mention)], mention) {
			i += len(mention)
			continue
		}
		out.WriteByte(text[i])
		i++
	}
	return out.String()
}

// reportError records err and, for "/" input, tells the user what went wrong.
// Processing failures are never shown to the user.
func (b *Bot) reportError(ctx context.Context, msg *telegram.Message, args command.Arguments, slash bool, err error) {
	b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
		return events.LogCommandFailed(ctx, repo, args.UserID(), models.CommandFailedPayload{
			Input: args.ArgString, Kind: kindOf(err), Error: err.Error(),
		})
	})
	if errors.Is(err, command.ErrUserRights) {
		b.recorder.Do(ctx, func(ctx context.Context, repo events.Repository) error {
			return events.LogUserDenied(ctx, repo, args.UserID(), username(args.User), err.Error())
		})
	}

	if !slash {
		return
	}
	var prefix string
	switch {
	case errors.Is(err, command.ErrInvalidArguments):
		prefix = "Invalid Command Argument: "
	case errors.Is(err, command.ErrUserRights):
		prefix = "Permission denied: "
	case errors.Is(err, command.ErrProcessingFailure):
		return
	case errors.Is(err, command.ErrInvalidCommand):
		prefix = "Invalid Command: "
	default:
		return
	}
	b.queue.Enqueue(command.SendTexts(msg.Chat.ID, msg.MessageID, prefix+err.Error()))
	b.logger.Debug().Str("input", args.ArgString).Str("user", describe(args.User)).Msg(strings.TrimSuffix(prefix, ": "))
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, command.ErrInvalidArguments):
		return "invalid_arguments"
	case errors.Is(err, command.ErrUserRights):
		return "user_rights"
	case errors.Is(err, command.ErrProcessingFailure):
		return "processing_failure"
	case errors.Is(err, command.ErrInvalidCommand):
		return "invalid_command"
	default:
		return "unknown"
	}
}

func describe(u *telegram.User) string {
	if u == nil {
		return "anonymous"
	}
	return u.String()
}

func userID(u *telegram.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func username(u *telegram.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}

// RecordLosses returns an outbox loss handler that writes queue.data_lost
// events.
func RecordLosses(rec *events.Recorder, queue string) func(outbox.Loss) {
	return func(l outbox.Loss) {
		p := models.DataLostPayload{Dispatched: l.Dispatched, RateLimited: l.RateLimited}
		if l.Err != nil {
			p.Error = l.Err.Error()
		}
		rec.Do(context.Background(), func(ctx context.Context, repo events.Repository) error {
			return events.LogDataLost(ctx, repo, queue, p)
		})
	}
}
