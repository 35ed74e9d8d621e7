package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/logging"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// ErrCallbackUnrouted is returned for callback data that names no known command.
var ErrCallbackUnrouted = errors.New("callback has no owning command")

// Provider produces command instances for registration.
type Provider func() ([]Command, error)

// Commands returns a Provider over a fixed list.
func Commands(cmds ...Command) Provider {
	return func() ([]Command, error) { return cmds, nil }
}

// Observer is notified of every command invocation, before its hold flag is applied.
type Observer func(ctx context.Context, cmd Command, args Arguments)

// Config contains dispatcher configuration.
type Config struct {
	Match MatchConfig

	// Key limits which Keyed commands load. KeyAny loads all.
	Key Key
}

// Dispatcher routes arguments to commands and tracks held users.
type Dispatcher struct {
	config   Config
	registry *Registry
	logger   zerolog.Logger

	mu        sync.RWMutex
	held      map[int64]Command
	observers []Observer
}

// NewDispatcher registers the commands of every provider, then adds the
// help, start and default commands unless a provider supplied them.
func NewDispatcher(config Config, providers ...Provider) (*Dispatcher, error) {
	d := &Dispatcher{
		config:   config,
		registry: NewRegistry(config.Match),
		logger:   logging.Component("dispatcher"),
		held:     make(map[int64]Command),
	}
	for _, p := range providers {
		if err := d.Load(p); err != nil {
			return nil, err
		}
	}
	if err := d.registerBuiltins(); err != nil {
		return nil, err
	}
	return d, nil
}

// Load registers the commands of p whose keys match the dispatcher key.
func (d *Dispatcher) Load(p Provider) error {
	cmds, err := p()
	if err != nil {
		return fmt.Errorf("load commands: %w", err)
	}
	for _, cmd := range cmds {
		if k, ok := cmd.(Keyed); ok && !k.BotKeys().Matches(d.config.Key) {
			d.logger.Debug().Str("trigger", cmd.Trigger()).Msg("command skipped for this bot key")
			continue
		}
		if err := d.registry.Register(cmd); err != nil {
			return err
		}
		d.logger.Debug().Str("trigger", cmd.Trigger()).Msg("command registered")
	}
	return nil
}

func (d *Dispatcher) registerBuiltins() error {
	builtins := []Command{NewHelp(d.registry), Start{}, Default{}}
	for _, cmd := range builtins {
		if d.registry.Has(cmd.Trigger()) {
			continue
		}
		if err := d.registry.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// OnCommandCalled adds an observer.
func (d *Dispatcher) OnCommandCalled(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Resolve builds Arguments for input.
func (d *Dispatcher) Resolve(input string, user *telegram.User, message *telegram.Message) Arguments {
	return NewArguments(input, user, message)
}

// Held returns the command holding userID, if any.
func (d *Dispatcher) Held(userID int64) (Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmd, ok := d.held[userID]
	return cmd, ok
}

// CancelHeld releases userID and cancels the holding command's state.
func (d *Dispatcher) CancelHeld(userID int64) bool {
	cmd, ok := d.release(userID)
	if ok {
		cmd.Cancel(userID)
	}
	return ok
}

func (d *Dispatcher) hold(userID int64, cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held[userID] = cmd
}

func (d *Dispatcher) release(userID int64) (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd, ok := d.held[userID]
	delete(d.held, userID)
	return cmd, ok
}

// Call runs the command for args and returns its outbound actions.
func (d *Dispatcher) Call(ctx context.Context, args Arguments) ([]outbox.Action, error) {
	if args.User != nil {
		if cmd, ok := d.Held(args.User.ID); ok {
			return d.replyCall(ctx, cmd, args)
		}
	}

	cmd := d.match(args)
	if a, ok := cmd.(Authorizer); ok && !a.Authorize(args.User) {
		return nil, d.fail(args, UserRights(cmd.Trigger(), "not authorized"))
	}

	resp, err := invoke(ctx, cmd.Action, args)
	d.notify(ctx, cmd, args)
	if err != nil {
		return nil, d.fail(args, err)
	}
	d.applyHold(cmd, args, resp.Hold)
	return resp.Actions, nil
}

func (d *Dispatcher) replyCall(ctx context.Context, cmd Command, args Arguments) ([]outbox.Action, error) {
	resp, err := invoke(ctx, cmd.ActionReply, args)
	if err != nil {
		d.release(args.User.ID)
		cmd.Cancel(args.User.ID)
		return nil, d.fail(args, err)
	}
	if !resp.Hold {
		d.release(args.User.ID)
	}
	return resp.Actions, nil
}

// Callback routes a button press to the command whose trigger signed its data.
func (d *Dispatcher) Callback(ctx context.Context, query *telegram.CallbackQuery) ([]outbox.Action, error) {
	trigger, payload, ok := Unsign(query.Data)
	if !ok {
		return nil, ErrCallbackUnrouted
	}
	cmd := d.registry.Get(trigger)
	if cmd == nil {
		return nil, fmt.Errorf("%w: %s", ErrCallbackUnrouted, trigger)
	}
	handler, ok := cmd.(CallbackHandler)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not answer callbacks", ErrCallbackUnrouted, trigger)
	}

	d.logger.Trace().Str("trigger", trigger).Str("data", payload).Msg("routing callback")

	user := query.From
	args := Arguments{ArgString: payload, Args: SplitArgs(payload), User: &user, Message: query.Message}
	if query.Message != nil {
		args.Chat = query.Message.Chat
	}
	if a, ok := cmd.(Authorizer); ok && !a.Authorize(&user) {
		return nil, d.fail(args, UserRights(trigger, "not authorized"))
	}

	resp, err := handler.AnswerCallback(ctx, CallbackQuery{
		ID:      query.ID,
		Data:    payload,
		User:    user,
		Message: query.Message,
	})
	if err != nil {
		return nil, d.fail(args, err)
	}
	d.applyHold(cmd, args, resp.Hold)
	return resp.Actions, nil
}

func (d *Dispatcher) match(args Arguments) Command {
	input := args.Head()
	if d.config.Match.AcceptMultiWordTriggers {
		input = args.ArgString
	}
	if cmd, ok := d.registry.Lookup(input); ok {
		return cmd
	}
	return d.registry.Get(DefaultTrigger)
}

func (d *Dispatcher) applyHold(cmd Command, args Arguments, hold bool) {
	if !hold {
		return
	}
	if args.User == nil {
		d.logger.Warn().Str("trigger", cmd.Trigger()).Msg("anonymous sender cannot be held")
		return
	}
	d.hold(args.User.ID, cmd)
}

func (d *Dispatcher) notify(ctx context.Context, cmd Command, args Arguments) {
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, o := range observers {
		o(ctx, cmd, args)
	}
}

// fail logs err and returns it unchanged when its kind is declared.
// Anything else becomes a processing failure and tears down the user's hold.
func (d *Dispatcher) fail(args Arguments, err error) error {
	if Declared(err) {
		d.logger.Error().Err(err).Str("call", args.String()).Msg("command error")
		return err
	}

	d.logger.WithLevel(zerolog.FatalLevel).Err(err).Str("call", args.String()).Msg("unhandled command error")
	if args.User != nil {
		d.CancelHeld(args.User.ID)
	}
	return ProcessingFailure(args.ArgString, "threw an unspecified error", err)
}

func invoke(ctx context.Context, fn func(context.Context, Arguments) (Response, error), args Arguments) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args)
}
