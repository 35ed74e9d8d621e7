package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opencode-ai/botkit/internal/command"
)

// ErrTimeout is returned by WithTimeout when fn does not finish in time.
var ErrTimeout = errors.New("timed out")

// Bot is a command that walks each user through its own Sequence.
type Bot[C any] struct {
	command.Info

	tree       *Tree[C]
	newContext func(args command.Arguments) C

	mu     sync.Mutex
	active map[int64]*Sequence[C]
}

// NewBot builds the step tree once; every user gets a fresh context from
// newContext when the command starts.
func NewBot[C any](info command.Info, root *Step[C], newContext func(args command.Arguments) C) (*Bot[C], error) {
	tree, err := NewTree(root)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", info.Name, err)
	}
	return &Bot[C]{
		Info:       info,
		tree:       tree,
		newContext: newContext,
		active:     make(map[int64]*Sequence[C]),
	}, nil
}

// Tree returns the shared step tree.
func (b *Bot[C]) Tree() *Tree[C] {
	return b.tree
}

// Active returns the sequence of userID, if one is running.
func (b *Bot[C]) Active(userID int64) (*Sequence[C], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq, ok := b.active[userID]
	return seq, ok
}

// Action starts a new conversation and holds the user.
func (b *Bot[C]) Action(ctx context.Context, args command.Arguments) (command.Response, error) {
	if args.User == nil {
		return command.Response{}, command.InvalidCommand(args.ArgString, "conversations need a sender")
	}

	seq := NewSequence(b.tree, b.newContext(args))
	prompt, err := seq.EnterFirst(ctx)
	if err != nil {
		return command.Response{}, err
	}

	b.mu.Lock()
	b.active[args.User.ID] = seq
	b.mu.Unlock()

	return command.Reply(args, true, prompt), nil
}

// ActionReply feeds input to the current step and follows its Reply.
func (b *Bot[C]) ActionReply(ctx context.Context, args command.Arguments) (command.Response, error) {
	userID := args.UserID()
	seq, ok := b.Active(userID)
	if !ok {
		return command.Response{}, command.InvalidCommand(args.ArgString, "no active conversation")
	}

	reply, err := seq.Respond(ctx, args)
	if err != nil {
		b.Cancel(userID)
		return command.Response{}, err
	}

	switch reply.Action {
	case Advance:
		adv, err := seq.Advance(ctx)
		if err != nil {
			b.Cancel(userID)
			return command.Response{}, err
		}
		switch adv.Code {
		case EndOfSequence:
			b.Cancel(userID)
			return command.Response{}, fmt.Errorf("%w: unexpected end of sequence after %q", ErrUnexpectedState, seq.Current())
		case Failure:
			b.Cancel(userID)
			return command.Response{}, fmt.Errorf("%w: no child of %q accepts the context", ErrUnexpectedState, seq.Current())
		}
		return command.Reply(args, true, reply.Text, adv.Text), nil
	case Continue:
		return command.Reply(args, true, reply.Text), nil
	default:
		b.Cancel(userID)
		return command.Reply(args, false, reply.Text), nil
	}
}

// Cancel drops the user's conversation.
func (b *Bot[C]) Cancel(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, userID)
}

// WithTimeout runs fn with a deadline. When d passes first, ErrTimeout is
// returned and fn's eventual result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}
