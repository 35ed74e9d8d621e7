// Package demo holds sample commands that exercise the conversation engine,
// callback routing and the outbox. They are registered by "botkit run --demo".
package demo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/conversation"
	"github.com/opencode-ai/botkit/internal/logging"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Provider returns the demo commands. The outbox is used by /testget.
func Provider(q *outbox.Queue) command.Provider {
	return func() ([]command.Command, error) {
		chat, err := NewChat()
		if err != nil {
			return nil, err
		}
		return []command.Command{chat, NewButtons(), NewQueueTest(q)}, nil
	}
}

// ChatContext is the per-user state of the /chat_test conversation.
type ChatContext struct {
	User  *telegram.User
	Value *float64
	Name  *string
}

// parseTimeout bounds number parsing in the first step.
const parseTimeout = 500 * time.Millisecond

// ChatTree returns the steps of the demo conversation: ask for a number,
// branch on its sign, ask for a name without spaces and start over when
// it has one.
func ChatTree() *conversation.Step[*ChatContext] {
	return &conversation.Step[*ChatContext]{
		Name: "0",
		Enter: func(context.Context, *ChatContext) (string, error) {
			return "Step One! Great! Please Enter a Number!", nil
		},
		Respond: func(ctx context.Context, c *ChatContext, args command.Arguments) (conversation.Reply, error) {
			v, err := conversation.WithTimeout(ctx, parseTimeout, func(context.Context) (float64, error) {
				return strconv.ParseFloat(strings.TrimSpace(args.ArgString), 64)
			})
			if err != nil {
				return conversation.ContinueWith("Please enter a decimal number, it can include decimal digits"), nil
			}
			c.Value = &v
			return conversation.AdvanceWith(fmt.Sprintf("Great! You entered %v", v)), nil
		},
		Children: []*conversation.Step[*ChatContext]{
			{
				Name:  "1_1",
				Guard: func(c *ChatContext) bool { return c.Value != nil && *c.Value < 0 },
				Enter: func(context.Context, *ChatContext) (string, error) {
					return "You entered a negative value! Say the word and we'll delve into unknown lands...", nil
				},
				// Advancing from a leaf ends the conversation with an error.
				Respond: func(context.Context, *ChatContext, command.Arguments) (conversation.Reply, error) {
					return conversation.AdvanceWith("Unknown lands means testing for an expected error scenario. Here you go."), nil
				},
			},
			{
				Name:  "1_2",
				Guard: func(c *ChatContext) bool { return c.Value != nil },
				Enter: func(context.Context, *ChatContext) (string, error) {
					return "Great! Now tell me your name!", nil
				},
				Respond: func(_ context.Context, c *ChatContext, args command.Arguments) (conversation.Reply, error) {
					if strings.Contains(args.ArgString, " ") {
						c.Name = nil
						return conversation.AdvanceWith("Uh-Oh! No spaces allowed! You'll have to start over!"), nil
					}
					name := args.ArgString
					c.Name = &name
					return conversation.AdvanceWith("Great! Thanks!"), nil
				},
				Children: []*conversation.Step[*ChatContext]{
					conversation.Repeat("Rep_0", func(c *ChatContext) bool { return c.Name == nil }, "0"),
					{
						Name:  "1_2_2",
						Guard: func(c *ChatContext) bool { return c.Name != nil },
						Enter: func(context.Context, *ChatContext) (string, error) {
							return "You're finally at the last step! Give the word, and we can end this!", nil
						},
						Respond: func(context.Context, *ChatContext, command.Arguments) (conversation.Reply, error) {
							return conversation.EndWith("Huzzah! Success!"), nil
						},
					},
				},
			},
		},
	}
}

// NewChat builds the /chat_test conversation.
func NewChat() (*conversation.Bot[*ChatContext], error) {
	return conversation.NewBot(command.Info{
		Name:        "/chat_test",
		Usage:       "/chat_test",
		Explanation: "Walks through a short conversation",
	}, ChatTree(), func(args command.Arguments) *ChatContext {
		return &ChatContext{User: args.User}
	})
}

// Buttons answers with an inline keyboard whose callbacks come back to it.
type Buttons struct {
	command.Info
	command.Stateless
}

const buttonLabels = "ABCDEFG"

// NewButtons creates the /cbq_test command.
func NewButtons() *Buttons {
	return &Buttons{Info: command.Info{
		Name:        "/cbq_test",
		Usage:       "/cbq_test",
		Explanation: "Tests callback query routing",
	}}
}

func (b *Buttons) Action(_ context.Context, args command.Arguments) (command.Response, error) {
	row := make([]telegram.InlineKeyboardButton, 0, len(buttonLabels))
	for _, r := range buttonLabels {
		row = append(row, telegram.InlineKeyboardButton{
			Text:         string(r),
			CallbackData: command.SignFor(b, "lmao"),
		})
	}
	markup := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
	chatID := args.Chat.ID

	return command.Response{Actions: []outbox.Action{
		func(ctx context.Context, api telegram.API) error {
			_, err := api.SendMessage(ctx, telegram.SendMessageParams{
				ChatID:      chatID,
				Text:        "lmao",
				ReplyMarkup: markup,
			})
			return err
		},
	}}, nil
}

// AnswerCallback replies in the chat the button was pressed in.
func (b *Buttons) AnswerCallback(_ context.Context, q command.CallbackQuery) (command.Response, error) {
	chatID := q.User.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}
	return command.Response{Actions: []outbox.Action{
		command.SendTexts(chatID, 0, "Hey! Why'd you press that?"),
	}}, nil
}

// QueueTest lowers the outbox saturation limit and issues several slow
// calls through it, logging as they start and finish.
type QueueTest struct {
	command.Info
	command.Stateless

	queue *outbox.Queue

	// Limit is the saturation limit applied on each call.
	Limit int
	// Calls and Delay shape the issued work.
	Calls int
	Delay time.Duration
}

// NewQueueTest creates the /testget command.
func NewQueueTest(q *outbox.Queue) *QueueTest {
	return &QueueTest{
		Info: command.Info{
			Name:        "/testget",
			Usage:       "/testget",
			Explanation: "Tests queued requests that return a value",
		},
		queue: q,
		Limit: 3,
		Calls: 5,
		Delay: 600 * time.Millisecond,
	}
}

func (qt *QueueTest) Action(_ context.Context, args command.Arguments) (command.Response, error) {
	if qt.queue == nil {
		return command.Response{}, command.ProcessingFailure(args.ArgString, "no outbox configured", nil)
	}
	if err := qt.queue.SetSaturationLimit(qt.Limit); err != nil {
		return command.Response{}, command.ProcessingFailure(args.ArgString, "cannot set saturation limit", err)
	}

	logger := logging.Component("demo")
	logger.Trace().Msg("testget start")

	// The calls outlive the update that triggered them.
	go func() {
		var g errgroup.Group
		started := time.Now()
		for i := 0; i < qt.Calls; i++ {
			label := string(rune('A' + i))
			g.Go(func() error {
				_, err := outbox.Call(context.Background(), qt.queue, func(ctx context.Context, _ telegram.API) (int, error) {
					logger.Trace().Msg(label + "1")
					select {
					case <-time.After(qt.Delay):
					case <-ctx.Done():
						return 0, ctx.Err()
					}
					logger.Trace().Msg(label + "2")
					return 0, nil
				})
				return err
			})
		}
		if err := g.Wait(); err != nil {
			logger.Warn().Err(err).Msg("testget call failed")
			return
		}
		logger.Debug().Dur("elapsed", time.Since(started)).Int("calls", qt.Calls).Msg("testget finished")
	}()

	logger.Trace().Msg("testget end")
	return command.Reply(args, false, "Done, check the console"), nil
}
