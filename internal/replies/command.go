package replies

import (
	"context"
	"fmt"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Command serves a Reply through the dispatcher.
type Command struct {
	command.Info
	command.Stateless

	reply *Reply
}

// NewCommand wraps r. Declared variables become help options.
func NewCommand(r *Reply) (*Command, error) {
	if r == nil {
		return nil, fmt.Errorf("reply is required")
	}
	info := command.Info{
		Name:        r.Trigger,
		AliasName:   r.Alias,
		Explanation: r.Description,
		Usage:       r.Usage,
	}
	for _, v := range r.Variables {
		info.Options = append(info.Options, command.Option{Name: v.Name, Explanation: v.Description})
	}
	return &Command{Info: info, reply: r}, nil
}

// Reply returns the wrapped definition.
func (c *Command) Reply() *Reply {
	return c.reply
}

// Validate renders the reply with empty arguments so broken templates fail
// at registration instead of on first use.
func (c *Command) Validate() error {
	for i, m := range c.reply.Messages {
		if _, err := parse(c.reply.Trigger, m); err != nil {
			return fmt.Errorf("%s message %d: %w", c.reply.Source, i+1, err)
		}
	}
	return nil
}

func (c *Command) Action(ctx context.Context, args command.Arguments) (command.Response, error) {
	texts, err := Render(c.reply, Vars(c.reply, args))
	if err != nil {
		return command.Response{}, err
	}

	var replyTo int64
	if args.Message != nil {
		replyTo = args.Message.MessageID
	}
	chatID := args.Chat.ID
	mode := c.reply.ParseMode

	send := func(ctx context.Context, api telegram.API) error {
		for _, text := range texts {
			if text == "" {
				continue
			}
			if _, err := api.SendMessage(ctx, telegram.SendMessageParams{
				ChatID:           chatID,
				Text:             text,
				ParseMode:        mode,
				ReplyToMessageID: replyTo,
			}); err != nil {
				return err
			}
		}
		return nil
	}
	return command.Response{Actions: []outbox.Action{send}}, nil
}
