package command

import (
	"context"

	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Response is what a command returns: outbound actions and whether the
// command keeps holding the user.
type Response struct {
	Actions []outbox.Action
	Hold    bool
}

// Reply returns a Response that sends texts to the chat of args, in order,
// as replies to the triggering message. Empty texts are skipped.
func Reply(args Arguments, hold bool, texts ...string) Response {
	resp := Response{Hold: hold}
	if action := SendTexts(args.Chat.ID, replyTo(args), texts...); action != nil {
		resp.Actions = []outbox.Action{action}
	}
	return resp
}

// SendTexts returns one action that sends texts sequentially, or nil when
// every text is empty. The messages of one action never interleave.
func SendTexts(chatID, replyToMessageID int64, texts ...string) outbox.Action {
	var nonEmpty []string
	for _, t := range texts {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	return func(ctx context.Context, api telegram.API) error {
		for _, text := range nonEmpty {
			if _, err := api.SendMessage(ctx, telegram.SendMessageParams{
				ChatID:           chatID,
				Text:             text,
				ReplyToMessageID: replyToMessageID,
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

func replyTo(args Arguments) int64 {
	if args.Message == nil {
		return 0
	}
	return args.Message.MessageID
}
