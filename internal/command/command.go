// Package command resolves inbound messages to registered bot commands and
// manages held multi-turn conversations.
package command

import (
	"context"

	"github.com/opencode-ai/botkit/internal/telegram"
)

// Command is a bot command selected by its trigger.
type Command interface {
	// Trigger selects the command, e.g. "/help".
	Trigger() string

	// Alias is an optional second trigger. Empty means none.
	Alias() string

	HelpExplanation() string
	HelpUsage() string
	HelpOptions() []Option

	// Action runs when the trigger matches. Returning Hold routes the user's
	// next messages to ActionReply.
	Action(ctx context.Context, args Arguments) (Response, error)

	// ActionReply runs for messages from a user this command holds.
	ActionReply(ctx context.Context, args Arguments) (Response, error)

	// Cancel drops any per-user state for userID.
	Cancel(userID int64)
}

// Option documents one command option in help output.
type Option struct {
	Name        string
	Explanation string
}

// Validator is implemented by commands that check themselves before registration.
type Validator interface {
	Validate() error
}

// CallbackHandler is implemented by commands that answer inline keyboard
// callbacks signed with their trigger.
type CallbackHandler interface {
	AnswerCallback(ctx context.Context, query CallbackQuery) (Response, error)
}

// Authorizer is implemented by commands restricted to some users.
type Authorizer interface {
	Authorize(user *telegram.User) bool
}

// Keyed is implemented by commands meant only for some bots.
type Keyed interface {
	BotKeys() Key
}

// Key is a bit set of bot identities. KeyAny on a dispatcher loads every command.
type Key uint32

const KeyAny Key = 0

// Matches reports whether a command carrying k may load on a bot keyed with bot.
// Commands without keys load everywhere.
func (k Key) Matches(bot Key) bool {
	return bot == KeyAny || k == KeyAny || k&bot != 0
}

// CallbackQuery is a button press routed to its owning command, with the
// signature already removed from Data.
type CallbackQuery struct {
	ID      string
	Data    string
	User    telegram.User
	Message *telegram.Message
}

// Info carries the static help metadata of a command and implements the
// corresponding methods when embedded.
type Info struct {
	Name        string
	AliasName   string
	Explanation string
	Usage       string
	Options     []Option
}

func (i Info) Trigger() string         { return i.Name }
func (i Info) Alias() string           { return i.AliasName }
func (i Info) HelpExplanation() string { return i.Explanation }
func (i Info) HelpUsage() string       { return i.Usage }
func (i Info) HelpOptions() []Option   { return i.Options }

// Stateless provides no-op ActionReply and Cancel for commands that never hold.
type Stateless struct{}

func (Stateless) ActionReply(context.Context, Arguments) (Response, error) { return Response{}, nil }
func (Stateless) Cancel(int64)                                             {}
