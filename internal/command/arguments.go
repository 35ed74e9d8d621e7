package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opencode-ai/botkit/internal/telegram"
)

var argPattern = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// SplitArgs tokenizes input. A double-quoted run is one token without its
// quotes; everything else splits on whitespace. Blank tokens are dropped.
func SplitArgs(input string) []string {
	matches := argPattern.FindAllStringSubmatchIndex(input, -1)
	args := make([]string, 0, len(matches))
	for _, m := range matches {
		var tok string
		if m[2] >= 0 {
			tok = input[m[2]:m[3]]
		} else {
			tok = input[m[4]:m[5]]
		}
		if strings.TrimSpace(tok) == "" {
			continue
		}
		args = append(args, tok)
	}
	return args
}

// Arguments is a snapshot of one inbound message.
type Arguments struct {
	ArgString string
	Args      []string

	// User is nil for anonymous channel posts.
	User    *telegram.User
	Chat    telegram.Chat
	Message *telegram.Message
}

// NewArguments builds Arguments for input sent by user in message.
func NewArguments(input string, user *telegram.User, message *telegram.Message) Arguments {
	args := Arguments{
		ArgString: input,
		Args:      SplitArgs(input),
		User:      user,
		Message:   message,
	}
	if message != nil {
		args.Chat = message.Chat
	}
	return args
}

// UserID returns the sender's ID, or 0 when anonymous.
func (a Arguments) UserID() int64 {
	if a.User == nil {
		return 0
	}
	return a.User.ID
}

// Head returns the first token, or "" for empty input.
func (a Arguments) Head() string {
	if len(a.Args) == 0 {
		return ""
	}
	return a.Args[0]
}

func (a Arguments) String() string {
	sender := "anonymous"
	if a.User != nil {
		sender = a.User.String()
	}
	return fmt.Sprintf("command %q sent by user %s", a.ArgString, sender)
}
