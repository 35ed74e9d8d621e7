package replies

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

type recordAPI struct {
	mu   sync.Mutex
	sent []telegram.SendMessageParams
}

func (r *recordAPI) GetMe(context.Context) (*telegram.User, error) { return &telegram.User{}, nil }
func (r *recordAPI) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
	return &telegram.Message{}, nil
}
func (r *recordAPI) AnswerCallbackQuery(context.Context, telegram.AnswerCallbackQueryParams) error {
	return nil
}
func (r *recordAPI) SetMyCommands(context.Context, []telegram.BotCommand) error { return nil }

func run(t *testing.T, actions []outbox.Action) []telegram.SendMessageParams {
	t.Helper()
	api := &recordAPI{}
	for _, a := range actions {
		require.NoError(t, a(context.Background(), api))
	}
	return api.sent
}

func writeReply(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func argsFrom(text string) command.Arguments {
	user := &telegram.User{ID: 7, FirstName: "Ann", Username: "ann"}
	msg := &telegram.Message{MessageID: 11, From: user, Chat: telegram.Chat{ID: -100, Type: "group"}, Text: text}
	return command.NewArguments(text, user, msg)
}

func TestLoadReply(t *testing.T) {
	dir := t.TempDir()
	path := writeReply(t, dir, "greet.yaml", `trigger: /greet
description: Greets someone
message: "Hello {{.name}}"
messages:
  - "  "
  - "Nice to meet you"
variables:
  - name: name
    description: Who to greet
    required: true
`)

	r, err := LoadReply(path)
	require.NoError(t, err)
	assert.Equal(t, "/greet", r.Trigger)
	assert.Equal(t, path, r.Source)
	assert.Equal(t, []string{"Hello {{.name}}", "Nice to meet you"}, r.Messages)
	require.Len(t, r.Variables, 1)
	assert.True(t, r.Variables[0].Required)
}

func TestParseReplyRejects(t *testing.T) {
	cases := map[string]string{
		"no trigger":     "message: hi",
		"whitespace":     "trigger: /a b\nmessage: hi",
		"default":        "trigger: ___default\nmessage: hi",
		"no messages":    "trigger: /a",
		"parse mode":     "trigger: /a\nmessage: hi\nparse_mode: Markdown",
		"reserved var":   "trigger: /a\nmessage: hi\nvariables:\n  - name: user",
		"duplicate var":  "trigger: /a\nmessage: hi\nvariables:\n  - name: x\n  - name: x",
		"bad template":   "trigger: /a\nmessage: \"{{.x\"",
		"malformed yaml": "trigger: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseReply([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRepliesFromDir(t *testing.T) {
	dir := t.TempDir()
	writeReply(t, dir, "b.yaml", "trigger: /b\nmessage: b")
	writeReply(t, dir, "a.yml", "trigger: /a\nmessage: a")
	writeReply(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	replies, err := LoadRepliesFromDir(dir)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "/a", replies[0].Trigger)
	assert.Equal(t, "/b", replies[1].Trigger)

	replies, err = LoadRepliesFromDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestLoadBuiltinReplies(t *testing.T) {
	replies, err := LoadBuiltinReplies()
	require.NoError(t, err)
	require.NotEmpty(t, replies)

	triggers := make([]string, 0, len(replies))
	for _, r := range replies {
		assert.Equal(t, "builtin", r.Source)
		triggers = append(triggers, r.Trigger)
	}
	assert.Contains(t, triggers, "/about")
	assert.Contains(t, triggers, "/ping")
	assert.Contains(t, triggers, "/whoami")
}

func TestLoadUserOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeReply(t, dir, "ping.yaml", "trigger: /PING\nmessage: custom pong")

	replies, err := Load(dir)
	require.NoError(t, err)

	var pings []*Reply
	for _, r := range replies {
		if command.NormalizeTrigger(r.Trigger) == "/ping" {
			pings = append(pings, r)
		}
	}
	require.Len(t, pings, 1)
	assert.Equal(t, []string{"custom pong"}, pings[0].Messages)
}

func TestRender(t *testing.T) {
	r := &Reply{
		Trigger:  "/greet",
		Messages: []string{"Hi {{.name}} from {{.place | default \"nowhere\"}}", "{{.first_name}} in {{.chat_id}}"},
		Variables: []Variable{
			{Name: "name", Required: true},
			{Name: "place"},
		},
	}

	out, err := Render(r, Vars(r, argsFrom("/greet bob the big city")))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi bob from the big city", "Ann in -100"}, out)

	out, err = Render(r, Vars(r, argsFrom("/greet bob")))
	require.NoError(t, err)
	assert.Equal(t, "Hi bob from nowhere", out[0])

	_, err = Render(r, Vars(r, argsFrom("/greet")))
	assert.ErrorIs(t, err, command.ErrInvalidArguments)
}

func TestRenderDefaultVariable(t *testing.T) {
	r := &Reply{
		Trigger:   "/roll",
		Messages:  []string{"rolled d{{.sides}}"},
		Variables: []Variable{{Name: "sides", Default: "6", Required: true}},
	}
	out, err := Render(r, Vars(r, argsFrom("/roll")))
	require.NoError(t, err)
	assert.Equal(t, []string{"rolled d6"}, out)
}

func TestRenderEscapesMarkdownV2(t *testing.T) {
	r := &Reply{
		Trigger:   "/say",
		Messages:  []string{"*{{.text}}*"},
		ParseMode: telegram.ParseModeMarkdownV2,
		Variables: []Variable{{Name: "text"}},
	}
	out, err := Render(r, Vars(r, argsFrom("/say a_b.c")))
	require.NoError(t, err)
	assert.Equal(t, []string{`*a\_b\.c*`}, out)
}

func TestProviderThroughDispatcher(t *testing.T) {
	dir := t.TempDir()
	writeReply(t, dir, "greet.yaml", `trigger: /greet
alias: /g
usage: /greet <name>
description: Greets someone
parse_mode: HTML
messages:
  - "Hello <b>{{.name}}</b>"
  - "Bye"
variables:
  - name: name
    description: Who to greet
    required: true
`)

	d, err := command.NewDispatcher(command.Config{}, Provider(dir))
	require.NoError(t, err)

	cmd := d.Registry().Get("/greet")
	require.NotNil(t, cmd)
	assert.Equal(t, []command.Option{{Name: "name", Explanation: "Who to greet"}}, cmd.HelpOptions())
	assert.True(t, d.Registry().Has("/about"))

	actions, err := d.Call(context.Background(), argsFrom("/g world"))
	require.NoError(t, err)
	sent := run(t, actions)
	require.Len(t, sent, 2)
	assert.Equal(t, "Hello <b>world</b>", sent[0].Text)
	assert.Equal(t, telegram.ParseModeHTML, sent[0].ParseMode)
	assert.EqualValues(t, -100, sent[0].ChatID)
	assert.EqualValues(t, 11, sent[0].ReplyToMessageID)
	assert.Equal(t, "Bye", sent[1].Text)

	_, err = d.Call(context.Background(), argsFrom("/greet"))
	assert.ErrorIs(t, err, command.ErrInvalidArguments)
}

func TestCommandValidate(t *testing.T) {
	cmd, err := NewCommand(&Reply{Trigger: "/x", Messages: []string{"{{.a"}})
	require.NoError(t, err)
	assert.Error(t, cmd.Validate())

	_, err = NewCommand(nil)
	assert.Error(t, err)
}
