package replies

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Vars builds template variables for args: the sender and chat fields, the
// raw argument text, and each declared variable bound to its position.
func Vars(r *Reply, args command.Arguments) map[string]string {
	rest := args.Args
	if len(rest) > 0 {
		rest = rest[1:]
	}

	vars := map[string]string{
		"trigger": r.Trigger,
		"args":    strings.Join(rest, " "),
		"chat_id": strconv.FormatInt(args.Chat.ID, 10),
	}
	if args.Chat.Title != "" {
		vars["chat_title"] = args.Chat.Title
	}
	if u := args.User; u != nil {
		vars["user"] = u.String()
		vars["first_name"] = u.FirstName
		vars["username"] = u.Username
		vars["user_id"] = strconv.FormatInt(u.ID, 10)
	}

	for i, v := range r.Variables {
		if i >= len(rest) {
			break
		}
		if i == len(r.Variables)-1 {
			vars[v.Name] = strings.Join(rest[i:], " ")
			break
		}
		vars[v.Name] = rest[i]
	}
	return vars
}

// Render renders every message of r. Missing required variables fail with
// command.ErrInvalidArguments.
func Render(r *Reply, vars map[string]string) ([]string, error) {
	if r == nil {
		return nil, fmt.Errorf("reply is required")
	}

	data := make(map[string]string, len(vars))
	for key, value := range vars {
		data[key] = value
	}

	for _, variable := range r.Variables {
		if strings.TrimSpace(data[variable.Name]) != "" {
			continue
		}
		if variable.Default != "" {
			data[variable.Name] = variable.Default
			continue
		}
		if variable.Required {
			return nil, command.InvalidArguments(r.Trigger, fmt.Sprintf("missing %s", variable.Name))
		}
	}

	if r.ParseMode == telegram.ParseModeMarkdownV2 {
		for key, value := range data {
			data[key] = telegram.EscapeMarkdownV2(value)
		}
	}

	out := make([]string, 0, len(r.Messages))
	for _, msg := range r.Messages {
		tmpl, err := parse(r.Trigger, msg)
		if err != nil {
			return nil, fmt.Errorf("parse reply %q: %w", r.Trigger, err)
		}
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("render reply %q: %w", r.Trigger, err)
		}
		out = append(out, b.String())
	}
	return out, nil
}

func defaultValue(def string, value any) string {
	if value == nil {
		return def
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" {
		return def
	}
	return text
}
