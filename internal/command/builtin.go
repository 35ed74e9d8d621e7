package command

import (
	"context"
	"fmt"
	"strings"
)

// Help lists commands, or describes one command in detail.
type Help struct {
	Info
	Stateless
	registry *Registry
}

// NewHelp creates the /help command over registry.
func NewHelp(registry *Registry) *Help {
	return &Help{
		Info: Info{
			Name:        "/help",
			AliasName:   "/h",
			Explanation: "Returns a string explaining the uses of a specific command.",
			Usage:       "[Command]",
		},
		registry: registry,
	}
}

func (h *Help) Action(_ context.Context, args Arguments) (Response, error) {
	if len(args.Args) <= 1 {
		return Reply(args, false, GlobalHelp(h.registry)), nil
	}

	name := args.Args[1]
	cmd := h.registry.Get(name)
	if cmd == nil {
		cmd = h.registry.Get("/" + name)
	}
	if cmd == nil || cmd.Trigger() == DefaultTrigger {
		return Response{}, InvalidArguments(args.ArgString, "unknown command")
	}
	return Reply(args, false, CommandHelp(cmd)), nil
}

// GlobalHelp renders one line per command: trigger, alias and usage.
func GlobalHelp(registry *Registry) string {
	entries := registry.Help()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s%s - %s", e.Trigger, aliasSuffix(e.Alias), e.Usage))
	}
	return strings.Join(lines, "\n")
}

// CommandHelp renders the detailed help of cmd.
func CommandHelp(cmd Command) string {
	return fmt.Sprintf(" > %s%s - %s\n >> %s%s",
		cmd.Trigger(), aliasSuffix(cmd.Alias()), cmd.HelpExplanation(), cmd.HelpUsage(), optionsBlock(cmd.HelpOptions()))
}

func aliasSuffix(alias string) string {
	if alias == "" {
		return ""
	}
	return " (" + alias + ")"
}

func optionsBlock(opts []Option) string {
	if len(opts) == 0 {
		return ""
	}
	width := 0
	for _, o := range opts {
		if n := len([]rune(o.Name)); n > width {
			width = n
		}
	}
	lines := make([]string, 0, len(opts))
	for _, o := range opts {
		lines = append(lines, fmt.Sprintf("%*s: %s", width, o.Name, o.Explanation))
	}
	return "\n\tAvailable Options:\n\t\t" + strings.Join(lines, "\n\t\t")
}

// Start greets new users.
type Start struct{ Stateless }

func (Start) Trigger() string         { return "/start" }
func (Start) Alias() string           { return "" }
func (Start) HelpExplanation() string { return "Starts the bot" }
func (Start) HelpUsage() string       { return "/start" }
func (Start) HelpOptions() []Option   { return nil }

func (Start) Action(_ context.Context, args Arguments) (Response, error) {
	return Reply(args, false, "Hello! Welcome! Please type /help"), nil
}

// Default answers input that matches no trigger.
type Default struct{ Stateless }

func (Default) Trigger() string         { return DefaultTrigger }
func (Default) Alias() string           { return "" }
func (Default) HelpExplanation() string { return "The default response to an unknown command" }
func (Default) HelpUsage() string       { return "" }
func (Default) HelpOptions() []Option   { return nil }

func (Default) Action(_ context.Context, args Arguments) (Response, error) {
	return Reply(args, false, "Unknown Command"), nil
}
