// Package replies loads static reply commands from YAML files and renders
// their messages with text/template.
package replies

import "github.com/opencode-ai/botkit/internal/telegram"

// Reply is a command whose response is a list of rendered messages.
type Reply struct {
	Trigger     string             `yaml:"trigger"`
	Alias       string             `yaml:"alias,omitempty"`
	Usage       string             `yaml:"usage,omitempty"`
	Description string             `yaml:"description"`
	Message     string             `yaml:"message,omitempty"`
	Messages    []string           `yaml:"messages,omitempty"`
	ParseMode   telegram.ParseMode `yaml:"parse_mode,omitempty"`
	Variables   []Variable         `yaml:"variables,omitempty"`
	Source      string             `yaml:"-"` // file path or "builtin"
}

// Variable binds one positional command argument to a template name. The
// last variable receives every remaining argument.
type Variable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required"`
}
