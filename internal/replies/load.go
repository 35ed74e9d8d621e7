package replies

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/telegram"
	"gopkg.in/yaml.v3"
)

// reserved names are filled from the message and cannot be declared.
var reserved = map[string]bool{
	"user": true, "first_name": true, "username": true, "user_id": true,
	"chat_id": true, "chat_title": true, "args": true, "trigger": true,
}

// LoadReply reads a single reply from disk.
func LoadReply(path string) (*Reply, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("reply path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reply %s: %w", path, err)
	}

	reply, err := parseReply(data)
	if err != nil {
		return nil, fmt.Errorf("parse reply %s: %w", path, err)
	}
	reply.Source = path
	return reply, nil
}

// LoadRepliesFromDir loads every .yaml and .yml file in dir. A missing
// directory yields no replies.
func LoadRepliesFromDir(dir string) ([]*Reply, error) {
	if strings.TrimSpace(dir) == "" {
		return []*Reply{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Reply{}, nil
		}
		return nil, fmt.Errorf("read replies dir %s: %w", dir, err)
	}

	replies := make([]*Reply, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		reply, err := LoadReply(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}

	sort.Slice(replies, func(i, j int) bool {
		return replies[i].Trigger < replies[j].Trigger
	})
	return replies, nil
}

func parseReply(data []byte) (*Reply, error) {
	var r Reply
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	r.Trigger = strings.TrimSpace(r.Trigger)
	r.Alias = strings.TrimSpace(r.Alias)
	r.Usage = strings.TrimSpace(r.Usage)
	r.Description = strings.TrimSpace(r.Description)

	if r.Trigger == "" {
		return nil, fmt.Errorf("reply trigger is required")
	}
	if strings.ContainsAny(r.Trigger+r.Alias, " \t\r\n") {
		return nil, fmt.Errorf("%w: %q", command.ErrInvalidTrigger, r.Trigger)
	}
	if r.Trigger == command.DefaultTrigger {
		return nil, fmt.Errorf("reply cannot replace %s", command.DefaultTrigger)
	}

	if msg := strings.TrimSpace(r.Message); msg != "" {
		r.Messages = append([]string{msg}, r.Messages...)
		r.Message = ""
	}
	messages := r.Messages[:0]
	for _, m := range r.Messages {
		if m = strings.TrimSpace(m); m != "" {
			messages = append(messages, m)
		}
	}
	r.Messages = messages
	if len(r.Messages) == 0 {
		return nil, fmt.Errorf("reply %s has no messages", r.Trigger)
	}

	switch r.ParseMode {
	case telegram.ParseModeNone, telegram.ParseModeMarkdownV2, telegram.ParseModeHTML:
	default:
		return nil, fmt.Errorf("unknown parse mode %q", r.ParseMode)
	}

	seen := make(map[string]struct{})
	for i := range r.Variables {
		name := strings.TrimSpace(r.Variables[i].Name)
		if name == "" {
			return nil, fmt.Errorf("reply variable name is required")
		}
		if reserved[name] {
			return nil, fmt.Errorf("reply variable %q is reserved", name)
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate reply variable %q", name)
		}
		seen[name] = struct{}{}
		r.Variables[i].Name = name
	}

	for i, m := range r.Messages {
		if _, err := parse(r.Trigger, m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
	}
	return &r, nil
}

func parse(name, text string) (*template.Template, error) {
	return template.New(name).
		Funcs(template.FuncMap{"default": defaultValue}).
		Option("missingkey=zero").
		Parse(text)
}
