package command

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/opencode-ai/botkit/internal/telegram"
)

// DefaultTrigger is the trigger of the fallback command. It never matches input.
const DefaultTrigger = "___default"

// MatchConfig controls trigger matching.
type MatchConfig struct {
	// CommandCaseSensitive applies to input starting with "/".
	CommandCaseSensitive bool

	// CaseSensitive applies to all other input.
	CaseSensitive bool

	// AcceptMultiWordTriggers allows whitespace in triggers and matches them
	// against the whole argument string instead of the first token.
	AcceptMultiWordTriggers bool
}

type entry struct {
	key string
	cmd Command
}

// Registry holds commands by trigger and alias.
type Registry struct {
	mu     sync.RWMutex
	config MatchConfig

	byKey map[string]Command

	// entries is sorted longest key first so the first prefix hit is the longest.
	entries  []entry
	commands []Command
}

// NewRegistry creates an empty registry.
func NewRegistry(config MatchConfig) *Registry {
	return &Registry{
		config: config,
		byKey:  make(map[string]Command),
	}
}

// NormalizeTrigger lower-cases triggers that contain a slash.
func NormalizeTrigger(trigger string) string {
	if strings.Contains(trigger, "/") {
		return strings.ToLower(trigger)
	}
	return trigger
}

// Register adds cmd under its trigger and alias.
func (r *Registry) Register(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidTrigger)
	}
	if v, ok := cmd.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("unable to load command %s: %w", cmd.Trigger(), err)
		}
	}

	keys := []string{NormalizeTrigger(cmd.Trigger())}
	if alias := cmd.Alias(); alias != "" {
		keys = append(keys, NormalizeTrigger(alias))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, key := range keys {
		if err := r.checkKey(key); err != nil {
			return err
		}
		if i > 0 && key == keys[0] {
			return fmt.Errorf("%w: %s is both trigger and alias", ErrDuplicateTrigger, key)
		}
	}

	for _, key := range keys {
		r.byKey[key] = cmd
		r.entries = append(r.entries, entry{key: key, cmd: cmd})
	}
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i].key, r.entries[j].key
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *Registry) checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty trigger", ErrInvalidTrigger)
	}
	if _, exists := r.byKey[key]; exists {
		return fmt.Errorf("%w: %s; triggers and aliases must be unique", ErrDuplicateTrigger, key)
	}
	if !r.config.AcceptMultiWordTriggers && strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidTrigger, key)
	}
	return nil
}

// MustRegister adds cmd, panicking on error.
func (r *Registry) MustRegister(cmd Command) {
	if err := r.Register(cmd); err != nil {
		panic(err)
	}
}

// Has reports whether trigger or alias is registered exactly.
func (r *Registry) Has(trigger string) bool {
	return r.Get(trigger) != nil
}

// Get returns the command registered exactly under trigger or alias, or nil.
func (r *Registry) Get(trigger string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[NormalizeTrigger(trigger)]
}

// Lookup returns the command whose trigger or alias is the longest prefix of input.
func (r *Registry) Lookup(input string) (Command, bool) {
	slash := strings.HasPrefix(input, "/")
	sensitive := (slash && r.config.CommandCaseSensitive) || (!slash && r.config.CaseSensitive)
	if !sensitive {
		input = strings.ToLower(input)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.key == DefaultTrigger {
			continue
		}
		key := e.key
		if !sensitive {
			key = strings.ToLower(key)
		}
		if strings.HasPrefix(input, key) {
			return e.cmd, true
		}
	}
	return nil, false
}

// Commands returns registered commands ordered by trigger length, then trigger.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := NormalizeTrigger(out[i].Trigger()), NormalizeTrigger(out[j].Trigger())
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// HelpEntry is one line of the help surface.
type HelpEntry struct {
	Trigger     string
	Alias       string
	Usage       string
	Explanation string
	Options     []Option
}

// Help lists every command except the default fallback.
func (r *Registry) Help() []HelpEntry {
	var out []HelpEntry
	for _, cmd := range r.Commands() {
		if cmd.Trigger() == DefaultTrigger {
			continue
		}
		out = append(out, HelpEntry{
			Trigger:     cmd.Trigger(),
			Alias:       cmd.Alias(),
			Usage:       cmd.HelpUsage(),
			Explanation: cmd.HelpExplanation(),
			Options:     cmd.HelpOptions(),
		})
	}
	return out
}

var botCommandName = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// BotCommands returns the command menu for setMyCommands. Only slash
// triggers the platform accepts are included.
func (r *Registry) BotCommands() []telegram.BotCommand {
	var out []telegram.BotCommand
	for _, h := range r.Help() {
		trigger := NormalizeTrigger(h.Trigger)
		if !strings.HasPrefix(trigger, "/") {
			continue
		}
		name := strings.TrimPrefix(trigger, "/")
		if !botCommandName.MatchString(name) {
			continue
		}

		desc := strings.TrimSpace(h.Usage + " - " + h.Explanation)
		if h.Alias != "" {
			desc = "(" + h.Alias + ") " + desc
		}
		desc = strings.Trim(desc, " -")
		if desc == "" {
			desc = trigger
		}
		if runes := []rune(desc); len(runes) > 256 {
			desc = string(runes[:256])
		}
		out = append(out, telegram.BotCommand{Command: name, Description: desc})
	}
	return out
}
