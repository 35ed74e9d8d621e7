package replies

import "github.com/opencode-ai/botkit/internal/command"

// Load returns the replies in dir followed by the builtins. A reply in dir
// replaces the builtin with the same trigger.
func Load(dir string) ([]*Reply, error) {
	user, err := LoadRepliesFromDir(dir)
	if err != nil {
		return nil, err
	}
	builtins, err := LoadBuiltinReplies()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(user)+len(builtins))
	resolved := make([]*Reply, 0, len(user)+len(builtins))
	for _, group := range [][]*Reply{user, builtins} {
		for _, r := range group {
			key := command.NormalizeTrigger(r.Trigger)
			if seen[key] {
				continue
			}
			seen[key] = true
			resolved = append(resolved, r)
		}
	}
	return resolved, nil
}

// Provider loads the replies of dir as commands each time the dispatcher
// (re)loads.
func Provider(dir string) command.Provider {
	return func() ([]command.Command, error) {
		replies, err := Load(dir)
		if err != nil {
			return nil, err
		}
		cmds := make([]command.Command, 0, len(replies))
		for _, r := range replies {
			cmd, err := NewCommand(r)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, cmd)
		}
		return cmds, nil
	}
}
