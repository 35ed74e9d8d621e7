package replies

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// LoadBuiltinReplies returns the replies bundled with botkit.
func LoadBuiltinReplies() ([]*Reply, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin replies: %w", err)
	}

	replies := make([]*Reply, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin reply %s: %w", entry.Name(), err)
		}
		reply, err := parseReply(data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin reply %s: %w", entry.Name(), err)
		}
		reply.Source = "builtin"
		replies = append(replies, reply)
	}

	sort.Slice(replies, func(i, j int) bool {
		return replies[i].Trigger < replies[j].Trigger
	})
	return replies, nil
}
