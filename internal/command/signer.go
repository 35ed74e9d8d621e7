package command

import "strings"

// Separator joins callback payloads and the trigger that owns them.
const Separator = `||\`

// Sign appends trigger to payload so a callback can be routed back to its command.
func Sign(payload, trigger string) string {
	return payload + Separator + trigger
}

// SignFor signs payload for cmd.
func SignFor(cmd Command, payload string) string {
	return Sign(payload, cmd.Trigger())
}

// Unsign splits raw at the last separator. ok is false when raw is blank,
// has no separator, or ends with it.
func Unsign(raw string) (trigger, payload string, ok bool) {
	if strings.TrimSpace(raw) == "" {
		return "", "", false
	}
	i := strings.LastIndex(raw, Separator)
	if i < 0 || i+len(Separator) == len(raw) {
		return "", "", false
	}
	return raw[i+len(Separator):], raw[:i], true
}
