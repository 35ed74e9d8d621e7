package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/opencode-ai/botkit/internal/models"
)

var (
	styleBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// formatEventType colors t by severity when color is set.
func formatEventType(t models.EventType, color bool) string {
	label := string(t)
	if !color {
		return label
	}
	switch {
	case t == models.EventTypeQueueDataLost, strings.HasSuffix(label, ".failed"), strings.HasSuffix(label, ".denied"):
		return styleBad.Render(label)
	case t == models.EventTypeUserFlooded, t == models.EventTypeCommandHeld, t == models.EventTypeQueueStopped:
		return styleWarn.Render(label)
	default:
		return styleOK.Render(label)
	}
}
