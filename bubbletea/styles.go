package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/eka"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	UserMsg   lipgloss.Style
	Assistant lipgloss.Style
	Thinking  lipgloss.Style
	Citation  lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Accent    lipgloss.Style
	Selected  lipgloss.Style
	Sidebar   lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t eka.Theme) Styles {
	return Styles{
		UserMsg:   lipgloss.NewStyle().Foreground(ansiColor(t.UserMsg)).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(ansiColor(t.Assistant)).Bold(true),
		Thinking:  lipgloss.NewStyle().Foreground(ansiColor(t.Thinking)).Faint(true),
		Citation:  lipgloss.NewStyle().Foreground(ansiColor(t.Citation)),
		Error:     lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Muted:     lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent:    lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
		Selected:  lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
		Sidebar: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(ansiColor(t.Muted)).
			PaddingRight(1),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
