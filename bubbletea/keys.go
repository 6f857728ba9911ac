package bubbletea

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the TUI key bindings.
type KeyMap struct {
	Send      key.Binding
	Stop      key.Binding
	Quit      key.Binding
	NewChat   key.Binding
	PrevChat  key.Binding
	NextChat  key.Binding
	Toggle    key.Binding
	FocusPrev key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Stop:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		NewChat:   key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
		PrevChat:  key.NewBinding(key.WithKeys("alt+up", "ctrl+up"), key.WithHelp("alt+↑", "previous chat")),
		NextChat:  key.NewBinding(key.WithKeys("alt+down", "ctrl+down"), key.WithHelp("alt+↓", "next chat")),
		Toggle:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "sources")),
		FocusPrev: key.NewBinding(key.WithKeys("shift+tab")),
	}
}

func helpLine(bindings ...key.Binding) []string {
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		out = append(out, h.Key+" "+h.Desc)
	}
	return out
}
