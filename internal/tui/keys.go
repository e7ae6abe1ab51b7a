package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the key bindings for the alert prompt.
type KeyMap struct {
	Acknowledge key.Binding
	Help        key.Binding
}

// ShortHelp returns a short help message.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Acknowledge, k.Help}
}

// FullHelp returns a full help message.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Acknowledge},
		{k.Help},
	}
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Acknowledge: key.NewBinding(
			key.WithKeys("enter", " ", "esc", "q", "ctrl+c"),
			key.WithHelp("enter/space", "acknowledge"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}
