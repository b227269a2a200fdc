package list

import (
	"github.com/charmbracelet/bubbles/v2/key"
	"github.com/charmbracelet/vlist/internal/virt"
)

// KeyMap adds the host's own bindings to the list navigation keys.
type KeyMap struct {
	virt.KeyMap
	Help,
	Quit key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		KeyMap: virt.DefaultKeyMap(),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return append(k.KeyMap.ShortHelp(), k.Help, k.Quit)
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return append(k.KeyMap.FullHelp(), []key.Binding{k.Help, k.Quit})
}
