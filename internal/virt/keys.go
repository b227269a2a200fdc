package virt

import (
	"fmt"

	"github.com/charmbracelet/bubbles/v2/key"
)

type KeyMap struct {
	Up,
	Down,
	LineUp,
	LineDown,
	PageUp,
	PageDown,
	HalfPageUp,
	HalfPageDown,
	Home,
	End key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous item"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next item"),
		),
		LineUp: key.NewBinding(
			key.WithKeys("shift+up", "ctrl+y"),
			key.WithHelp("shift+↑", "scroll up"),
		),
		LineDown: key.NewBinding(
			key.WithKeys("shift+down", "ctrl+e"),
			key.WithHelp("shift+↓", "scroll down"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "f"),
			key.WithHelp("f/pgdn", "page down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b"),
			key.WithHelp("b/pgup", "page up"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "½ page up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "½ page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g/home", "top"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G/end", "end"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.PageDown, k.PageUp}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Down, k.Up, k.LineDown, k.LineUp},
		{k.PageDown, k.PageUp, k.HalfPageDown, k.HalfPageUp},
		{k.Home, k.End},
	}
}

// HandleKey applies a key press to the list. It reports whether the key was
// bound to anything.
func (e *Engine) HandleKey(k fmt.Stringer) bool {
	km := e.keyMap
	switch {
	case key.Matches(k, km.Down):
		e.moveFocus(DirectionDown)
	case key.Matches(k, km.Up):
		e.moveFocus(DirectionUp)
	case key.Matches(k, km.LineDown):
		e.ScrollBy(1, false)
	case key.Matches(k, km.LineUp):
		e.ScrollBy(-1, false)
	case key.Matches(k, km.PageDown):
		e.ScrollBy(e.height, false)
	case key.Matches(k, km.PageUp):
		e.ScrollBy(-e.height, false)
	case key.Matches(k, km.HalfPageDown):
		e.ScrollBy(e.height/2, false)
	case key.Matches(k, km.HalfPageUp):
		e.ScrollBy(-e.height/2, false)
	case key.Matches(k, km.Home):
		e.scrollTo(0, false)
	case key.Matches(k, km.End):
		e.scrollTo(e.containerHeight, false)
	default:
		return false
	}
	return true
}

// moveFocus moves focus by keyboard. With nothing focused it lands on the
// first rendered item in the direction of travel. When the neighbor is not
// rendered yet focus is dropped and the list scrolls towards it; at either
// end of the list focus stays where it is.
func (e *Engine) moveFocus(dir Direction) {
	if focused := e.focus.Focused(); focused != "" {
		if e.FocusAdjacent(dir, true) {
			return
		}
		if e.hasNavigable(focused, dir) {
			e.focus.set("")
		}
		e.ScrollBy(int(dir)*e.height/2, false)
		return
	}
	rendered := e.focus.Rendered()
	if len(rendered) == 0 {
		return
	}
	target := rendered[0]
	if dir == DirectionUp {
		target = rendered[len(rendered)-1]
	}
	e.SelectAndFocus(target)
}

// hasNavigable reports whether any navigable item follows key in dir.
func (e *Engine) hasNavigable(key string, dir Direction) bool {
	i, ok := e.index[key]
	if !ok || dir == DirectionNone {
		return false
	}
	for i += int(dir); i >= 0 && i < len(e.items); i += int(dir) {
		if e.items[i].Navigable {
			return true
		}
	}
	return false
}
