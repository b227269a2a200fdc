package virt

import (
	"log/slog"
	"slices"
)

// maxFocusAttempts bounds how many render passes a deferred focus request
// waits for its target to show up.
const maxFocusAttempts = 3

type focusTarget interface {
	hasKey(key string) bool
	offsetOfKey(key string) (int, bool)
	scrollIntoView(key string)
	scrollTo(top int, animated bool)
	focusKey(key string)
}

type focusIntent struct {
	key        string
	dir        Direction
	byKeyboard bool
	attempts   int
}

// FocusNavigator moves keyboard focus across the navigable items of the
// last render pass. When the focused item is not rendered it scrolls to it
// and finishes the move after the next render.
type FocusNavigator struct {
	target   focusTarget
	rendered []string
	focused  string
	deferred *focusIntent
}

func newFocusNavigator(target focusTarget) *FocusNavigator {
	return &FocusNavigator{target: target}
}

func (n *FocusNavigator) Focused() string {
	return n.focused
}

// Rendered returns the navigable keys of the last render pass, in order.
func (n *FocusNavigator) Rendered() []string {
	return slices.Clone(n.rendered)
}

func (n *FocusNavigator) setRendered(keys []string) {
	n.rendered = keys
}

func (n *FocusNavigator) set(key string) {
	n.focused = key
	n.target.focusKey(key)
}

// Adjacent focuses the rendered neighbor of the focused item in dir. It
// fails with nothing focused or at the end of the rendered list.
func (n *FocusNavigator) Adjacent(dir Direction, byKeyboard bool) bool {
	if n.focused == "" || dir == DirectionNone {
		return false
	}
	if pos := slices.Index(n.rendered, n.focused); pos >= 0 {
		next := pos + int(dir)
		if next < 0 || next >= len(n.rendered) {
			return false
		}
		key := n.rendered[next]
		n.set(key)
		if byKeyboard {
			n.target.scrollIntoView(key)
		}
		return true
	}

	off, ok := n.target.offsetOfKey(n.focused)
	if !ok {
		return false
	}
	slog.Debug("Focused item not rendered, scrolling to it", "key", n.focused, "offset", off)
	n.deferred = &focusIntent{key: n.focused, dir: dir, byKeyboard: byKeyboard}
	n.target.scrollTo(off, false)
	return true
}

// Select focuses key, scrolling to it first when it is not rendered.
func (n *FocusNavigator) Select(key string) bool {
	if !n.target.hasKey(key) {
		return false
	}
	if slices.Contains(n.rendered, key) {
		n.deferred = nil
		n.set(key)
		n.target.scrollIntoView(key)
		return true
	}
	off, _ := n.target.offsetOfKey(key)
	n.focused = key
	n.deferred = &focusIntent{key: key}
	n.target.scrollTo(off, false)
	return true
}

// resolve finishes a deferred move once its target was rendered.
func (n *FocusNavigator) resolve() {
	intent := n.deferred
	if intent == nil {
		return
	}
	if intent.key != n.focused {
		n.deferred = nil
		return
	}
	if !slices.Contains(n.rendered, intent.key) {
		intent.attempts++
		if intent.attempts >= maxFocusAttempts {
			slog.Debug("Giving up deferred focus", "key", intent.key)
			n.deferred = nil
		}
		return
	}
	n.deferred = nil
	if intent.dir == DirectionNone {
		n.set(intent.key)
		return
	}
	n.Adjacent(intent.dir, intent.byKeyboard)
}

// itemsChanged moves focus off a removed item to its nearest rendered
// neighbor, searching forward first.
func (n *FocusNavigator) itemsChanged() {
	if n.focused == "" || n.target.hasKey(n.focused) {
		return
	}
	n.deferred = nil
	if pos := slices.Index(n.rendered, n.focused); pos >= 0 {
		for _, key := range n.rendered[pos+1:] {
			if n.target.hasKey(key) {
				n.set(key)
				return
			}
		}
		for i := pos - 1; i >= 0; i-- {
			if key := n.rendered[i]; n.target.hasKey(key) {
				n.set(key)
				return
			}
		}
	}
	slog.Debug("Focused item removed", "key", n.focused)
	n.set("")
}
