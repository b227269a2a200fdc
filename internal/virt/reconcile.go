package virt

import "log/slog"

// maxPhantomSlack is how large the phantom offset may grow before it is
// folded back into the scroll position.
const maxPhantomSlack = 0

// reconcile zeroes the phantom offset by moving every cell and the scroll
// position by the same amount, so nothing moves on screen. It never runs
// while a cell animates since the animation targets would go stale.
func (e *Engine) reconcile() {
	off := e.block.phantom
	if off == 0 || len(e.animating) > 0 {
		return
	}
	if abs(off) <= e.phantomSlack() {
		return
	}

	e.block.phantom = 0
	for i := e.block.first(); i <= e.block.last(); i++ {
		c := e.pool.Active(e.items[i].Key)
		if c == nil {
			continue
		}
		if c.move(c.Height, c.Top-off, c.Visible) {
			e.host.Reposition(*c, false)
		}
	}
	e.dirty = true
	e.updateContainerHeight()

	if top := max(e.scrollTop-off, 0); top != e.scrollTop {
		e.scrollTop = top
		e.host.ScrollTo(top, false)
	}
	slog.Debug("Reconciled phantom offset", "offset", off, "scroll_top", e.scrollTop)
}

// phantomSlack is zero near the top of the list, where the offset would
// show up as a gap or an unreachable item.
func (e *Engine) phantomSlack() int {
	if e.scrollTop <= abs(e.block.phantom) {
		return 0
	}
	return maxPhantomSlack
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
