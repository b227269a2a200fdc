package virt

import "log/slog"

// recalculate runs the layout passes and brings the host up to date. It is
// idempotent: running it twice with no event in between changes nothing.
func (e *Engine) recalculate() {
	if e.canLayout() {
		e.block = e.layout(e.block)
		e.updateContainerHeight()
		e.reconcile()
	} else {
		e.updateContainerHeight()
	}
	e.requestRender()
}

// canLayout reports whether block arithmetic can be trusted. While a
// measurement is outstanding, heights near the block boundary are guesses
// that are about to change.
func (e *Engine) canLayout() bool {
	return e.height > 0 && len(e.items) > 0 && len(e.pending) == 0
}

func (e *Engine) layout(s blockState) blockState {
	s = e.cull(s)
	margin := e.renderMargin()
	if s.inBlock == 0 {
		s = e.seed(margin)
	}
	e.reposition(s)
	s, throttled := e.grow(s, margin)

	if !e.initialFill && !throttled && len(e.pending) == 0 && !e.dirty {
		e.initialFill = true
		slog.Debug("Initial fill complete", "items", s.inBlock, "height", s.heightInBlock)
		e.reposition(s)
		s, _ = e.grow(s, e.renderMargin())
	}
	return s
}

// renderMargin is how far beyond the viewport the block extends. Until the
// first screen is on display only the viewport itself is filled.
func (e *Engine) renderMargin() int {
	if !e.initialFill {
		return 0
	}
	return e.cfg.overdraw(e.height)
}

// cull releases items that drifted more than the cull margin away from the
// viewport. Items whose height is still a guess stop the cull.
func (e *Engine) cull(s blockState) blockState {
	margin := e.cfg.cullMargin(e.height)
	for s.inBlock > 0 {
		it := e.items[s.first()]
		if !e.oracle.IsHeightKnown(it) {
			break
		}
		h := e.oracle.HeightOf(it)
		if s.top()+h >= e.scrollTop-margin {
			break
		}
		if e.owns(s.first()) {
			e.recycle(it.Key)
		}
		s = s.cullTop(h)
	}
	for s.inBlock > 0 {
		it := e.items[s.last()]
		if !e.oracle.IsHeightKnown(it) {
			break
		}
		h := e.oracle.HeightOf(it)
		if s.bottom()-h <= e.scrollTop+e.height+margin {
			break
		}
		if e.owns(s.last()) {
			e.recycle(it.Key)
		}
		s = s.cullBottom(h)
	}
	if s.inBlock == 0 && s.phantom != 0 {
		slog.Debug("Render block emptied, dropping phantom offset", "phantom", s.phantom)
		s.phantom = 0
	}
	return s
}

// seed starts a new block at the first item reaching into the area that
// should be rendered, or at the last item when the list ends before it.
func (e *Engine) seed(margin int) blockState {
	target := e.scrollTop - margin
	first, pos := len(e.items)-1, 0
	for i, it := range e.items {
		h := e.oracle.HeightOf(it)
		if pos+h > target {
			first = i
			break
		}
		pos += h
	}
	slog.Debug("Seeding render block", "index", first, "scroll_top", e.scrollTop)
	return blockAt(e.items, e.oracle.HeightOf, first, 1, 0)
}

// reposition lays out every in-block cell from the top of the block.
func (e *Engine) reposition(s blockState) {
	top := s.top()
	for i := s.first(); i <= s.last(); i++ {
		it := e.items[i]
		h := e.oracle.HeightOf(it)
		if e.owns(i) {
			e.place(it, top, h)
		}
		top += h
	}
}

// grow extends the block towards the render margin, down first. It reports
// whether it stopped because too many measurements are outstanding.
func (e *Engine) grow(s blockState, margin int) (blockState, bool) {
	bottomLimit := e.scrollTop + e.height + margin
	topLimit := e.scrollTop - margin
	for {
		if len(e.pending) >= e.cfg.MaxSimultaneousMeasures {
			return s, true
		}
		switch {
		case s.below > 0 && s.bottom() < bottomLimit:
			i := s.last() + 1
			it := e.items[i]
			h := e.oracle.HeightOf(it)
			if e.owns(i) {
				e.place(it, s.bottom(), h)
			}
			s = s.growDown(h)
		case s.above > 0 && s.top() > topLimit:
			i := s.first() - 1
			it := e.items[i]
			h := e.oracle.HeightOf(it)
			if e.owns(i) {
				e.place(it, s.top()-h, h)
			}
			s = s.growUp(h)
		default:
			return s, false
		}
	}
}

// shouldShow reports whether the item's cell may be displayed. Cells stay
// hidden until the first screen is complete and their height is real.
func (e *Engine) shouldShow(it Item) bool {
	return e.initialFill && e.oracle.IsHeightKnown(it)
}

// place makes sure the item has a cell at top with height h.
func (e *Engine) place(it Item, top, h int) {
	visible := e.shouldShow(it)
	constant := !it.MeasureHeight

	if c := e.pool.Active(it.Key); c != nil {
		if c.compatible(it.Template, constant) {
			wasVisible, oldTop := c.Visible, c.Top
			if c.move(h, top, visible) {
				animate := e.initialFill && wasVisible && visible && oldTop != top
				e.host.Reposition(*c, animate)
				e.dirty = true
			}
			return
		}
		e.violation(invariantf("place", "cell %d for %q cannot host template %q/constant=%t",
			c.SlotID, it.Key, it.Template, constant))
		e.recycle(it.Key)
	}

	c, origin, err := e.pool.Allocate(it.Key, it.Template, constant, h, top, visible)
	if err != nil {
		e.violation(err)
		return
	}
	if origin == OriginNew {
		e.host.Mount(*c)
	} else {
		e.host.Reposition(*c, false)
	}
	e.dirty = true
	if it.MeasureHeight && !e.oracle.IsHeightKnown(it) {
		e.requestMeasure(it.Key, c)
	}
}

func (e *Engine) updateContainerHeight() {
	h := max(e.block.contentHeight(), e.height)
	if h == e.containerHeight {
		return
	}
	e.containerHeight = h
	e.host.SetContainerHeight(h)
	e.dirty = true
}
