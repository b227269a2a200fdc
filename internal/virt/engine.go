package virt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Host executes the engine's decisions. All calls are made from the engine's
// goroutine; hosts that measure or animate on other goroutines must hand the
// results back through Engine.Post.
type Host interface {
	// Mount creates the view for a freshly minted cell.
	Mount(c Cell)
	// Reposition moves, shows, hides or rebinds an existing cell.
	Reposition(c Cell, animate bool)
	// Unmount destroys the view of a cell that will never be used again.
	Unmount(c Cell)
	// Measure asks for the real height of the item bound to c. The answer
	// comes back later through Engine.ReportHeight.
	Measure(c Cell)
	SetContainerHeight(height int)
	ScrollTo(top int, animated bool)
	// Focus moves keyboard focus to the item, or clears it for "".
	Focus(key string)
	// RenderRequested tells the host a render pass is due. It is never
	// called from inside another engine call.
	RenderRequested()
}

// NopHost ignores every command. Embed it to implement part of Host.
type NopHost struct{}

func (NopHost) Mount(Cell)             {}
func (NopHost) Reposition(Cell, bool)  {}
func (NopHost) Unmount(Cell)           {}
func (NopHost) Measure(Cell)           {}
func (NopHost) SetContainerHeight(int) {}
func (NopHost) ScrollTo(int, bool)     {}
func (NopHost) Focus(string)           {}
func (NopHost) RenderRequested()       {}

const slotRender = "render"

// Engine virtualizes a vertical list of variable-height items. It is not
// safe for concurrent use; everything runs on the goroutine that drives the
// scheduler.
type Engine struct {
	cfg    Config
	host   Host
	sched  *Scheduler
	oracle *HeightOracle
	pool   *CellPool
	focus  *FocusNavigator
	keyMap KeyMap

	items []Item
	index map[string]int
	dupes map[string]struct{}
	block blockState

	width, height         int
	scrollTop, scrollLeft int
	containerHeight       int

	pending     map[string]struct{}
	animating   map[string]int
	initialFill bool
	dirty       bool
	a11y        bool
	violations  int
}

// New returns an engine driving host.
func New(host Host, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if host == nil {
		host = NopHost{}
	}
	e := &Engine{
		cfg:       cfg,
		host:      host,
		sched:     NewScheduler(),
		oracle:    NewHeightOracle(),
		pool:      NewCellPool(cfg.PoolCapacity),
		keyMap:    DefaultKeyMap(),
		index:     make(map[string]int),
		pending:   make(map[string]struct{}),
		animating: make(map[string]int),
	}
	e.focus = newFocusNavigator(e)
	return e, nil
}

// Configure swaps the tuning of a running engine.
func (e *Engine) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	e.cfg = cfg
	if !e.a11y {
		e.setPoolCapacity(cfg.PoolCapacity)
	}
	e.recalculate()
	return nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// SetKeyMap replaces the bindings used by HandleKey.
func (e *Engine) SetKeyMap(km KeyMap) {
	e.keyMap = km
}

// Post queues fn on the engine's scheduler. It is the way to hand results
// from other goroutines back to the engine.
func (e *Engine) Post(fn func()) {
	e.sched.Post(fn)
}

// Flush runs scheduled work until none is left.
func (e *Engine) Flush() int {
	return e.sched.Flush()
}

// Run drives the scheduler until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.sched.Run(ctx)
}

// SetItems replaces the item list. Cells of items that survive keep their
// identity and the first surviving cell keeps its position on screen.
func (e *Engine) SetItems(items []Item) {
	prev, prevBlock := e.items, e.block
	e.items, e.index, e.dupes = e.normalize(items)

	dropped := e.oracle.Retain(e.hasKey)
	for key := range e.pending {
		if !e.hasKey(key) {
			delete(e.pending, key)
		}
	}
	for key := range e.animating {
		if !e.hasKey(key) {
			delete(e.animating, key)
		}
	}
	slog.Debug("Item list changed", "items", len(e.items), "previous", len(prev), "forgotten_heights", dropped)

	e.block = e.rebuildBlock(prev, prevBlock)
	e.focus.itemsChanged()
	e.recalculate()
}

func (e *Engine) normalize(items []Item) ([]Item, map[string]int, map[string]struct{}) {
	items = slices.Clone(items)
	index := make(map[string]int, len(items))
	var dupes map[string]struct{}
	for i := range items {
		it := &items[i]
		if it.Height <= 0 {
			e.violation(invariantf("set items", "item %q has non-positive height %d", it.Key, it.Height))
			it.Height = 1
		}
		if prev, dup := index[it.Key]; dup {
			e.violation(invariantf("set items", "duplicate key %q at %d and %d", it.Key, prev, i))
			if dupes == nil {
				dupes = make(map[string]struct{})
			}
			dupes[it.Key] = struct{}{}
		}
		index[it.Key] = i
	}
	return items, index, dupes
}

// owns reports whether item i is the occurrence of its key that the index
// resolves to. Only that occurrence is given a cell; earlier duplicates
// take up their height without being rendered.
func (e *Engine) owns(i int) bool {
	return e.index[e.items[i].Key] == i
}

// rebuildBlock maps the previous render block onto the new item list.
func (e *Engine) rebuildBlock(prev []Item, pb blockState) blockState {
	if pb.inBlock == 0 || len(e.items) == 0 {
		for i := pb.first(); i <= pb.last() && i < len(prev); i++ {
			if e.pool.Active(prev[i].Key) != nil {
				e.recycle(prev[i].Key)
			}
		}
		return emptyBlock(e.items, e.oracle.HeightOf)
	}

	first, last := -1, -1
	anchor, anchorTop := -1, 0
	for i := pb.first(); i <= pb.last() && i < len(prev); i++ {
		key := prev[i].Key
		c := e.pool.Active(key)
		ni, ok := e.index[key]
		if !ok {
			if c != nil {
				e.recycle(key)
			}
			continue
		}
		it := e.items[ni]
		if c != nil && !c.compatible(it.Template, !it.MeasureHeight) {
			// The content changed shape, so its measurement is stale too.
			e.recycle(key)
			e.oracle.Forget(key)
			c = nil
		}
		if anchor < 0 && c != nil {
			anchor, anchorTop = ni, c.Top
		}
		if first < 0 || ni < first {
			first = ni
		}
		last = max(last, ni)
	}
	if first < 0 {
		return emptyBlock(e.items, e.oracle.HeightOf)
	}

	// A reordering can scatter survivors across the list. Start over rather
	// than materializing everything between them.
	if span := last - first + 1; span > 2*pb.inBlock+e.cfg.MaxSimultaneousMeasures {
		slog.Debug("Render block scattered by item change, reseeding", "span", span, "previous", pb.inBlock)
		for i := first; i <= last; i++ {
			if e.pool.Active(e.items[i].Key) != nil {
				e.recycle(e.items[i].Key)
			}
		}
		return emptyBlock(e.items, e.oracle.HeightOf)
	}

	s := blockAt(e.items, e.oracle.HeightOf, first, last-first+1, 0)
	if anchor >= 0 {
		natural := s.heightAbove
		for i := first; i < anchor; i++ {
			natural += e.oracle.HeightOf(e.items[i])
		}
		s.phantom = anchorTop - natural
	}
	// Items that moved into the block need cells before anything else
	// inspects it.
	e.reposition(s)
	return s
}

// Resize updates the viewport size. A width change invalidates every
// measured height since content may wrap differently.
func (e *Engine) Resize(width, height int) {
	if width == e.width && height == e.height {
		return
	}
	widthChanged := e.width != 0 && width != e.width
	e.width, e.height = width, height
	if widthChanged {
		e.invalidateMeasurements()
	}
	e.recalculate()
}

// Measurements still in flight were taken at the old width, so they are
// re-issued along with the settled ones.
func (e *Engine) invalidateMeasurements() {
	e.oracle.Reset()
	clear(e.pending)
	if e.block.inBlock == 0 {
		e.block = emptyBlock(e.items, e.oracle.HeightOf)
		return
	}
	e.block = blockAt(e.items, e.oracle.HeightOf, e.block.first(), e.block.inBlock, e.block.phantom)
	for i := e.block.first(); i <= e.block.last(); i++ {
		it := e.items[i]
		if !it.MeasureHeight {
			continue
		}
		if c := e.pool.Active(it.Key); c != nil {
			e.requestMeasure(it.Key, c)
		}
	}
}

// Scroll records a new scroll position. Unchanged positions are ignored.
func (e *Engine) Scroll(top, left int) {
	if top == e.scrollTop && left == e.scrollLeft {
		return
	}
	e.scrollTop, e.scrollLeft = top, left
	e.recalculate()
}

// ScrollBy scrolls by delta, clamped to the scrollable range.
func (e *Engine) ScrollBy(delta int, animated bool) {
	e.scrollTo(e.scrollTop+delta, animated)
}

// ReportHeight delivers a measured height. Reports for items that left the
// list or the render block are stale and ignored.
func (e *Engine) ReportHeight(key string, height int) {
	i, ok := e.index[key]
	if !ok {
		slog.Debug("Ignoring height report for unknown item", "key", key)
		return
	}
	it := e.items[i]
	if !it.MeasureHeight {
		delete(e.pending, key)
		slog.Debug("Ignoring height report for constant item", "key", key)
		return
	}
	if !e.block.contains(i) {
		slog.Debug("Ignoring height report for item outside the render block", "key", key, "index", i)
		return
	}
	if height <= 0 {
		e.violation(invariantf("report height", "item %q measured non-positive height %d", key, height))
		height = 1
	}

	old := e.oracle.HeightOf(it)
	e.oracle.Record(key, height)
	delete(e.pending, key)
	if _, dup := e.dupes[key]; dup {
		// Every occurrence changes height, wherever it sits.
		e.block = blockAt(e.items, e.oracle.HeightOf, e.block.first(), e.block.inBlock, e.block.phantom)
	} else if delta := height - old; delta != 0 {
		e.block = e.block.resized(delta, e.visibleBefore(i))
	}
	e.recalculate()
}

// visibleBefore reports whether a visible cell precedes item i in the block.
func (e *Engine) visibleBefore(i int) bool {
	for j := e.block.first(); j < i; j++ {
		if !e.owns(j) {
			continue
		}
		if c := e.pool.Active(e.items[j].Key); c != nil && c.Visible {
			return true
		}
	}
	return false
}

// AnimationStarted records that the host started animating the item's cell.
func (e *Engine) AnimationStarted(key string) {
	e.animating[key]++
}

// AnimationStopped records the end of an animation. Phantom offset
// reconciliation waits until no animation is in flight.
func (e *Engine) AnimationStopped(key string) {
	n, ok := e.animating[key]
	if !ok {
		e.violation(invariantf("animation stopped", "no animation in flight for %q", key))
		return
	}
	if n > 1 {
		e.animating[key] = n - 1
		return
	}
	delete(e.animating, key)
	if len(e.animating) == 0 {
		e.recalculate()
	}
}

// SetAccessibilityMode disables cell recycling while assistive technology
// needs a stable read order.
func (e *Engine) SetAccessibilityMode(enabled bool) {
	if e.a11y == enabled {
		return
	}
	e.a11y = enabled
	if enabled {
		e.setPoolCapacity(0)
	} else {
		e.setPoolCapacity(e.cfg.PoolCapacity)
	}
	e.requestRender()
}

func (e *Engine) setPoolCapacity(n int) {
	evicted := e.pool.SetCapacity(n)
	for _, c := range evicted {
		e.host.Unmount(*c)
	}
	if len(evicted) > 0 {
		e.dirty = true
	}
}

// ScrollToIndex scrolls so the item at index is at the top of the viewport.
func (e *Engine) ScrollToIndex(index int, animated bool) {
	if index < 0 || index >= len(e.items) || e.height <= 0 {
		slog.Debug("Ignoring scroll to index", "index", index, "items", len(e.items))
		return
	}
	e.scrollTo(e.offsetOfIndex(index), animated)
}

// ScrollToKey scrolls so the item with key is at the top of the viewport.
func (e *Engine) ScrollToKey(key string, animated bool) {
	if i, ok := e.index[key]; ok {
		e.ScrollToIndex(i, animated)
	}
}

func (e *Engine) scrollTo(top int, animated bool) {
	if e.height <= 0 {
		return
	}
	top = min(top, max(e.containerHeight-e.height, 0))
	top = max(top, 0)
	if top == e.scrollTop {
		return
	}
	e.host.ScrollTo(top, animated)
	e.Scroll(top, e.scrollLeft)
}

// SelectAndFocus focuses the item with key, scrolling to it first when it is
// not rendered.
func (e *Engine) SelectAndFocus(key string) bool {
	return e.focus.Select(key)
}

// FocusAdjacent moves focus to the next navigable item in dir.
func (e *Engine) FocusAdjacent(dir Direction, byKeyboard bool) bool {
	return e.focus.Adjacent(dir, byKeyboard)
}

func (e *Engine) Focused() string {
	return e.focus.Focused()
}

// IsDirty reports whether a render pass is due.
func (e *Engine) IsDirty() bool {
	return e.dirty
}

// RenderComplete is called by the host after it rendered the current cells.
func (e *Engine) RenderComplete() {
	e.dirty = false
	e.pool.ClearDirty()
	e.focus.setRendered(e.renderedNavigable())
	e.focus.resolve()
	e.recalculate()
}

func (e *Engine) requestRender() {
	if !e.dirty {
		return
	}
	e.sched.Coalesce(slotRender, func() {
		if e.dirty {
			e.host.RenderRequested()
		}
	})
}

func (e *Engine) renderedNavigable() []string {
	var keys []string
	for i := e.block.first(); i <= e.block.last(); i++ {
		it := e.items[i]
		if !it.Navigable || !e.owns(i) {
			continue
		}
		if c := e.pool.Active(it.Key); c != nil && c.Visible {
			keys = append(keys, it.Key)
		}
	}
	return keys
}

func (e *Engine) hasKey(key string) bool {
	_, ok := e.index[key]
	return ok
}

// offsetOfIndex is the believed top of item i.
func (e *Engine) offsetOfIndex(i int) int {
	s := e.block
	var top, from int
	switch {
	case s.contains(i):
		if c := e.pool.Active(e.items[i].Key); c != nil && e.owns(i) {
			return c.Top
		}
		top, from = s.top(), s.first()
	case s.inBlock > 0 && i > s.last():
		top, from = s.bottom(), s.last()+1
	}
	for j := from; j < i; j++ {
		top += e.oracle.HeightOf(e.items[j])
	}
	return top
}

func (e *Engine) offsetOfKey(key string) (int, bool) {
	i, ok := e.index[key]
	if !ok {
		return 0, false
	}
	return e.offsetOfIndex(i), true
}

func (e *Engine) scrollIntoView(key string) {
	i, ok := e.index[key]
	if !ok {
		return
	}
	top := e.offsetOfIndex(i)
	bottom := top + e.oracle.HeightOf(e.items[i])
	switch {
	case top < e.scrollTop:
		e.scrollTo(top, true)
	case bottom > e.scrollTop+e.height:
		e.scrollTo(min(top, bottom-e.height), true)
	}
}

func (e *Engine) focusKey(key string) {
	e.host.Focus(key)
}

func (e *Engine) recycle(key string) {
	delete(e.pending, key)
	parked, dropped, err := e.pool.Recycle(key)
	if err != nil {
		e.violation(err)
		return
	}
	if parked != nil {
		e.host.Reposition(*parked, false)
	}
	for _, c := range dropped {
		e.host.Unmount(*c)
	}
	e.dirty = true
}

func (e *Engine) requestMeasure(key string, c *Cell) {
	if _, ok := e.pending[key]; ok {
		return
	}
	e.pending[key] = struct{}{}
	e.host.Measure(*c)
}

// Items returns the current item list.
func (e *Engine) Items() []Item {
	return slices.Clone(e.items)
}

// Cells returns every live cell, active and pooled, ordered by slot id.
func (e *Engine) Cells() []Cell {
	return e.pool.Cells()
}

// HeightOf returns the best known height of the item with key.
func (e *Engine) HeightOf(key string) (int, bool) {
	i, ok := e.index[key]
	if !ok {
		return 0, false
	}
	return e.oracle.HeightOf(e.items[i]), true
}

// Snapshot describes the engine state at one point in time.
type Snapshot struct {
	ItemsAbove      int       `json:"items_above" yaml:"items_above"`
	ItemsInBlock    int       `json:"items_in_block" yaml:"items_in_block"`
	ItemsBelow      int       `json:"items_below" yaml:"items_below"`
	HeightAbove     int       `json:"height_above" yaml:"height_above"`
	HeightInBlock   int       `json:"height_in_block" yaml:"height_in_block"`
	HeightBelow     int       `json:"height_below" yaml:"height_below"`
	PhantomOffset   int       `json:"phantom_offset" yaml:"phantom_offset"`
	ContainerHeight int       `json:"container_height" yaml:"container_height"`
	ScrollTop       int       `json:"scroll_top" yaml:"scroll_top"`
	ViewportWidth   int       `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int       `json:"viewport_height" yaml:"viewport_height"`
	InitialFill     bool      `json:"initial_fill" yaml:"initial_fill"`
	Pending         int       `json:"pending_measurements" yaml:"pending_measurements"`
	Animating       int       `json:"animating" yaml:"animating"`
	ActiveCells     int       `json:"active_cells" yaml:"active_cells"`
	PooledCells     int       `json:"pooled_cells" yaml:"pooled_cells"`
	Pool            PoolStats `json:"pool" yaml:"pool"`
	Focused         string    `json:"focused,omitempty" yaml:"focused,omitempty"`
	Violations      int       `json:"violations" yaml:"violations"`
}

func (e *Engine) Snapshot() Snapshot {
	s := e.block
	return Snapshot{
		ItemsAbove:      s.above,
		ItemsInBlock:    s.inBlock,
		ItemsBelow:      s.below,
		HeightAbove:     s.heightAbove,
		HeightInBlock:   s.heightInBlock,
		HeightBelow:     s.heightBelow,
		PhantomOffset:   s.phantom,
		ContainerHeight: e.containerHeight,
		ScrollTop:       e.scrollTop,
		ViewportWidth:   e.width,
		ViewportHeight:  e.height,
		InitialFill:     e.initialFill,
		Pending:         len(e.pending),
		Animating:       len(e.animating),
		ActiveCells:     e.pool.ActiveLen(),
		PooledCells:     e.pool.PooledLen(),
		Pool:            e.pool.Stats(),
		Focused:         e.focus.Focused(),
		Violations:      e.violations,
	}
}

// CheckInvariants verifies the block bookkeeping against the item list.
func (e *Engine) CheckInvariants() error {
	s := e.block
	if s.total() != len(e.items) {
		return fmt.Errorf("%w: counts %d+%d+%d != %d items", ErrInvariant, s.above, s.inBlock, s.below, len(e.items))
	}
	var above, in, below int
	for i, it := range e.items {
		h := e.oracle.HeightOf(it)
		switch {
		case i < s.first():
			above += h
		case i <= s.last():
			in += h
		default:
			below += h
		}
	}
	if above != s.heightAbove || in != s.heightInBlock || below != s.heightBelow {
		return fmt.Errorf("%w: heights %d/%d/%d, expected %d/%d/%d", ErrInvariant,
			s.heightAbove, s.heightInBlock, s.heightBelow, above, in, below)
	}
	var owned int
	for i := s.first(); i <= s.last(); i++ {
		if !e.owns(i) {
			continue
		}
		owned++
		if e.pool.Active(e.items[i].Key) == nil {
			return fmt.Errorf("%w: item %q in block has no cell", ErrInvariant, e.items[i].Key)
		}
	}
	if n := e.pool.ActiveLen(); n != owned {
		return fmt.Errorf("%w: %d active cells for %d items in block", ErrInvariant, n, owned)
	}
	for key := range e.pending {
		if i, ok := e.index[key]; !ok || !s.contains(i) {
			return fmt.Errorf("%w: pending measurement for %q outside the block", ErrInvariant, key)
		}
	}
	return nil
}
