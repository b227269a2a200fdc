package virt

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHost struct {
	mounted   int
	unmounted int
	moves     int
	animated  int
	measures  []string
	container int
	scrolls   []int
	focused   string
	renders   int
}

func (h *recordingHost) Mount(Cell)   { h.mounted++ }
func (h *recordingHost) Unmount(Cell) { h.unmounted++ }

func (h *recordingHost) Reposition(_ Cell, animate bool) {
	h.moves++
	if animate {
		h.animated++
	}
}

func (h *recordingHost) Measure(c Cell)                { h.measures = append(h.measures, c.ItemKey) }
func (h *recordingHost) SetContainerHeight(height int) { h.container = height }
func (h *recordingHost) ScrollTo(top int, _ bool)      { h.scrolls = append(h.scrolls, top) }
func (h *recordingHost) Focus(key string)              { h.focused = key }
func (h *recordingHost) RenderRequested()              { h.renders++ }

// takeMeasures returns and clears the outstanding measurement requests.
func (h *recordingHost) takeMeasures() []string {
	keys := h.measures
	h.measures = nil
	return keys
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recordingHost) {
	t.Helper()
	h := &recordingHost{}
	e, err := New(h, opts...)
	require.NoError(t, err)
	return e, h
}

// settle plays the host side of the render loop until nothing is dirty.
func settle(t *testing.T, e *Engine) {
	t.Helper()
	for range 32 {
		e.Flush()
		if !e.IsDirty() {
			return
		}
		e.RenderComplete()
	}
	t.Fatal("engine did not settle")
}

func uniformItems(n, height int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Key:       fmt.Sprintf("item-%d", i),
			Height:    height,
			Template:  "row",
			Navigable: true,
		}
	}
	return items
}

func activeCell(t *testing.T, e *Engine, key string) Cell {
	t.Helper()
	for _, c := range e.Cells() {
		if c.State == CellActive && c.ItemKey == key {
			return c
		}
	}
	t.Fatalf("no active cell for %q", key)
	return Cell{}
}

func TestInitialFill(t *testing.T) {
	t.Parallel()
	e, h := newTestEngine(t)
	e.SetItems(uniformItems(1000, 50))
	e.Resize(800, 500)
	e.Flush()

	snap := e.Snapshot()
	assert.Equal(t, 0, snap.ItemsAbove)
	assert.Equal(t, 10, snap.ItemsInBlock)
	assert.False(t, snap.InitialFill)
	for _, c := range e.Cells() {
		assert.False(t, c.Visible, "cell %d shown before the first screen is complete", c.SlotID)
	}
	assert.Equal(t, 1, h.renders)

	settle(t, e)
	snap = e.Snapshot()
	assert.True(t, snap.InitialFill)
	assert.Equal(t, 0, snap.ItemsAbove)
	assert.Equal(t, 20, snap.ItemsInBlock)
	assert.Equal(t, 980, snap.ItemsBelow)
	assert.Equal(t, 50000, snap.ContainerHeight)
	assert.Equal(t, 50000, h.container)
	for _, c := range e.Cells() {
		assert.True(t, c.Visible)
	}
	require.NoError(t, e.CheckInvariants())
}

func TestPhantomOffsetAboveViewport(t *testing.T) {
	t.Parallel()
	items := uniformItems(1000, 50)
	items[5].MeasureHeight = true
	items[5].Template = ""

	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	require.Equal(t, []string{"item-5"}, h.takeMeasures())
	require.Equal(t, 1, e.Snapshot().Pending)

	e.Scroll(400, 0)
	e.AnimationStarted("item-0")
	e.ReportHeight("item-5", 80)

	snap := e.Snapshot()
	assert.Equal(t, -30, snap.PhantomOffset)
	assert.Equal(t, 50000, snap.ContainerHeight)
	assert.Equal(t, 300, activeCell(t, e, "item-6").Top)
	require.NoError(t, e.CheckInvariants())

	e.AnimationStopped("item-0")
	snap = e.Snapshot()
	assert.Equal(t, 0, snap.PhantomOffset)
	assert.Equal(t, 50030, snap.ContainerHeight)
	assert.Equal(t, 430, snap.ScrollTop)
	assert.Equal(t, 430, h.scrolls[len(h.scrolls)-1])
	assert.Equal(t, 330, activeCell(t, e, "item-6").Top)
	require.NoError(t, e.CheckInvariants())
}

func TestScrollRoundTrip(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.SetItems(uniformItems(1000, 50))
	e.Resize(800, 500)
	settle(t, e)
	before := e.Snapshot()

	e.Scroll(5000, 0)
	settle(t, e)
	far := e.Snapshot()
	assert.Equal(t, 90, far.ItemsAbove)
	assert.Equal(t, 30, far.ItemsInBlock)
	require.NoError(t, e.CheckInvariants())

	e.Scroll(0, 0)
	settle(t, e)
	after := e.Snapshot()
	assert.Equal(t, before.ItemsAbove, after.ItemsAbove)
	assert.Equal(t, before.ItemsInBlock, after.ItemsInBlock)
	assert.Equal(t, before.ItemsBelow, after.ItemsBelow)
	assert.Equal(t, 30, after.Pool.Created, "cells should come from the pool on the way back")
	require.NoError(t, e.CheckInvariants())
}

func TestFocusFollowsRemoval(t *testing.T) {
	t.Parallel()
	items := uniformItems(10, 50)
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)

	require.True(t, e.SelectAndFocus("item-3"))
	assert.Equal(t, "item-3", h.focused)

	e.SetItems(slices.DeleteFunc(slices.Clone(items), func(it Item) bool {
		return it.Key == "item-3"
	}))
	assert.Equal(t, "item-4", h.focused)
	assert.Equal(t, "item-4", e.Focused())

	e.SetItems(items[:3])
	assert.Equal(t, "item-2", h.focused)

	e.SetItems(nil)
	assert.Empty(t, h.focused)
	assert.Empty(t, e.Focused())
}

func TestFocusAdjacent(t *testing.T) {
	t.Parallel()
	e, h := newTestEngine(t)
	e.SetItems(uniformItems(10, 50))
	e.Resize(800, 500)
	settle(t, e)

	assert.False(t, e.FocusAdjacent(DirectionDown, true), "nothing focused yet")

	require.True(t, e.SelectAndFocus("item-0"))
	assert.True(t, e.FocusAdjacent(DirectionDown, true))
	assert.Equal(t, "item-1", h.focused)
	assert.True(t, e.FocusAdjacent(DirectionUp, true))
	assert.False(t, e.FocusAdjacent(DirectionUp, true), "already at the first item")
	assert.Equal(t, "item-0", h.focused)

	require.True(t, e.SelectAndFocus("item-9"))
	assert.False(t, e.FocusAdjacent(DirectionDown, true))
	assert.Equal(t, "item-9", e.Focused())
}

func TestFocusDeferredUntilRendered(t *testing.T) {
	t.Parallel()
	e, h := newTestEngine(t)
	e.SetItems(uniformItems(1000, 50))
	e.Resize(800, 500)
	settle(t, e)

	require.True(t, e.SelectAndFocus("item-500"))
	assert.Equal(t, 25000, h.scrolls[len(h.scrolls)-1])
	assert.Empty(t, h.focused, "focus waits for the item to be rendered")

	settle(t, e)
	assert.Equal(t, "item-500", h.focused)

	assert.False(t, e.SelectAndFocus("missing"))
}

func TestCellRecycling(t *testing.T) {
	t.Parallel()
	items := uniformItems(1000, 50)
	items[0].Template = "header"

	e, _ := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	slot := activeCell(t, e, "item-0").SlotID

	e.Scroll(2000, 0)
	settle(t, e)
	e.Scroll(0, 0)
	settle(t, e)

	assert.Equal(t, slot, activeCell(t, e, "item-0").SlotID)
	assert.Positive(t, e.Snapshot().Pool.Reused)
	require.NoError(t, e.CheckInvariants())
}

func TestMeasuredCellsAreNotRecycled(t *testing.T) {
	t.Parallel()
	items := uniformItems(100, 50)
	for i := range items {
		items[i].MeasureHeight = true
	}
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	for range 10 {
		settle(t, e)
		for _, key := range h.takeMeasures() {
			e.ReportHeight(key, 50)
		}
	}
	settle(t, e)

	e.Scroll(4000, 0)
	settle(t, e)
	assert.Zero(t, e.Snapshot().PooledCells)
	assert.Positive(t, h.unmounted)
}

func TestAccessibilityModeEmptiesPool(t *testing.T) {
	t.Parallel()
	e, h := newTestEngine(t)
	e.SetItems(uniformItems(1000, 50))
	e.Resize(800, 500)
	settle(t, e)
	e.Scroll(10000, 0)
	settle(t, e)
	e.Scroll(0, 0)
	settle(t, e)
	require.Equal(t, 10, e.Snapshot().PooledCells)

	e.SetAccessibilityMode(true)
	assert.Zero(t, e.Snapshot().PooledCells)
	assert.Equal(t, 10, h.unmounted)

	e.Scroll(10000, 0)
	settle(t, e)
	assert.Zero(t, e.Snapshot().PooledCells)
	require.NoError(t, e.CheckInvariants())

	e.SetAccessibilityMode(false)
	e.Scroll(0, 0)
	settle(t, e)
	assert.Positive(t, e.Snapshot().PooledCells)
}

func TestWidthChangeDuringMeasurement(t *testing.T) {
	t.Parallel()
	items := uniformItems(20, 50)
	items[2].MeasureHeight = true
	items[4].MeasureHeight = true
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	require.Equal(t, []string{"item-2", "item-4"}, h.takeMeasures())
	require.Equal(t, 2, e.Snapshot().Pending)

	// The host drops the reports taken at 800 columns.
	e.Resize(600, 500)
	assert.Equal(t, []string{"item-2", "item-4"}, h.takeMeasures())
	e.ReportHeight("item-2", 80)
	e.ReportHeight("item-4", 60)
	settle(t, e)

	snap := e.Snapshot()
	assert.Equal(t, 0, snap.Pending)
	assert.True(t, snap.InitialFill)
	got, _ := e.HeightOf("item-2")
	assert.Equal(t, 80, got)
	require.NoError(t, e.CheckInvariants())
}

func TestTemplateChangeRemeasures(t *testing.T) {
	t.Parallel()
	items := uniformItems(20, 50)
	items[2].MeasureHeight = true
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	require.Equal(t, []string{"item-2"}, h.takeMeasures())
	e.ReportHeight("item-2", 90)
	settle(t, e)

	changed := slices.Clone(items)
	changed[2].Template = "card"
	e.SetItems(changed)
	assert.Equal(t, []string{"item-2"}, h.takeMeasures())
	got, _ := e.HeightOf("item-2")
	assert.Equal(t, 50, got)
	require.NoError(t, e.CheckInvariants())
}

func TestRecalculateIsIdempotent(t *testing.T) {
	t.Parallel()
	items := uniformItems(200, 50)
	items[7].MeasureHeight = true
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	for _, key := range h.takeMeasures() {
		e.ReportHeight(key, 70)
	}
	settle(t, e)

	snap, cells, moves := e.Snapshot(), e.Cells(), h.moves
	e.recalculate()
	assert.Equal(t, snap, e.Snapshot())
	assert.Equal(t, cells, e.Cells())
	assert.Equal(t, moves, h.moves)
}

func TestMeasurementCeiling(t *testing.T) {
	t.Parallel()
	items := uniformItems(100, 10)
	for i := range items {
		items[i].MeasureHeight = true
	}
	e, h := newTestEngine(t, WithMaxSimultaneousMeasures(4))
	e.SetItems(items)
	e.Resize(80, 500)
	e.Flush()

	assert.Len(t, h.takeMeasures(), 4)
	assert.Equal(t, 4, e.Snapshot().ItemsInBlock)
	assert.False(t, e.Snapshot().InitialFill)
}

func TestStaleReportsAreIgnored(t *testing.T) {
	t.Parallel()
	items := uniformItems(100, 50)
	items[90].MeasureHeight = true
	e, _ := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	before := e.Snapshot()

	e.ReportHeight("item-90", 500)
	e.ReportHeight("gone", 20)
	assert.Equal(t, before, e.Snapshot())
	h, ok := e.HeightOf("item-90")
	require.True(t, ok)
	assert.Equal(t, 50, h)
}

func TestListChangeKeepsAnchor(t *testing.T) {
	t.Parallel()
	items := uniformItems(100, 50)
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	e.Scroll(1000, 0)
	settle(t, e)
	require.Equal(t, 4, e.Snapshot().ItemsAbove)
	anchor := activeCell(t, e, "item-20")

	inserted := append([]Item{{Key: "new-0", Height: 50, Template: "row"}, {Key: "new-1", Height: 30}}, items...)
	e.SetItems(inserted)
	settle(t, e)

	moved := activeCell(t, e, "item-20")
	assert.Equal(t, anchor.SlotID, moved.SlotID)
	assert.Equal(t, anchor.Top+80, moved.Top)
	assert.Equal(t, 1080, e.Snapshot().ScrollTop, "scroll follows the content that was inserted above")
	assert.Equal(t, 1080, h.scrolls[len(h.scrolls)-1])
	require.NoError(t, e.CheckInvariants())
}

func TestWidthChangeRemeasures(t *testing.T) {
	t.Parallel()
	items := uniformItems(20, 50)
	items[2].MeasureHeight = true
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 500)
	settle(t, e)
	require.Equal(t, []string{"item-2"}, h.takeMeasures())
	e.ReportHeight("item-2", 90)
	settle(t, e)

	e.Resize(800, 400)
	assert.Empty(t, h.takeMeasures(), "height changes keep measurements")

	e.Resize(600, 400)
	assert.Equal(t, []string{"item-2"}, h.takeMeasures())
	got, _ := e.HeightOf("item-2")
	assert.Equal(t, 50, got)
}

func TestDuplicateKeys(t *testing.T) {
	t.Parallel()

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t)
		e.SetItems([]Item{{Key: "a", Height: 10}, {Key: "a", Height: 20}, {Key: "b", Height: -4}})
		assert.Equal(t, 2, e.Snapshot().Violations)
		got, _ := e.HeightOf("b")
		assert.Equal(t, 1, got)
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t, WithStrict())
		assert.Panics(t, func() {
			e.SetItems([]Item{{Key: "a", Height: 10}, {Key: "a", Height: 20}})
		})
	})

	t.Run("on screen", func(t *testing.T) {
		t.Parallel()
		items := uniformItems(100, 50)
		items[3].Key = "item-2"
		e, h := newTestEngine(t)
		e.SetItems(items)
		e.Resize(800, 500)
		settle(t, e)

		snap := e.Snapshot()
		assert.Equal(t, 1, snap.Violations)
		assert.Equal(t, snap.ItemsInBlock-1, snap.ActiveCells)
		assert.Equal(t, 150, activeCell(t, e, "item-2").Top)
		require.NoError(t, e.CheckInvariants())

		moves := h.moves
		e.recalculate()
		assert.False(t, e.IsDirty())
		assert.Equal(t, moves, h.moves)

		e.ScrollToIndex(60, false)
		settle(t, e)
		require.NoError(t, e.CheckInvariants())
		e.ScrollToIndex(0, false)
		settle(t, e)
		require.NoError(t, e.CheckInvariants())
		assert.Equal(t, 150, activeCell(t, e, "item-2").Top)
	})

	t.Run("measured on screen", func(t *testing.T) {
		t.Parallel()
		items := uniformItems(20, 50)
		items[1].Key = "item-5"
		items[1].MeasureHeight = true
		items[5].MeasureHeight = true
		e, h := newTestEngine(t)
		e.SetItems(items)
		e.Resize(800, 500)
		settle(t, e)
		require.Equal(t, []string{"item-5"}, h.takeMeasures())

		e.ReportHeight("item-5", 80)
		settle(t, e)
		require.NoError(t, e.CheckInvariants())
		assert.Equal(t, 280, activeCell(t, e, "item-5").Top)
		assert.Equal(t, 20*50+2*30, e.Snapshot().ContainerHeight)
	})
}

func TestAnimationStoppedWithoutStart(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.AnimationStopped("nope")
	assert.Equal(t, 1, e.Snapshot().Violations)
}

func TestEmptyList(t *testing.T) {
	t.Parallel()
	e, h := newTestEngine(t)
	e.Resize(800, 500)
	settle(t, e)
	assert.Equal(t, 500, h.container)
	assert.Zero(t, e.Snapshot().ItemsInBlock)

	e.ScrollToIndex(3, false)
	assert.Empty(t, h.scrolls)
	require.NoError(t, e.CheckInvariants())
}

func TestScrollToIndex(t *testing.T) {
	t.Parallel()
	e, h := newTestEngine(t)
	e.SetItems(uniformItems(1000, 50))
	e.ScrollToIndex(10, false)
	assert.Empty(t, h.scrolls, "no viewport yet")

	e.Resize(800, 500)
	settle(t, e)
	e.ScrollToIndex(10, true)
	assert.Equal(t, []int{500}, h.scrolls)
	e.ScrollToKey("item-999", false)
	assert.Equal(t, 49500, h.scrolls[len(h.scrolls)-1], "clamped to the scrollable range")
}

func TestInvariantsUnderRandomEvents(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 11))
	items := make([]Item, 400)
	for i := range items {
		items[i] = Item{Key: fmt.Sprintf("item-%d", i), Height: 40, Template: "row", Navigable: true}
		if i%3 == 0 {
			items[i].MeasureHeight = true
			items[i].Template = ""
		}
	}
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 600)

	for step := range 500 {
		switch rng.IntN(6) {
		case 0:
			e.Scroll(rng.IntN(20000), 0)
		case 1:
			for _, key := range h.takeMeasures() {
				e.ReportHeight(key, 10+rng.IntN(120))
			}
		case 2:
			settle(t, e)
		case 3:
			e.Resize(800, 300+rng.IntN(600))
		case 4:
			cut := rng.IntN(len(items))
			next := append(items[:cut:cut], items[min(cut+rng.IntN(5), len(items)):]...)
			e.SetItems(next)
		case 5:
			if cells := e.Cells(); len(cells) > 0 {
				key := cells[rng.IntN(len(cells))].ItemKey
				e.AnimationStarted(key)
				e.AnimationStopped(key)
			}
		}
		require.NoError(t, e.CheckInvariants(), "step %d", step)
	}
	assert.Zero(t, e.Snapshot().Violations)
}

func TestPhantomOffsetConverges(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 5))
	items := make([]Item, 300)
	for i := range items {
		items[i] = Item{Key: fmt.Sprintf("item-%d", i), Height: 40, MeasureHeight: true}
	}
	e, h := newTestEngine(t)
	e.SetItems(items)
	e.Resize(800, 600)

	for _, top := range []int{0, 3000, 1200, 6000, 200} {
		e.Scroll(top, 0)
		for range 50 {
			settle(t, e)
			keys := h.takeMeasures()
			if len(keys) == 0 {
				break
			}
			for _, key := range keys {
				e.ReportHeight(key, 20+rng.IntN(60))
			}
		}
		settle(t, e)

		total := 0
		for _, it := range e.Items() {
			height, _ := e.HeightOf(it.Key)
			total += height
		}
		snap := e.Snapshot()
		assert.Zero(t, snap.PhantomOffset, "scroll %d", top)
		assert.Equal(t, max(total, 600), snap.ContainerHeight, "scroll %d", top)
		require.NoError(t, e.CheckInvariants())
	}
}

func TestCellLayoutGolden(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	items := uniformItems(6, 10)
	e.SetItems(items)
	e.Resize(40, 20)
	settle(t, e)

	var b strings.Builder
	for _, c := range e.Cells() {
		fmt.Fprintf(&b, "%d %s top=%d h=%d visible=%t %s\n", c.SlotID, c.ItemKey, c.Top, c.Height, c.Visible, c.State)
	}
	s := e.Snapshot()
	fmt.Fprintf(&b, "block above=%d in=%d below=%d phantom=%d container=%d\n",
		s.ItemsAbove, s.ItemsInBlock, s.ItemsBelow, s.PhantomOffset, s.ContainerHeight)
	golden.RequireEqual(t, []byte(b.String()))
}
