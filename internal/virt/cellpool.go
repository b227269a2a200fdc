package virt

import (
	"cmp"
	"fmt"
	"slices"
)

// CellState is the lifecycle state of a cell.
type CellState int

const (
	// CellUnbound cells are bound to nothing and about to be discarded.
	CellUnbound CellState = iota
	// CellActive cells are bound to an item inside the render block.
	CellActive
	// CellPooled cells are detached, hidden and kept for reuse.
	CellPooled
)

func (s CellState) String() string {
	switch s {
	case CellActive:
		return "active"
	case CellPooled:
		return "pooled"
	default:
		return "unbound"
	}
}

// Cell is a rendering slot. SlotID is the stable identity hosts diff on; it
// is never reused, even after the cell is destroyed.
type Cell struct {
	SlotID uint64
	// ItemKey is the bound item, or the last bound item for pooled cells.
	ItemKey        string
	Template       string
	HeightConstant bool
	Height         int
	Top            int
	Visible        bool
	State          CellState

	dirty bool
}

func (c *Cell) compatible(template string, constant bool) bool {
	return c.Template == template && c.HeightConstant == constant
}

// bind moves an unbound or pooled cell to the active state.
func (c *Cell) bind(key string, height, top int, visible bool) error {
	if c.State == CellActive {
		return invariantf("bind", "cell %d is already bound to %q", c.SlotID, c.ItemKey)
	}
	c.State = CellActive
	c.ItemKey = key
	c.Height = height
	c.Top = top
	c.Visible = visible
	c.dirty = true
	return nil
}

// move updates an active cell in place and reports whether anything changed.
func (c *Cell) move(height, top int, visible bool) bool {
	if c.Height == height && c.Top == top && c.Visible == visible {
		return false
	}
	c.Height = height
	c.Top = top
	c.Visible = visible
	c.dirty = true
	return true
}

// detach hides the cell at its last position.
func (c *Cell) detach() {
	c.State = CellUnbound
	c.Visible = false
	c.dirty = true
}

func (c *Cell) park() {
	c.State = CellPooled
}

// AllocOrigin tells where Allocate found a cell.
type AllocOrigin int

const (
	OriginActive AllocOrigin = iota
	OriginPool
	OriginNew
)

// PoolStats counts cell pool activity.
type PoolStats struct {
	Created  int `json:"created" yaml:"created"`
	Reused   int `json:"reused" yaml:"reused"`
	Recycled int `json:"recycled" yaml:"recycled"`
	Dropped  int `json:"dropped" yaml:"dropped"`
	Evicted  int `json:"evicted" yaml:"evicted"`
}

// CellPool owns every cell: the active ones bound to items and a bounded
// pool of detached ones kept around for cheap reuse.
type CellPool struct {
	lastSlot uint64
	active   map[string]*Cell
	// pooled is ordered oldest first.
	pooled   []*Cell
	capacity int
	dirty    bool
	stats    PoolStats
}

func NewCellPool(capacity int) *CellPool {
	return &CellPool{
		active:   make(map[string]*Cell),
		capacity: max(capacity, 0),
	}
}

// Active returns the active cell bound to key, if any.
func (p *CellPool) Active(key string) *Cell {
	return p.active[key]
}

// Allocate binds a cell to key. An active cell already bound to key is
// updated in place; recyclable items try the pool first, preferring a cell
// last bound to the same key with the same height; otherwise a new slot is
// minted.
func (p *CellPool) Allocate(key, template string, constant bool, height, top int, visible bool) (*Cell, AllocOrigin, error) {
	if c, ok := p.active[key]; ok {
		if !c.compatible(template, constant) {
			return nil, OriginActive, invariantf("allocate",
				"cell %d for %q rebound from template %q/constant=%t to %q/constant=%t",
				c.SlotID, key, c.Template, c.HeightConstant, template, constant)
		}
		if c.move(height, top, visible) {
			p.dirty = true
		}
		return c, OriginActive, nil
	}

	if template != "" && constant {
		if c := p.takePooled(key, template, height); c != nil {
			if err := c.bind(key, height, top, visible); err != nil {
				return nil, OriginPool, err
			}
			p.active[key] = c
			p.dirty = true
			p.stats.Reused++
			return c, OriginPool, nil
		}
	}

	p.lastSlot++
	c := &Cell{
		SlotID:         p.lastSlot,
		Template:       template,
		HeightConstant: constant,
	}
	if err := c.bind(key, height, top, visible); err != nil {
		return nil, OriginNew, err
	}
	p.active[key] = c
	p.dirty = true
	p.stats.Created++
	return c, OriginNew, nil
}

func (p *CellPool) takePooled(key, template string, height int) *Cell {
	best := -1
	for i, c := range p.pooled {
		if c.Template != template {
			continue
		}
		if c.ItemKey == key && c.Height == height {
			best = i
			break
		}
		// Template-only matches prefer the most recently pooled cell.
		best = i
	}
	if best < 0 {
		return nil
	}
	c := p.pooled[best]
	p.pooled = slices.Delete(p.pooled, best, best+1)
	return c
}

// Recycle detaches the cell bound to key. A recyclable cell is returned as
// parked and stays mounted but hidden; anything the pool could not keep is
// returned in dropped and must be unmounted by the host.
func (p *CellPool) Recycle(key string) (parked *Cell, dropped []*Cell, err error) {
	c, ok := p.active[key]
	if !ok {
		return nil, nil, invariantf("recycle", "no active cell for %q", key)
	}
	delete(p.active, key)
	c.detach()
	p.dirty = true

	if c.Template == "" || !c.HeightConstant || p.capacity == 0 {
		p.stats.Dropped++
		return nil, []*Cell{c}, nil
	}

	c.park()
	p.pooled = append(p.pooled, c)
	p.stats.Recycled++
	evicted := p.trim()
	if slices.Contains(evicted, c) {
		return nil, evicted, nil
	}
	return c, evicted, nil
}

// SetCapacity changes the pool size and returns the cells evicted to fit.
func (p *CellPool) SetCapacity(n int) []*Cell {
	p.capacity = max(n, 0)
	return p.trim()
}

func (p *CellPool) trim() []*Cell {
	if len(p.pooled) <= p.capacity {
		return nil
	}
	n := len(p.pooled) - p.capacity
	evicted := slices.Clone(p.pooled[:n])
	p.pooled = slices.Delete(p.pooled, 0, n)
	for _, c := range evicted {
		c.State = CellUnbound
	}
	p.stats.Evicted += n
	p.dirty = true
	return evicted
}

// Cells returns copies of every live cell ordered by slot id.
func (p *CellPool) Cells() []Cell {
	cells := make([]Cell, 0, len(p.active)+len(p.pooled))
	for _, c := range p.active {
		cells = append(cells, *c)
	}
	for _, c := range p.pooled {
		cells = append(cells, *c)
	}
	slices.SortFunc(cells, func(a, b Cell) int {
		return cmp.Compare(a.SlotID, b.SlotID)
	})
	return cells
}

func (p *CellPool) ActiveLen() int { return len(p.active) }
func (p *CellPool) PooledLen() int { return len(p.pooled) }
func (p *CellPool) Stats() PoolStats {
	return p.stats
}

// Dirty reports whether any cell changed since the last ClearDirty.
func (p *CellPool) Dirty() bool {
	return p.dirty
}

func (p *CellPool) ClearDirty() {
	p.dirty = false
	for _, c := range p.active {
		c.dirty = false
	}
	for _, c := range p.pooled {
		c.dirty = false
	}
}

func (p *CellPool) String() string {
	return fmt.Sprintf("CellPool{active: %d, pooled: %d/%d}", len(p.active), len(p.pooled), p.capacity)
}
