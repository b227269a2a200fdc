package virt

import "github.com/charmbracelet/vlist/internal/csync"

// HeightOracle answers the best known height of an item. Declared heights of
// constant items are authoritative; measurable items use the last measured
// height and fall back to their declared guess.
type HeightOracle struct {
	measured *csync.Map[string, int]
}

func NewHeightOracle() *HeightOracle {
	return &HeightOracle{
		measured: csync.NewMap[string, int](),
	}
}

// HeightOf returns the current best known height of item.
func (o *HeightOracle) HeightOf(item Item) int {
	if !item.MeasureHeight {
		return item.Height
	}
	if h, ok := o.measured.Get(item.Key); ok {
		return h
	}
	return item.Height
}

// IsHeightKnown reports whether HeightOf is authoritative for item.
func (o *HeightOracle) IsHeightKnown(item Item) bool {
	if !item.MeasureHeight {
		return true
	}
	_, ok := o.measured.Get(item.Key)
	return ok
}

// Record stores a measured height.
func (o *HeightOracle) Record(key string, height int) {
	o.measured.Set(key, height)
}

// Forget drops the measurement for key.
func (o *HeightOracle) Forget(key string) {
	o.measured.Del(key)
}

// Retain drops every measurement whose key is not kept and returns how many
// were dropped.
func (o *HeightOracle) Retain(keep func(key string) bool) int {
	return o.measured.DeleteFunc(func(key string, _ int) bool {
		return !keep(key)
	})
}

// Reset drops all measurements.
func (o *HeightOracle) Reset() {
	o.measured.Reset()
}

func (o *HeightOracle) Len() int {
	return o.measured.Len()
}
