package virt

import "fmt"

// blockState is the render block bookkeeping. It is a value: every pass of
// the tracker takes a state and returns the next one, and every transition
// moves a count and its height together.
type blockState struct {
	above, inBlock, below                   int
	heightAbove, heightInBlock, heightBelow int
	// phantom is added to heightAbove to get the top of the block. It
	// absorbs height-guess errors above the first visible cell.
	phantom int
}

// emptyBlock returns the state of a list with no render block, with every
// item counted below.
func emptyBlock(items []Item, heightOf func(Item) int) blockState {
	s := blockState{below: len(items)}
	for _, it := range items {
		s.heightBelow += heightOf(it)
	}
	return s
}

// blockAt returns the state for the block [first, first+count).
func blockAt(items []Item, heightOf func(Item) int, first, count, phantom int) blockState {
	s := blockState{phantom: phantom}
	for i, it := range items {
		h := heightOf(it)
		switch {
		case i < first:
			s.above++
			s.heightAbove += h
		case i < first+count:
			s.inBlock++
			s.heightInBlock += h
		default:
			s.below++
			s.heightBelow += h
		}
	}
	return s
}

func (s blockState) total() int {
	return s.above + s.inBlock + s.below
}

func (s blockState) first() int {
	return s.above
}

func (s blockState) last() int {
	return s.above + s.inBlock - 1
}

func (s blockState) contains(i int) bool {
	return s.inBlock > 0 && i >= s.first() && i <= s.last()
}

// top is the believed position of the first in-block item.
func (s blockState) top() int {
	return s.heightAbove + s.phantom
}

func (s blockState) bottom() int {
	return s.top() + s.heightInBlock
}

func (s blockState) contentHeight() int {
	return s.heightAbove + s.heightInBlock + s.heightBelow + s.phantom
}

func (s blockState) cullTop(h int) blockState {
	s.above++
	s.inBlock--
	s.heightAbove += h
	s.heightInBlock -= h
	return s
}

func (s blockState) cullBottom(h int) blockState {
	s.below++
	s.inBlock--
	s.heightBelow += h
	s.heightInBlock -= h
	return s
}

func (s blockState) growDown(h int) blockState {
	s.below--
	s.inBlock++
	s.heightBelow -= h
	s.heightInBlock += h
	return s
}

func (s blockState) growUp(h int) blockState {
	s.above--
	s.inBlock++
	s.heightAbove -= h
	s.heightInBlock += h
	return s
}

// resized applies an in-block height change. When nothing visible sits above
// the item the change is absorbed by the phantom offset so that the cells
// below it keep their position.
func (s blockState) resized(delta int, visibleBefore bool) blockState {
	s.heightInBlock += delta
	if !visibleBefore {
		s.phantom -= delta
	}
	return s
}

func (s blockState) String() string {
	return fmt.Sprintf("block{above: %d/%d, in: %d/%d, below: %d/%d, phantom: %d}",
		s.above, s.heightAbove, s.inBlock, s.heightInBlock, s.below, s.heightBelow, s.phantom)
}
