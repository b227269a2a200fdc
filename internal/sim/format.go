package sim

import (
	"fmt"
	"io"
)

// WriteText prints one line per frame.
func WriteText(w io.Writer, frames []Frame) error {
	for _, f := range frames {
		s := f.Snapshot
		line := fmt.Sprintf("%d %s above=%d in=%d below=%d phantom=%d container=%d scroll=%d active=%d pooled=%d pending=%d",
			f.Step, f.Action, s.ItemsAbove, s.ItemsInBlock, s.ItemsBelow, s.PhantomOffset,
			s.ContainerHeight, s.ScrollTop, s.ActiveCells, s.PooledCells, s.Pending)
		if s.Focused != "" {
			line += fmt.Sprintf(" focused=%s", s.Focused)
		}
		if f.Invariant != "" {
			line += " invariant=" + f.Invariant
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
