package virt

// Item is one entry of the virtualized list. Items are immutable for a given
// revision of the list; identity is Key and order is the position in the
// slice handed to Engine.SetItems.
type Item struct {
	Key string
	// Height is authoritative unless MeasureHeight is set, in which case it
	// is only the initial guess.
	Height        int
	MeasureHeight bool
	// Template groups visually similar items so their cells can be recycled.
	Template  string
	Navigable bool
}

// Direction is the direction of a focus move.
type Direction int

const (
	DirectionUp Direction = iota - 1
	DirectionNone
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}
