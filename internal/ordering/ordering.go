package ordering

import (
	"errors"
	"fmt"
	"sort"
)

// Spacing constants for order values.
const (
	// Gap is the distance placed between a new top/bottom item and the
	// current extreme of the sequence.
	Gap float64 = 10000

	// MinGap is the smallest neighbour distance a midpoint insert accepts
	// before the sequence must be normalized.
	MinGap float64 = 1000

	// Step is the spacing used when a sequence is normalized.
	Step float64 = 500

	// BaseOrder is returned for any placement into an empty sequence.
	BaseOrder float64 = 1000
)

// ErrInvalidPosition is returned when a Position has an unknown kind.
var ErrInvalidPosition = errors.New("ordering: invalid position")

// Item is one sibling in an ordered sequence.
type Item struct {
	ID    string
	Order float64
}

// PositionKind selects how a Position is resolved.
type PositionKind string

// Position kinds.
const (
	PositionTop    PositionKind = "top"
	PositionBottom PositionKind = "bottom"
	PositionIndex  PositionKind = "index"
)

// Position is a requested placement within a sequence.
// Index is only read when Kind is PositionIndex and is zero-based.
type Position struct {
	Kind  PositionKind
	Index int
}

// Top returns a Position at the head of the sequence.
func Top() Position { return Position{Kind: PositionTop} }

// Bottom returns a Position at the tail of the sequence.
func Bottom() Position { return Position{Kind: PositionBottom} }

// AtIndex returns a Position before the sibling currently at index i.
func AtIndex(i int) Position { return Position{Kind: PositionIndex, Index: i} }

// String implements fmt.Stringer.
func (p Position) String() string {
	if p.Kind == PositionIndex {
		return fmt.Sprintf("index:%d", p.Index)
	}
	return string(p.Kind)
}

// TopOrder returns an order value strictly below every sibling,
// or BaseOrder when there are none.
func TopOrder(siblings []Item) float64 {
	if len(siblings) == 0 {
		return BaseOrder
	}
	lowest := siblings[0].Order
	for _, s := range siblings[1:] {
		if s.Order < lowest {
			lowest = s.Order
		}
	}
	return lowest - Gap
}

// BottomOrder returns an order value strictly above every sibling,
// or BaseOrder when there are none.
func BottomOrder(siblings []Item) float64 {
	if len(siblings) == 0 {
		return BaseOrder
	}
	highest := siblings[0].Order
	for _, s := range siblings[1:] {
		if s.Order > highest {
			highest = s.Order
		}
	}
	return highest + Gap
}

// MidOrder returns the midpoint between two neighbours.
// Check NeedsNormalize first: below MinGap the result is not guaranteed to
// be distinct from either neighbour.
func MidOrder(prev, next float64) float64 {
	return (prev + next) / 2
}

// NeedsNormalize reports whether the gap between two neighbours is too small
// for a midpoint insert.
func NeedsNormalize(prev, next float64) bool {
	return next-prev < MinGap
}

// Normalize returns the siblings sorted by order with evenly spaced values
// (i+1)*Step. Relative order is preserved; ties are broken by ID.
// The input slice is not modified.
func Normalize(siblings []Item) []Item {
	out := Sorted(siblings)
	for i := range out {
		out[i].Order = float64(i+1) * Step
	}
	return out
}

// Sorted returns a copy of siblings ordered by order value, then ID.
func Sorted(siblings []Item) []Item {
	out := make([]Item, len(siblings))
	copy(out, siblings)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Placement is the result of resolving a Position.
type Placement struct {
	// Order is the value to assign to the moved item.
	Order float64

	// Renumbered holds the siblings with new order values when the sequence
	// had to be normalized; nil otherwise. Callers must persist these
	// alongside Order.
	Renumbered []Item
}

// Place resolves pos against siblings, which must not include the item
// being moved.
//
// Edge cases:
//   - an empty sequence always yields BaseOrder regardless of pos
//   - an index <= 0 places at the top
//   - an index >= len(siblings) clamps to the bottom
//   - a midpoint insert between neighbours closer than MinGap normalizes
//     the sequence first
func Place(siblings []Item, pos Position) (Placement, error) {
	if len(siblings) == 0 {
		switch pos.Kind {
		case PositionTop, PositionBottom, PositionIndex:
			return Placement{Order: BaseOrder}, nil
		default:
			return Placement{}, fmt.Errorf("%w: %q", ErrInvalidPosition, pos.Kind)
		}
	}

	switch pos.Kind {
	case PositionTop:
		return Placement{Order: TopOrder(siblings)}, nil
	case PositionBottom:
		return Placement{Order: BottomOrder(siblings)}, nil
	case PositionIndex:
		return placeAtIndex(Sorted(siblings), pos.Index), nil
	default:
		return Placement{}, fmt.Errorf("%w: %q", ErrInvalidPosition, pos.Kind)
	}
}

// placeAtIndex inserts before sorted[idx]. sorted must be non-empty.
func placeAtIndex(sorted []Item, idx int) Placement {
	if idx <= 0 {
		return Placement{Order: TopOrder(sorted)}
	}
	if idx >= len(sorted) {
		return Placement{Order: BottomOrder(sorted)}
	}

	prev, next := sorted[idx-1].Order, sorted[idx].Order
	if !NeedsNormalize(prev, next) {
		return Placement{Order: MidOrder(prev, next)}
	}

	renumbered := Normalize(sorted)
	return Placement{
		Order:      MidOrder(renumbered[idx-1].Order, renumbered[idx].Order),
		Renumbered: renumbered,
	}
}

// IndexOf returns the position of id within siblings sorted by order,
// or -1 when absent.
func IndexOf(siblings []Item, id string) int {
	for i, s := range Sorted(siblings) {
		if s.ID == id {
			return i
		}
	}
	return -1
}
