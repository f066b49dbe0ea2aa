// Package book holds the live order-book data model maintained by the
// Order-Book Maintainer: price levels, book sides, and point-in-time
// snapshots.
package book

import (
	"sort"
	"time"
)

// Side identifies which side of the book a price level belongs to.
type Side int

const (
	Bid Side = iota
	Ask
)

// Level is a single (price, quantity) pair. A Level with Quantity == 0 is
// never stored — it signals deletion to the maintainer.
type Level struct {
	Price    float64
	Quantity float64
}

// Book is the live state for one product: bids sorted descending by price,
// asks sorted ascending, each truncated to at most Depth entries.
type Book struct {
	Product string
	Depth   int
	Bids    []Level
	Asks    []Level
}

// New returns an empty book for product, retaining at most depth levels per
// side.
func New(product string, depth int) *Book {
	return &Book{Product: product, Depth: depth}
}

// Apply applies a single price-level update to side:
//  1. Quantity == 0 removes the level.
//  2. An existing price is overwritten.
//  3. Otherwise the level is inserted.
//
// The side is re-sorted and truncated to Depth after every mutation.
func (b *Book) Apply(side Side, price, quantity float64) {
	levels := b.levels(side)

	idx := -1
	for i, l := range levels {
		if l.Price == price {
			idx = i
			break
		}
	}

	switch {
	case quantity == 0:
		if idx >= 0 {
			levels = append(levels[:idx], levels[idx+1:]...)
		}
	case idx >= 0:
		levels[idx].Quantity = quantity
	default:
		levels = append(levels, Level{Price: price, Quantity: quantity})
	}

	levels = sortSide(side, levels)
	if len(levels) > b.Depth {
		levels = levels[:b.Depth]
	}
	b.setLevels(side, levels)
}

func (b *Book) levels(side Side) []Level {
	if side == Bid {
		return b.Bids
	}
	return b.Asks
}

func (b *Book) setLevels(side Side, levels []Level) {
	if side == Bid {
		b.Bids = levels
	} else {
		b.Asks = levels
	}
}

func sortSide(side Side, levels []Level) []Level {
	if side == Bid {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	} else {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	}
	return levels
}

// Snapshot copies the current top-Depth bids and asks. The returned value
// shares no backing array with the live book — mutating it never affects
// the maintainer's state.
func (b *Book) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Bids: append([]Level(nil), b.Bids...),
		Asks: append([]Level(nil), b.Asks...),
	}
}

// ProductSnapshot is one product's bids/asks at the instant a Snapshot was
// taken.
type ProductSnapshot struct {
	Bids []Level
	Asks []Level
}

// Snapshot is a value-copied, single-instant view across every tracked
// product, emitted by the Order-Book Maintainer on a timer.
type Snapshot struct {
	Timestamp time.Time
	Products  map[string]ProductSnapshot
}
