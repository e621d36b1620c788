// Package book holds the resting limit orders for one asset, in
// price-time priority: bids sorted highest price first, asks lowest
// first, FIFO among equal prices.
//
// A Book is not internally locked. Each asset's book and the sweep that
// mutates it share one mutual-exclusion domain, owned by the engine's
// per-market serialization.
package book

import (
	"garm/internal/common"

	"github.com/tidwall/btree"
)

type priceLevel struct {
	price  uint64
	orders []*common.Order
}

type priceLevels = btree.BTreeG[*priceLevel]

type indexEntry struct {
	side  common.Side
	price uint64
}

type Book struct {
	ticker string

	// Price levels to orders sat on the level, FIFO as they are
	// push-back'd on insert.
	bids *priceLevels
	asks *priceLevels

	// Order id -> location, for removal and fills without a scan of
	// every level.
	index map[uint64]indexEntry
}

func New(ticker string) *Book {
	// Bids sorted greatest first so Min is the best bid.
	bids := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price > b.price
	})
	// Asks sorted least first so Min is the best ask.
	asks := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price < b.price
	})
	return &Book{
		ticker: ticker,
		bids:   bids,
		asks:   asks,
		index:  make(map[uint64]indexEntry),
	}
}

func (b *Book) Ticker() string {
	return b.ticker
}

func (b *Book) levels(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// Insert places a resting order at its price level, appending behind any
// earlier arrivals at the same price.
func (b *Book) Insert(order *common.Order) {
	levels := b.levels(order.Side)

	// Comparator only looks at price, so a bare pivot finds the level.
	level, ok := levels.GetMut(&priceLevel{price: order.Price})
	if ok {
		level.orders = append(level.orders, order)
	} else {
		levels.Set(&priceLevel{
			price:  order.Price,
			orders: []*common.Order{order},
		})
	}
	b.index[order.ID] = indexEntry{side: order.Side, price: order.Price}
}

// Best returns the highest-priority resting order on a side: the highest
// bid or the lowest ask, earliest arrival at that price.
func (b *Book) Best(side common.Side) (common.Order, bool) {
	level, ok := b.levels(side).Min()
	if !ok {
		return common.Order{}, false
	}
	return *level.orders[0], true
}

// Remove takes an order out of the book. Removing an id that is not
// resting is a no-op, so callers holding a stale id cannot corrupt the
// book by retrying.
func (b *Book) Remove(id uint64) {
	entry, ok := b.index[id]
	if !ok {
		return
	}

	levels := b.levels(entry.side)
	level, ok := levels.GetMut(&priceLevel{price: entry.price})
	if !ok {
		return
	}

	for i, o := range level.orders {
		if o.ID != id {
			continue
		}
		level.orders = append(level.orders[:i], level.orders[i+1:]...)
		if len(level.orders) == 0 {
			levels.Delete(level)
		}
		break
	}
	delete(b.index, id)
}

// Fill credits qty of executed volume against a resting order, removing
// it once fully filled so no order with Filled == Amount stays visible.
// Returns the post-fill order and whether the id was found resting.
func (b *Book) Fill(id uint64, qty uint64) (common.Order, bool) {
	entry, ok := b.index[id]
	if !ok {
		return common.Order{}, false
	}

	level, ok := b.levels(entry.side).GetMut(&priceLevel{price: entry.price})
	if !ok {
		return common.Order{}, false
	}

	for _, o := range level.orders {
		if o.ID != id {
			continue
		}
		o.Filled += qty
		filled := *o
		if o.Filled == o.Amount {
			b.Remove(id)
		}
		return filled, true
	}
	return common.Order{}, false
}

// Len reports the number of resting orders on a side.
func (b *Book) Len(side common.Side) int {
	n := 0
	b.levels(side).Scan(func(level *priceLevel) bool {
		n += len(level.orders)
		return true
	})
	return n
}

// Snapshot produces a read-only copy of one side in priority order. The
// copies carry no handles into the book, so callers cannot mutate resting
// state through them.
func (b *Book) Snapshot(side common.Side) []common.Order {
	var out []common.Order
	b.levels(side).Scan(func(level *priceLevel) bool {
		for _, o := range level.orders {
			out = append(out, *o)
		}
		return true
	})
	return out
}
