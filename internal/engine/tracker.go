package engine

import (
	"sync"

	"garm/internal/common"
)

// tracker issues order identities and keeps the set of live resting
// orders. Ids are strictly increasing and never reused, so a reference to
// a filled-and-removed order stays detectably stale instead of aliasing a
// later order.
type tracker struct {
	mu   sync.Mutex
	next uint64
	live map[uint64]*common.Order
}

func newTracker() *tracker {
	return &tracker{
		next: 1,
		live: make(map[uint64]*common.Order),
	}
}

// issue assigns the next id to a freshly created order and registers it.
func (t *tracker) issue(order *common.Order) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	order.ID = t.next
	t.next++
	t.live[order.ID] = order
	return order.ID
}

// retire drops a fully filled order from the live set. The id remains
// burned.
func (t *tracker) retire(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, id)
}

// lookup returns a copy of a live resting order.
func (t *tracker) lookup(id uint64) (common.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.live[id]
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}
