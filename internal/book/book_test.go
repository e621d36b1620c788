package book

import (
	"testing"
	"time"

	"garm/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nextID uint64

func testOrder(side common.Side, price, amount uint64) *common.Order {
	nextID++
	return &common.Order{
		ID:        nextID,
		Owner:     "test-owner",
		Side:      side,
		Ticker:    "LINK",
		Price:     price,
		Amount:    amount,
		Timestamp: time.Now(),
	}
}

func prices(orders []common.Order) []uint64 {
	out := make([]uint64, len(orders))
	for i, o := range orders {
		out[i] = o.Price
	}
	return out
}

func TestInsertSortsBuySideDescending(t *testing.T) {
	b := New("LINK")
	for _, p := range []uint64{300, 100, 200} {
		b.Insert(testOrder(common.Buy, p, 1))
	}

	snapshot := b.Snapshot(common.Buy)
	require.Len(t, snapshot, 3)
	assert.Equal(t, []uint64{300, 200, 100}, prices(snapshot))
}

func TestInsertSortsSellSideAscending(t *testing.T) {
	b := New("LINK")
	for _, p := range []uint64{300, 100, 200} {
		b.Insert(testOrder(common.Sell, p, 1))
	}

	snapshot := b.Snapshot(common.Sell)
	require.Len(t, snapshot, 3)
	assert.Equal(t, []uint64{100, 200, 300}, prices(snapshot))
}

func TestFIFOWithinPriceLevel(t *testing.T) {
	b := New("LINK")
	first := testOrder(common.Buy, 100, 10)
	second := testOrder(common.Buy, 100, 20)
	third := testOrder(common.Buy, 100, 30)
	b.Insert(first)
	b.Insert(second)
	b.Insert(third)

	snapshot := b.Snapshot(common.Buy)
	require.Len(t, snapshot, 3)
	// Earlier arrivals at equal price take priority.
	assert.Equal(t, first.ID, snapshot[0].ID)
	assert.Equal(t, second.ID, snapshot[1].ID)
	assert.Equal(t, third.ID, snapshot[2].ID)

	best, ok := b.Best(common.Buy)
	require.True(t, ok)
	assert.Equal(t, first.ID, best.ID)
}

func TestBestEmptySide(t *testing.T) {
	b := New("LINK")
	_, ok := b.Best(common.Buy)
	assert.False(t, ok)
	_, ok = b.Best(common.Sell)
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	b := New("LINK")
	order := testOrder(common.Sell, 100, 10)
	b.Insert(order)

	b.Remove(order.ID)
	assert.Empty(t, b.Snapshot(common.Sell))

	// Removing an absent id is a no-op, not a panic or corruption.
	b.Remove(order.ID)
	b.Remove(99999)
	assert.Empty(t, b.Snapshot(common.Sell))
}

func TestFillPartialKeepsOrderVisible(t *testing.T) {
	b := New("LINK")
	order := testOrder(common.Sell, 300, 2)
	b.Insert(order)

	updated, ok := b.Fill(order.ID, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), updated.Filled)
	assert.Equal(t, uint64(2), updated.Amount)

	snapshot := b.Snapshot(common.Sell)
	require.Len(t, snapshot, 1)
	assert.Equal(t, uint64(1), snapshot[0].Filled)
}

func TestFillCompleteRemovesOrder(t *testing.T) {
	b := New("LINK")
	order := testOrder(common.Sell, 300, 2)
	b.Insert(order)

	updated, ok := b.Fill(order.ID, 2)
	require.True(t, ok)
	assert.Equal(t, updated.Amount, updated.Filled)

	// An order with filled == amount must never remain visible.
	assert.Empty(t, b.Snapshot(common.Sell))
	_, ok = b.Best(common.Sell)
	assert.False(t, ok)

	_, ok = b.Fill(order.ID, 1)
	assert.False(t, ok)
}

func TestSnapshotIsDetached(t *testing.T) {
	b := New("LINK")
	order := testOrder(common.Buy, 100, 10)
	b.Insert(order)

	snapshot := b.Snapshot(common.Buy)
	snapshot[0].Filled = 9
	snapshot[0].Price = 1

	// Mutating the snapshot must not reach into the book.
	fresh := b.Snapshot(common.Buy)
	require.Len(t, fresh, 1)
	assert.Equal(t, uint64(0), fresh[0].Filled)
	assert.Equal(t, uint64(100), fresh[0].Price)
}

func TestLenCountsPerSide(t *testing.T) {
	b := New("LINK")
	b.Insert(testOrder(common.Buy, 100, 1))
	b.Insert(testOrder(common.Buy, 200, 1))
	b.Insert(testOrder(common.Sell, 300, 1))

	assert.Equal(t, 2, b.Len(common.Buy))
	assert.Equal(t, 1, b.Len(common.Sell))
}
