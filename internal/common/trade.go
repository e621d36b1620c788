package common

import (
	"fmt"
	"time"
)

// Trade records a single fill between a taker and the owner of a resting
// order. One market order sweep produces one Trade per resting order it
// touches.
type Trade struct {
	ID           string    // Trade uuid
	Ticker       string    // Asset that changed hands
	Taker        string    // Account that submitted the market order
	Maker        string    // Owner of the resting order
	MakerOrderID uint64    // Resting order consumed by this fill
	TakerSide    Side      // Side of the taker
	Price        uint64    // Execution price, set by the resting order
	Qty          uint64    // Volume exchanged
	Timestamp    time.Time // Execution time
}

// Cost is the base-currency leg of the trade.
func (t Trade) Cost() uint64 {
	return t.Price * t.Qty
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:           %s
Ticker:       %s
Taker:        %s (%v)
Maker:        %s (order %d)
Price:        %d
Qty:          %d
Timestamp:    %v`,
		t.ID,
		t.Ticker,
		t.Taker,
		t.TakerSide,
		t.Maker,
		t.MakerOrderID,
		t.Price,
		t.Qty,
		t.Timestamp.Format(time.RFC3339),
	)
}
