package common

import (
	"fmt"
	"time"
)

// Order is a resting limit order. Market orders are transient requests and
// never become one of these.
type Order struct {
	ID        uint64    // Exchange-assigned, strictly increasing, never reused
	Owner     string    // Account that posted the order
	Side      Side      // Order side
	Ticker    string    // Asset identifier
	Price     uint64    // Base-currency units per unit volume
	Amount    uint64    // Total volume requested
	Filled    uint64    // Cumulative executed volume, 0 <= Filled <= Amount
	Timestamp time.Time // Time of arrival into the book
}

// Remaining is the volume still available to a taker.
func (o Order) Remaining() uint64 {
	return o.Amount - o.Filled
}

func (o Order) String() string {
	return fmt.Sprintf(
		`ID:        %d
Owner:     %s
Side:      %v
Ticker:    %s
Price:     %d
Amount:    %d (Filled: %d)
Timestamp: %v`,
		o.ID,
		o.Owner,
		o.Side,
		o.Ticker,
		o.Price,
		o.Amount,
		o.Filled,
		o.Timestamp.Format(time.RFC3339),
	)
}
