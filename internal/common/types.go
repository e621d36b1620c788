package common

// BaseAsset is the quote currency for every market. Buy orders spend it,
// sell orders earn it. It lives in the ledger like any token balance but
// is never itself listed as a tradable asset.
const BaseAsset = "ETH"

// TickerLen is the fixed symbol width used on the wire.
const TickerLen = 4

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "UNKNOWN"
}

// Opposite returns the side a taker matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType int

const (
	// Limit orders post liquidity at a specified price and rest on the
	// order book until a market order consumes them.
	LimitOrder OrderType = iota
	// Market orders are instructions to buy or sell immediately at
	// whatever price the resting book offers. They never rest; any
	// unfilled remainder is discarded.
	MarketOrder
)
