// Package engine is the matching core: it validates incoming orders
// against the ledger, rests limit orders on the per-asset books, and
// sweeps the books for market orders, settling every fill through the
// ledger so funds are never created, lost, or double-spent.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"garm/internal/book"
	"garm/internal/common"
	"garm/internal/ledger"
	"garm/internal/registry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ValueTransfer moves value across the ledger boundary. It is invoked by
// the deposit/withdraw surface only; matching never touches it.
type ValueTransfer interface {
	PullIn(account string, asset registry.Asset, qty uint64) error
	PushOut(account string, asset registry.Asset, qty uint64) error
}

// NopTransfer is a ValueTransfer for hosts where custody is handled
// elsewhere, and for tests.
type NopTransfer struct{}

func (NopTransfer) PullIn(string, registry.Asset, uint64) error  { return nil }
func (NopTransfer) PushOut(string, registry.Asset, uint64) error { return nil }

// TradeReporter receives every executed fill.
type TradeReporter interface {
	ReportTrade(trade common.Trade) error
}

// market is one asset's book together with the mutex that serializes all
// submissions against it. A sweep's read-modify-write over resting orders
// runs entirely under this lock.
type market struct {
	mu   sync.Mutex
	book *book.Book
}

type Exchange struct {
	registry registry.Registry
	ledger   *ledger.Ledger
	transfer ValueTransfer
	tracker  *tracker
	reporter TradeReporter

	mu      sync.Mutex
	markets map[string]*market
}

func New(reg registry.Registry, transfer ValueTransfer) *Exchange {
	return &Exchange{
		registry: reg,
		ledger:   ledger.New(),
		transfer: transfer,
		tracker:  newTracker(),
		markets:  make(map[string]*market),
	}
}

func (e *Exchange) SetReporter(reporter TradeReporter) {
	e.reporter = reporter
}

func (e *Exchange) market(ticker string) *market {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[ticker]
	if !ok {
		m = &market{book: book.New(ticker)}
		e.markets[ticker] = m
	}
	return m
}

func mulOverflows(a, b uint64) bool {
	return b != 0 && a > math.MaxUint64/b
}

// resolve maps a symbol to its listed asset. The base currency is not a
// listed asset: markets quote tokens against it, they do not trade it.
func (e *Exchange) resolve(symbol string) (registry.Asset, error) {
	asset, err := e.registry.Resolve(symbol)
	if err != nil {
		return registry.Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, symbol)
	}
	return asset, nil
}

// Deposit pulls value in from the external source and credits the ledger.
// Base-currency deposits need no listing; token deposits require one.
func (e *Exchange) Deposit(account, symbol string, qty uint64) error {
	if qty == 0 {
		return ErrInvalidAmount
	}

	asset := registry.Asset{Symbol: symbol}
	if symbol != common.BaseAsset {
		var err error
		if asset, err = e.resolve(symbol); err != nil {
			return err
		}
	}

	if err := e.transfer.PullIn(account, asset, qty); err != nil {
		return fmt.Errorf("pull in: %w", err)
	}
	if err := e.ledger.Credit(account, symbol, qty); err != nil {
		return err
	}

	log.Info().
		Str("account", account).
		Str("asset", symbol).
		Uint64("qty", qty).
		Msg("deposit")
	return nil
}

// Withdraw debits the ledger and pushes value back out. A failing
// push-out restores the debited balance.
func (e *Exchange) Withdraw(account, symbol string, qty uint64) error {
	if qty == 0 {
		return ErrInvalidAmount
	}

	asset := registry.Asset{Symbol: symbol}
	if symbol != common.BaseAsset {
		var err error
		if asset, err = e.resolve(symbol); err != nil {
			return err
		}
	}

	if err := e.ledger.Debit(account, symbol, qty); err != nil {
		return ErrInsufficientBalance
	}
	if err := e.transfer.PushOut(account, asset, qty); err != nil {
		// Compensate the debit so a custody failure cannot burn funds.
		if cerr := e.ledger.Credit(account, symbol, qty); cerr != nil {
			log.Error().Err(cerr).
				Str("account", account).
				Str("asset", symbol).
				Uint64("qty", qty).
				Msg("failed to restore balance after push out error")
		}
		return fmt.Errorf("push out: %w", err)
	}

	log.Info().
		Str("account", account).
		Str("asset", symbol).
		Uint64("qty", qty).
		Msg("withdraw")
	return nil
}

// BalanceOf is a pure ledger read, valid for the base currency and for
// tokens whether listed or not.
func (e *Exchange) BalanceOf(account, symbol string) uint64 {
	return e.ledger.BalanceOf(account, symbol)
}

// CreateLimitOrder posts liquidity. The owner's funding is validated up
// front but not escrowed: balances are re-validated per fill when a sweep
// later consumes the order. Limit orders never cross on entry; they only
// populate the book.
func (e *Exchange) CreateLimitOrder(owner string, side common.Side, symbol string, amount, price uint64) (uint64, error) {
	if amount == 0 || price == 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := e.resolve(symbol); err != nil {
		return 0, err
	}

	switch side {
	case common.Buy:
		if mulOverflows(amount, price) {
			return 0, ErrInvalidAmount
		}
		if e.ledger.BalanceOf(owner, common.BaseAsset) < amount*price {
			return 0, ErrInsufficientBalance
		}
	case common.Sell:
		if e.ledger.BalanceOf(owner, symbol) < amount {
			return 0, ErrInsufficientBalance
		}
	}

	m := e.market(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	order := &common.Order{
		Owner:     owner,
		Side:      side,
		Ticker:    symbol,
		Price:     price,
		Amount:    amount,
		Timestamp: time.Now(),
	}
	id := e.tracker.issue(order)
	m.book.Insert(order)

	log.Debug().
		Uint64("id", id).
		Str("owner", owner).
		Str("ticker", symbol).
		Stringer("side", side).
		Uint64("price", price).
		Uint64("amount", amount).
		Msg("limit order resting")
	return id, nil
}

// fill is one planned trade of a sweep, captured before any mutation.
type fill struct {
	orderID uint64
	maker   string
	price   uint64
	qty     uint64
}

// CreateMarketOrder sweeps the opposite side of the book from the best
// price outward until the requested amount is filled or the book is
// exhausted. Partial or zero fill on an empty book is a valid terminal
// state; the unfilled remainder is discarded, never rested.
//
// The sweep plans first and commits second. The taker's funding is
// checked fill by fill against the cumulative cost during planning, and
// any shortfall rejects the whole order with balances and book untouched,
// the same all-or-nothing shape a reverted transaction has.
func (e *Exchange) CreateMarketOrder(owner string, side common.Side, symbol string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := e.resolve(symbol); err != nil {
		return 0, err
	}

	m := e.market(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Funding pre-checks. A sell's token leg is path-independent and is
	// checked once; a buy's cost depends on the prices swept, so the buy
	// side only requires some base balance here and validates the
	// cumulative cost as the plan consumes liquidity.
	switch side {
	case common.Buy:
		if e.ledger.BalanceOf(owner, common.BaseAsset) == 0 {
			return 0, ErrInsufficientBalance
		}
	case common.Sell:
		if e.ledger.BalanceOf(owner, symbol) < amount {
			return 0, ErrInsufficientBalance
		}
	}

	fills, err := e.planSweep(m, owner, side, amount)
	if err != nil {
		return 0, err
	}
	if len(fills) == 0 {
		return 0, nil
	}

	if err := e.commitSweep(m, owner, side, symbol, fills); err != nil {
		return 0, err
	}

	var filled uint64
	for _, f := range fills {
		filled += f.qty
	}
	return filled, nil
}

// planSweep walks the opposite side best-first and decides every fill
// without touching ledger or book state.
func (e *Exchange) planSweep(m *market, owner string, side common.Side, amount uint64) ([]fill, error) {
	var (
		fills   []fill
		cumCost uint64
	)

	baseAvail := e.ledger.BalanceOf(owner, common.BaseAsset)
	remaining := amount

	for _, resting := range m.book.Snapshot(side.Opposite()) {
		if remaining == 0 {
			break
		}

		qty := min(remaining, resting.Remaining())
		if mulOverflows(qty, resting.Price) {
			return nil, ErrInvalidAmount
		}
		cost := qty * resting.Price

		if side == common.Buy {
			if cumCost > math.MaxUint64-cost {
				return nil, ErrInvalidAmount
			}
			cumCost += cost
			if cumCost > baseAvail {
				return nil, ErrInsufficientBalance
			}
		}

		fills = append(fills, fill{
			orderID: resting.ID,
			maker:   resting.Owner,
			price:   resting.Price,
			qty:     qty,
		})
		remaining -= qty
	}
	return fills, nil
}

// commitSweep settles every planned fill through the ledger in one atomic
// batch, then applies the book mutations and reports the trades.
func (e *Exchange) commitSweep(m *market, owner string, side common.Side, symbol string, fills []fill) error {
	transfers := make([]ledger.Transfer, 0, len(fills)*2)
	for _, f := range fills {
		buyer, seller := owner, f.maker
		if side == common.Sell {
			buyer, seller = f.maker, owner
		}
		transfers = append(transfers,
			ledger.Transfer{From: buyer, To: seller, Asset: common.BaseAsset, Qty: f.qty * f.price},
			ledger.Transfer{From: seller, To: buyer, Asset: symbol, Qty: f.qty},
		)
	}

	if err := e.ledger.Settle(transfers); err != nil {
		// The planner validated the taker's funding; a maker leg can
		// still come up short when its backing was spent after the
		// order rested, since limit orders hold no escrow.
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return ErrInsufficientBalance
		}
		return err
	}

	now := time.Now()
	for _, f := range fills {
		updated, ok := m.book.Fill(f.orderID, f.qty)
		if ok && updated.Filled == updated.Amount {
			e.tracker.retire(f.orderID)
		}

		trade := common.Trade{
			ID:           uuid.New().String(),
			Ticker:       symbol,
			Taker:        owner,
			Maker:        f.maker,
			MakerOrderID: f.orderID,
			TakerSide:    side,
			Price:        f.price,
			Qty:          f.qty,
			Timestamp:    now,
		}
		if e.reporter != nil {
			if err := e.reporter.ReportTrade(trade); err != nil {
				log.Error().Err(err).Str("trade", trade.ID).Msg("trade report failed")
			}
		}

		log.Debug().
			Str("trade", trade.ID).
			Str("ticker", symbol).
			Uint64("maker_order", f.orderID).
			Uint64("price", f.price).
			Uint64("qty", f.qty).
			Msg("trade executed")
	}
	return nil
}

// Order returns a copy of a live resting order. Ids that were never
// issued, or whose order has been filled and removed, report
// ErrOrderNotFound rather than aliasing anything later.
func (e *Exchange) Order(id uint64) (common.Order, error) {
	order, ok := e.tracker.lookup(id)
	if !ok {
		return common.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// OrderBook returns a read-only snapshot of one side of an asset's book
// in priority order.
func (e *Exchange) OrderBook(symbol string, side common.Side) ([]common.Order, error) {
	if _, err := e.resolve(symbol); err != nil {
		return nil, err
	}

	m := e.market(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.Snapshot(side), nil
}
