// Package ledger is the multi-asset balance ledger. Every quantity the
// exchange holds on behalf of an account lives here; the matching engine
// settles trades through it and the wallet surface credits deposits and
// debits withdrawals through it.
package ledger

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

type key struct {
	account string
	asset   string
}

// Transfer moves qty of asset from one account to another. A Debit or
// Credit alone is expressed by leaving From or To empty.
type Transfer struct {
	From  string
	To    string
	Asset string
	Qty   uint64
}

// Ledger maps (account, asset) to an available quantity. All methods are
// safe for concurrent use; Settle applies a batch of transfers under a
// single lock acquisition so a trade's legs commit together or not at all.
type Ledger struct {
	mu       sync.RWMutex
	balances map[key]uint64
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[key]uint64),
	}
}

// BalanceOf is a pure read. Unknown (account, asset) pairs read as zero.
func (l *Ledger) BalanceOf(account, asset string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[key{account, asset}]
}

// Credit increases a balance. Fails on non-positive quantities and on
// uint64 overflow; a failed credit changes nothing.
func (l *Ledger) Credit(account, asset string, qty uint64) error {
	if qty == 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{account, asset}
	if l.balances[k] > math.MaxUint64-qty {
		return ErrBalanceOverflow
	}
	l.balances[k] += qty
	return nil
}

// Debit decreases a balance, failing with ErrInsufficientFunds if the
// account does not hold qty of the asset. Exposed only to the trade
// settlement path and the withdraw surface; a debit is always paired with
// a compensating credit or an external push-out by the caller.
func (l *Ledger) Debit(account, asset string, qty uint64) error {
	if qty == 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{account, asset}
	if l.balances[k] < qty {
		return ErrInsufficientFunds
	}
	l.balances[k] -= qty
	return nil
}

// Settle applies a batch of transfers atomically: every debit is validated
// against the net effect of the whole batch before anything is written, so
// a failing batch leaves all balances untouched. This is the only mutation
// path the matching engine uses, which is what keeps a sweep free of
// partial application.
func (l *Ledger) Settle(transfers []Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Net delta per (account, asset) across the batch. Signed arithmetic
	// on the deltas keeps intermediate ordering irrelevant.
	deltas := make(map[key]int64, len(transfers)*2)
	for _, t := range transfers {
		if t.Qty == 0 {
			return ErrInvalidAmount
		}
		if t.Qty > math.MaxInt64 {
			return ErrBalanceOverflow
		}
		if t.From != "" {
			deltas[key{t.From, t.Asset}] -= int64(t.Qty)
		}
		if t.To != "" {
			deltas[key{t.To, t.Asset}] += int64(t.Qty)
		}
	}

	for k, d := range deltas {
		bal := l.balances[k]
		if d < 0 && bal < uint64(-d) {
			return ErrInsufficientFunds
		}
		if d > 0 && bal > math.MaxUint64-uint64(d) {
			return ErrBalanceOverflow
		}
	}

	for k, d := range deltas {
		if d < 0 {
			l.balances[k] -= uint64(-d)
		} else {
			l.balances[k] += uint64(d)
		}
	}
	return nil
}
