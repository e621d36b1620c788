package engine_test

import (
	"fmt"
	"testing"

	"garm/internal/common"
	"garm/internal/engine"
	"garm/internal/registry"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Random books swept by random market orders: whatever happens, no asset
// is created or destroyed, every resting order keeps 0 <= filled <=
// amount, and both sides stay sorted.
func TestProperty_SweepInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := registry.NewTokenRegistry(admin)
		if err := reg.Register(admin, link, "0xlink"); err != nil {
			t.Fatalf("failed to list asset: %v", err)
		}
		dex := engine.New(reg, engine.NopTransfer{})

		nMakers := rapid.IntRange(1, 6).Draw(t, "nMakers")
		accounts := []string{"taker"}

		// Sellers hold tokens, the taker holds base currency.
		if err := dex.Deposit("taker", common.BaseAsset, rapid.Uint64Range(1, 1_000_000).Draw(t, "takerBase")); err != nil {
			t.Fatalf("failed to fund taker: %v", err)
		}
		for i := 0; i < nMakers; i++ {
			maker := fmt.Sprintf("maker%d", i)
			accounts = append(accounts, maker)

			amount := rapid.Uint64Range(1, 100).Draw(t, fmt.Sprintf("amount%d", i))
			price := rapid.Uint64Range(1, 1000).Draw(t, fmt.Sprintf("price%d", i))
			if err := dex.Deposit(maker, link, amount); err != nil {
				t.Fatalf("failed to fund maker: %v", err)
			}
			if _, err := dex.CreateLimitOrder(maker, common.Sell, link, amount, price); err != nil {
				t.Fatalf("failed to post ask: %v", err)
			}
		}

		total := func(symbol string) uint64 {
			var sum uint64
			for _, a := range accounts {
				sum += dex.BalanceOf(a, symbol)
			}
			return sum
		}
		baseBefore, linkBefore := total(common.BaseAsset), total(link)

		amount := rapid.Uint64Range(1, 300).Draw(t, "marketAmount")
		filled, err := dex.CreateMarketOrder("taker", common.Buy, link, amount)
		if err != nil {
			// A rejected order must have zero side effects.
			require.ErrorIs(t, err, engine.ErrInsufficientBalance)
		}
		if filled > amount {
			t.Fatalf("filled %d exceeds requested %d", filled, amount)
		}

		// Conservation of both legs.
		if got := total(common.BaseAsset); got != baseBefore {
			t.Fatalf("base supply changed: %d -> %d", baseBefore, got)
		}
		if got := total(link); got != linkBefore {
			t.Fatalf("token supply changed: %d -> %d", linkBefore, got)
		}

		// The taker received exactly what was filled.
		if got := dex.BalanceOf("taker", link); got != filled {
			t.Fatalf("taker holds %d tokens, filled %d", got, filled)
		}

		// Remaining asks are sorted and within fill bounds.
		asks, err := dex.OrderBook(link, common.Sell)
		if err != nil {
			t.Fatalf("failed to snapshot book: %v", err)
		}
		for i, o := range asks {
			if o.Filled > o.Amount {
				t.Fatalf("order %d overfilled: %d > %d", o.ID, o.Filled, o.Amount)
			}
			if o.Filled == o.Amount {
				t.Fatalf("order %d fully filled but still visible", o.ID)
			}
			if i > 0 && asks[i-1].Price > o.Price {
				t.Fatalf("ask book unsorted at index %d", i)
			}
		}
	})
}
