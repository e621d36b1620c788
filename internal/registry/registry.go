// Package registry tracks which assets are listed for trading. The core
// only ever resolves symbols; listing is an admin concern that lives on
// the concrete implementation, behind the interface the engine consumes.
package registry

import (
	"errors"
	"sync"
)

var (
	ErrUnknownAsset = errors.New("unknown asset")
	ErrAssetExists  = errors.New("asset already registered")
	ErrUnauthorized = errors.New("unauthorized")
)

// Asset is a listed token: a fixed-length symbol plus the handle of the
// underlying value source (a contract address, a custody account, ...).
type Asset struct {
	Symbol string
	Handle string
}

// Registry is the read surface the matching engine depends on.
type Registry interface {
	Resolve(symbol string) (Asset, error)
}

// TokenRegistry is the in-memory implementation. Registration is
// append-only and gated on the admin account fixed at construction.
type TokenRegistry struct {
	admin  string
	mu     sync.RWMutex
	assets map[string]Asset
}

func NewTokenRegistry(admin string) *TokenRegistry {
	return &TokenRegistry{
		admin:  admin,
		assets: make(map[string]Asset),
	}
}

// Register lists a new asset. Only the admin may call it, and a symbol can
// be listed at most once.
func (r *TokenRegistry) Register(caller, symbol, handle string) error {
	if caller != r.admin {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[symbol]; ok {
		return ErrAssetExists
	}
	r.assets[symbol] = Asset{Symbol: symbol, Handle: handle}
	return nil
}

func (r *TokenRegistry) Resolve(symbol string) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, ok := r.assets[symbol]
	if !ok {
		return Asset{}, ErrUnknownAsset
	}
	return asset, nil
}
