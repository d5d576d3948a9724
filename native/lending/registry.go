package lending

import (
	"strings"
	"sync"
)

// Registry holds the fixed set of supported assets. Assets are enumerated in
// registration order so cross-asset aggregation is deterministic regardless of
// map iteration.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]*Asset
	order  []string
}

// NewRegistry constructs an empty asset registry.
func NewRegistry() *Registry {
	return &Registry{assets: make(map[string]*Asset)}
}

// Register adds a new asset. Risk parameters are validated once here and are
// immutable afterwards except for the Active flag.
func (r *Registry) Register(asset Asset) error {
	symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
	if symbol == "" {
		return errInvalidAsset
	}
	if asset.CollateralFactorBps > 10_000 || asset.LiquidationThresholdBps > 10_000 || asset.ReserveFactorBps > 10_000 {
		return errInvalidAsset
	}
	if asset.LiquidationThresholdBps < asset.CollateralFactorBps {
		return errInvalidAsset
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assets[symbol]; exists {
		return errAssetExists
	}
	stored := asset
	stored.Symbol = symbol
	r.assets[symbol] = &stored
	r.order = append(r.order, symbol)
	return nil
}

// Get returns the asset registered under symbol.
func (r *Registry) Get(symbol string) (Asset, bool) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[key]
	if !ok {
		return Asset{}, false
	}
	return *asset, true
}

// SetActive toggles whether the asset accepts new deposits and borrows.
func (r *Registry) SetActive(symbol string, active bool) error {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.assets[key]
	if !ok {
		return ErrUnsupportedAsset
	}
	asset.Active = active
	return nil
}

// Symbols returns the registered symbols in registration order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
