package feed

import (
	"context"
	"sync"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
)

// PriceCache holds the latest price per symbol.
type PriceCache interface {
	Set(ctx context.Context, price models.LivePrice) error
	Get(ctx context.Context, symbol string) (*models.LivePrice, error)
	Snapshot(ctx context.Context) (map[string]models.LivePrice, error)
}

// MemoryCache is an in-process PriceCache.
type MemoryCache struct {
	mu     sync.RWMutex
	prices map[string]models.LivePrice
}

var _ PriceCache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory price cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{prices: make(map[string]models.LivePrice)}
}

// Set stores the latest price for a symbol.
func (m *MemoryCache) Set(ctx context.Context, price models.LivePrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[price.Symbol] = price
	return nil
}

// Get returns the latest price for a symbol.
func (m *MemoryCache) Get(ctx context.Context, symbol string) (*models.LivePrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.prices[symbol]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &price, nil
}

// Snapshot returns a copy of all cached prices.
func (m *MemoryCache) Snapshot(ctx context.Context) (map[string]models.LivePrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.LivePrice, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out, nil
}
