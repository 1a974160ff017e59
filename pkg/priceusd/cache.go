// Package priceusd is the USD price feed external collaborator: a
// staleness-checked cache of per-token USD quotes, refreshed from an
// external source and exposed through the
// same narrow PriceFeed shape pkg/scanner and pkg/executor each
// declare for themselves.
package priceusd

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// entry pairs a quote with the time it was recorded, one guarded
// struct per key rather than a separate price map and last-updated
// map — a single mutex over a small token universe (tens of entries)
// never contends meaningfully.
type entry struct {
	price     decimal.Decimal
	updatedAt time.Time
}

// Cache is a concurrency-safe token -> USD price map with
// per-entry staleness.
type Cache struct {
	mu      sync.RWMutex
	entries map[types.Address]entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[types.Address]entry)}
}

// Get returns the cached price and whether the entry exists at all
// (staleness is a separate question, checked via IsStale).
func (c *Cache) Get(token types.Address) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[token]
	return e.price, ok
}

func (c *Cache) Set(token types.Address, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = entry{price: price, updatedAt: time.Now()}
}

// IsStale reports true both when there is no entry yet and when the
// entry is older than maxAge — "never fetched" counts as stale.
func (c *Cache) IsStale(token types.Address, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[token]
	if !ok {
		return true
	}
	return time.Since(e.updatedAt) > maxAge
}
