// Package marketdata defines the market data capability the engine
// consumes and the adapters that feed it.
package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"polyedge/internal/types"
)

var ErrNoData = errors.New("marketdata: no data for market/outcome")

// Feed is the read capability used by strategies and the risk gate.
// Reads tolerate eventual consistency; the engine assumes read-after-
// write only for its own state.
type Feed interface {
	CurrentPrice(ctx context.Context, marketID, outcomeID string) (float64, error)
	OrderBookDepth(ctx context.Context, marketID, outcomeID string) (types.Depth, error)
	PriceHistory(ctx context.Context, marketID, outcomeID string, limit int) ([]types.PriceQuote, error)
	RecentTrades(ctx context.Context, marketID string, limit int) ([]types.WalletTrade, error)
}

// Cache is the in-memory Feed implementation, updated by push adapters
// (websocket feeds) and used directly in tests.
type Cache struct {
	mu      sync.RWMutex
	quotes  map[string]types.PriceQuote
	history map[string][]types.PriceQuote
	depth   map[string]types.Depth
	trades  map[string][]types.WalletTrade

	historyCap int
	tradesCap  int
}

func NewCache() *Cache {
	return &Cache{
		quotes:     make(map[string]types.PriceQuote),
		history:    make(map[string][]types.PriceQuote),
		depth:      make(map[string]types.Depth),
		trades:     make(map[string][]types.WalletTrade),
		historyCap: 500,
		tradesCap:  500,
	}
}

func key(marketID, outcomeID string) string { return marketID + "|" + outcomeID }

// PushQuote records a quote and appends it to the history series.
func (c *Cache) PushQuote(q types.PriceQuote) {
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
	k := key(q.MarketID, q.OutcomeID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[k] = q
	h := append(c.history[k], q)
	if len(h) > c.historyCap {
		h = h[len(h)-c.historyCap:]
	}
	c.history[k] = h
}

func (c *Cache) PushDepth(d types.Depth) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth[key(d.MarketID, d.OutcomeID)] = d
}

func (c *Cache) PushTrade(t types.WalletTrade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(c.trades[t.MarketID], t)
	if len(list) > c.tradesCap {
		list = list[len(list)-c.tradesCap:]
	}
	c.trades[t.MarketID] = list
}

func (c *Cache) CurrentPrice(_ context.Context, marketID, outcomeID string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[key(marketID, outcomeID)]
	if !ok {
		return 0, ErrNoData
	}
	return q.Price, nil
}

func (c *Cache) OrderBookDepth(_ context.Context, marketID, outcomeID string) (types.Depth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.depth[key(marketID, outcomeID)]
	if !ok {
		return types.Depth{}, ErrNoData
	}
	return d, nil
}

// PriceHistory returns up to limit most recent quotes, oldest first.
func (c *Cache) PriceHistory(_ context.Context, marketID, outcomeID string, limit int) ([]types.PriceQuote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.history[key(marketID, outcomeID)]
	if !ok || len(h) == 0 {
		return nil, ErrNoData
	}
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]types.PriceQuote, len(h))
	copy(out, h)
	return out, nil
}

func (c *Cache) RecentTrades(_ context.Context, marketID string, limit int) ([]types.WalletTrade, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.trades[marketID]
	if len(list) == 0 {
		return nil, nil
	}
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]types.WalletTrade, len(list))
	copy(out, list)
	return out, nil
}
