// Package strategy holds the pluggable trading strategies. Strategies
// only propose orders; execution and position mutation happen
// elsewhere.
package strategy

import (
	"context"
	"sync/atomic"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/types"
)

// Action is a strategy's vote on an open position.
type Action int

const (
	Hold Action = iota
	Close
	AdjustStop
)

func (a Action) String() string {
	switch a {
	case Close:
		return "close"
	case AdjustStop:
		return "adjust_stop"
	default:
		return "hold"
	}
}

// Advice is the result of evaluating an open position.
type Advice struct {
	Action  Action
	NewStop float64
	Reason  string
}

// MarketRef names one market outcome a strategy watches.
type MarketRef struct {
	MarketID  string `toml:"market_id"`
	OutcomeID string `toml:"outcome_id"`
}

// Strategy converts market data and signals into proposed orders.
// Implementations are stateless across calls except for strategy-owned
// indicator state, which is never shared.
type Strategy interface {
	Name() string

	// GenerateSignals proposes candidate orders from current market
	// data. Proposals carry status pending and no id.
	GenerateSignals(ctx context.Context, feed marketdata.Feed) ([]types.Order, error)

	// EvaluatePosition votes on an open position owned by this strategy.
	EvaluatePosition(ctx context.Context, p types.Position) Advice
}

// Metrics counts per-strategy activity, exposed over the API.
type Metrics struct {
	Proposed atomic.Int64
	Accepted atomic.Int64
	Rejected atomic.Int64
}

// Snapshot returns the counters as plain values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"proposed": m.Proposed.Load(),
		"accepted": m.Accepted.Load(),
		"rejected": m.Rejected.Load(),
	}
}

func proposal(strategy string, ref MarketRef, dir types.Direction, size, price float64) types.Order {
	return types.Order{
		MarketID:   ref.MarketID,
		OutcomeID:  ref.OutcomeID,
		Direction:  dir,
		Size:       size,
		LimitPrice: price,
		Strategy:   strategy,
		Status:     types.OrderPending,
	}
}
