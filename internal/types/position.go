package types

import (
	"time"
)

// PositionState is the lifecycle state of a position.
//
// OPEN -> CLOSING (close order in flight) -> CLOSED
// A failed close reverts CLOSING -> OPEN.
type PositionState int32

const (
	PositionOpen PositionState = iota
	PositionClosing
	PositionClosed
)

func (s PositionState) String() string {
	switch s {
	case PositionOpen:
		return "open"
	case PositionClosing:
		return "closing"
	case PositionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Position is a tracked market exposure with PnL accounting.
// The ledger is the only writer; everyone else gets copies.
type Position struct {
	ID            string        `json:"id"`
	MarketID      string        `json:"market_id"`
	OutcomeID     string        `json:"outcome_id"`
	Direction     Direction     `json:"direction"`
	Size          float64       `json:"size"`
	EntryPrice    float64       `json:"entry_price"`
	CurrentPrice  float64       `json:"current_price"`
	RealizedPnL   float64       `json:"realized_pnl"`
	UnrealizedPnL float64       `json:"unrealized_pnl"`
	Strategy      string        `json:"strategy"`
	StopLoss      float64       `json:"stop_loss,omitempty"`
	TakeProfit    float64       `json:"take_profit,omitempty"`
	OrderID       string        `json:"order_id"`
	State         PositionState `json:"state"`
	CloseReason   string        `json:"close_reason,omitempty"`
	OpenedAt      time.Time     `json:"opened_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
}

// Active reports whether the position still counts against risk limits.
func (p Position) Active() bool {
	return p.State != PositionClosed
}

// Notional returns the exposure at entry price.
func (p Position) Notional() float64 {
	return p.Size * p.EntryPrice
}
