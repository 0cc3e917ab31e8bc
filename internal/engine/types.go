package engine

import (
	"encoding/json"
	"time"

	"polyedge/internal/gateway/exchange"
	"polyedge/internal/types"
)

// EventType names an actor loop message.
type EventType string

const (
	// EvtRunStrategies polls every enabled strategy once.
	EvtRunStrategies EventType = "RUN_STRATEGIES"
	// EvtOrderResult reports an async submission outcome.
	EvtOrderResult EventType = "ORDER_RESULT"
	// EvtCloseResult reports an async position close outcome.
	EvtCloseResult EventType = "CLOSE_RESULT"
	// EvtMarkCycle refreshes prices and evaluates exits.
	EvtMarkCycle EventType = "MARK_CYCLE"
	// EvtPortfolioCycle runs the daily-loss and exposure review.
	EvtPortfolioCycle EventType = "PORTFOLIO_CYCLE"
	// EvtReconcile re-queries orders stuck in submitted state.
	EvtReconcile EventType = "RECONCILE"
	// EvtManualClose closes one position on operator request.
	EvtManualClose EventType = "MANUAL_CLOSE"
)

// Envelope is the actor's message. ReplyCh, when set, receives the
// handler's error so callers can wait synchronously.
type Envelope struct {
	ID        string
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time

	ReplyCh chan error `json:"-"`
}

// OrderResultPayload carries a submission outcome back into the loop.
type OrderResultPayload struct {
	Order types.Order         `json:"order"`
	Fill  exchange.FillReport `json:"fill"`
	Error string              `json:"error,omitempty"`
}

// CloseResultPayload carries a close-order outcome back into the loop.
type CloseResultPayload struct {
	PositionID string  `json:"position_id"`
	Reason     string  `json:"reason"`
	Price      float64 `json:"price"`
	Error      string  `json:"error,omitempty"`
}

// ManualClosePayload is the operator-initiated close request.
type ManualClosePayload struct {
	PositionID string `json:"position_id"`
	Reason     string `json:"reason"`
}

// SubmitStatus is the outcome of an event submission.
type SubmitStatus string

const (
	SubmitAccepted  SubmitStatus = "accepted"
	SubmitDuplicate SubmitStatus = "duplicate"
)
