// Package risk is the authorization checkpoint every proposed order
// passes before submission. Checks run in a fixed order and stop at the
// first failure; the gate never retries on behalf of the caller.
package risk

import "fmt"

// ReasonCode identifies why an order was rejected. Codes are stable API
// values; the human message may change.
type ReasonCode string

const (
	ReasonTradingPaused      ReasonCode = "trading_paused"
	ReasonCircuitOpen        ReasonCode = "circuit_breaker_open"
	ReasonPositionSize       ReasonCode = "position_size_exceeded"
	ReasonDailyLoss          ReasonCode = "daily_loss_limit_breached"
	ReasonMaxPositions       ReasonCode = "max_concurrent_positions"
	ReasonPortfolioCap       ReasonCode = "portfolio_risk_cap_exceeded"
	ReasonInsufficientDepth  ReasonCode = "insufficient_depth"
	ReasonConflictingContext ReasonCode = "conflicting_position"
	ReasonInvalidOrder       ReasonCode = "invalid_order"
)

// Rejection is a structured authorization failure returned to the
// originating strategy.
type Rejection struct {
	Code    ReasonCode
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk: rejected (%s): %s", r.Code, r.Message)
}

func reject(code ReasonCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps a Rejection from an authorization error.
func AsRejection(err error) (*Rejection, bool) {
	r, ok := err.(*Rejection)
	return r, ok
}
