// Package signal carries ephemeral trade instructions from fired
// triggers to strategies, with exactly-once delivery per firing/action.
package signal

import (
	"time"

	"github.com/google/uuid"

	"polyedge/internal/types"
)

// Signal is produced per matched trigger firing and consumed at most
// once per subscribed strategy. Not persisted beyond dispatch.
type Signal struct {
	ID            string          `json:"id"`
	TriggerID     string          `json:"trigger_id"`
	EventID       string          `json:"event_id"`
	Strategy      string          `json:"strategy"`
	MarketID      string          `json:"market_id"`
	OutcomeID     string          `json:"outcome_id"`
	DirectionBias types.Direction `json:"direction_bias"`
	Confidence    float64         `json:"confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// New builds a signal with a fresh id.
func New(triggerID, eventID, strategy string) Signal {
	return Signal{
		ID:        uuid.NewString(),
		TriggerID: triggerID,
		EventID:   eventID,
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
	}
}
