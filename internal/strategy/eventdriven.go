package strategy

import (
	"context"
	"fmt"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/signal"
	"polyedge/internal/types"
)

// EventDrivenConfig tunes the signal-consuming strategy.
type EventDrivenConfig struct {
	MinSize   float64 `toml:"min_size"`
	MaxSize   float64 `toml:"max_size"`
	QueueSize int     `toml:"queue_size"`
}

// EventDriven consumes dispatched trade signals instead of polling
// market data, sizing each order by the signal's confidence within the
// configured bounds.
type EventDriven struct {
	cfg     EventDrivenConfig
	inbox   chan signal.Signal
	Metrics Metrics
}

func NewEventDriven(cfg EventDrivenConfig) *EventDriven {
	if cfg.MinSize <= 0 {
		cfg.MinSize = 5
	}
	if cfg.MaxSize < cfg.MinSize {
		cfg.MaxSize = 4 * cfg.MinSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	return &EventDriven{
		cfg:   cfg,
		inbox: make(chan signal.Signal, cfg.QueueSize),
	}
}

func (e *EventDriven) Name() string { return "event_driven" }

func (e *EventDriven) Counters() *Metrics { return &e.Metrics }

// ConsumeSignal queues a dispatched signal; a full queue is reported to
// the dispatcher, not silently dropped.
func (e *EventDriven) ConsumeSignal(sig signal.Signal) error {
	select {
	case e.inbox <- sig:
		return nil
	default:
		return fmt.Errorf("event_driven: signal queue full")
	}
}

// Pending returns the number of queued signals.
func (e *EventDriven) Pending() int { return len(e.inbox) }

func (e *EventDriven) GenerateSignals(ctx context.Context, feed marketdata.Feed) ([]types.Order, error) {
	var out []types.Order
	for {
		select {
		case sig := <-e.inbox:
			order, ok := e.orderFor(ctx, feed, sig)
			if !ok {
				continue
			}
			out = append(out, order)
			e.Metrics.Proposed.Add(1)
		default:
			return out, nil
		}
	}
}

func (e *EventDriven) orderFor(ctx context.Context, feed marketdata.Feed, sig signal.Signal) (types.Order, bool) {
	if sig.MarketID == "" || !sig.DirectionBias.Valid() {
		return types.Order{}, false
	}
	price, err := feed.CurrentPrice(ctx, sig.MarketID, sig.OutcomeID)
	if err != nil || price <= 0 {
		// No quote yet; prediction market midpoint default.
		price = 0.5
	}
	size := e.cfg.MinSize + (e.cfg.MaxSize-e.cfg.MinSize)*clampConfidence(sig.Confidence)
	order := proposal(e.Name(), MarketRef{MarketID: sig.MarketID, OutcomeID: sig.OutcomeID},
		sig.DirectionBias, size, price)
	order.SignalID = sig.ID
	return order, true
}

func (e *EventDriven) EvaluatePosition(context.Context, types.Position) Advice {
	return Advice{Action: Hold}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
