package strategy

import (
	"context"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/types"
)

// MomentumConfig tunes the momentum strategy.
type MomentumConfig struct {
	Markets       []MarketRef `toml:"markets"`
	Window        int         `toml:"window"`
	SlopePct      float64     `toml:"slope_pct"`
	VolumeConfirm bool        `toml:"volume_confirm"`
	OrderSize     float64     `toml:"order_size"`
}

// Momentum proposes a directional order when the price slope over the
// window exceeds the threshold, optionally requiring volume to confirm
// the direction.
type Momentum struct {
	cfg     MomentumConfig
	Metrics Metrics
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	if cfg.Window <= 0 {
		cfg.Window = 12
	}
	if cfg.SlopePct <= 0 {
		cfg.SlopePct = 2.0
	}
	if cfg.OrderSize <= 0 {
		cfg.OrderSize = 10
	}
	return &Momentum{cfg: cfg}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Counters() *Metrics { return &m.Metrics }

func (m *Momentum) GenerateSignals(ctx context.Context, feed marketdata.Feed) ([]types.Order, error) {
	var out []types.Order
	for _, ref := range m.cfg.Markets {
		history, err := feed.PriceHistory(ctx, ref.MarketID, ref.OutcomeID, m.cfg.Window)
		if err != nil || len(history) < m.cfg.Window {
			continue
		}
		closes := make([]float64, len(history))
		volumes := make([]float64, len(history))
		for i, q := range history {
			closes[i] = q.Price
			volumes[i] = q.Volume
		}

		change, ok := rocPct(closes, m.cfg.Window)
		if !ok {
			continue
		}
		if change < m.cfg.SlopePct && change > -m.cfg.SlopePct {
			continue
		}

		dir := types.DirectionBuy
		if change < 0 {
			dir = types.DirectionSell
		}
		if m.cfg.VolumeConfirm && !volumeConfirms(volumes, m.cfg.Window) {
			continue
		}

		price := closes[len(closes)-1]
		out = append(out, proposal(m.Name(), ref, dir, m.cfg.OrderSize, price))
		m.Metrics.Proposed.Add(1)
	}
	return out, nil
}

// EvaluatePosition closes when momentum has flipped hard against the
// position; a milder adverse reading just holds.
func (m *Momentum) EvaluatePosition(ctx context.Context, p types.Position) Advice {
	_ = ctx
	if p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
		return Advice{Action: Hold}
	}
	movePct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
	adverse := movePct
	if p.Direction == types.DirectionSell {
		adverse = -movePct
	}
	if adverse <= -2*m.cfg.SlopePct {
		return Advice{Action: Close, Reason: "momentum_reversal"}
	}
	return Advice{Action: Hold}
}
