package strategy

import (
	"context"
	"math"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/types"
)

// MeanReversionConfig tunes the contrarian strategy.
type MeanReversionConfig struct {
	Markets      []MarketRef `toml:"markets"`
	Window       int         `toml:"window"`
	Exponential  bool        `toml:"exponential"`
	DeviationPct float64     `toml:"deviation_pct"`
	BaseSize     float64     `toml:"base_size"`
	MinSize      float64     `toml:"min_size"`
	MaxSize      float64     `toml:"max_size"`
}

// MeanReversion proposes a contrarian order when price deviates from
// its reference average beyond the threshold. Size shrinks as the
// deviation grows (a runaway price is more likely a regime change than
// noise), bounded by min/max.
type MeanReversion struct {
	cfg     MeanReversionConfig
	Metrics Metrics
}

func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.DeviationPct <= 0 {
		cfg.DeviationPct = 5.0
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 10
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 4 * cfg.BaseSize
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = cfg.BaseSize / 4
	}
	return &MeanReversion{cfg: cfg}
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

func (m *MeanReversion) Counters() *Metrics { return &m.Metrics }

func (m *MeanReversion) GenerateSignals(ctx context.Context, feed marketdata.Feed) ([]types.Order, error) {
	var out []types.Order
	for _, ref := range m.cfg.Markets {
		history, err := feed.PriceHistory(ctx, ref.MarketID, ref.OutcomeID, m.cfg.Window)
		if err != nil || len(history) < m.cfg.Window {
			continue
		}
		closes := make([]float64, len(history))
		for i, q := range history {
			closes[i] = q.Price
		}
		avg, ok := movingAverage(closes, m.cfg.Window, m.cfg.Exponential)
		if !ok {
			continue
		}

		price := closes[len(closes)-1]
		devPct := (price - avg) / avg * 100
		if math.Abs(devPct) < m.cfg.DeviationPct {
			continue
		}

		dir := types.DirectionSell // above average: expect pullback
		if devPct < 0 {
			dir = types.DirectionBuy
		}
		size := m.sizeFor(math.Abs(devPct))
		out = append(out, proposal(m.Name(), ref, dir, size, price))
		m.Metrics.Proposed.Add(1)
	}
	return out, nil
}

func (m *MeanReversion) sizeFor(devPct float64) float64 {
	size := m.cfg.BaseSize * m.cfg.DeviationPct / devPct
	if size > m.cfg.MaxSize {
		size = m.cfg.MaxSize
	}
	if size < m.cfg.MinSize {
		size = m.cfg.MinSize
	}
	return size
}

// EvaluatePosition closes once price has reverted through the entry,
// i.e. the contrarian bet has paid off.
func (m *MeanReversion) EvaluatePosition(_ context.Context, p types.Position) Advice {
	if p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
		return Advice{Action: Hold}
	}
	profitPct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100 * float64(p.Direction.Sign())
	if profitPct >= m.cfg.DeviationPct {
		return Advice{Action: Close, Reason: "reversion_target"}
	}
	return Advice{Action: Hold}
}
