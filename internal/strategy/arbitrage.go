package strategy

import (
	"context"
	"math"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/types"
)

// ArbPair is two market outcomes expected to track each other.
type ArbPair struct {
	A MarketRef `toml:"a"`
	B MarketRef `toml:"b"`
}

// ArbitrageConfig tunes the pair arbitrage strategy.
type ArbitrageConfig struct {
	Pairs         []ArbPair `toml:"pairs"`
	MinSpread     float64   `toml:"min_spread"`
	MaxLegSize    float64   `toml:"max_leg_size"`
	DepthFraction float64   `toml:"depth_fraction"`
}

// Arbitrage proposes offsetting orders when paired outcomes deviate by
// more than the minimum spread, sized to the thinner leg's depth.
type Arbitrage struct {
	cfg     ArbitrageConfig
	Metrics Metrics
}

func NewArbitrage(cfg ArbitrageConfig) *Arbitrage {
	if cfg.MinSpread <= 0 {
		cfg.MinSpread = 0.02
	}
	if cfg.MaxLegSize <= 0 {
		cfg.MaxLegSize = 25
	}
	if cfg.DepthFraction <= 0 || cfg.DepthFraction > 1 {
		cfg.DepthFraction = 0.25
	}
	return &Arbitrage{cfg: cfg}
}

func (a *Arbitrage) Name() string { return "arbitrage" }

func (a *Arbitrage) Counters() *Metrics { return &a.Metrics }

func (a *Arbitrage) GenerateSignals(ctx context.Context, feed marketdata.Feed) ([]types.Order, error) {
	var out []types.Order
	for _, pair := range a.cfg.Pairs {
		priceA, errA := feed.CurrentPrice(ctx, pair.A.MarketID, pair.A.OutcomeID)
		priceB, errB := feed.CurrentPrice(ctx, pair.B.MarketID, pair.B.OutcomeID)
		if errA != nil || errB != nil || priceA <= 0 || priceB <= 0 {
			continue
		}
		spread := priceA - priceB
		if math.Abs(spread) < a.cfg.MinSpread {
			continue
		}

		size := a.legSize(ctx, feed, pair)
		if size <= 0 {
			continue
		}

		// Sell the rich leg, buy the cheap one.
		rich, cheap := pair.A, pair.B
		richPrice, cheapPrice := priceA, priceB
		if spread < 0 {
			rich, cheap = pair.B, pair.A
			richPrice, cheapPrice = priceB, priceA
		}
		out = append(out,
			proposal(a.Name(), rich, types.DirectionSell, size, richPrice),
			proposal(a.Name(), cheap, types.DirectionBuy, size, cheapPrice),
		)
		a.Metrics.Proposed.Add(2)
	}
	return out, nil
}

// legSize caps at the configured max and at the fraction of visible
// depth on the smaller leg, so the pair never self-impacts.
func (a *Arbitrage) legSize(ctx context.Context, feed marketdata.Feed, pair ArbPair) float64 {
	size := a.cfg.MaxLegSize
	for _, ref := range []MarketRef{pair.A, pair.B} {
		depth, err := feed.OrderBookDepth(ctx, ref.MarketID, ref.OutcomeID)
		if err != nil {
			continue
		}
		// The offsetting orders hit both sides; use the thinner one.
		visible := math.Min(depth.VisibleSize(types.DirectionBuy), depth.VisibleSize(types.DirectionSell))
		if allowed := visible * a.cfg.DepthFraction; allowed > 0 && allowed < size {
			size = allowed
		}
	}
	return size
}

// EvaluatePosition holds; arbitrage legs unwind via stop/take levels or
// manual close once the spread converges.
func (a *Arbitrage) EvaluatePosition(context.Context, types.Position) Advice {
	return Advice{Action: Hold}
}
