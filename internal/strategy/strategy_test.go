package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/signal"
	"polyedge/internal/types"
)

func pushSeries(cache *marketdata.Cache, marketID, outcomeID string, prices, volumes []float64) {
	base := time.Now().UTC().Add(-time.Duration(len(prices)) * time.Minute)
	for i, p := range prices {
		q := types.PriceQuote{
			MarketID:  marketID,
			OutcomeID: outcomeID,
			Price:     p,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if volumes != nil {
			q.Volume = volumes[i]
		}
		cache.PushQuote(q)
	}
}

func linearSeries(from, to float64, n int) []float64 {
	out := make([]float64, n)
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestMomentumProposesWithTrend(t *testing.T) {
	cache := marketdata.NewCache()
	ref := MarketRef{MarketID: "mkt-1", OutcomeID: "yes"}
	m := NewMomentum(MomentumConfig{
		Markets:   []MarketRef{ref},
		Window:    12,
		SlopePct:  3.0,
		OrderSize: 10,
	})

	// 0.50 -> 0.55 over the window is a +10% move.
	pushSeries(cache, ref.MarketID, ref.OutcomeID, linearSeries(0.50, 0.55, 12), nil)

	orders, err := m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.DirectionBuy, orders[0].Direction)
	assert.Equal(t, "momentum", orders[0].Strategy)
	assert.Equal(t, 10.0, orders[0].Size)
	assert.InDelta(t, 0.55, orders[0].LimitPrice, 1e-9)
	assert.Equal(t, int64(1), m.Metrics.Proposed.Load())
}

func TestMomentumSellsOnDowntrend(t *testing.T) {
	cache := marketdata.NewCache()
	ref := MarketRef{MarketID: "mkt-1", OutcomeID: "yes"}
	m := NewMomentum(MomentumConfig{Markets: []MarketRef{ref}, Window: 12, SlopePct: 3.0})

	pushSeries(cache, ref.MarketID, ref.OutcomeID, linearSeries(0.60, 0.54, 12), nil)

	orders, err := m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.DirectionSell, orders[0].Direction)
}

func TestMomentumSilentOnFlatOrThinHistory(t *testing.T) {
	cache := marketdata.NewCache()
	ref := MarketRef{MarketID: "mkt-1", OutcomeID: "yes"}
	m := NewMomentum(MomentumConfig{Markets: []MarketRef{ref}, Window: 12, SlopePct: 3.0})

	// Not enough history yet.
	pushSeries(cache, ref.MarketID, ref.OutcomeID, linearSeries(0.50, 0.60, 6), nil)
	orders, err := m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// Flat series below the slope threshold.
	cache = marketdata.NewCache()
	pushSeries(cache, ref.MarketID, ref.OutcomeID, linearSeries(0.500, 0.505, 12), nil)
	orders, err = m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMomentumVolumeConfirm(t *testing.T) {
	cache := marketdata.NewCache()
	ref := MarketRef{MarketID: "mkt-1", OutcomeID: "yes"}
	m := NewMomentum(MomentumConfig{
		Markets:       []MarketRef{ref},
		Window:        12,
		SlopePct:      3.0,
		VolumeConfirm: true,
	})

	// Price trends up but volume dries out: no participation, no trade.
	fading := []float64{90, 90, 90, 90, 90, 90, 10, 10, 10, 10, 10, 10}
	pushSeries(cache, ref.MarketID, ref.OutcomeID, linearSeries(0.50, 0.55, 12), fading)
	orders, err := m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// Same move with rising volume passes.
	cache = marketdata.NewCache()
	rising := []float64{10, 10, 10, 10, 10, 10, 90, 90, 90, 90, 90, 90}
	pushSeries(cache, ref.MarketID, ref.OutcomeID, linearSeries(0.50, 0.55, 12), rising)
	orders, err = m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestMomentumEvaluatePosition(t *testing.T) {
	m := NewMomentum(MomentumConfig{SlopePct: 3.0})
	pos := types.Position{
		Direction:    types.DirectionBuy,
		EntryPrice:   0.50,
		CurrentPrice: 0.46, // -8%, past the -6% reversal bar
	}
	advice := m.EvaluatePosition(context.Background(), pos)
	assert.Equal(t, Close, advice.Action)
	assert.Equal(t, "momentum_reversal", advice.Reason)

	pos.CurrentPrice = 0.49
	assert.Equal(t, Hold, m.EvaluatePosition(context.Background(), pos).Action)

	// A short position profits from the drop.
	pos.Direction = types.DirectionSell
	pos.CurrentPrice = 0.46
	assert.Equal(t, Hold, m.EvaluatePosition(context.Background(), pos).Action)
}

func TestEventDrivenSizesByConfidence(t *testing.T) {
	cache := marketdata.NewCache()
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-1", OutcomeID: "yes", Price: 0.62})

	e := NewEventDriven(EventDrivenConfig{MinSize: 5, MaxSize: 20})
	sig := signal.New("trg-1", "evt-1", "event_driven")
	sig.MarketID = "mkt-1"
	sig.OutcomeID = "yes"
	sig.DirectionBias = types.DirectionBuy
	sig.Confidence = 0.5
	require.NoError(t, e.ConsumeSignal(sig))

	orders, err := e.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 12.5, orders[0].Size, 1e-9)
	assert.InDelta(t, 0.62, orders[0].LimitPrice, 1e-9)
	assert.Equal(t, sig.ID, orders[0].SignalID)
	assert.Equal(t, 0, e.Pending())

	// Drained queue proposes nothing on the next tick.
	orders, err = e.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestEventDrivenDefaultsPriceWithoutQuote(t *testing.T) {
	e := NewEventDriven(EventDrivenConfig{MinSize: 5, MaxSize: 20})
	sig := signal.New("trg-1", "evt-1", "event_driven")
	sig.MarketID = "mkt-unquoted"
	sig.DirectionBias = types.DirectionSell
	sig.Confidence = 1.0
	require.NoError(t, e.ConsumeSignal(sig))

	orders, err := e.GenerateSignals(context.Background(), marketdata.NewCache())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 0.5, orders[0].LimitPrice, 1e-9)
	assert.InDelta(t, 20, orders[0].Size, 1e-9)
}

func TestEventDrivenSkipsInvalidSignals(t *testing.T) {
	e := NewEventDriven(EventDrivenConfig{})
	noMarket := signal.New("trg-1", "evt-1", "event_driven")
	noMarket.DirectionBias = types.DirectionBuy
	require.NoError(t, e.ConsumeSignal(noMarket))

	noDirection := signal.New("trg-1", "evt-2", "event_driven")
	noDirection.MarketID = "mkt-1"
	require.NoError(t, e.ConsumeSignal(noDirection))

	orders, err := e.GenerateSignals(context.Background(), marketdata.NewCache())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestEventDrivenQueueFull(t *testing.T) {
	e := NewEventDriven(EventDrivenConfig{QueueSize: 2})
	sig := signal.New("trg-1", "evt-1", "event_driven")
	sig.MarketID = "mkt-1"
	sig.DirectionBias = types.DirectionBuy

	require.NoError(t, e.ConsumeSignal(sig))
	require.NoError(t, e.ConsumeSignal(sig))
	err := e.ConsumeSignal(sig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestSmartMoneyFollowsConsensus(t *testing.T) {
	cache := marketdata.NewCache()
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-1", OutcomeID: "yes", Price: 0.58})

	s := NewSmartMoney(SmartMoneyConfig{
		Markets:         []MarketRef{{MarketID: "mkt-1"}},
		Wallets:         []string{"0xaaa", "0xbbb"},
		MinTradeSize:    10,
		FollowThreshold: 2,
		WindowMinutes:   30,
		OrderSize:       15,
	})
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	recent := now.Add(-5 * time.Minute)
	cache.PushTrade(types.WalletTrade{Wallet: "0xaaa", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionBuy, Size: 50, Timestamp: recent})
	cache.PushTrade(types.WalletTrade{Wallet: "0xbbb", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionBuy, Size: 40, Timestamp: recent})

	orders, err := s.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.DirectionBuy, orders[0].Direction)
	assert.Equal(t, "yes", orders[0].OutcomeID)
	assert.Equal(t, 15.0, orders[0].Size)
}

func TestSmartMoneyIgnoresUntrackedAndSmallTrades(t *testing.T) {
	cache := marketdata.NewCache()
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-1", OutcomeID: "yes", Price: 0.58})

	s := NewSmartMoney(SmartMoneyConfig{
		Markets:         []MarketRef{{MarketID: "mkt-1"}},
		Wallets:         []string{"0xaaa", "0xbbb"},
		MinTradeSize:    10,
		FollowThreshold: 2,
	})
	now := time.Now().UTC()

	// One tracked wallet, one stranger, one dust trade: no consensus.
	cache.PushTrade(types.WalletTrade{Wallet: "0xaaa", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionBuy, Size: 50, Timestamp: now})
	cache.PushTrade(types.WalletTrade{Wallet: "0xeee", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionBuy, Size: 50, Timestamp: now})
	cache.PushTrade(types.WalletTrade{Wallet: "0xbbb", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionBuy, Size: 2, Timestamp: now})

	orders, err := s.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSmartMoneyHonorsFollowLag(t *testing.T) {
	cache := marketdata.NewCache()
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-1", OutcomeID: "yes", Price: 0.58})

	s := NewSmartMoney(SmartMoneyConfig{
		Markets:         []MarketRef{{MarketID: "mkt-1"}},
		Wallets:         []string{"0xaaa", "0xbbb"},
		FollowThreshold: 2,
		FollowLag:       "10m",
	})
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	cache.PushTrade(types.WalletTrade{Wallet: "0xaaa", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionSell, Size: 30, Timestamp: now})
	cache.PushTrade(types.WalletTrade{Wallet: "0xbbb", MarketID: "mkt-1", OutcomeID: "yes", Direction: types.DirectionSell, Size: 30, Timestamp: now})

	// Consensus just formed; the follow lag has not elapsed.
	orders, err := s.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)

	now = now.Add(11 * time.Minute)
	orders, err = s.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.DirectionSell, orders[0].Direction)
}

func TestMeanReversionFadesDeviation(t *testing.T) {
	cache := marketdata.NewCache()
	ref := MarketRef{MarketID: "mkt-1", OutcomeID: "yes"}
	m := NewMeanReversion(MeanReversionConfig{
		Markets:      []MarketRef{ref},
		Window:       5,
		DeviationPct: 5.0,
		BaseSize:     10,
	})

	// Price spiked above its average: fade it with a sell.
	pushSeries(cache, ref.MarketID, ref.OutcomeID, []float64{0.50, 0.50, 0.50, 0.50, 0.60}, nil)
	orders, err := m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.DirectionSell, orders[0].Direction)
	// SMA 0.52, deviation 15.38%: size shrinks to 10*5/15.38.
	assert.InDelta(t, 3.25, orders[0].Size, 0.01)

	// Price dumped below its average: buy the dip.
	cache = marketdata.NewCache()
	pushSeries(cache, ref.MarketID, ref.OutcomeID, []float64{0.60, 0.60, 0.60, 0.60, 0.50}, nil)
	orders, err = m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.DirectionBuy, orders[0].Direction)
}

func TestMeanReversionQuietNearAverage(t *testing.T) {
	cache := marketdata.NewCache()
	ref := MarketRef{MarketID: "mkt-1", OutcomeID: "yes"}
	m := NewMeanReversion(MeanReversionConfig{Markets: []MarketRef{ref}, Window: 5, DeviationPct: 5.0})

	pushSeries(cache, ref.MarketID, ref.OutcomeID, []float64{0.50, 0.51, 0.50, 0.51, 0.50}, nil)
	orders, err := m.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMeanReversionEvaluatePosition(t *testing.T) {
	m := NewMeanReversion(MeanReversionConfig{DeviationPct: 5.0})

	pos := types.Position{Direction: types.DirectionBuy, EntryPrice: 0.50, CurrentPrice: 0.55}
	advice := m.EvaluatePosition(context.Background(), pos)
	assert.Equal(t, Close, advice.Action)
	assert.Equal(t, "reversion_target", advice.Reason)

	pos.CurrentPrice = 0.52
	assert.Equal(t, Hold, m.EvaluatePosition(context.Background(), pos).Action)
}

func TestArbitrageProposesBothLegs(t *testing.T) {
	cache := marketdata.NewCache()
	pair := ArbPair{
		A: MarketRef{MarketID: "mkt-a", OutcomeID: "yes"},
		B: MarketRef{MarketID: "mkt-b", OutcomeID: "yes"},
	}
	a := NewArbitrage(ArbitrageConfig{Pairs: []ArbPair{pair}, MinSpread: 0.03, MaxLegSize: 25})

	cache.PushQuote(types.PriceQuote{MarketID: "mkt-a", OutcomeID: "yes", Price: 0.60})
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-b", OutcomeID: "yes", Price: 0.50})

	orders, err := a.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, types.DirectionSell, orders[0].Direction)
	assert.Equal(t, "mkt-a", orders[0].MarketID)
	assert.Equal(t, types.DirectionBuy, orders[1].Direction)
	assert.Equal(t, "mkt-b", orders[1].MarketID)
	// No depth snapshots: both legs sized at the configured max.
	assert.Equal(t, 25.0, orders[0].Size)
	assert.Equal(t, 25.0, orders[1].Size)
}

func TestArbitrageSizesToThinnerLeg(t *testing.T) {
	cache := marketdata.NewCache()
	pair := ArbPair{
		A: MarketRef{MarketID: "mkt-a", OutcomeID: "yes"},
		B: MarketRef{MarketID: "mkt-b", OutcomeID: "yes"},
	}
	a := NewArbitrage(ArbitrageConfig{Pairs: []ArbPair{pair}, MinSpread: 0.03, MaxLegSize: 25, DepthFraction: 0.25})

	cache.PushQuote(types.PriceQuote{MarketID: "mkt-a", OutcomeID: "yes", Price: 0.60})
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-b", OutcomeID: "yes", Price: 0.50})
	cache.PushDepth(types.Depth{
		MarketID: "mkt-a", OutcomeID: "yes",
		Bids: []types.DepthLevel{{Price: 0.59, Size: 40}},
		Asks: []types.DepthLevel{{Price: 0.61, Size: 40}},
	})
	cache.PushDepth(types.Depth{
		MarketID: "mkt-b", OutcomeID: "yes",
		Bids: []types.DepthLevel{{Price: 0.49, Size: 200}},
		Asks: []types.DepthLevel{{Price: 0.51, Size: 200}},
	})

	orders, err := a.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.InDelta(t, 10.0, orders[0].Size, 1e-9)
	assert.InDelta(t, 10.0, orders[1].Size, 1e-9)
}

func TestArbitrageIgnoresTightSpread(t *testing.T) {
	cache := marketdata.NewCache()
	pair := ArbPair{
		A: MarketRef{MarketID: "mkt-a", OutcomeID: "yes"},
		B: MarketRef{MarketID: "mkt-b", OutcomeID: "yes"},
	}
	a := NewArbitrage(ArbitrageConfig{Pairs: []ArbPair{pair}, MinSpread: 0.03})

	cache.PushQuote(types.PriceQuote{MarketID: "mkt-a", OutcomeID: "yes", Price: 0.51})
	cache.PushQuote(types.PriceQuote{MarketID: "mkt-b", OutcomeID: "yes", Price: 0.50})

	orders, err := a.GenerateSignals(context.Background(), cache)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
