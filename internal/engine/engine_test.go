package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyedge/internal/event"
	"polyedge/internal/gateway/exchange"
	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/ledger"
	"polyedge/internal/pkg/kmutex"
	"polyedge/internal/risk"
	"polyedge/internal/signal"
	"polyedge/internal/strategy"
	"polyedge/internal/trigger"
	"polyedge/internal/types"
)

// sinkRelay breaks the dispatcher/engine construction cycle the same
// way the app wiring does.
type sinkRelay struct{ eng *Engine }

func (r *sinkRelay) ConsumeSignal(sig signal.Signal) error { return r.eng.ConsumeSignal(sig) }

type testHarness struct {
	eng   *Engine
	book  *ledger.Ledger
	gate  *risk.Gate
	cache *marketdata.Cache
	paper *exchange.Paper
	reg   *trigger.Registry
}

func newHarness(t *testing.T, latency time.Duration) *testHarness {
	t.Helper()

	book := ledger.New(kmutex.New())
	cache := marketdata.NewCache()
	gate := risk.NewGate(risk.Config{
		MaxPositionSize:        100,
		DailyLossLimit:         1000,
		MaxConcurrentPositions: 10,
		PortfolioRiskCap:       0.9,
		TotalCapital:           10000,
	}, book, cache)

	reg := trigger.NewRegistry()
	evaluator := trigger.NewEvaluator(reg, trigger.NewAuditTrail(64, 64))

	relay := &sinkRelay{}
	dispatcher := signal.NewDispatcher(nil, relay, gate)

	paper := exchange.NewPaper(latency)
	eng := New(Config{
		Workers:       2,
		SubmitTimeout: 5 * time.Second,
	}, Deps{
		Registry:   reg,
		Evaluator:  evaluator,
		Dispatcher: dispatcher,
		Ledger:     book,
		Gate:       gate,
		Feed:       cache,
		Exchange:   paper,
		Strategies: []strategy.Strategy{strategy.NewEventDriven(strategy.EventDrivenConfig{MinSize: 5, MaxSize: 20})},
	})
	relay.eng = eng

	return &testHarness{eng: eng, book: book, gate: gate, cache: cache, paper: paper, reg: reg}
}

func priceEvent(marketID string, changePct float64) event.Event {
	ev := event.New(event.CategoryPrice, "clob-feed", event.SeverityHigh, "price moved")
	ev.MarketID = marketID
	ev.OutcomeID = "yes"
	ev.Payload["change_pct"] = changePct
	return ev
}

func openFilled(t *testing.T, book *ledger.Ledger, stopLoss float64) types.Position {
	t.Helper()
	now := time.Now().UTC()
	order := types.Order{
		ID:            uuid.NewString(),
		MarketID:      "mkt-1",
		OutcomeID:     "yes",
		Direction:     types.DirectionBuy,
		Size:          10,
		LimitPrice:    0.60,
		Strategy:      "event_driven",
		Status:        types.OrderFilled,
		StopLoss:      stopLoss,
		ExecutedPrice: 0.60,
		ExecutedAt:    &now,
		CreatedAt:     now,
	}
	p, err := book.Open(order)
	require.NoError(t, err)
	return p
}

func TestSubmitEventRejectsInvalid(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.eng.SubmitEvent(context.Background(), event.Event{ID: "evt-1", Source: "test"})
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSubmitEventDedupAndListeners(t *testing.T) {
	h := newHarness(t, 0)
	h.eng.Start()
	defer h.eng.Stop()

	var seen []string
	h.eng.Subscribe(func(ev event.Event) { seen = append(seen, ev.ID) })

	ev := priceEvent("mkt-1", 5.0)
	status, err := h.eng.SubmitEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, SubmitAccepted, status)

	status, err = h.eng.SubmitEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, SubmitDuplicate, status)

	// Listeners fire once; the duplicate never reaches them.
	assert.Equal(t, []string{ev.ID}, seen)
	assert.Equal(t, 1, h.eng.Ring().Len())
}

func TestSubmitEventRetryAfterEnqueueFailure(t *testing.T) {
	h := newHarness(t, 0)
	// No queue capacity and no running workers, so the enqueue can only
	// complete once a consumer appears.
	h.eng.evalCh = make(chan event.Event)

	ev := priceEvent("mkt-1", 4.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.eng.SubmitEvent(ctx, ev)
	var tioErr *TransientIOError
	require.ErrorAs(t, err, &tioErr)

	got := make(chan event.Event, 1)
	go func() { got <- <-h.eng.evalCh }()

	// The failed enqueue must not poison the retry as a duplicate.
	status, err := h.eng.SubmitEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, SubmitAccepted, status)
	select {
	case queued := <-got:
		assert.Equal(t, ev.ID, queued.ID)
	case <-time.After(time.Second):
		t.Fatal("retried event never reached the queue")
	}
}

func TestEventToPositionPipeline(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.reg.Add(trigger.Trigger{
		Name:        "spike entry",
		Enabled:     true,
		Categories:  []event.Category{event.CategoryPrice},
		MinSeverity: event.SeverityMedium,
		Conditions:  []trigger.Condition{{Field: "change_pct", Operator: trigger.OpGte, Value: 3.0}},
		Actions: []trigger.Action{{
			Type:   trigger.ActionTrade,
			Params: map[string]any{"direction": "buy", "confidence": 1.0},
		}},
	})
	require.NoError(t, err)

	h.cache.PushQuote(types.PriceQuote{MarketID: "mkt-1", OutcomeID: "yes", Price: 0.60})

	h.eng.Start()
	defer h.eng.Stop()

	status, err := h.eng.SubmitEvent(context.Background(), priceEvent("mkt-1", 5.0))
	require.NoError(t, err)
	require.Equal(t, SubmitAccepted, status)

	// Evaluation, dispatch, strategy poll, authorization and the paper
	// fill all complete asynchronously.
	require.Eventually(t, func() bool {
		return h.book.ActiveCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	positions := h.book.Active()
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, "mkt-1", p.MarketID)
	assert.Equal(t, types.DirectionBuy, p.Direction)
	assert.Equal(t, "event_driven", p.Strategy)
	assert.InDelta(t, 0.60, p.EntryPrice, 1e-9)
	// Full confidence sizes at the strategy's max.
	assert.InDelta(t, 20.0, p.Size, 1e-9)
}

func TestManualClose(t *testing.T) {
	h := newHarness(t, 0)
	p := openFilled(t, h.book, 0)
	h.book.MarkPrice("mkt-1", "yes", 0.75)

	h.eng.Start()
	defer h.eng.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.eng.ClosePosition(ctx, p.ID, "operator exit"))

	require.Eventually(t, func() bool {
		return h.book.ActiveCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	closed, ok := h.book.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, types.PositionClosed, closed.State)
	assert.Equal(t, "operator exit", closed.CloseReason)
	// Bought at 0.60, closed at the 0.75 mark: +1.5 on 10 shares.
	assert.InDelta(t, 1.5, closed.RealizedPnL, 1e-9)
}

func TestManualCloseUnknownPosition(t *testing.T) {
	h := newHarness(t, 0)
	h.eng.Start()
	defer h.eng.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := h.eng.ClosePosition(ctx, "ghost", "manual")
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMarkCycleStopLoss(t *testing.T) {
	h := newHarness(t, 0)
	p := openFilled(t, h.book, 0.50)
	h.cache.PushQuote(types.PriceQuote{MarketID: "mkt-1", OutcomeID: "yes", Price: 0.45})

	h.eng.Start()
	defer h.eng.Stop()

	h.eng.RunMarkCycle()

	require.Eventually(t, func() bool {
		return h.book.ActiveCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	closed, ok := h.book.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, types.PositionClosed, closed.State)
	assert.Equal(t, "stop_loss", closed.CloseReason)
	assert.Less(t, closed.RealizedPnL, 0.0)
}

func TestReconcileSettlesLostFill(t *testing.T) {
	h := newHarness(t, 0)
	h.eng.Start()
	defer h.eng.Stop()

	order := types.Order{
		ID:         uuid.NewString(),
		MarketID:   "mkt-1",
		OutcomeID:  "yes",
		Direction:  types.DirectionBuy,
		Size:       10,
		LimitPrice: 0.55,
		Strategy:   "event_driven",
		Status:     types.OrderSubmitted,
		CreatedAt:  time.Now().Add(-time.Minute), // older than the submit timeout
	}

	// The exchange filled it, but the fill report was lost.
	fut, err := h.paper.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	_, err = fut.Wait(context.Background())
	require.NoError(t, err)

	h.eng.trackPending(order)
	h.eng.RunReconcile()

	require.Eventually(t, func() bool {
		return h.book.ActiveCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.eng.pendingMu.Lock()
	_, stillTracked := h.eng.pending[order.ID]
	h.eng.pendingMu.Unlock()
	assert.False(t, stillTracked)
}

func TestCancelOrderAgainstSlowFill(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.eng.Start()
	defer h.eng.Stop()

	order := types.Order{
		ID:         uuid.NewString(),
		MarketID:   "mkt-1",
		OutcomeID:  "yes",
		Direction:  types.DirectionBuy,
		Size:       10,
		LimitPrice: 0.55,
		Status:     types.OrderSubmitted,
		CreatedAt:  time.Now(),
	}
	_, err := h.paper.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	h.eng.trackPending(order)

	cancelled, err := h.eng.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestMetricsSnapshot(t *testing.T) {
	h := newHarness(t, 0)
	h.eng.Start()
	defer h.eng.Stop()

	_, err := h.eng.SubmitEvent(context.Background(), priceEvent("mkt-1", 5.0))
	require.NoError(t, err)

	m := h.eng.Metrics()
	assert.Equal(t, int64(1), m["events_accepted"])
	assert.Equal(t, int64(0), m["events_duplicate"])
	assert.Equal(t, 1, m["ring_size"])

	strategies, ok := m["strategies"].(map[string]map[string]int64)
	require.True(t, ok)
	assert.Contains(t, strategies, "event_driven")
}
