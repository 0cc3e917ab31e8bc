package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/ledger"
	"polyedge/internal/logger"
	"polyedge/internal/pkg/circuit"
	"polyedge/internal/pkg/kmutex"
	"polyedge/internal/types"
)

// Config carries the financial safety limits.
type Config struct {
	MaxPositionSize        float64 `toml:"max_position_size"`
	DailyLossLimit         float64 `toml:"daily_loss_limit"`
	MaxConcurrentPositions int     `toml:"max_concurrent_positions"`
	PortfolioRiskCap       float64 `toml:"portfolio_risk_cap"`
	TotalCapital           float64 `toml:"total_capital"`
	MaxDepthFraction       float64 `toml:"max_depth_fraction"`
	DefaultStopLossPct     float64 `toml:"default_stop_loss_pct"`
	DefaultTakeProfitPct   float64 `toml:"default_take_profit_pct"`
}

// Validate rejects nonsensical limit combinations.
func (c Config) Validate() error {
	if c.MaxPositionSize < 0 {
		return fmt.Errorf("risk.max_position_size must be >= 0")
	}
	if c.PortfolioRiskCap < 0 || c.PortfolioRiskCap > 1 {
		return fmt.Errorf("risk.portfolio_risk_cap must be within [0,1]")
	}
	if c.MaxDepthFraction < 0 || c.MaxDepthFraction > 1 {
		return fmt.Errorf("risk.max_depth_fraction must be within [0,1]")
	}
	if c.PortfolioRiskCap > 0 && c.TotalCapital <= 0 {
		return fmt.Errorf("risk.total_capital is required when portfolio_risk_cap is set")
	}
	return nil
}

// Gate authorizes proposed orders. Authorization for one market is
// serialized against ledger open/close on the same market via the
// shared keyed mutex; different markets proceed in parallel.
type Gate struct {
	cfg     Config
	book    *ledger.Ledger
	feed    marketdata.Feed
	markets *kmutex.KMutex
	breaker *circuit.Breaker
	paused  atomic.Bool

	// Authorized orders whose fill outcome is still unknown. Their
	// notional counts against the portfolio cap and concurrency limit so
	// a burst of proposals cannot overshoot while fills are in flight.
	inflightMu       sync.Mutex
	inflight         map[string]decimal.Decimal
	inflightNotional decimal.Decimal

	authorized atomic.Int64
	rejected   atomic.Int64
}

func NewGate(cfg Config, book *ledger.Ledger, feed marketdata.Feed) *Gate {
	if cfg.MaxDepthFraction <= 0 {
		cfg.MaxDepthFraction = 0.25
	}
	return &Gate{
		cfg:      cfg,
		book:     book,
		feed:     feed,
		markets:  book.Markets(),
		breaker:  circuit.NewDailyBreaker("daily_loss"),
		inflight: make(map[string]decimal.Decimal),
	}
}

// Authorize validates a proposed order against the configured limits.
// Checks run in order and short-circuit on the first failure, returning
// a *Rejection. A nil error means the order may be submitted.
func (g *Gate) Authorize(ctx context.Context, order types.Order) error {
	if err := validOrder(order); err != nil {
		return err
	}
	if g.paused.Load() {
		return reject(ReasonTradingPaused, "trading is paused")
	}
	if !g.breaker.Allow() {
		_, why := g.breaker.Tripped()
		return reject(ReasonCircuitOpen, "new orders disabled: %s", why)
	}

	unlock := g.markets.Lock(order.MarketID)
	defer unlock()

	if err := g.runChecks(ctx, order); err != nil {
		g.rejected.Add(1)
		logger.Warnf("risk: rejected %s %s %s size=%.2f: %v",
			order.Strategy, order.Direction, order.MarketID, order.Size, err)
		return err
	}
	g.authorized.Add(1)
	return nil
}

func (g *Gate) runChecks(ctx context.Context, order types.Order) error {
	notional := decimal.NewFromFloat(order.Notional())

	if notional.GreaterThan(decimal.NewFromFloat(g.cfg.MaxPositionSize)) {
		return reject(ReasonPositionSize, "notional %.2f exceeds per-trade limit %.2f",
			order.Notional(), g.cfg.MaxPositionSize)
	}

	if g.cfg.DailyLossLimit > 0 {
		realized := g.book.DailyRealizedPnL()
		loss := decimal.NewFromFloat(g.book.UnrealizedLoss())
		if realized < 0 {
			loss = loss.Add(decimal.NewFromFloat(-realized))
		}
		if loss.GreaterThanOrEqual(decimal.NewFromFloat(g.cfg.DailyLossLimit)) {
			lf, _ := loss.Float64()
			g.breaker.Trip("daily loss limit reached")
			return reject(ReasonDailyLoss, "daily loss %.2f at or above limit %.2f",
				lf, g.cfg.DailyLossLimit)
		}
	}

	if err := g.claim(order.ID, notional); err != nil {
		return err
	}

	if err := g.checkDepth(ctx, order); err != nil {
		g.Release(order.ID)
		return err
	}

	for _, p := range g.book.ActiveOn(order.MarketID, order.OutcomeID) {
		if p.Direction != order.Direction {
			g.Release(order.ID)
			return reject(ReasonConflictingContext,
				"active %s position %s on %s/%s conflicts with proposed %s",
				p.Direction, p.ID, order.MarketID, order.OutcomeID, order.Direction)
		}
	}
	return nil
}

// claim runs the aggregate exposure checks and records the in-flight
// reservation in one critical section. The projection counts filled
// positions plus every earlier claim, so concurrent authorizations
// cannot jointly exceed the cap.
func (g *Gate) claim(orderID string, notional decimal.Decimal) error {
	g.inflightMu.Lock()
	defer g.inflightMu.Unlock()

	if g.cfg.MaxConcurrentPositions > 0 &&
		g.book.ActiveCount()+len(g.inflight) >= g.cfg.MaxConcurrentPositions {
		return reject(ReasonMaxPositions, "%d active or pending positions at configured maximum",
			g.book.ActiveCount()+len(g.inflight))
	}

	if g.cfg.PortfolioRiskCap > 0 && g.cfg.TotalCapital > 0 {
		capAmount := decimal.NewFromFloat(g.cfg.PortfolioRiskCap).Mul(decimal.NewFromFloat(g.cfg.TotalCapital))
		projected := decimal.NewFromFloat(g.book.ActiveNotional()).Add(g.inflightNotional).Add(notional)
		if projected.GreaterThan(capAmount) {
			pf, _ := projected.Float64()
			cf, _ := capAmount.Float64()
			return reject(ReasonPortfolioCap, "projected notional %.2f exceeds cap %.2f", pf, cf)
		}
	}

	g.inflight[orderID] = notional
	g.inflightNotional = g.inflightNotional.Add(notional)
	return nil
}

// Release drops the in-flight reservation for an authorized order once
// its outcome is known: filled into the ledger, rejected by the
// exchange, or cancelled. Unknown ids are a no-op.
func (g *Gate) Release(orderID string) {
	g.inflightMu.Lock()
	if n, ok := g.inflight[orderID]; ok {
		delete(g.inflight, orderID)
		g.inflightNotional = g.inflightNotional.Sub(n)
	}
	g.inflightMu.Unlock()
}

// checkDepth rejects orders larger than the configured fraction of
// visible book depth. Markets with no depth snapshot pass; liquidity
// data is best-effort.
func (g *Gate) checkDepth(ctx context.Context, order types.Order) error {
	depth, err := g.feed.OrderBookDepth(ctx, order.MarketID, order.OutcomeID)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			return nil
		}
		logger.Warnf("risk: depth lookup failed for %s/%s: %v", order.MarketID, order.OutcomeID, err)
		return nil
	}
	visible := depth.VisibleSize(order.Direction)
	if visible <= 0 {
		return reject(ReasonInsufficientDepth, "no visible liquidity on %s side", order.Direction)
	}
	limit := decimal.NewFromFloat(visible).Mul(decimal.NewFromFloat(g.cfg.MaxDepthFraction))
	if decimal.NewFromFloat(order.Size).GreaterThan(limit) {
		lf, _ := limit.Float64()
		return reject(ReasonInsufficientDepth,
			"size %.2f exceeds %.0f%% of visible depth (%.2f)",
			order.Size, g.cfg.MaxDepthFraction*100, lf)
	}
	return nil
}

// ApplyProtectiveLevels fills in the configured default stop-loss and
// take-profit when the strategy left them unset.
func (g *Gate) ApplyProtectiveLevels(order *types.Order) {
	if order.LimitPrice <= 0 {
		return
	}
	sign := float64(order.Direction.Sign())
	if order.StopLoss <= 0 && g.cfg.DefaultStopLossPct > 0 {
		order.StopLoss = order.LimitPrice * (1 - sign*g.cfg.DefaultStopLossPct)
	}
	if order.TakeProfit <= 0 && g.cfg.DefaultTakeProfitPct > 0 {
		order.TakeProfit = order.LimitPrice * (1 + sign*g.cfg.DefaultTakeProfitPct)
	}
}

// Pause stops authorization of new orders. Open positions still close.
func (g *Gate) Pause(reason string) {
	if !g.paused.Swap(true) {
		logger.Warnf("risk: trading paused (%s)", reason)
	}
}

// Resume re-enables authorization.
func (g *Gate) Resume() {
	if g.paused.Swap(false) {
		logger.Infof("risk: trading resumed")
	}
}

func (g *Gate) Paused() bool { return g.paused.Load() }

// ResetBreaker clears a tripped daily-loss breaker (manual override).
func (g *Gate) ResetBreaker() {
	g.breaker.Reset()
	logger.Warnf("risk: daily loss breaker manually reset")
}

// Status is the risk snapshot exposed over the API.
type Status struct {
	Paused           bool    `json:"paused"`
	BreakerTripped   bool    `json:"breaker_tripped"`
	BreakerReason    string  `json:"breaker_reason,omitempty"`
	ActivePositions  int     `json:"active_positions"`
	ActiveNotional   float64 `json:"active_notional"`
	InFlightOrders   int     `json:"in_flight_orders"`
	InFlightNotional float64 `json:"in_flight_notional"`
	DailyRealized    float64 `json:"daily_realized_pnl"`
	UnrealizedLoss   float64 `json:"unrealized_loss"`
	Authorized       int64   `json:"authorized"`
	Rejected         int64   `json:"rejected"`
	Limits           Config  `json:"limits"`
}

func (g *Gate) Status() Status {
	tripped, why := g.breaker.Tripped()
	g.inflightMu.Lock()
	inflight := len(g.inflight)
	inflightNotional, _ := g.inflightNotional.Float64()
	g.inflightMu.Unlock()
	return Status{
		Paused:           g.paused.Load(),
		BreakerTripped:   tripped,
		BreakerReason:    why,
		ActivePositions:  g.book.ActiveCount(),
		ActiveNotional:   g.book.ActiveNotional(),
		InFlightOrders:   inflight,
		InFlightNotional: inflightNotional,
		DailyRealized:    g.book.DailyRealizedPnL(),
		UnrealizedLoss:   g.book.UnrealizedLoss(),
		Authorized:       g.authorized.Load(),
		Rejected:         g.rejected.Load(),
		Limits:           g.cfg,
	}
}

func validOrder(order types.Order) error {
	switch {
	case order.MarketID == "":
		return reject(ReasonInvalidOrder, "missing market id")
	case !order.Direction.Valid():
		return reject(ReasonInvalidOrder, "invalid direction %q", order.Direction)
	case order.Size <= 0:
		return reject(ReasonInvalidOrder, "non-positive size %.4f", order.Size)
	case order.LimitPrice <= 0 || order.LimitPrice >= 1:
		return reject(ReasonInvalidOrder, "limit price %.4f outside (0,1)", order.LimitPrice)
	}
	return nil
}
