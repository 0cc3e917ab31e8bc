// Package ledger is the authoritative record of open and closed
// positions. It is the only writer of position state; all consumers
// get copies.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"polyedge/internal/logger"
	"polyedge/internal/pkg/kmutex"
	"polyedge/internal/types"
)

var (
	// ErrDuplicateFill marks a retried fill notification for an order
	// that already produced a position.
	ErrDuplicateFill = errors.New("ledger: duplicate fill")
	// ErrStateConflict marks a close that lost the race for a position.
	ErrStateConflict = errors.New("ledger: state conflict")
	ErrNotFound      = errors.New("ledger: position not found")
)

// PositionSink persists position mutations. Failures are logged, not
// surfaced: durable state lags but in-memory truth stays consistent.
type PositionSink interface {
	SavePosition(p types.Position) error
}

// ExitRequest is a position the exit evaluation wants closed. The
// position is already in CLOSING state when returned.
type ExitRequest struct {
	Position types.Position
	Reason   string
	Price    float64
}

// Ledger tracks positions and daily realized PnL. Writers are
// serialized per market via the shared keyed mutex (the same instance
// the risk gate locks during authorization).
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
	byOrder   map[string]string

	markets *kmutex.KMutex
	sink    PositionSink

	realizedToday float64
	day           string

	nowFn func() time.Time
}

func New(markets *kmutex.KMutex) *Ledger {
	if markets == nil {
		markets = kmutex.New()
	}
	l := &Ledger{
		positions: make(map[string]*types.Position),
		byOrder:   make(map[string]string),
		markets:   markets,
		nowFn:     time.Now,
	}
	l.day = l.dayKey()
	return l
}

// SetSink attaches the persistence sink. Must be called before use.
func (l *Ledger) SetSink(sink PositionSink) { l.sink = sink }

// Markets exposes the keyed market mutex shared with the risk gate.
func (l *Ledger) Markets() *kmutex.KMutex { return l.markets }

// Open creates exactly one position per filled order. A retried fill
// notification for the same order id returns ErrDuplicateFill.
func (l *Ledger) Open(order types.Order) (types.Position, error) {
	if order.Status != types.OrderFilled {
		return types.Position{}, fmt.Errorf("ledger: order %s is %s, not filled", order.ID, order.Status)
	}
	if order.ExecutedPrice <= 0 || order.Size <= 0 {
		return types.Position{}, fmt.Errorf("ledger: order %s has invalid fill price=%v size=%v",
			order.ID, order.ExecutedPrice, order.Size)
	}

	unlock := l.markets.Lock(order.MarketID)
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byOrder[order.ID]; ok {
		return types.Position{}, ErrDuplicateFill
	}

	now := l.nowFn().UTC()
	p := &types.Position{
		ID:           uuid.NewString(),
		MarketID:     order.MarketID,
		OutcomeID:    order.OutcomeID,
		Direction:    order.Direction,
		Size:         order.Size,
		EntryPrice:   order.ExecutedPrice,
		CurrentPrice: order.ExecutedPrice,
		Strategy:     order.Strategy,
		StopLoss:     order.StopLoss,
		TakeProfit:   order.TakeProfit,
		OrderID:      order.ID,
		State:        types.PositionOpen,
		OpenedAt:     now,
	}
	l.positions[p.ID] = p
	l.byOrder[order.ID] = p.ID
	l.persist(*p)
	logger.Infof("ledger: opened position %s %s %s size=%.4f entry=%.4f",
		p.ID, p.Direction, p.MarketID, p.Size, p.EntryPrice)
	return *p, nil
}

// MarkPrice refreshes current price and unrealized PnL for every active
// position on the market/outcome.
func (l *Ledger) MarkPrice(marketID, outcomeID string, price float64) {
	if price <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.positions {
		if p.State == types.PositionClosed {
			continue
		}
		if p.MarketID != marketID || p.OutcomeID != outcomeID {
			continue
		}
		p.CurrentPrice = price
		p.UnrealizedPnL = pnl(p.EntryPrice, price, p.Size, p.Direction)
	}
}

// Advisor lets a strategy vote on exits beyond stop/take levels.
type Advisor func(p types.Position) (close bool, newStop float64, reason string)

// EvaluateExits returns every active position whose current price has
// crossed its stop-loss or take-profit, or that an advisor wants
// closed. Returned positions are atomically moved to CLOSING, so a
// position appears in at most one evaluation cycle.
func (l *Ledger) EvaluateExits(advisor Advisor) []ExitRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ExitRequest
	ids := make([]string, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := l.positions[id]
		if p.State != types.PositionOpen {
			continue
		}
		reason := ""
		switch {
		case stopHit(*p):
			reason = "stop_loss"
		case takeHit(*p):
			reason = "take_profit"
		default:
			if advisor != nil {
				shouldClose, newStop, advReason := advisor(*p)
				if shouldClose {
					reason = "strategy_exit"
					if advReason != "" {
						reason = advReason
					}
				} else if newStop > 0 {
					p.StopLoss = newStop
					l.persist(*p)
				}
			}
		}
		if reason == "" {
			continue
		}
		p.State = types.PositionClosing
		p.CloseReason = reason
		out = append(out, ExitRequest{Position: *p, Reason: reason, Price: p.CurrentPrice})
	}
	return out
}

// BeginClose moves OPEN -> CLOSING. Exactly one caller wins per
// position; losers get false.
func (l *Ledger) BeginClose(id, reason string) (types.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok || p.State != types.PositionOpen {
		return types.Position{}, false
	}
	p.State = types.PositionClosing
	p.CloseReason = reason
	return *p, true
}

// CommitClose finalizes CLOSING -> CLOSED at the given price and books
// realized PnL into the daily counter.
func (l *Ledger) CommitClose(id string, price float64) (types.Position, error) {
	unlockMarket := func() {}
	if p, ok := l.Get(id); ok {
		unlockMarket = l.markets.Lock(p.MarketID)
	}
	defer unlockMarket()

	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return types.Position{}, ErrNotFound
	}
	if p.State != types.PositionClosing {
		return types.Position{}, ErrStateConflict
	}
	if price > 0 {
		p.CurrentPrice = price
	}
	now := l.nowFn().UTC()
	p.UnrealizedPnL = pnl(p.EntryPrice, p.CurrentPrice, p.Size, p.Direction)
	p.RealizedPnL = p.UnrealizedPnL
	p.UnrealizedPnL = 0
	p.State = types.PositionClosed
	p.ClosedAt = &now

	l.rollDayLocked()
	l.realizedToday = decToFloat(decFromFloat(l.realizedToday).Add(decFromFloat(p.RealizedPnL)))
	l.persist(*p)
	logger.Infof("ledger: closed position %s reason=%s pnl=%.4f", p.ID, p.CloseReason, p.RealizedPnL)
	return *p, nil
}

// RevertClose returns a CLOSING position to OPEN after a failed close
// order.
func (l *Ledger) RevertClose(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return ErrNotFound
	}
	if p.State != types.PositionClosing {
		return ErrStateConflict
	}
	p.State = types.PositionOpen
	p.CloseReason = ""
	logger.Warnf("ledger: close of %s failed, reverted to open", id)
	return nil
}

// Close is the synchronous close path (manual close, paper fills):
// CAS to CLOSING then commit at the given price. Safe to race with
// EvaluateExits; the loser gets ErrStateConflict.
func (l *Ledger) Close(id, reason string, price float64) (types.Position, error) {
	if _, ok := l.BeginClose(id, reason); !ok {
		if _, exists := l.Get(id); !exists {
			return types.Position{}, ErrNotFound
		}
		return types.Position{}, ErrStateConflict
	}
	return l.CommitClose(id, price)
}

func (l *Ledger) Get(id string) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[id]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

// Active returns copies of all non-closed positions.
func (l *Ledger) Active() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.State != types.PositionClosed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// All returns every position, open and closed.
func (l *Ledger) All() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.positions {
		if p.State != types.PositionClosed {
			n++
		}
	}
	return n
}

// ActiveNotional sums entry-price exposure of active positions.
func (l *Ledger) ActiveNotional() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decFromFloat(0)
	for _, p := range l.positions {
		if p.State != types.PositionClosed {
			total = total.Add(decFromFloat(p.EntryPrice).Mul(decFromFloat(p.Size)))
		}
	}
	return decToFloat(total)
}

// ActiveOn returns active positions for one market/outcome.
func (l *Ledger) ActiveOn(marketID, outcomeID string) []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.Position
	for _, p := range l.positions {
		if p.State == types.PositionClosed {
			continue
		}
		if p.MarketID == marketID && (outcomeID == "" || p.OutcomeID == outcomeID) {
			out = append(out, *p)
		}
	}
	return out
}

// DailyRealizedPnL returns today's booked PnL (UTC day).
func (l *Ledger) DailyRealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()
	return l.realizedToday
}

// UnrealizedLoss sums currently negative unrealized PnL across active
// positions (returned as a non-negative magnitude).
func (l *Ledger) UnrealizedLoss() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decFromFloat(0)
	for _, p := range l.positions {
		if p.State == types.PositionClosed {
			continue
		}
		if p.UnrealizedPnL < 0 {
			total = total.Add(decFromFloat(-p.UnrealizedPnL))
		}
	}
	return decToFloat(total)
}

// Restore rehydrates a position from durable storage at startup. A
// position persisted mid-close is reverted to open: the outcome of
// that close order died with the process, and the next mark cycle
// re-evaluates the exit.
func (l *Ledger) Restore(p types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := p
	if cp.State == types.PositionClosing {
		cp.State = types.PositionOpen
		cp.CloseReason = ""
		logger.Warnf("ledger: restored %s was closing, reverted to open", cp.ID)
		l.persist(cp)
	}
	l.positions[cp.ID] = &cp
	if p.OrderID != "" {
		l.byOrder[p.OrderID] = p.ID
	}
}

func (l *Ledger) persist(p types.Position) {
	if l.sink == nil {
		return
	}
	if err := l.sink.SavePosition(p); err != nil {
		logger.Warnf("ledger: persist position %s failed: %v", p.ID, err)
	}
}

func (l *Ledger) rollDayLocked() {
	if day := l.dayKey(); day != l.day {
		l.day = day
		l.realizedToday = 0
	}
}

func (l *Ledger) dayKey() string {
	return l.nowFn().UTC().Format("2006-01-02")
}
