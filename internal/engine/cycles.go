package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"polyedge/internal/gateway/exchange"
	"polyedge/internal/gateway/notifier"
	"polyedge/internal/ledger"
	"polyedge/internal/logger"
	"polyedge/internal/strategy"
	"polyedge/internal/types"
)

// RunStrategyCycle, RunMarkCycle, RunPortfolioCycle and RunReconcile
// are the scheduler entry points; each queues one actor envelope.
func (e *Engine) RunStrategyCycle()  { e.sendAsync(EvtRunStrategies, nil) }
func (e *Engine) RunMarkCycle()      { e.sendAsync(EvtMarkCycle, nil) }
func (e *Engine) RunPortfolioCycle() { e.sendAsync(EvtPortfolioCycle, nil) }
func (e *Engine) RunReconcile()      { e.sendAsync(EvtReconcile, nil) }

// handleMarkCycle refreshes prices for every market with exposure, then
// evaluates exits. Positions selected for exit are already in CLOSING
// state, so a position is closed at most once even across overlapping
// cycles.
func (e *Engine) handleMarkCycle(Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seen := make(map[string]struct{})
	for _, p := range e.book.Active() {
		key := p.MarketID + "|" + p.OutcomeID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		price, err := e.feed.CurrentPrice(ctx, p.MarketID, p.OutcomeID)
		if err != nil || price <= 0 {
			continue
		}
		e.book.MarkPrice(p.MarketID, p.OutcomeID, price)
	}

	exits := e.book.EvaluateExits(e.advisor(ctx))
	for _, req := range exits {
		go e.closeAsync(req)
	}
	return nil
}

// advisor lets each position's owning strategy vote on exits beyond the
// stop/take levels.
func (e *Engine) advisor(ctx context.Context) ledger.Advisor {
	return func(p types.Position) (bool, float64, string) {
		s, ok := e.byName[p.Strategy]
		if !ok {
			return false, 0, ""
		}
		adv := s.EvaluatePosition(ctx, p)
		switch adv.Action {
		case strategy.Close:
			return true, 0, adv.Reason
		case strategy.AdjustStop:
			return false, adv.NewStop, ""
		default:
			return false, 0, ""
		}
	}
}

// closeAsync submits the closing order off-loop and reports the outcome
// as a CLOSE_RESULT envelope.
func (e *Engine) closeAsync(req ledger.ExitRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubmitTimeout)
	defer cancel()

	p := req.Position
	order := types.Order{
		ID:         uuid.NewString(),
		MarketID:   p.MarketID,
		OutcomeID:  p.OutcomeID,
		Direction:  p.Direction.Opposite(),
		Size:       p.Size,
		LimitPrice: req.Price,
		Strategy:   p.Strategy,
		Status:     types.OrderSubmitted,
		Reason:     req.Reason,
		CreatedAt:  time.Now().UTC(),
	}
	e.persistOrder(order)

	res := CloseResultPayload{PositionID: p.ID, Reason: req.Reason, Price: req.Price}
	fut, err := e.exch.SubmitOrder(ctx, order)
	if err == nil {
		var fill exchange.FillReport
		fill, err = fut.Wait(ctx)
		if err == nil {
			if fill.Status != types.OrderFilled {
				err = fmt.Errorf("close order %s ended %s: %s", order.ID, fill.Status, fill.Reason)
			} else {
				res.Price = fill.Price
				now := time.Now().UTC()
				order.Status = types.OrderFilled
				order.ExecutedPrice = fill.Price
				order.ExecutedAt = &now
				e.persistOrder(order)
			}
		}
	}
	if err != nil {
		res.Error = err.Error()
	}

	raw, _ := json.Marshal(res)
	if sendErr := e.Send(Envelope{
		ID:        uuid.NewString(),
		Type:      EvtCloseResult,
		Payload:   raw,
		CreatedAt: time.Now(),
	}); sendErr != nil {
		logger.Warnf("engine: send close result failed: %v", sendErr)
	}
}

func (e *Engine) handleCloseResult(env Envelope) error {
	var res CloseResultPayload
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return &ValidationError{Field: "close_result", Msg: err.Error()}
	}

	if res.Error != "" {
		if err := e.book.RevertClose(res.PositionID); err != nil {
			return classify("close revert", err)
		}
		logger.Warnf("engine: close of %s failed, position reopened: %s", res.PositionID, res.Error)
		e.alert("Position close failed",
			fmt.Sprintf("position: %s", res.PositionID),
			fmt.Sprintf("reason: %s", res.Reason),
			fmt.Sprintf("error: %s", res.Error))
		return nil
	}

	p, err := e.book.CommitClose(res.PositionID, res.Price)
	if err != nil {
		return classify("close commit", err)
	}
	logger.Infof("engine: position %s closed reason=%s pnl=%.4f", p.ID, p.CloseReason, p.RealizedPnL)
	return nil
}

// ClosePosition is the operator close path exposed over the API.
func (e *Engine) ClosePosition(ctx context.Context, positionID, reason string) error {
	raw, _ := json.Marshal(ManualClosePayload{PositionID: positionID, Reason: reason})
	return e.SendSync(ctx, Envelope{
		ID:        uuid.NewString(),
		Type:      EvtManualClose,
		Payload:   raw,
		CreatedAt: time.Now(),
	})
}

func (e *Engine) handleManualClose(env Envelope) error {
	var req ManualClosePayload
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return &ValidationError{Field: "manual_close", Msg: err.Error()}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}
	p, ok := e.book.BeginClose(req.PositionID, req.Reason)
	if !ok {
		if _, exists := e.book.Get(req.PositionID); !exists {
			return &ValidationError{Field: "position_id", Msg: "unknown position"}
		}
		return &StateConflict{Entity: "position " + req.PositionID, Err: ledger.ErrStateConflict}
	}
	go e.closeAsync(ledger.ExitRequest{Position: p, Reason: req.Reason, Price: p.CurrentPrice})
	return nil
}

// handlePortfolioCycle reviews exposure and daily losses, alerting once
// when the breaker trips.
func (e *Engine) handlePortfolioCycle(Envelope) error {
	st := e.gate.Status()
	logger.Infof("engine: portfolio review positions=%d notional=%.2f daily_pnl=%.2f unrealized_loss=%.2f",
		st.ActivePositions, st.ActiveNotional, st.DailyRealized, st.UnrealizedLoss)

	if st.BreakerTripped {
		e.alert("Daily loss breaker tripped",
			fmt.Sprintf("daily realized: %.2f", st.DailyRealized),
			fmt.Sprintf("unrealized loss: %.2f", st.UnrealizedLoss),
			fmt.Sprintf("limit: %.2f", st.Limits.DailyLossLimit))
	}
	return nil
}

func (e *Engine) alert(title string, lines ...string) {
	if e.notify == nil {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:      "⚠️",
		Title:     title,
		Sections:  []notifier.MessageSection{{Lines: lines}},
		Timestamp: time.Now().UTC(),
	}
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("engine: alert delivery failed: %v", err)
	}
}
