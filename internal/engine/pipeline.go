package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"polyedge/internal/gateway/exchange"
	"polyedge/internal/logger"
	"polyedge/internal/risk"
	"polyedge/internal/strategy"
	"polyedge/internal/types"
)

// handleRunStrategies polls every strategy once and pushes its
// proposals through the risk gate.
func (e *Engine) handleRunStrategies(Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, s := range e.strategies {
		orders, err := s.GenerateSignals(ctx, e.feed)
		if err != nil {
			logger.Warnf("engine: strategy %s signal generation failed: %v", s.Name(), err)
			continue
		}
		for _, order := range orders {
			e.processOrder(ctx, s, order)
		}
	}
	return nil
}

// processOrder takes a proposal through authorization and async
// submission. Rejected orders are recorded with their reason code.
func (e *Engine) processOrder(ctx context.Context, s strategy.Strategy, order types.Order) {
	order.ID = uuid.NewString()
	order.Strategy = s.Name()
	order.Status = types.OrderPending
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	e.gate.ApplyProtectiveLevels(&order)

	if err := e.gate.Authorize(ctx, order); err != nil {
		order.Status = types.OrderRejected
		if rej, ok := risk.AsRejection(err); ok {
			order.Reason = string(rej.Code)
		} else {
			order.Reason = err.Error()
		}
		e.rejected.Add(1)
		e.counters(s).Rejected.Add(1)
		e.persistOrder(order)
		return
	}

	order.Status = types.OrderSubmitted
	e.counters(s).Accepted.Add(1)
	e.persistOrder(order)
	e.trackPending(order)

	go e.submitAsync(order)
}

// submitAsync runs off the actor loop; the outcome re-enters the loop
// as an ORDER_RESULT envelope so all state changes stay serialized.
func (e *Engine) submitAsync(order types.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubmitTimeout)
	defer cancel()

	res := OrderResultPayload{Order: order}
	fut, err := e.exch.SubmitOrder(ctx, order)
	if err == nil {
		res.Fill, err = fut.Wait(ctx)
	}
	if err != nil {
		res.Error = err.Error()
	}

	raw, _ := json.Marshal(res)
	if err := e.Send(Envelope{
		ID:        uuid.NewString(),
		Type:      EvtOrderResult,
		Payload:   raw,
		CreatedAt: time.Now(),
	}); err != nil {
		logger.Warnf("engine: send order result failed: %v", err)
	}
}

func (e *Engine) handleOrderResult(env Envelope) error {
	var res OrderResultPayload
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return &ValidationError{Field: "order_result", Msg: err.Error()}
	}
	order := res.Order

	if res.Error != "" {
		// Outcome unknown (timeout or transport failure). The order stays
		// tracked and the reconciliation pass settles it.
		logger.Warnf("engine: submission of %s unresolved: %s", order.ID, res.Error)
		return nil
	}
	e.untrackPending(order.ID)
	return e.applyFill(order, res.Fill)
}

func (e *Engine) applyFill(order types.Order, fill exchange.FillReport) error {
	switch fill.Status {
	case types.OrderFilled:
		now := time.Now().UTC()
		order.Status = types.OrderFilled
		order.ExecutedPrice = fill.Price
		order.ExecutedAt = &now
		if fill.Size > 0 {
			order.Size = fill.Size
		}
		e.persistOrder(order)

		_, err := e.book.Open(order)
		e.gate.Release(order.ID)
		if err != nil {
			err = classify("position open", err)
			if _, ok := err.(*DuplicateOperation); ok {
				logger.Debugf("engine: fill for %s already applied", order.ID)
				return nil
			}
			return err
		}
		return nil

	case types.OrderRejected:
		order.Status = types.OrderRejected
		order.Reason = fill.Reason
		e.persistOrder(order)
		e.gate.Release(order.ID)
		logger.Infof("engine: order %s rejected by exchange: %s", order.ID, fill.Reason)
		return nil

	case types.OrderCancelled:
		order.Status = types.OrderCancelled
		e.persistOrder(order)
		e.gate.Release(order.ID)
		return nil

	default:
		return &ValidationError{Field: "fill.status", Msg: fmt.Sprintf("unexpected status %q", fill.Status)}
	}
}

// CancelOrder requests cancellation of an in-flight order. The ack
// reports whether the cancel won against the fill.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	fut, err := e.exch.CancelOrder(ctx, orderID)
	if err != nil {
		return false, classify("order cancel", err)
	}
	ack, err := fut.Wait(ctx)
	if err != nil {
		return false, classify("order cancel", err)
	}
	if ack.Cancelled {
		e.pendingMu.Lock()
		order, tracked := e.pending[orderID]
		delete(e.pending, orderID)
		e.pendingMu.Unlock()
		e.gate.Release(orderID)
		if tracked {
			order.Status = types.OrderCancelled
			e.persistOrder(order)
		}
	}
	return ack.Cancelled, nil
}

// handleReconcile settles orders whose submission outcome was lost to a
// timeout, using the exchange's durable order state.
func (e *Engine) handleReconcile(Envelope) error {
	e.pendingMu.Lock()
	stale := make([]types.Order, 0, len(e.pending))
	cutoff := time.Now().Add(-e.cfg.SubmitTimeout)
	for _, o := range e.pending {
		if o.CreatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	e.pendingMu.Unlock()

	for _, order := range stale {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		fill, err := e.exch.OrderStatus(ctx, order.ID)
		cancel()
		if err != nil {
			logger.Warnf("engine: reconcile of %s failed: %v", order.ID, err)
			continue
		}
		if !fill.Status.Terminal() {
			continue
		}
		e.untrackPending(order.ID)
		if err := e.applyFill(order, fill); err != nil {
			logger.Errorf("engine: reconcile apply for %s failed: %v", order.ID, err)
		} else {
			logger.Infof("engine: reconciled order %s as %s", order.ID, fill.Status)
		}
	}
	return nil
}

func (e *Engine) trackPending(order types.Order) {
	e.pendingMu.Lock()
	e.pending[order.ID] = order
	e.pendingMu.Unlock()
}

func (e *Engine) untrackPending(orderID string) {
	e.pendingMu.Lock()
	delete(e.pending, orderID)
	e.pendingMu.Unlock()
}

func (e *Engine) persistOrder(order types.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(order); err != nil {
		logger.Warnf("engine: persist order %s failed: %v", order.ID, err)
	}
}

func (e *Engine) counters(s strategy.Strategy) *strategy.Metrics {
	if c, ok := s.(interface{ Counters() *strategy.Metrics }); ok {
		return c.Counters()
	}
	return &strategy.Metrics{}
}
