package exchange

import (
	"context"
	"sync"
	"time"

	"polyedge/internal/logger"
	"polyedge/internal/types"
)

// Paper simulates execution: orders fill at their limit price after a
// configurable latency. Cancel races fill deterministically: whichever
// transition lands first in the order table wins, the loser is a no-op.
type Paper struct {
	Latency time.Duration

	mu     sync.Mutex
	orders map[string]*paperOrder
}

type paperOrder struct {
	order  types.Order
	status types.OrderStatus
	future *Future[FillReport]
}

func NewPaper(latency time.Duration) *Paper {
	return &Paper{
		Latency: latency,
		orders:  make(map[string]*paperOrder),
	}
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) SubmitOrder(ctx context.Context, order types.Order) (*Future[FillReport], error) {
	fut := NewFuture[FillReport]()
	po := &paperOrder{order: order, status: types.OrderSubmitted, future: fut}

	p.mu.Lock()
	p.orders[order.ID] = po
	p.mu.Unlock()

	go p.settle(ctx, order.ID)
	return fut, nil
}

func (p *Paper) settle(ctx context.Context, orderID string) {
	if p.Latency > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(p.Latency):
		}
	}

	p.mu.Lock()
	po, ok := p.orders[orderID]
	if !ok || po.status != types.OrderSubmitted {
		p.mu.Unlock()
		return
	}
	po.status = types.OrderFilled
	report := FillReport{
		OrderID: orderID,
		Status:  types.OrderFilled,
		Price:   po.order.LimitPrice,
		Size:    po.order.Size,
	}
	p.mu.Unlock()

	po.future.Resolve(report, nil)
	logger.Debugf("paper exchange: filled %s at %.4f", orderID, report.Price)
}

func (p *Paper) CancelOrder(_ context.Context, orderID string) (*Future[CancelAck], error) {
	fut := NewFuture[CancelAck]()

	p.mu.Lock()
	po, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		fut.Resolve(CancelAck{}, ErrUnknownOrder)
		return fut, nil
	}
	if po.status != types.OrderSubmitted {
		// Already filled (or cancelled); cancel loses, as a no-op.
		status := po.status
		p.mu.Unlock()
		fut.Resolve(CancelAck{OrderID: orderID, Cancelled: status == types.OrderCancelled}, nil)
		return fut, nil
	}
	po.status = types.OrderCancelled
	p.mu.Unlock()

	po.future.Resolve(FillReport{OrderID: orderID, Status: types.OrderCancelled, Reason: "cancelled"}, nil)
	fut.Resolve(CancelAck{OrderID: orderID, Cancelled: true}, nil)
	return fut, nil
}

func (p *Paper) OrderStatus(_ context.Context, orderID string) (FillReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[orderID]
	if !ok {
		return FillReport{}, ErrUnknownOrder
	}
	report := FillReport{OrderID: orderID, Status: po.status}
	if po.status == types.OrderFilled {
		report.Price = po.order.LimitPrice
		report.Size = po.order.Size
	}
	return report, nil
}
