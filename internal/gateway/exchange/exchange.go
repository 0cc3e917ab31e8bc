// Package exchange defines the order execution capability. Fills and
// cancel acks arrive asynchronously as futures resolved by the
// implementation.
package exchange

import (
	"context"
	"errors"
	"sync"

	"polyedge/internal/types"
)

var ErrUnknownOrder = errors.New("exchange: unknown order")

// FillReport is the terminal outcome of a submitted order.
type FillReport struct {
	OrderID string
	Status  types.OrderStatus // filled | rejected
	Price   float64
	Size    float64
	Reason  string
}

// CancelAck reports whether a cancel won against the fill.
type CancelAck struct {
	OrderID   string
	Cancelled bool
}

// Future resolves exactly once with a value or an error.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future; repeated calls are no-ops.
func (f *Future[T]) Resolve(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx expires.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done exposes the completion channel for select loops.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Exchange is implemented by the execution collaborator.
type Exchange interface {
	Name() string

	// SubmitOrder places the order; the returned future resolves with
	// the fill or rejection.
	SubmitOrder(ctx context.Context, order types.Order) (*Future[FillReport], error)

	// CancelOrder requests cancellation. The ack reports Cancelled=false
	// when the order already filled (a no-op, not an error).
	CancelOrder(ctx context.Context, orderID string) (*Future[CancelAck], error)

	// OrderStatus queries the durable state of an order; used by the
	// reconciliation pass after submission timeouts.
	OrderStatus(ctx context.Context, orderID string) (FillReport, error)
}
