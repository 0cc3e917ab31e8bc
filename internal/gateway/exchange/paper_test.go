package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyedge/internal/types"
)

func testOrder(id string) types.Order {
	return types.Order{
		ID:         id,
		MarketID:   "mkt-1",
		OutcomeID:  "yes",
		Direction:  types.DirectionBuy,
		Size:       10,
		LimitPrice: 0.55,
		Status:     types.OrderPending,
	}
}

func TestPaperFillsAtLimitPrice(t *testing.T) {
	p := NewPaper(5 * time.Millisecond)

	fut, err := p.SubmitOrder(context.Background(), testOrder("ord-1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, report.Status)
	assert.Equal(t, "ord-1", report.OrderID)
	assert.InDelta(t, 0.55, report.Price, 1e-9)
	assert.InDelta(t, 10, report.Size, 1e-9)
}

func TestPaperOrderStatus(t *testing.T) {
	p := NewPaper(0)

	fut, err := p.SubmitOrder(context.Background(), testOrder("ord-1"))
	require.NoError(t, err)
	_, err = fut.Wait(context.Background())
	require.NoError(t, err)

	report, err := p.OrderStatus(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, report.Status)
	assert.InDelta(t, 0.55, report.Price, 1e-9)

	_, err = p.OrderStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestPaperCancelBeatsFill(t *testing.T) {
	p := NewPaper(time.Hour) // fill never lands during the test

	fillFut, err := p.SubmitOrder(context.Background(), testOrder("ord-1"))
	require.NoError(t, err)

	ackFut, err := p.CancelOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	ack, err := ackFut.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, ack.Cancelled)

	// The pending fill future resolves as cancelled, not filled.
	report, err := fillFut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OrderCancelled, report.Status)

	status, err := p.OrderStatus(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderCancelled, status.Status)
}

func TestPaperCancelAfterFillIsNoOp(t *testing.T) {
	p := NewPaper(0)

	fillFut, err := p.SubmitOrder(context.Background(), testOrder("ord-1"))
	require.NoError(t, err)
	report, err := fillFut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.OrderFilled, report.Status)

	ackFut, err := p.CancelOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	ack, err := ackFut.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, ack.Cancelled)
}

func TestPaperCancelUnknownOrder(t *testing.T) {
	p := NewPaper(0)
	ackFut, err := p.CancelOrder(context.Background(), "ghost")
	require.NoError(t, err)
	_, err = ackFut.Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestFutureResolvesOnce(t *testing.T) {
	fut := NewFuture[int]()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			fut.Resolve(v, nil)
		}(i)
	}
	wg.Wait()

	first, err := fut.Wait(context.Background())
	require.NoError(t, err)
	again, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestFutureWaitHonorsContext(t *testing.T) {
	fut := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := fut.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
