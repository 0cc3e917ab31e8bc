package gormstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyedge/internal/event"
	"polyedge/internal/trigger"
	"polyedge/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestEventRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ev := event.New(event.CategoryPrice, "clob-feed", event.SeverityHigh, "spike")
	ev.MarketID = "mkt-1"
	ev.Payload["change_pct"] = 5.5
	require.NoError(t, s.SaveEvent(ev))

	// The re-save after processing updates in place instead of duplicating.
	ev.Processed = true
	require.NoError(t, s.SaveEvent(ev))

	got, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev.ID, got[0].ID)
	assert.Equal(t, event.CategoryPrice, got[0].Category)
	assert.Equal(t, "mkt-1", got[0].MarketID)
	assert.True(t, got[0].Processed)
	assert.InDelta(t, 5.5, got[0].Payload["change_pct"].(float64), 1e-9)
}

func TestTriggerRoundTrip(t *testing.T) {
	s := newTestStore(t)

	tr := trigger.New("price spike")
	tr.Categories = []event.Category{event.CategoryPrice}
	tr.MinSeverity = event.SeverityMedium
	tr.Conditions = []trigger.Condition{{Field: "change_pct", Operator: trigger.OpGte, Value: 3.0}}
	tr.Actions = []trigger.Action{{Type: trigger.ActionNotify}}
	tr.Cooldown = 300
	tr.MarketIDs = []string{"mkt-1"}
	require.NoError(t, s.SaveTrigger(tr))

	got, err := s.ListTriggers()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tr.ID, got[0].ID)
	assert.Equal(t, "price spike", got[0].Name)
	assert.Equal(t, 300, got[0].Cooldown)
	assert.Equal(t, []string{"mkt-1"}, got[0].MarketIDs)
	require.Len(t, got[0].Conditions, 1)
	assert.Equal(t, trigger.OpGte, got[0].Conditions[0].Operator)
	require.Len(t, got[0].Actions, 1)
	assert.Equal(t, trigger.ActionNotify, got[0].Actions[0].Type)

	// Upsert by trigger id.
	tr.Enabled = false
	tr.Cooldown = 60
	require.NoError(t, s.SaveTrigger(tr))
	got, err = s.ListTriggers()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Enabled)
	assert.Equal(t, 60, got[0].Cooldown)

	require.NoError(t, s.DeleteTrigger(tr.ID))
	got, err = s.ListTriggers()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)

	order := types.Order{
		ID:         "ord-1",
		MarketID:   "mkt-1",
		OutcomeID:  "yes",
		Direction:  types.DirectionBuy,
		Size:       10,
		LimitPrice: 0.60,
		Strategy:   "event_driven",
		Status:     types.OrderSubmitted,
		StopLoss:   0.50,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveOrder(order))

	// Fill arrives; the same row moves to filled.
	now := time.Now().UTC().Truncate(time.Second)
	order.Status = types.OrderFilled
	order.ExecutedPrice = 0.60
	order.ExecutedAt = &now
	require.NoError(t, s.SaveOrder(order))

	got, err := s.RecentOrders(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.OrderFilled, got[0].Status)
	assert.InDelta(t, 0.60, got[0].ExecutedPrice, 1e-9)
	require.NotNil(t, got[0].ExecutedAt)
	assert.Equal(t, now.Unix(), got[0].ExecutedAt.Unix())
}

func TestPositionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p := types.Position{
		ID:         "pos-1",
		MarketID:   "mkt-1",
		OutcomeID:  "yes",
		Direction:  types.DirectionBuy,
		Size:       10,
		EntryPrice: 0.60,
		Strategy:   "event_driven",
		OrderID:    "ord-1",
		State:      types.PositionOpen,
		OpenedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SavePosition(p))

	active, err := s.ActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, types.PositionOpen, active[0].State)
	assert.InDelta(t, 0.60, active[0].EntryPrice, 1e-9)

	// Close it; the rehydration query no longer returns it.
	closedAt := time.Now().UTC().Truncate(time.Second)
	p.State = types.PositionClosed
	p.RealizedPnL = 1.5
	p.CloseReason = "take_profit"
	p.ClosedAt = &closedAt
	require.NoError(t, s.SavePosition(p))

	active, err = s.ActivePositions()
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.Positions(10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.PositionClosed, all[0].State)
	assert.Equal(t, "take_profit", all[0].CloseReason)
	assert.InDelta(t, 1.5, all[0].RealizedPnL, 1e-9)
}

func TestAppendAudit(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AppendAudit(nil))
	require.NoError(t, s.AppendAudit([]trigger.AuditRecord{
		{TriggerID: "trg-1", EventID: "evt-1", Matched: true, At: time.Now().UTC()},
		{TriggerID: "trg-1", EventID: "evt-2", Matched: false, Reason: "cooldown", At: time.Now().UTC()},
	}))
}
