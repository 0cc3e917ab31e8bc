package event

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	ev := New(CategoryPrice, "clob-feed", SeverityMedium, "price moved")
	require.NoError(t, ev.Validate())

	assert.ErrorIs(t, Event{Category: CategoryPrice, Source: "s"}.Validate(), ErrMissingID)
	assert.ErrorIs(t, Event{ID: "x", Source: "s"}.Validate(), ErrMissingCategory)
	assert.ErrorIs(t, Event{ID: "x", Category: CategoryPrice}.Validate(), ErrMissingSource)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityHigh))
	assert.Equal(t, 0, SeverityInfo.Rank())
	assert.Equal(t, 4, SeverityCritical.Rank())
}

func TestDedupObserve(t *testing.T) {
	d := NewDedupIndex(10)
	assert.False(t, d.Observe("a"))
	assert.True(t, d.Observe("a"))
	assert.Equal(t, 1, d.Len())
}

func TestDedupEvictsFIFO(t *testing.T) {
	d := NewDedupIndex(3)
	for _, id := range []string{"a", "b", "c"} {
		require.False(t, d.Observe(id))
	}
	// "d" evicts "a", the oldest entry.
	require.False(t, d.Observe("d"))
	assert.Equal(t, 3, d.Len())
	assert.False(t, d.Observe("a"))
	assert.True(t, d.Observe("c"))
}

func TestDedupForget(t *testing.T) {
	d := NewDedupIndex(3)
	require.False(t, d.Observe("a"))
	require.False(t, d.Observe("b"))

	d.Forget("a")
	assert.Equal(t, 1, d.Len())
	assert.False(t, d.Observe("a"))
	assert.True(t, d.Observe("a"))

	// Forgetting an unknown id is a no-op.
	d.Forget("zzz")
	assert.Equal(t, 2, d.Len())
}

func TestDedupConcurrentSameID(t *testing.T) {
	d := NewDedupIndex(100)
	var firsts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Observe("same") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), firsts.Load())
}

func ringEvent(id string, cat Category, sev Severity, marketID string, ts time.Time) Event {
	return Event{
		ID:        id,
		Timestamp: ts,
		Category:  cat,
		Source:    "test",
		Severity:  sev,
		MarketID:  marketID,
	}
}

func TestRingDropsOldest(t *testing.T) {
	r := NewRing(3)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		r.Add(ringEvent(fmt.Sprintf("evt-%d", i), CategoryPrice, SeverityLow, "mkt-1", base.Add(time.Duration(i)*time.Second)))
	}
	require.Equal(t, 3, r.Len())

	got := r.Query(Filter{})
	require.Len(t, got, 3)
	// Newest first, oldest two dropped.
	assert.Equal(t, "evt-4", got[0].ID)
	assert.Equal(t, "evt-2", got[2].ID)
}

func TestRingQueryFilters(t *testing.T) {
	r := NewRing(100)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.Add(ringEvent("a", CategoryPrice, SeverityLow, "mkt-1", base))
	r.Add(ringEvent("b", CategoryVolume, SeverityHigh, "mkt-1", base.Add(time.Minute)))
	r.Add(ringEvent("c", CategoryPrice, SeverityCritical, "mkt-2", base.Add(2*time.Minute)))

	byCategory := r.Query(Filter{Category: CategoryPrice})
	require.Len(t, byCategory, 2)
	assert.Equal(t, "c", byCategory[0].ID)

	bySeverity := r.Query(Filter{MinSeverity: SeverityHigh})
	require.Len(t, bySeverity, 2)

	byMarket := r.Query(Filter{MarketID: "mkt-2"})
	require.Len(t, byMarket, 1)
	assert.Equal(t, "c", byMarket[0].ID)

	since := r.Query(Filter{Since: base.Add(30 * time.Second)})
	require.Len(t, since, 2)

	until := r.Query(Filter{Until: base.Add(30 * time.Second)})
	require.Len(t, until, 1)
	assert.Equal(t, "a", until[0].ID)

	limited := r.Query(Filter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}
