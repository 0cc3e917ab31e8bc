package trigger

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsIDAndDefaults(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add(Trigger{Name: "spike", Enabled: true})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, ConditionAll, added.ConditionType)
	assert.False(t, added.CreatedAt.IsZero())
}

func TestAddRejectsInvalidDefinition(t *testing.T) {
	r := NewRegistry()

	_, err := r.Add(Trigger{})
	assert.Error(t, err)

	_, err = r.Add(Trigger{Name: "bad-op", Conditions: []Condition{{Field: "x", Operator: "gtt"}}})
	assert.Error(t, err)

	_, err = r.Add(Trigger{Name: "bad-cooldown", Cooldown: -1})
	assert.Error(t, err)
}

func TestUpdatePreservesCooldownState(t *testing.T) {
	r := NewRegistry()
	now := time.Now().UTC()
	r.nowFn = func() time.Time { return now }

	added, err := r.Add(Trigger{Name: "spike", Enabled: true, Cooldown: 300})
	require.NoError(t, err)
	require.True(t, r.TryFire(added.ID, "", now))

	added.Description = "edited"
	_, err = r.Update(added)
	require.NoError(t, err)

	// Editing must not reopen the running cooldown window.
	assert.False(t, r.TryFire(added.ID, "", now.Add(time.Minute)))
	assert.True(t, r.TryFire(added.ID, "", now.Add(301*time.Second)))
}

func TestUpdateDefaultsConditionType(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add(Trigger{Name: "spike", Enabled: true})
	require.NoError(t, err)
	require.Equal(t, ConditionAll, added.ConditionType)

	added.ConditionType = ""
	updated, err := r.Update(added)
	require.NoError(t, err)
	assert.Equal(t, ConditionAll, updated.ConditionType)

	stored, ok := r.Get(added.ID)
	require.True(t, ok)
	assert.Equal(t, ConditionAll, stored.ConditionType)
}

func TestUpdateUnknownID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Update(Trigger{ID: "nope", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTryFireCooldownSingleWinner(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add(Trigger{Name: "spike", Enabled: true, Cooldown: 60})
	require.NoError(t, err)

	at := time.Now().UTC()
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryFire(added.ID, "", at) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins.Load())
}

func TestTryFireMarketScopedCooldown(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add(Trigger{
		Name:      "scoped",
		Enabled:   true,
		Cooldown:  60,
		MarketIDs: []string{"mkt-1", "mkt-2"},
	})
	require.NoError(t, err)

	at := time.Now().UTC()
	assert.True(t, r.TryFire(added.ID, "mkt-1", at))
	// Independent scope: a different market is not suppressed.
	assert.True(t, r.TryFire(added.ID, "mkt-2", at))
	assert.False(t, r.TryFire(added.ID, "mkt-1", at.Add(30*time.Second)))
}

func TestTryFireDisabled(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add(Trigger{Name: "spike", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, r.SetEnabled(added.ID, false))
	assert.False(t, r.TryFire(added.ID, "", time.Now().UTC()))
}

func TestReplaceAllKeepsSurvivorCooldowns(t *testing.T) {
	r := NewRegistry()
	keep, err := r.Add(Trigger{Name: "keep", Enabled: true, Cooldown: 600})
	require.NoError(t, err)
	drop, err := r.Add(Trigger{Name: "drop", Enabled: true, Cooldown: 600})
	require.NoError(t, err)

	at := time.Now().UTC()
	require.True(t, r.TryFire(keep.ID, "", at))
	require.True(t, r.TryFire(drop.ID, "", at))

	require.NoError(t, r.ReplaceAll([]Trigger{keep}))

	assert.False(t, r.TryFire(keep.ID, "", at.Add(time.Minute)))
	_, ok := r.Get(drop.ID)
	assert.False(t, ok)
	_, ok = r.LastFired(drop.ID, "")
	assert.False(t, ok)
}

func TestCoolingDown(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add(Trigger{Name: "spike", Enabled: true, Cooldown: 60})
	require.NoError(t, err)

	at := time.Now().UTC()
	assert.False(t, r.CoolingDown(added.ID, "", at))
	require.True(t, r.TryFire(added.ID, "", at))
	assert.True(t, r.CoolingDown(added.ID, "", at.Add(59*time.Second)))
	assert.False(t, r.CoolingDown(added.ID, "", at.Add(61*time.Second)))
}
