package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedulerTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewIntervalScheduler(ctx, "test", 20*time.Millisecond, 0)

	var runs atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() { runs.Add(1) })
	}()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestIntervalSchedulerRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := NewIntervalScheduler(ctx, "test", time.Hour, 0)
	s.RunImmediately = true

	var runs atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() { runs.Add(1) })
	}()

	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, int64(1), runs.Load())
}

func TestIntervalSchedulerRejectsBadInput(t *testing.T) {
	// Both exit immediately instead of spinning.
	NewIntervalScheduler(context.Background(), "no-task", time.Second, 0).Start(nil)
	NewIntervalScheduler(context.Background(), "no-interval", 0, 0).Start(func() {})

	var s *IntervalScheduler
	s.Start(func() {}) // nil receiver is a no-op
}

func TestIntervalSchedulerSpacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewIntervalScheduler(ctx, "spacing", 50*time.Millisecond, 0)

	fired := make(chan time.Time, 8)
	go s.Start(func() {
		select {
		case fired <- time.Now():
		default:
		}
	})

	var stamps []time.Time
	for len(stamps) < 3 {
		select {
		case ts := <-fired:
			stamps = append(stamps, ts)
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler stalled")
		}
	}
	// Consecutive ticks are one interval apart, within scheduling slack.
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.Greater(t, gap, 25*time.Millisecond)
		assert.Less(t, gap, 200*time.Millisecond)
	}
}
