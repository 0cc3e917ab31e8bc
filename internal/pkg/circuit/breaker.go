package circuit

import (
	"sync"
	"time"

	"polyedge/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker is a circuit breaker with two ways to open:
//
//   - failure counting (RecordFailure past the threshold), recovering
//     after the timeout via a half-open probe, used for flaky IO
//   - an explicit Trip, which stays open until Reset or until the next
//     UTC trading day when dayScoped is set, used for the daily-loss limit
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	threshold     int
	timeout       time.Duration
	lastFailure   time.Time
	name          string
	tripped       bool
	tripReason    string
	trippedDay    string
	dayScoped     bool
	nowFn         func() time.Time
	onStateChange func(name string, from, to State)
}

func NewBreaker(name string, threshold int, timeout time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		state:     StateClosed,
		nowFn:     time.Now,
	}
}

// NewDailyBreaker returns a breaker whose explicit trips expire at the
// next UTC day boundary.
func NewDailyBreaker(name string) *Breaker {
	b := NewBreaker(name, 0, 0)
	b.dayScoped = true
	return b
}

func (b *Breaker) SetStateChangeHandler(handler func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = handler
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		if b.dayScoped && b.dayKey() != b.trippedDay {
			b.tripped = false
			b.tripReason = ""
			b.transition(StateClosed)
			return true
		}
		return false
	}

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.timeout > 0 && b.nowFn().Sub(b.lastFailure) > b.timeout {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Trip forces the breaker open until Reset (or the next UTC day for a
// day-scoped breaker).
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return
	}
	b.tripped = true
	b.tripReason = reason
	b.trippedDay = b.dayKey()
	b.transition(StateOpen)
}

// Reset clears an explicit trip and failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = false
	b.tripReason = ""
	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// Tripped returns the explicit trip state and its reason.
func (b *Breaker) Tripped() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped && b.dayScoped && b.dayKey() != b.trippedDay {
		return false, ""
	}
	return b.tripped, b.tripReason
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateClosed)
		b.failures = 0
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.nowFn()

	switch b.state {
	case StateClosed:
		if b.threshold > 0 && b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) dayKey() string {
	return b.nowFn().UTC().Format("2006-01-02")
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		go b.onStateChange(b.name, from, to)
	} else {
		logger.Warnf("Breaker %s state change: %s -> %s (failures=%d/%d reason=%q)",
			b.name, from, to, b.failures, b.threshold, b.tripReason)
	}
}
