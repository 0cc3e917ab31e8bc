// Package backoff implements bounded exponential retry for transient
// IO failures. Non-retryable errors stop the loop immediately.
package backoff

import (
	"context"
	"time"
)

type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

func Default() Policy {
	return Policy{
		Initial:     250 * time.Millisecond,
		Max:         5 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 4,
	}
}

// Retry runs fn until it succeeds, reports a non-retryable error, the
// attempt cap is reached, or ctx is done. The last error is returned.
func (p Policy) Retry(ctx context.Context, fn func() error, retryable func(error) bool) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	delay := p.Initial
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}
	return lastErr
}
