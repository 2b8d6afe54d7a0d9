package retryx

import (
	"context"
	"time"
)

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
)

// Policy controls how Do retries. Zero values fall back to the defaults of
// 3 attempts starting at 200ms, doubling each time. Retryable decides whether
// an error is worth another attempt; nil retries everything.
type Policy struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
}

// Do runs fn up to p.Attempts times, sleeping between attempts. It returns
// nil on the first success, the last error once attempts are exhausted, or
// the context error if ctx is done while waiting.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	delay := p.Delay
	if delay <= 0 {
		delay = defaultDelay
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
