package fetcher

import (
	"context"
	"time"
)

// RetryObserver is told about every retry the fetcher schedules.
type RetryObserver interface {
	ObserveRetry(rawURL string, attempt int, err error)
}

type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
}

// allow reports whether attempt (1-based count of retries so far) may run
// after err.
func (p retryPolicy) allow(attempt int, err error) bool {
	return attempt <= p.maxRetries && IsTransient(err)
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := p.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if p.max > 0 && delay > p.max {
		delay = p.max
	}
	return delay
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
