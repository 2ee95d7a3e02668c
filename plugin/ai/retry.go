package ai

import (
	"context"
	"errors"
	"math"
	"time"
)

// doWithRetry runs fn up to maxAttempts times with exponential backoff.
// The first retry waits baseDelay, then doubles on each further attempt.
// Context cancellation aborts both the wait and the retry loop.
func doWithRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
