package util

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn until it succeeds, giving up after maxAttempts tries. The
// wait between tries starts at baseDelay and doubles each time. Cancelling
// ctx ends the wait early with the context error; the final failure comes
// back wrapped with the attempt count.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
