package utils

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn until it succeeds or maxAttempts is reached, sleeping delay
// between attempts.
func Retry(fn func() error, maxAttempts int, delay time.Duration) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < maxAttempts-1 {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("failed to execute function after %d attempts: %w", maxAttempts, err)
}

// RetryWithBackoff is Retry with a doubling delay capped at maxDelay. It
// stops early when ctx is done.
func RetryWithBackoff(ctx context.Context, fn func() error, maxAttempts int, initialDelay, maxDelay time.Duration) error {
	delay := initialDelay
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("failed to execute function after %d attempts: %w", maxAttempts, err)
}
