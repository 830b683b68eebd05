// Package retry provides a bounded retry combinator for optimistic operations.
package retry

import (
	"context"
	"fmt"
	"time"
)

// ErrLimitExceeded is returned (wrapped) when every attempt failed.
type LimitExceededError struct {
	Attempts int
	Last     error
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *LimitExceededError) Unwrap() error {
	return e.Last
}

// WithLimit runs fn up to maxAttempts times, stopping at the first success.
// It returns a LimitExceededError wrapping the last failure when every
// attempt failed, or the context error if the context was cancelled between
// attempts. There is no backoff between attempts; callers that need one
// should use WithBackoff.
func WithLimit(ctx context.Context, maxAttempts int, fn func(context.Context) error) error {
	return WithBackoff(ctx, maxAttempts, 0, fn)
}

// WithBackoff is WithLimit with an exponential delay between attempts,
// starting at initial and doubling each round.
func WithBackoff(ctx context.Context, maxAttempts int, initial time.Duration, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	backoff := initial
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && backoff > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return &LimitExceededError{Attempts: maxAttempts, Last: lastErr}
}
