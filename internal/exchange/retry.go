package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryDelay is the pause between two attempts of the same call.
var RetryDelay = 500 * time.Millisecond

// Retry runs fn up to attempts times and returns the first success. After
// the last failure the error wraps both ErrAttemptsExhausted and the last
// error returned by fn. Context errors stop the loop immediately.
func Retry[T any](ctx context.Context, op string, attempts int, fn func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for i := 1; i <= attempts; i++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		slog.Warn("exchange call failed",
			"op", op,
			"attempt", i,
			"max_attempts", attempts,
			"error", err,
		)

		if i < attempts {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(RetryDelay):
			}
		}
	}
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrAttemptsExhausted, attempts, lastErr)
}
