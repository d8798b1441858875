package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// retry calls fn until it succeeds, at most attempts times, without any delay
// between the calls. A done context ends the loop before the next attempt.
func retry[T any](ctx context.Context, attempts int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts = max(attempts, 1)
	errs := make([]error, 0, attempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		slog.DebugContext(ctx, "attempt failed", "attempt", attempt, "attempts", attempts, "error", err)
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
	}
	return zero, errors.Join(errs...)
}
