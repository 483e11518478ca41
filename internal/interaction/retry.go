package interaction

import (
	"context"
	"time"
)

// RetryPolicy bounds a Retry loop.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Values
	// below one are treated as one.
	Attempts int
	// Backoff is slept between a transient failure and the next try.
	Backoff time.Duration
	// IsTransient decides whether a failure is retried. A nil predicate
	// retries nothing.
	IsTransient func(error) bool
}

// Retry resolves a fresh target and acts on it until act succeeds, a
// non-transient error occurs, or the attempts run out. Resolution happens
// inside every attempt so a replaced node is never reused. It returns the
// number of attempts made and the last error.
func Retry[T any](
	ctx context.Context,
	p RetryPolicy,
	resolve func(context.Context) (T, error),
	act func(context.Context, T) error,
) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}

		target, err := resolve(ctx)
		if err == nil {
			err = act(ctx, target)
		}
		if err == nil {
			return n, nil
		}
		lastErr = err

		if p.IsTransient == nil || !p.IsTransient(err) {
			return n, err
		}
		if n < attempts {
			if perr := Pause(ctx, p.Backoff); perr != nil {
				return n, perr
			}
		}
	}
	return attempts, lastErr
}
