package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// attempt runs fn up to 1+maxRetries times. Each attempt gets its own
// timeout; only transient external-service errors are retried, with a fixed
// delay between attempts.
func attempt(ctx context.Context, name string, maxRetries int, delay, timeout time.Duration, fn func(context.Context) error) (int, error) {
	maxAttempts := 1 + max(0, maxRetries)
	for n := 1; ; n++ {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := fn(actx)
		cancel()

		if err == nil || n >= maxAttempts || !retryable(err) || ctx.Err() != nil {
			return n, err
		}
		slog.Warn("retrying stage", "stage", name, "attempt", n, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return n, err
		case <-t.C:
		}
	}
}

func retryable(err error) bool {
	var ext *ExternalServiceError
	return errors.As(err, &ext) && ext.Transient()
}
