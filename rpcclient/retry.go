package rpcclient

import (
	"context"
	"errors"
	"time"
)

// CallWithRetry retries Call up to maxRetries times with exponential
// backoff (baseDelay, 2*baseDelay, 4*baseDelay, ...) when the call fails
// with a transport-level error (ErrClosed or a context deadline). Any other
// error, including a *codec.RemoteError (a failure the server itself
// reported), is returned at once without a retry.
func CallWithRetry[T any](ctx context.Context, c *Client, maxRetries int, baseDelay time.Duration, name string, args ...any) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		v, err := Call[T](ctx, c, name, args...)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return zero, err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(baseDelay * time.Duration(uint64(1)<<uint(attempt))):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
