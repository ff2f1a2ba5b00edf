package middleware

import (
	"context"
	"time"

	"rpccore/codec"
)

// Timeout bounds how long a routed call is allowed to run. If next doesn't
// complete within d, Timeout returns a FAIL reply immediately; the
// underlying handler goroutine is not cancelled and keeps running in the
// background (true cancellation requires the handler to observe ctx.Done
// itself).
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, functionID uint32, payload []byte) []byte {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan []byte, 1)
			go func() {
				done <- next(ctx, functionID, payload)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				reply, _ := codec.EncodeFail("request timed out")
				return reply
			}
		}
	}
}
