package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"rpccore/codec"
)

// RateLimit enforces a token-bucket limit of r calls/sec, burst tokens,
// across all routed calls on the server. The limiter is created once, in
// the outer closure, and shared by every request — creating it per-call
// would hand every request a fresh full bucket and defeat the limit
// entirely.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, functionID uint32, payload []byte) []byte {
			if !limiter.Allow() {
				reply, _ := codec.EncodeFail("rate limit exceeded")
				return reply
			}
			return next(ctx, functionID, payload)
		}
	}
}
