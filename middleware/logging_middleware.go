package middleware

import (
	"context"
	"log"
	"time"
)

// Logging records the procedure name, function id, and duration of every
// routed call; whether the call succeeded is not logged. name, when
// non-nil, resolves functionID to a diagnostic string (router.Table.Name);
// an unresolved id is logged as "unknown".
func Logging(name func(functionID uint32) (string, bool)) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, functionID uint32, payload []byte) []byte {
			start := time.Now()
			reply := next(ctx, functionID, payload)
			label := "unknown"
			if name != nil {
				if n, ok := name(functionID); ok {
					label = n
				}
			}
			log.Printf("rpc: %s (%#x) took %s", label, functionID, time.Since(start))
			return reply
		}
	}
}
