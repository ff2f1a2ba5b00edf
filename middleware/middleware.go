// Package middleware implements the onion-model chain wrapped around the
// server's router dispatch: logging, rate limiting, and per-call timeout,
// without modifying router.Table itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
package middleware

import "context"

// HandlerFunc dispatches one already-framed request (its function id and
// decoded-later payload) to a reply. It is the shape of router.Table.Route
// with a context threaded through for cancellation/timeout.
type HandlerFunc func(ctx context.Context, functionID uint32, payload []byte) []byte

// Middleware wraps a HandlerFunc to add behavior around it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed is the outermost
// layer: executed first on the way in, last on the way out.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
