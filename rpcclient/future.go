package rpcclient

import (
	"context"
	"sync"

	"rpccore/codec"
)

// Future is the one-shot completion slot for a single AsyncCall. Exactly
// one of deliver's (body, err) pairs is ever recorded; Wait blocks until
// that happens or ctx is done.
type Future struct {
	client *Client
	reqID  uint64

	mu   sync.Mutex
	done chan struct{}
	body []byte
	err  error
}

func newFuture(c *Client, reqID uint64) *Future {
	return &Future{client: c, reqID: reqID, done: make(chan struct{})}
}

func (f *Future) deliver(body []byte, err error) {
	f.mu.Lock()
	select {
	case <-f.done:
		// already delivered (or cancelled-and-reused is impossible: reqID
		// is never reissued), nothing to do.
	default:
		f.body = body
		f.err = err
		close(f.done)
	}
	f.mu.Unlock()
}

// Wait blocks until the reply for this call arrives or ctx is done. On a
// context cancellation or deadline, Wait removes the pending slot so a
// reply that arrives afterward is silently dropped instead of leaking.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		if f.err != nil {
			return nil, f.err
		}
		return &Result{raw: f.body}, nil
	case <-ctx.Done():
		f.client.cancelPending(f.reqID)
		return nil, ctx.Err()
	}
}

// Result is an undecoded, successfully-received reply: either (OK, value),
// (OK,), or (FAIL, message). Use Check to validate a void call or As[T] to
// decode a value.
type Result struct {
	raw []byte
}

// Check validates that the call succeeded, without decoding any value. It
// returns a *codec.RemoteError if the call failed server-side.
func (r *Result) Check() error {
	_, err := codec.DecodeReply(r.raw, nil)
	return err
}

// As decodes a successful reply's value as T. It returns a *codec.RemoteError
// if the call failed server-side, or a *codec.DecodeError if the reply's
// shape does not match T.
func As[T any](r *Result) (T, error) {
	var v T
	_, err := codec.DecodeReply(r.raw, &v)
	return v, err
}
