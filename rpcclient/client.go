// Package rpcclient implements the client call multiplexer: one TCP
// connection shared by many concurrent callers, a monotonically increasing
// request id per call, a pending-reply map keyed by that id, and a
// background read loop that correlates replies back to their caller
// regardless of arrival order.
//
// Call flow:
//
//	AsyncCall("add", 1, 2)
//	  → assign request id, register a pending slot
//	  → enqueue [header, body] on the write queue
//	  → return a *Future immediately
//	readLoop (background):
//	  → read one frame
//	  → look up request id in the pending map
//	  → hand the frame's body to that slot's Future
package rpcclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"rpccore/codec"
	"rpccore/wire"
)

// ErrClosed is returned by AsyncCall, and by any Future still pending, once
// the connection has been closed or lost.
var ErrClosed = errors.New("rpcclient: connection closed")

// ErrUnexpectedHeartbeat is returned when the server sends a heartbeat
// frame (body_len 0). Only the server accepts heartbeats; receiving one is
// a protocol violation and the connection is torn down.
var ErrUnexpectedHeartbeat = errors.New("rpcclient: unexpected heartbeat from server")

type writeJob struct {
	header wire.Header
	body   []byte
}

// Client is a single-connection, multiplexed RPC client. It is safe for
// concurrent use by many goroutines issuing calls on the same connection.
type Client struct {
	addr string

	connMu sync.RWMutex
	conn   net.Conn

	nextReqID atomic.Uint64

	writeMu    sync.Mutex
	writeQueue []writeJob

	pendingMu sync.Mutex
	pending   map[uint64]*Future

	connected atomic.Bool
	closeOnce sync.Once
	readDone  chan struct{}
}

// NewClient creates an unconnected client for addr. Call Connect before
// issuing any calls.
func NewClient(addr string) *Client {
	return &Client{
		addr:     addr,
		pending:  make(map[uint64]*Future),
		readDone: make(chan struct{}),
	}
}

// Connect dials addr with the given timeout and starts the background read
// loop. It is not safe to call Connect more than once on the same Client.
func (c *Client) Connect(timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", c.addr, timeout)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	go c.readLoop()
	return nil
}

// HasConnected reports whether Connect has succeeded and the connection has
// not yet been observed lost.
func (c *Client) HasConnected() bool {
	return c.connected.Load()
}

// Close tears down the connection and fails every pending call with
// ErrClosed. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}
		err = conn.Close()
		<-c.readDone
	})
	return err
}

// AsyncCall encodes name and args as a call frame, assigns it a fresh
// request id, registers a pending slot for the reply, and enqueues the
// frame for writing. It returns immediately with a Future that resolves
// when the matching reply arrives (or the connection is lost).
func (c *Client) AsyncCall(name string, args ...any) (*Future, error) {
	if !c.connected.Load() {
		return nil, ErrClosed
	}

	payload, err := codec.EncodeTuple(args...)
	if err != nil {
		return nil, err
	}

	reqID := c.nextReqID.Add(1)
	future := newFuture(c, reqID)

	c.pendingMu.Lock()
	c.pending[reqID] = future
	c.pendingMu.Unlock()

	header := wire.Header{
		RequestID:  reqID,
		FunctionID: wire.NameHash(name),
		BodyLen:    uint32(len(payload)),
	}
	c.enqueueWrite(header, payload)
	return future, nil
}

// enqueueWrite appends a frame to the FIFO write queue, starting the writer
// goroutine only when the queue grows from empty to one — the same
// single-flight rule the server's per-connection writer uses, so concurrent
// AsyncCall callers never interleave writes on the shared socket.
func (c *Client) enqueueWrite(h wire.Header, body []byte) {
	c.writeMu.Lock()
	c.writeQueue = append(c.writeQueue, writeJob{header: h, body: body})
	shouldStart := len(c.writeQueue) == 1
	c.writeMu.Unlock()

	if shouldStart {
		go c.drainWrites()
	}
}

func (c *Client) drainWrites() {
	for {
		c.writeMu.Lock()
		if len(c.writeQueue) == 0 {
			c.writeMu.Unlock()
			return
		}
		job := c.writeQueue[0]
		c.writeMu.Unlock()

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if err := wire.WriteMessage(conn, job.header, job.body); err != nil {
			conn.Close()
		}

		c.writeMu.Lock()
		c.writeQueue = c.writeQueue[1:]
		empty := len(c.writeQueue) == 0
		c.writeMu.Unlock()
		if empty {
			return
		}
	}
}

// readLoop is the sole reader of the connection. It correlates each reply
// to its Future by request id and, on any transport error, fails every
// pending call rather than only the one it happened to be reading — the
// reference client only fails a single slot on disconnect, silently
// stranding the rest; this reimplementation always drains the whole map.
func (c *Client) readLoop() {
	defer close(c.readDone)

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	teardownErr := ErrClosed
	for {
		header, body, err := wire.ReadMessage(conn)
		if err != nil {
			break
		}
		if header.Heartbeat() {
			teardownErr = ErrUnexpectedHeartbeat
			conn.Close()
			break
		}

		c.pendingMu.Lock()
		future, ok := c.pending[header.RequestID]
		delete(c.pending, header.RequestID)
		c.pendingMu.Unlock()

		if ok {
			future.deliver(body, nil)
		}
	}
	c.teardown(teardownErr)
}

// teardown marks the client disconnected and fails every still-pending
// call with err. The reference client only fails the single slot it was
// reading when the connection dropped; this reimplementation drains the
// whole map so no caller blocks forever on a connection that is already
// gone.
func (c *Client) teardown(err error) {
	c.connected.Store(false)
	c.pendingMu.Lock()
	remaining := c.pending
	c.pending = make(map[uint64]*Future)
	c.pendingMu.Unlock()

	for _, f := range remaining {
		f.deliver(nil, err)
	}
}

func (c *Client) cancelPending(reqID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// Call is a generic convenience wrapper: it issues name(args...), waits for
// the reply (honoring ctx), and decodes a successful reply's value as T.
func Call[T any](ctx context.Context, c *Client, name string, args ...any) (T, error) {
	var zero T
	future, err := c.AsyncCall(name, args...)
	if err != nil {
		return zero, err
	}
	result, err := future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	return As[T](result)
}
