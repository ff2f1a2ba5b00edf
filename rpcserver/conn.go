package rpcserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"rpccore/internal/reactor"
	"rpccore/internal/rpclog"
	"rpccore/middleware"
	"rpccore/wire"
)

type writeJob struct {
	header wire.Header
	body   []byte
}

// Conn is the per-socket read/write state machine: a single goroutine
// reads frames sequentially (at most one read in flight), decoded
// requests are dispatched onto a reactor for routing, and replies are
// drained from a FIFO write queue by at most one writer goroutine at a
// time. The writer is started only when enqueuing grows the queue from
// empty to one, so it is never started reentrantly.
//
// Conn is jointly owned by the connection registry and by every
// outstanding goroutine touching it (the reader, the writer, any
// in-flight dispatch); it is only ever torn down explicitly via close,
// which is idempotent.
type Conn struct {
	id          uint64
	conn        net.Conn
	reactorID   int
	pool        *reactor.Pool
	handler     middleware.HandlerFunc
	idleTimeout time.Duration

	writeMu    sync.Mutex
	writeQueue []writeJob

	log       rpclog.Logger
	closed    atomic.Bool
	closeOnce sync.Once
}

func newConn(id uint64, conn net.Conn, reactorID int, pool *reactor.Pool, handler middleware.HandlerFunc, idleTimeout time.Duration) *Conn {
	return &Conn{
		id:          id,
		conn:        conn,
		reactorID:   reactorID,
		pool:        pool,
		handler:     handler,
		idleTimeout: idleTimeout,
		log:         rpclog.ForConn(id),
	}
}

// ID returns the connection id assigned by the acceptor.
func (c *Conn) ID() uint64 { return c.id }

// Closed reports whether the connection has already been torn down; the
// reaper uses this to decide which registry entries to erase.
func (c *Conn) Closed() bool { return c.closed.Load() }

// start launches the read loop. It returns immediately; the read loop
// itself holds the connection alive until the socket closes.
func (c *Conn) start() {
	go c.readLoop()
}

func (c *Conn) armIdleDeadline() {
	if c.idleTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
}

func (c *Conn) disarmIdleDeadline() {
	if c.idleTimeout > 0 {
		c.conn.SetReadDeadline(time.Time{})
	}
}

// readLoop is the READ_HEAD/READ_BODY half of the state machine. The idle
// timer is modeled as a read deadline armed on every entry to READ_HEAD
// and cleared once a header is in hand; a heartbeat (body_len 0) loops
// back to READ_HEAD, implicitly re-arming the deadline.
func (c *Conn) readLoop() {
	for {
		c.armIdleDeadline()
		header, err := wire.ReadHeader(c.conn)
		if err != nil {
			c.close()
			return
		}
		c.disarmIdleDeadline()

		if header.Heartbeat() {
			continue
		}

		body := make([]byte, header.BodyLen)
		if _, err := io.ReadFull(c.conn, body); err != nil {
			c.close()
			return
		}

		h := header
		c.pool.Go(c.reactorID, func() {
			reply := c.handler(context.Background(), h.FunctionID, body)
			c.enqueueWrite(wire.Header{
				RequestID:  h.RequestID,
				FunctionID: h.FunctionID,
				BodyLen:    uint32(len(reply)),
			}, reply)
		})
	}
}

// enqueueWrite appends a reply to the FIFO write queue. Growing the queue
// from empty to one starts the writer; any other enqueue just waits for
// the running writer to reach it, preventing a reentrant write.
func (c *Conn) enqueueWrite(h wire.Header, body []byte) {
	c.writeMu.Lock()
	c.writeQueue = append(c.writeQueue, writeJob{header: h, body: body})
	shouldStart := len(c.writeQueue) == 1
	c.writeMu.Unlock()

	if shouldStart {
		go c.drainWrites()
	}
}

// drainWrites issues a scatter write of [header, body] for the queue head,
// then pops it and moves on to the next element, until the queue is
// empty. A write error closes the connection, matching every other
// terminal transition in the state machine.
func (c *Conn) drainWrites() {
	for {
		c.writeMu.Lock()
		if len(c.writeQueue) == 0 {
			c.writeMu.Unlock()
			return
		}
		job := c.writeQueue[0]
		c.writeMu.Unlock()

		if err := wire.WriteMessage(c.conn, job.header, job.body); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.log.Printf("write error: %v", err)
			}
			c.close()
			return
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

// close performs a half-close followed by a full close, exactly once.
// Further calls return immediately.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			tcp.CloseWrite()
		}
		c.conn.Close()
	})
}
