// Package rpcserver implements the RPC server: an accept loop that assigns
// each accepted connection a reactor from a pool, a per-connection
// read/write state machine (Conn), a connection registry with a reaping
// goroutine, and the
// middleware-wrapped router dispatch every accepted request goes through.
//
// Request pipeline: Accept → per-connection read loop → decode frame →
// dispatch on a reactor → middleware chain → router.Table.Route → enqueue
// reply → write loop → back to read loop.
package rpcserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"rpccore/internal/reactor"
	"rpccore/middleware"
	"rpccore/router"
)

const (
	defaultIdleTimeout  = 15 * time.Second
	defaultReapInterval = 10 * time.Second
)

// Option configures optional Server parameters.
type Option func(*Server)

// WithIdleTimeout overrides the per-connection idle timeout. Zero disables
// idle timeouts entirely.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// WithReapInterval overrides how often the reaper sweeps the connection
// registry for closed entries.
func WithReapInterval(d time.Duration) Option {
	return func(s *Server) { s.reapInterval = d }
}

// Server is the RPC server: it registers named procedures and serves them
// to many concurrent clients over a pool of reactors.
type Server struct {
	port         int
	router       *router.Table
	pool         *reactor.Pool
	registry     *Registry
	middlewares  []middleware.Middleware
	handler      middleware.HandlerFunc
	idleTimeout  time.Duration
	reapInterval time.Duration

	listener   net.Listener
	nextConnID atomic.Uint64

	wg         sync.WaitGroup // in-flight dispatched requests
	stopOnce   sync.Once
	stopCh     chan struct{}
	reaperDone chan struct{}
}

// NewServer creates a server bound to port, backed by a pool of poolSize
// reactors. Defaults: 15s idle timeout, 10s reap interval (both
// overridable via Option).
func NewServer(port, poolSize int, opts ...Option) *Server {
	s := &Server{
		port:         port,
		router:       router.NewTable(),
		pool:         reactor.New(poolSize),
		registry:     NewRegistry(),
		idleTimeout:  defaultIdleTimeout,
		reapInterval: defaultReapInterval,
		stopCh:       make(chan struct{}),
		reaperDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds name to fn, an ordinary typed function. See
// router.Table.Register for the supported signatures.
func (s *Server) Register(name string, fn any) error {
	return s.router.Register(name, fn)
}

// RegisterMethod binds name to methodName looked up on receiver.
func (s *Server) RegisterMethod(name, methodName string, receiver any) error {
	return s.router.RegisterMethod(name, methodName, receiver)
}

// Use appends a middleware to the dispatch chain. Middlewares registered
// before Run are applied in the order added. Run builds the chain once when
// it starts, so Use after Run has no effect on any request; Use is not safe
// to call concurrently with Run.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Registry exposes the connection registry, mainly for tests and metrics.
func (s *Server) Registry() *Registry { return s.registry }

// Run listens on ":<port>", installs SIGINT/SIGTERM/SIGQUIT handlers that
// call Stop, and blocks accepting connections until Stop is called (from a
// signal or another goroutine). It returns nil on a clean shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return err
	}
	s.listener = ln

	s.handler = middleware.Chain(s.middlewares...)(func(ctx context.Context, functionID uint32, payload []byte) []byte {
		return s.router.Route(functionID, payload)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-sigCh:
			s.Stop()
		case <-s.stopCh:
		}
	}()
	defer signal.Stop(sigCh)

	go s.reapLoop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				log.Printf("rpcserver: accept error: %v", err)
				continue
			}
		}

		id := s.nextConnID.Add(1)
		reactorID := s.pool.Next()
		c := newConn(id, conn, reactorID, s.pool, s.dispatch, s.idleTimeout)
		s.registry.Insert(c)
		c.start()
	}
}

// dispatch tracks the request against the shutdown wait group before
// handing it to the middleware chain, so Stop can drain in-flight work
// before tearing down the reactor pool.
func (s *Server) dispatch(ctx context.Context, functionID uint32, payload []byte) []byte {
	s.wg.Add(1)
	defer s.wg.Done()
	return s.handler(ctx, functionID, payload)
}

func (s *Server) reapLoop() {
	ticker := time.NewTicker(s.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.registry.Reap()
		case <-s.stopCh:
			s.registry.Reap()
			close(s.reaperDone)
			return
		}
	}
}

// Stop is idempotent: it stops accepting new connections, force-closes
// every live connection, waits for in-flight dispatches and the reaper to
// finish, and stops the reactor pool. Run returns once Stop has closed the
// listener.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.registry.CloseAll()
		s.wg.Wait()
		<-s.reaperDone
		s.pool.Stop()
	})
	return err
}
