package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/chatrelay/internal/observability"
	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/protocol/message"
)

// Phase describes controller lifecycle transitions.
type Phase string

const (
	PhaseStopped  Phase = "stopped"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

// Transport kinds reported in session info and metrics.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Controller owns the listener, registry and router, and every session worker.
type Controller struct {
	cfg      Config
	registry *Registry
	router   *Router

	mu         sync.Mutex
	phase      Phase
	ln         net.Listener
	acceptDone chan struct{}
	stopDone   chan struct{}

	running atomic.Bool
	sink    atomic.Pointer[LogSink]
	workers sync.WaitGroup

	connsMu sync.Mutex
	conns   map[frame.Transport]struct{}
}

func NewController(cfg Config) *Controller {
	cfg = cfg.WithDefaults()
	c := &Controller{
		cfg:      cfg,
		registry: NewRegistry(),
		phase:    PhaseStopped,
		conns:    make(map[frame.Transport]struct{}),
	}
	c.router = NewRouter(c.registry, cfg.NodeID, LogSink(c.line))
	return c
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) Router() *Router {
	return c.router
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Running reports the flag polled by the accept loop and session workers.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Addr returns the bound listener address, or "" when stopped.
func (c *Controller) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return ""
	}
	return c.ln.Addr().String()
}

// Sessions returns registered sessions in join order.
func (c *Controller) Sessions() []SessionInfo {
	entries := c.registry.Snapshot()
	out := make([]SessionInfo, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Session.Info())
	}
	return out
}

// Start binds bindAddr and runs the accept loop in the background. Bind failures
// are returned and leave the controller stopped. A nil sink logs through zerolog.
func (c *Controller) Start(bindAddr string, sink LogSink) error {
	addr := strings.TrimSpace(bindAddr)
	if addr == "" {
		addr = c.cfg.ListenAddr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseStopped {
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay: bind %q: %w", addr, err)
	}
	c.startLocked(ln, sink)
	return nil
}

// StartListener runs the controller on an existing listener.
func (c *Controller) StartListener(ln net.Listener, sink LogSink) error {
	if ln == nil {
		return errors.New("relay: nil listener")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseStopped {
		return ErrAlreadyRunning
	}
	c.startLocked(ln, sink)
	return nil
}

func (c *Controller) startLocked(ln net.Listener, sink LogSink) {
	if sink == nil {
		sink = DefaultSink()
	}
	c.sink.Store(&sink)
	c.ln = ln
	c.phase = PhaseRunning
	c.acceptDone = make(chan struct{})
	c.stopDone = make(chan struct{})
	c.running.Store(true)
	observability.SetActiveSessions(c.cfg.NodeID, 0)
	c.logf("relay.Controller.Start listening addr=%q node=%q", ln.Addr().String(), c.cfg.NodeID)
	go c.acceptLoop(ln, c.acceptDone)
}

// Run starts the controller, blocks until ctx is done, then stops it.
func (c *Controller) Run(ctx context.Context, bindAddr string, sink LogSink) error {
	if err := c.Start(bindAddr, sink); err != nil {
		return err
	}
	<-ctx.Done()
	c.Stop()
	return nil
}

// Stop shuts the relay down and returns once every worker has exited. It is safe
// from any goroutine; calls while stopped are no-ops and concurrent calls wait for
// the shutdown in progress.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.phase {
	case PhaseStopped:
		c.mu.Unlock()
		return
	case PhaseStopping:
		done := c.stopDone
		c.mu.Unlock()
		<-done
		return
	}
	c.phase = PhaseStopping
	c.running.Store(false)
	ln := c.ln
	acceptDone := c.acceptDone
	stopDone := c.stopDone
	c.mu.Unlock()

	_ = ln.Close()
	<-acceptDone

	entries := c.registry.Snapshot()
	c.notifyShutdown(entries)
	c.closeAllConns()
	c.workers.Wait()
	c.registry.Clear()
	observability.SetActiveSessions(c.cfg.NodeID, 0)
	c.logf("relay.Controller.Stop stopped sessions=%d", len(entries))

	c.mu.Lock()
	c.phase = PhaseStopped
	c.ln = nil
	c.mu.Unlock()
	close(stopDone)
}

func (c *Controller) notifyShutdown(entries []Entry) {
	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Send(message.ShutdownNotice()); err != nil {
				return
			}
			_ = s.sendRaw([]byte(message.ShutdownSentinel))
		}(entry.Session)
	}
	wg.Wait()
}

type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// acceptLoop polls Accept with a deadline so it observes Stop without relying on
// the listener close alone.
func (c *Controller) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)
	dl, canPoll := ln.(deadlineListener)
	for c.running.Load() {
		if canPoll {
			_ = dl.SetDeadline(time.Now().Add(c.cfg.AcceptPoll))
		}
		conn, err := ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !c.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logf("relay.acceptLoop accept err=%v", err)
			time.Sleep(c.cfg.AcceptPoll)
			continue
		}
		fc := frame.NewConn(conn, c.cfg.Limits)
		fc.SetWriteTimeout(c.cfg.WriteTimeout)
		if err := c.ServeTransport(fc, TransportTCP); err != nil {
			_ = fc.Close()
		}
	}
}

// ServeTransport runs the handshake and session worker for t on a tracked
// goroutine. kind labels the transport in session info and metrics.
func (c *Controller) ServeTransport(t frame.Transport, kind string) error {
	c.mu.Lock()
	if c.phase != PhaseRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.workers.Add(1)
	c.trackConn(t)
	c.mu.Unlock()

	c.logf("relay.session connected remote=%q transport=%s", t.RemoteAddr(), kind)
	go c.runSession(t, kind)
	return nil
}

func (c *Controller) trackConn(t frame.Transport) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	c.conns[t] = struct{}{}
}

func (c *Controller) untrackConn(t frame.Transport) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	delete(c.conns, t)
}

// closeAllConns closes every tracked transport, including ones still in handshake.
func (c *Controller) closeAllConns() {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	for t := range c.conns {
		_ = t.Close()
		delete(c.conns, t)
	}
}

func (c *Controller) line(s string) {
	if p := c.sink.Load(); p != nil && *p != nil {
		(*p)(s)
	}
}

func (c *Controller) logf(format string, args ...any) {
	LogSink(c.line).logf(format, args...)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
