package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/chatrelay/internal/client"
	"github.com/danmuck/chatrelay/internal/protocol/frame"
)

// fakeTransport records sent frames and serves pushed frames until closed.
type fakeTransport struct {
	remote string

	mu       sync.Mutex
	sent     []string
	sendErr  error
	closed   bool
	closedCh chan struct{}
	inbox    chan []byte
}

func newFakeTransport(remote string) *fakeTransport {
	return &fakeTransport{remote: remote, closedCh: make(chan struct{}), inbox: make(chan []byte, 8)}
}

// push queues one inbound frame for RecvFrame.
func (f *fakeTransport) push(payload string) {
	f.inbox <- []byte(payload)
}

func (f *fakeTransport) SendFrame(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return frame.ErrClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, string(payload))
	return nil
}

func (f *fakeTransport) RecvFrame(timeout time.Duration) ([]byte, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case payload := <-f.inbox:
		return payload, nil
	case <-f.closedCh:
		return nil, frame.ErrClosed
	case <-timer:
		return nil, frame.ErrTimeout
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeTransport) RemoteAddr() string {
	return f.remote
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

var errBrokenPipe = errors.New("broken pipe")

// lineSink collects LogSink output.
type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) contains(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NodeID = "relay.test"
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.PollInterval = 20 * time.Millisecond
	cfg.AcceptPoll = 20 * time.Millisecond
	cfg.WriteTimeout = time.Second
	return cfg
}

func startRelay(t *testing.T) (*Controller, *lineSink) {
	t.Helper()
	ctrl := NewController(testConfig())
	sink := &lineSink{}
	if err := ctrl.Start("127.0.0.1:0", sink.add); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	t.Cleanup(ctrl.Stop)
	return ctrl, sink
}

func clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func dialAs(t *testing.T, addr, name string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr, name, clientConfig())
	if err != nil {
		t.Fatalf("dial %s: %v", name, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// joinAll connects names in order and drains the join notices each earlier
// client receives, leaving every client with an empty inbound stream.
func joinAll(t *testing.T, addr string, names ...string) map[string]*client.Client {
	t.Helper()
	out := make(map[string]*client.Client, len(names))
	joined := make([]string, 0, len(names))
	for _, name := range names {
		c := dialAs(t, addr, name)
		for _, prev := range joined {
			expectLine(t, out[prev], "[SYSTEM]: "+name+" joined the chat")
		}
		out[name] = c
		joined = append(joined, name)
	}
	return out
}

func expectLine(t *testing.T, c *client.Client, want string) {
	t.Helper()
	got, err := c.ReceiveWithin(2 * time.Second)
	if err != nil {
		t.Fatalf("%s: expected %q, got err=%v", c.Name(), want, err)
	}
	if got != want {
		t.Fatalf("%s: unexpected line: got=%q want=%q", c.Name(), got, want)
	}
}

func expectSilence(t *testing.T, c *client.Client, d time.Duration) {
	t.Helper()
	got, err := c.ReceiveWithin(d)
	if err == nil {
		t.Fatalf("%s: expected nothing, got %q", c.Name(), got)
	}
	if !errors.Is(err, frame.ErrTimeout) {
		t.Fatalf("%s: expected timeout, got %v", c.Name(), err)
	}
}

func expectEOF(t *testing.T, c *client.Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := c.ReceiveWithin(200 * time.Millisecond)
		if errors.Is(err, io.EOF) {
			return
		}
	}
	t.Fatalf("%s: expected io.EOF", c.Name())
}

// rawJoin performs the handshake on a bare TCP connection so tests can drop it
// without the client's graceful goodbye.
func rawJoin(t *testing.T, addr, name string) (*net.TCPConn, *frame.Conn) {
	t.Helper()
	raw, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("raw dial: %v", err)
	}
	conn := frame.NewConn(raw, frame.DefaultLimits())
	if err := conn.SendFrame([]byte(name)); err != nil {
		t.Fatalf("raw handshake send: %v", err)
	}
	payload, err := conn.RecvFrame(2 * time.Second)
	if err != nil {
		t.Fatalf("raw handshake recv: %v", err)
	}
	if want := "[SYSTEM]: Welcome " + name + "!"; string(payload) != want {
		t.Fatalf("unexpected welcome: %q", payload)
	}
	return raw.(*net.TCPConn), conn
}

func waitForCondition(timeout, interval time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(interval)
	}
	return fn()
}
