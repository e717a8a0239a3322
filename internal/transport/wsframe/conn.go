// Package wsframe carries relay frames over WebSocket binary messages. One
// WebSocket message is one frame; the 4-byte length header is implied by the
// message boundary.
package wsframe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

type inbound struct {
	payload []byte
	err     error
}

// Conn adapts a gorilla websocket connection to frame.Transport.
//
// gorilla connections cannot resume a read after a deadline fires, so a single
// reader goroutine owns ReadMessage and RecvFrame waits on its channel instead.
type Conn struct {
	ws           *websocket.Conn
	limits       frame.Limits
	writeTimeout time.Duration

	wmu sync.Mutex

	frames    chan inbound
	done      chan struct{}
	closeOnce sync.Once
	// terminal read error, sticky once observed
	readErr error
}

// NewConn wraps ws and starts its reader.
func NewConn(ws *websocket.Conn, limits frame.Limits) *Conn {
	limits = limits.WithDefaults()
	ws.SetReadLimit(int64(limits.MaxPayloadBytes))
	c := &Conn{
		ws:     ws,
		limits: limits,
		frames: make(chan inbound, 16),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
}

func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		kind, payload, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case c.frames <- inbound{err: translateErr(err)}:
			case <-c.done:
			}
			return
		}
		if kind != websocket.BinaryMessage && kind != websocket.TextMessage {
			continue
		}
		select {
		case c.frames <- inbound{payload: payload}:
		case <-c.done:
			return
		}
	}
}

// RecvFrame waits up to timeout for the next message. timeout <= 0 waits until
// a message arrives or the connection ends.
func (c *Conn) RecvFrame(timeout time.Duration) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	select {
	case <-c.done:
		c.readErr = frame.ErrClosed
		return nil, c.readErr
	default:
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case in, ok := <-c.frames:
		if !ok {
			c.readErr = frame.ErrClosed
			return nil, c.readErr
		}
		if in.err != nil {
			c.readErr = in.err
			return nil, in.err
		}
		return in.payload, nil
	case <-c.done:
		c.readErr = frame.ErrClosed
		return nil, c.readErr
	case <-timer:
		return nil, frame.ErrTimeout
	}
}

// SendFrame writes payload as one binary message.
func (c *Conn) SendFrame(payload []byte) error {
	if uint32(len(payload)) > c.limits.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d", frame.ErrPayloadTooLarge, len(payload), c.limits.MaxPayloadBytes)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.done:
		return frame.ErrClosed
	default:
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return translateErr(err)
	}
	return nil
}

// Close sends a close control message best-effort and releases the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wmu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func translateErr(err error) error {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return io.EOF
	case errors.Is(err, websocket.ErrCloseSent):
		return frame.ErrClosed
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return io.EOF
	case errors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: %v", frame.ErrPayloadTooLarge, err)
	}
	return err
}

// Upgrader returns the upgrader used by the admin /ws route. Origin checks are
// left to the CORS policy in front of it.
func Upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// Dial opens a WebSocket relay connection to url (ws:// or wss://).
func Dial(ctx context.Context, url string, limits frame.Limits) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wsframe: dial %s: %w", url, err)
	}
	return NewConn(ws, limits), nil
}
