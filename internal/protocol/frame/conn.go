package frame

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Transport is the framed, message-oriented view of one connection.
//
// RecvFrame is owned by a single reader. SendFrame is safe for concurrent callers.
// A bounded RecvFrame that expires returns ErrTimeout and must not lose bytes.
type Transport interface {
	SendFrame(payload []byte) error
	RecvFrame(timeout time.Duration) ([]byte, error)
	Close() error
	RemoteAddr() string
}

// Conn frames a net.Conn with a length prefix.
type Conn struct {
	conn         net.Conn
	limits       Limits
	writeTimeout time.Duration

	wmu sync.Mutex

	// read side state, owned by the single reader
	pending []byte
	scratch []byte

	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*Conn)(nil)

func NewConn(conn net.Conn, limits Limits) *Conn {
	return &Conn{
		conn:    conn,
		limits:  limits.WithDefaults(),
		scratch: make([]byte, 4096),
	}
}

// SetWriteTimeout bounds every SendFrame; zero disables the deadline.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.writeTimeout = d
}

func (c *Conn) SendFrame(payload []byte) error {
	buf, err := Encode(payload, c.limits)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(buf); err != nil {
		return translateErr(err)
	}
	return nil
}

// RecvFrame returns the next complete payload. Bytes already received when the
// deadline expires stay buffered for the next call.
func (c *Conn) RecvFrame(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		payload, ok, err := c.popFrame()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}

		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, translateErr(err)
		}
		n, err := c.conn.Read(c.scratch)
		if n > 0 {
			c.pending = append(c.pending, c.scratch[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				// a frame may have completed with the final read
				if payload, ok, perr := c.popFrame(); perr == nil && ok {
					return payload, nil
				}
				return nil, ErrTimeout
			}
			if errors.Is(err, io.EOF) && len(c.pending) > 0 {
				if payload, ok, perr := c.popFrame(); perr == nil && ok {
					return payload, nil
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, translateErr(err)
		}
	}
}

func (c *Conn) popFrame() ([]byte, bool, error) {
	if len(c.pending) < HeaderLen {
		return nil, false, nil
	}
	n, err := DecodeHeader(c.pending[:HeaderLen])
	if err != nil {
		return nil, false, err
	}
	if n > c.limits.MaxPayloadBytes {
		return nil, false, ErrPayloadTooLarge
	}
	end := HeaderLen + int(n)
	if len(c.pending) < end {
		return nil, false, nil
	}
	payload := make([]byte, n)
	copy(payload, c.pending[HeaderLen:end])
	rest := copy(c.pending, c.pending[end:])
	c.pending = c.pending[:rest]
	return payload, true, nil
}

// Close is idempotent and interrupts a blocked RecvFrame.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func translateErr(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}
