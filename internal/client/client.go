package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyName = errors.New("client: display name required")
	ErrRejected  = errors.New("client: handshake rejected")
	ErrClosed    = errors.New("client: connection closed")
)

// ConnectError reports a failed dial or handshake. Reason carries the relay's
// rejection text when there is one.
type ConnectError struct {
	Addr   string
	Name   string
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("client: connect %s as %q: %v: %s", e.Addr, e.Name, e.Err, e.Reason)
	}
	return fmt.Sprintf("client: connect %s as %q: %v", e.Addr, e.Name, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Client is one relay connection. Send is safe for concurrent use; Receive and
// ReceiveWithin belong to a single reader.
type Client struct {
	addr string
	name string
	conn *frame.Conn

	// frames that arrived ahead of the welcome notice
	backlog []string

	closeOnce sync.Once
}

// Connect dials host:port and claims name.
func Connect(ctx context.Context, host string, port int, name string, cfg Config) (*Client, error) {
	return Dial(ctx, net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port)), name, cfg)
}

// Dial connects to addr and performs the name-claim handshake, retrying dial
// failures with backoff up to cfg.MaxConnectAttempts. Rejections are not retried.
func Dial(ctx context.Context, addr, name string, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ConnectError{Addr: addr, Err: ErrEmptyName}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		c, err := dialOnce(ctx, addr, name, cfg)
		if err == nil {
			return c, nil
		}
		log.Debug().Int("attempt", attempt).Str("addr", addr).Err(err).Msg("client dial failed")
		if errors.Is(err, ErrRejected) || !shouldRetry(cfg, attempt) {
			return nil, err
		}
		if err := sleepBackoff(ctx, cfg, attempt, rng); err != nil {
			return nil, &ConnectError{Addr: addr, Name: name, Err: err}
		}
	}
}

func dialOnce(ctx context.Context, addr, name string, cfg Config) (*Client, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Name: name, Err: err}
	}
	conn := frame.NewConn(raw, cfg.Limits)
	conn.SetWriteTimeout(cfg.WriteTimeout)

	c := &Client{addr: addr, name: name, conn: conn}
	if err := c.handshake(cfg.HandshakeTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(timeout time.Duration) error {
	if err := c.conn.SendFrame([]byte(c.name)); err != nil {
		return &ConnectError{Addr: c.addr, Name: c.name, Err: err}
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &ConnectError{Addr: c.addr, Name: c.name, Err: frame.ErrTimeout}
		}
		payload, err := c.conn.RecvFrame(remaining)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrRejected
			}
			return &ConnectError{Addr: c.addr, Name: c.name, Err: err}
		}
		switch {
		case message.IsWelcome(payload, c.name):
			return nil
		case isRejection(payload, c.name):
			return &ConnectError{
				Addr:   c.addr,
				Name:   c.name,
				Reason: strings.TrimPrefix(string(payload), message.SystemPrefix),
				Err:    ErrRejected,
			}
		default:
			c.backlog = append(c.backlog, string(payload))
		}
	}
}

func isRejection(payload []byte, name string) bool {
	text := string(payload)
	return text == message.NameTakenNotice(name).String() || text == message.InvalidNameNotice().String()
}

func shouldRetry(cfg Config, attempt int) bool {
	if cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < cfg.MaxConnectAttempts
}

func sleepBackoff(ctx context.Context, cfg Config, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Addr() string {
	return c.addr
}

// Send writes one text frame. A leading "@name " makes it a private message.
func (c *Client) Send(text string) error {
	if err := c.conn.SendFrame([]byte(text)); err != nil {
		if errors.Is(err, frame.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}

// Receive blocks for the next relayed line. It returns io.EOF once the relay
// disconnects or announces shutdown.
func (c *Client) Receive() (string, error) {
	return c.ReceiveWithin(0)
}

// ReceiveWithin is Receive bounded by d; frame.ErrTimeout means nothing arrived.
func (c *Client) ReceiveWithin(d time.Duration) (string, error) {
	if len(c.backlog) > 0 {
		line := c.backlog[0]
		c.backlog = c.backlog[1:]
		return line, nil
	}
	payload, err := c.conn.RecvFrame(d)
	if err != nil {
		if errors.Is(err, frame.ErrTimeout) {
			return "", err
		}
		if errors.Is(err, io.EOF) || errors.Is(err, frame.ErrClosed) {
			return "", io.EOF
		}
		return "", fmt.Errorf("client: receive: %w", err)
	}
	if message.IsShutdown(payload) {
		_ = c.conn.Close()
		return "", io.EOF
	}
	return string(payload), nil
}

// Close says goodbye with the shutdown sentinel and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.conn.SendFrame([]byte(message.ShutdownSentinel))
		err = c.conn.Close()
	})
	return err
}
