package wsframe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/testutil/testlog"
)

// serveEcho upgrades each request and hands the server side Conn to handle.
func serveEcho(t *testing.T, handle func(*Conn)) string {
	t.Helper()
	upgrader := Upgrader()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(NewConn(ws, frame.DefaultLimits()))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRoundTripAndTimeout(t *testing.T) {
	testlog.Start(t)
	url := serveEcho(t, func(c *Conn) {
		defer c.Close()
		for {
			payload, err := c.RecvFrame(0)
			if err != nil {
				return
			}
			if err := c.SendFrame(append([]byte("echo:"), payload...)); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), url, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if _, err := c.RecvFrame(50 * time.Millisecond); !errors.Is(err, frame.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	for _, msg := range []string{"one", "two", ""} {
		if err := c.SendFrame([]byte(msg)); err != nil {
			t.Fatalf("send: %v", err)
		}
		got, err := c.RecvFrame(time.Second)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if string(got) != "echo:"+msg {
			t.Fatalf("unexpected payload: %q", got)
		}
	}
}

func TestPeerCloseIsEOF(t *testing.T) {
	testlog.Start(t)
	url := serveEcho(t, func(c *Conn) {
		_ = c.SendFrame([]byte("bye"))
		_ = c.Close()
	})
	c, err := Dial(context.Background(), url, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	got, err := c.RecvFrame(time.Second)
	if err != nil || string(got) != "bye" {
		t.Fatalf("unexpected first frame %q err=%v", got, err)
	}
	if _, err := c.RecvFrame(time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if _, err := c.RecvFrame(10 * time.Millisecond); !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error should be sticky, got %v", err)
	}
}

func TestSendAfterCloseAndOversize(t *testing.T) {
	testlog.Start(t)
	url := serveEcho(t, func(c *Conn) {
		_, _ = c.RecvFrame(time.Second)
		_ = c.Close()
	})
	c, err := Dial(context.Background(), url, frame.Limits{MaxPayloadBytes: 8})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := c.SendFrame([]byte("way too large")); !errors.Is(err, frame.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	_ = c.Close()
	if err := c.SendFrame([]byte("x")); !errors.Is(err, frame.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := c.RecvFrame(10 * time.Millisecond); !errors.Is(err, frame.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
