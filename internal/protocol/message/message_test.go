package message

import (
	"errors"
	"testing"
)

func TestRenderOutbound(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{Public("A", "hello"), "[A]: hello"},
		{Private("A", "B", "hi"), "(Private) [A]: hi"},
		{System("A left the chat"), "[SYSTEM]: A left the chat"},
		{UsageNotice(), "[SYSTEM]: Usage: @username message"},
		{NotFoundNotice("bob"), "[SYSTEM]: User 'bob' not found or offline."},
		{JoinedNotice("C"), "[SYSTEM]: C joined the chat"},
	}
	for _, c := range cases {
		if got := c.msg.String(); got != c.want {
			t.Fatalf("unexpected render: got=%q want=%q", got, c.want)
		}
	}
}

func TestParseInboundPublic(t *testing.T) {
	m, err := ParseInbound("A", []byte("hello @B"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Kind != KindPublic || m.Sender != "A" || m.Text != "hello @B" || m.Target != "" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestParseInboundPrivate(t *testing.T) {
	m, err := ParseInbound("A", []byte("@B hi there"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Kind != KindPrivate || m.Target != "B" || m.Text != "hi there" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestParseInboundPrivateUsage(t *testing.T) {
	for _, raw := range []string{"@", "@B", "@B ", "@B    ", "@ hi"} {
		if _, err := ParseInbound("A", []byte(raw)); !errors.Is(err, ErrUsage) {
			t.Fatalf("expected ErrUsage for %q, got %v", raw, err)
		}
	}
}

func TestShutdownAndWelcomeDetection(t *testing.T) {
	if !IsShutdown([]byte(ShutdownSentinel)) {
		t.Fatalf("sentinel not detected")
	}
	if IsShutdown([]byte("[SYSTEM]: Server is shutting down.")) {
		t.Fatalf("notice must not read as sentinel")
	}
	if !IsWelcome(WelcomeNotice("alice").Encode(), "alice") {
		t.Fatalf("welcome not detected")
	}
	if IsWelcome(NameTakenNotice("alice").Encode(), "alice") {
		t.Fatalf("rejection read as welcome")
	}
}
