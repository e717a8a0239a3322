// Package message owns the text grammar carried inside frames.
//
// Inbound (client -> relay):
// - handshake: bare display name
// - public: raw text
// - private: "@<target> <text>"
//
// Outbound (relay -> client):
// - public: "[<sender>]: <text>"
// - private: "(Private) [<sender>]: <text>"
// - system: "[SYSTEM]: <text>"
//
// The shutdown sentinel is valid in both directions and reads as end of stream.
package message

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ShutdownSentinel = "__SERVER_SHUTDOWN__"
	PrivateMarker    = '@'
	SystemName       = "SYSTEM"
	SystemPrefix     = "[" + SystemName + "]: "
	PrivatePrefix    = "(Private) "

	UsagePrivate = "Usage: @username message"
)

var ErrUsage = errors.New("message: malformed private message")

// Kind classifies a routed message.
type Kind int

const (
	KindPublic Kind = iota
	KindPrivate
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindPrivate:
		return "private"
	case KindSystem:
		return "system"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one routed unit. Sender is empty for relay-originated notices and
// Target is only set for private messages.
type Message struct {
	Kind   Kind
	Sender string
	Target string
	Text   string
}

func Public(sender, text string) Message {
	return Message{Kind: KindPublic, Sender: sender, Text: text}
}

func Private(sender, target, text string) Message {
	return Message{Kind: KindPrivate, Sender: sender, Target: target, Text: text}
}

func System(text string) Message {
	return Message{Kind: KindSystem, Text: text}
}

// String renders the outbound wire text.
func (m Message) String() string {
	switch m.Kind {
	case KindPrivate:
		return PrivatePrefix + "[" + m.Sender + "]: " + m.Text
	case KindSystem:
		return SystemPrefix + m.Text
	default:
		return "[" + m.Sender + "]: " + m.Text
	}
}

// Encode returns the outbound frame payload.
func (m Message) Encode() []byte {
	return []byte(m.String())
}

// ParseInbound classifies one client payload sent by sender. A payload that starts
// with the private marker but lacks a target, separator, or text yields ErrUsage.
func ParseInbound(sender string, payload []byte) (Message, error) {
	text := string(payload)
	if text == "" || text[0] != PrivateMarker {
		return Public(sender, text), nil
	}
	target, body, ok := strings.Cut(text[1:], " ")
	if !ok || target == "" || strings.TrimSpace(body) == "" {
		return Message{}, ErrUsage
	}
	return Private(sender, target, body), nil
}

// IsShutdown reports whether payload is the reserved shutdown control frame.
func IsShutdown(payload []byte) bool {
	return string(payload) == ShutdownSentinel
}

// IsBlank reports payloads that carry no routable text.
func IsBlank(payload []byte) bool {
	return strings.TrimSpace(string(payload)) == ""
}

// Handshake and lifecycle notices.

func JoinedNotice(name string) Message {
	return System(name + " joined the chat")
}

func LeftNotice(name string) Message {
	return System(name + " left the chat")
}

func WelcomeNotice(name string) Message {
	return System("Welcome " + name + "!")
}

func NameTakenNotice(name string) Message {
	return System("Name '" + name + "' is already taken.")
}

func InvalidNameNotice() Message {
	return System("Invalid display name.")
}

func NotFoundNotice(target string) Message {
	return System("User '" + target + "' not found or offline.")
}

func UsageNotice() Message {
	return System(UsagePrivate)
}

func TooLongNotice() Message {
	return System("Message too long.")
}

func ShutdownNotice() Message {
	return System("Server is shutting down.")
}

// IsWelcome reports whether payload is the handshake acknowledgement for name.
func IsWelcome(payload []byte, name string) bool {
	return string(payload) == WelcomeNotice(name).String()
}
