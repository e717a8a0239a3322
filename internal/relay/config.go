package relay

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/protocol/message"
)

// Config defines relay listener and session defaults.
type Config struct {
	NodeID           string
	ListenAddr       string
	HandshakeTimeout time.Duration
	PollInterval     time.Duration
	AcceptPoll       time.Duration
	WriteTimeout     time.Duration
	MaxNameLength    int
	Limits           frame.Limits
}

func DefaultConfig() Config {
	return Config{
		NodeID:           "relay.local",
		ListenAddr:       "127.0.0.1:5000",
		HandshakeTimeout: 5 * time.Second,
		PollInterval:     250 * time.Millisecond,
		AcceptPoll:       250 * time.Millisecond,
		WriteTimeout:     5 * time.Second,
		MaxNameLength:    32,
		Limits:           frame.DefaultLimits(),
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = def.NodeID
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.AcceptPoll <= 0 {
		c.AcceptPoll = def.AcceptPoll
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = def.MaxNameLength
	}
	c.Limits = c.Limits.WithDefaults()
	return c
}

// ValidateName checks a claimed display name. Names become private-message
// targets, so they cannot contain whitespace or start with the private marker.
func (c Config) ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: invalid utf-8", ErrInvalidName)
	case utf8.RuneCountInString(name) > c.MaxNameLength:
		return fmt.Errorf("%w: longer than %d", ErrInvalidName, c.MaxNameLength)
	case name[0] == message.PrivateMarker:
		return fmt.Errorf("%w: leading %q", ErrInvalidName, message.PrivateMarker)
	case name == message.ShutdownSentinel, strings.EqualFold(name, message.SystemName):
		return fmt.Errorf("%w: reserved", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: whitespace or control character", ErrInvalidName)
		}
	}
	return nil
}
