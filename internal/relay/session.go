package relay

import (
	"sync/atomic"
	"time"

	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/protocol/message"
	"github.com/google/uuid"
)

// State is the session lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one connected client. Reads belong to the session worker; sends may
// come from any router call and are serialized by the transport.
type Session struct {
	id        string
	name      string
	kind      string
	transport frame.Transport
	joinedAt  time.Time
	state     atomic.Int32
}

// SessionInfo is a copy of observable session fields.
type SessionInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RemoteAddr string    `json:"remote_addr"`
	Transport  string    `json:"transport"`
	State      string    `json:"state"`
	JoinedAt   time.Time `json:"joined_at"`
}

func newSession(name string, t frame.Transport, kind string) *Session {
	return &Session{
		id:        uuid.NewString(),
		name:      name,
		kind:      kind,
		transport: t,
		joinedAt:  time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) RemoteAddr() string {
	return s.transport.RemoteAddr()
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		Name:       s.name,
		RemoteAddr: s.RemoteAddr(),
		Transport:  s.kind,
		State:      s.State().String(),
		JoinedAt:   s.joinedAt,
	}
}

// Send writes one rendered message to the session.
func (s *Session) Send(m message.Message) error {
	return s.sendRaw(m.Encode())
}

func (s *Session) sendRaw(payload []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	return s.transport.SendFrame(payload)
}

func (s *Session) setState(to State) {
	s.state.Store(int32(to))
}

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// abort marks an active session as closing and closes its transport, which fails
// the worker's pending read so the worker reaps the session.
func (s *Session) abort() {
	s.transition(StateActive, StateClosing)
	_ = s.transport.Close()
}

func (s *Session) close() error {
	s.setState(StateClosed)
	return s.transport.Close()
}
