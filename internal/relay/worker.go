package relay

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/chatrelay/internal/observability"
	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/protocol/message"
)

func (c *Controller) runSession(t frame.Transport, kind string) {
	defer c.workers.Done()
	defer c.untrackConn(t)

	s, ok := c.handshake(t, kind)
	if !ok {
		_ = t.Close()
		return
	}
	c.serveSession(s)
}

// handshake reads the claimed display name within HandshakeTimeout and registers
// the session. Rejections are answered with a system notice before closing.
func (c *Controller) handshake(t frame.Transport, kind string) (*Session, bool) {
	remote := t.RemoteAddr()
	payload, err := t.RecvFrame(c.cfg.HandshakeTimeout)
	if err != nil {
		observability.RecordHandshake(c.cfg.NodeID, kind, observability.HandshakeFailed)
		c.logf("relay.handshake read failed remote=%q err=%v", remote, err)
		return nil, false
	}

	name := strings.TrimSpace(string(payload))
	if err := c.cfg.ValidateName(name); err != nil {
		observability.RecordHandshake(c.cfg.NodeID, kind, observability.HandshakeInvalid)
		c.logf("relay.handshake rejected remote=%q err=%v", remote, err)
		_ = t.SendFrame(message.InvalidNameNotice().Encode())
		return nil, false
	}

	s := newSession(name, t, kind)
	if err := c.registry.Add(name, s); err != nil {
		observability.RecordHandshake(c.cfg.NodeID, kind, observability.HandshakeNameTaken)
		c.logf("relay.handshake rejected name=%q remote=%q err=%v", name, remote, err)
		_ = t.SendFrame(message.NameTakenNotice(name).Encode())
		return nil, false
	}

	if err := c.router.Notify(s, message.WelcomeNotice(name)); err != nil {
		c.registry.Release(s)
		_ = s.close()
		observability.RecordHandshake(c.cfg.NodeID, kind, observability.HandshakeFailed)
		return nil, false
	}
	observability.RecordHandshake(c.cfg.NodeID, kind, observability.HandshakeAccepted)
	active := c.registry.Len()
	observability.SetActiveSessions(c.cfg.NodeID, active)
	c.logf("relay.session joined name=%q remote=%q transport=%s active=%d", name, remote, kind, active)

	if c.running.Load() {
		c.router.Broadcast(message.JoinedNotice(name), s)
	}
	return s, true
}

// serveSession is the dispatch loop. Each bounded read re-checks the running flag.
func (c *Controller) serveSession(s *Session) {
	defer c.finish(s)
	for c.running.Load() && s.State() == StateActive {
		payload, err := s.transport.RecvFrame(c.cfg.PollInterval)
		if errors.Is(err, frame.ErrTimeout) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, frame.ErrClosed) {
				c.logf("relay.session read failed name=%q err=%v", s.Name(), err)
			}
			return
		}
		if message.IsShutdown(payload) {
			return
		}
		if !utf8.Valid(payload) {
			c.logf("relay.session decode failed name=%q err=invalid utf-8", s.Name())
			return
		}
		c.dispatch(s, payload)
	}
}

func (c *Controller) dispatch(s *Session, payload []byte) {
	if message.IsBlank(payload) {
		return
	}
	m, err := message.ParseInbound(s.Name(), payload)
	if err != nil {
		_ = c.router.Notify(s, message.UsageNotice())
		return
	}

	if uint64(len(m.String())) > uint64(c.cfg.Limits.MaxPayloadBytes) {
		c.logf("relay.route rejected name=%q kind=%s err=%v", s.Name(), m.Kind, frame.ErrPayloadTooLarge)
		_ = c.router.Notify(s, message.TooLongNotice())
		return
	}

	switch m.Kind {
	case message.KindPrivate:
		c.logf("relay.route private from=%q to=%q", m.Sender, m.Target)
		err := c.router.Unicast(m.Target, m)
		if errors.Is(err, ErrNotFound) {
			_ = c.router.Notify(s, message.NotFoundNotice(m.Target))
		}
	default:
		c.logf("[%s]: %s", m.Sender, m.Text)
		c.router.Broadcast(m, s)
	}
}

// finish moves s through closing to closed, deregisters it and announces the
// departure to everyone else unless the relay itself is stopping.
func (c *Controller) finish(s *Session) {
	s.transition(StateActive, StateClosing)
	c.registry.Release(s)
	_ = s.close()

	active := c.registry.Len()
	observability.SetActiveSessions(c.cfg.NodeID, active)
	c.logf("relay.session left name=%q remote=%q active=%d", s.Name(), s.RemoteAddr(), active)
	if c.running.Load() {
		c.router.Broadcast(message.LeftNotice(s.Name()), s)
	}
}
