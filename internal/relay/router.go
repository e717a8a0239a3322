package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/chatrelay/internal/observability"
	"github.com/danmuck/chatrelay/internal/protocol/frame"
	"github.com/danmuck/chatrelay/internal/protocol/message"
)

// Router delivers messages over registry snapshots. It holds no session state.
type Router struct {
	registry *Registry
	node     string
	emit     func(format string, args ...any)
}

func NewRouter(registry *Registry, node string, sink LogSink) *Router {
	return &Router{
		registry: registry,
		node:     node,
		emit:     sink.logf,
	}
}

// Broadcast sends m to every registered session except exclude and returns the
// number of successful deliveries. Recipients are written concurrently and joined
// before returning, so one sender's broadcasts stay ordered per recipient.
func (r *Router) Broadcast(m message.Message, exclude *Session) int {
	entries := r.registry.Snapshot()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, entry := range entries {
		if entry.Session == exclude {
			continue
		}
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := r.deliver(s, m); err != nil {
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(entry.Session)
	}
	wg.Wait()
	observability.RecordRouted(r.node, m.Kind.String(), delivered)
	return delivered
}

// Unicast sends m to the session registered as target.
func (r *Router) Unicast(target string, m message.Message) error {
	s, err := r.registry.Lookup(target)
	if err != nil {
		return fmt.Errorf("%w: %q", err, target)
	}
	if err := r.deliver(s, m); err != nil {
		return fmt.Errorf("relay: unicast to %q: %w", target, err)
	}
	observability.RecordRouted(r.node, m.Kind.String(), 1)
	return nil
}

// Notify sends a relay-originated notice to one session.
func (r *Router) Notify(s *Session, m message.Message) error {
	if err := r.deliver(s, m); err != nil {
		return err
	}
	observability.RecordRouted(r.node, m.Kind.String(), 1)
	return nil
}

// deliver writes m to s. A failed write aborts s so its worker reaps it; an
// oversize payload never reached the wire and leaves s intact.
func (r *Router) deliver(s *Session, m message.Message) error {
	err := s.Send(m)
	if err == nil {
		return nil
	}
	observability.RecordSendFailure(r.node, m.Kind.String())
	r.emit("relay.Router send failed name=%q kind=%s err=%v", s.Name(), m.Kind, err)
	if !errors.Is(err, frame.ErrPayloadTooLarge) {
		s.abort()
	}
	return err
}
