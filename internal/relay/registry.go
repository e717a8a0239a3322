package relay

import (
	"sort"
	"sync"
)

// Entry is one registry row in a snapshot.
type Entry struct {
	Name    string
	Session *Session
}

type registered struct {
	session *Session
	seq     uint64
}

// Registry maps unique, case-sensitive display names to live sessions.
//
// All operations share one mutex. Snapshot copies references out so callers
// can perform I/O without holding the lock.
type Registry struct {
	mu       sync.Mutex
	seq      uint64
	sessions map[string]registered
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]registered),
	}
}

// Add registers s under name and marks it active. The existing holder of a
// taken name is left untouched.
func (r *Registry) Add(name string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; ok {
		return ErrNameTaken
	}
	r.seq++
	s.setState(StateActive)
	r.sessions[name] = registered{session: s, seq: r.seq}
	return nil
}

// Remove deletes name. Absent names are a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
}

// Release removes s only while its name still maps to s.
func (r *Registry) Release(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.name]
	if !ok || cur.session != s {
		return false
	}
	delete(r.sessions, s.name)
	return true
}

func (r *Registry) Lookup(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cur.session, nil
}

// Snapshot returns entries in join order as of the call instant.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	rows := r.rowsLocked()
	r.mu.Unlock()
	return toEntries(rows)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Clear empties the registry and returns what it held.
func (r *Registry) Clear() []Entry {
	r.mu.Lock()
	rows := r.rowsLocked()
	r.sessions = make(map[string]registered)
	r.mu.Unlock()
	return toEntries(rows)
}

func (r *Registry) rowsLocked() []registered {
	rows := make([]registered, 0, len(r.sessions))
	for _, cur := range r.sessions {
		rows = append(rows, cur)
	}
	return rows
}

func toEntries(rows []registered) []Entry {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].seq < rows[j].seq
	})
	out := make([]Entry, len(rows))
	for i, row := range rows {
		out[i] = Entry{Name: row.session.name, Session: row.session}
	}
	return out
}
