// Client Registry: the process-wide, capacity-bounded set of live
// connections.
//
// Grounded on go-kgp's queue.go (a single manager goroutine/lock
// guarding all live clients) and its channel-based "wait until empty"
// idea, reworked per spec.md §9's note that a semaphore-plus-flag is
// buggy under multiple waiters: this uses a sync.Cond broadcast every
// time the live count transitions to zero, so any number of waiters
// blocked in WaitForEmpty wake up without missing the transition.
package session

import (
	"net"
	"sync"

	"jeux/player"
)

// DefaultCapacity is the maximum number of simultaneous live sessions,
// per spec.md §3.
const DefaultCapacity = 64

// Registry is the process-wide set of live Client Sessions, plus the
// name -> Session binding used for login uniqueness and lookup.
type Registry struct {
	// RatingK overrides the Elo K-factor new Sessions rate games with.
	// Zero (the default zero value) means player.DefaultK; set it
	// before any session is registered, since a session captures it
	// at registration time.
	RatingK float64

	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	slots    map[uint64]*Session
	names    map[string]*Session
	nextSeq  uint64
}

// NewRegistry constructs an empty registry bounded at CAPACITY.
func NewRegistry(capacity int) *Registry {
	r := &Registry{
		capacity: capacity,
		slots:    make(map[uint64]*Session),
		names:    make(map[string]*Session),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register creates a fresh Session for CONN and inserts it, or returns
// ErrRegistryFull if the registry is already at capacity.
func (r *Registry) Register(conn net.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.slots) >= r.capacity {
		return nil, ErrRegistryFull
	}

	seq := r.nextSeq
	r.nextSeq++

	s := newSession(seq, conn, r)
	r.slots[seq] = s
	return s, nil
}

// Unregister removes S from the live set. If the count reaches zero,
// every goroutine blocked in WaitForEmpty is woken.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	delete(r.slots, s.seq)
	empty := len(r.slots) == 0
	r.mu.Unlock()

	if empty {
		r.cond.Broadcast()
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// WaitForEmpty blocks until the registry holds no live sessions. It
// may be called by any number of goroutines concurrently.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.slots) > 0 {
		r.cond.Wait()
	}
}

// ShutdownAll half-closes every live connection's socket (disabling
// further writes from the peer's perspective, which turns the peer's
// next blocking read into EOF) without removing anything from the
// registry; each session's own service loop observes the EOF and
// unregisters itself.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.slots))
	for _, s := range r.slots {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.halfClose()
	}
}

// bindName atomically claims NAME for S, failing if another live
// session already holds it. Called only from Session.Login.
func (r *Registry) bindName(s *Session, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return ErrNameInUse
	}
	r.names[name] = s
	return nil
}

// unbindName releases a name claimed by bindName. Called only from
// Session.Logout.
func (r *Registry) unbindName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
}

// Lookup returns the session logged in as NAME, or nil.
func (r *Registry) Lookup(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[name]
}

// AllPlayers returns a snapshot of the Players of every currently
// logged-in session. The registry lock is released before any
// session is asked for its Player, per spec.md §5's ordering rule.
func (r *Registry) AllPlayers() []*player.Player {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.names))
	for _, s := range r.names {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]*player.Player, 0, len(sessions))
	for _, s := range sessions {
		if p := s.Player(); p != nil {
			out = append(out, p)
		}
	}
	return out
}
