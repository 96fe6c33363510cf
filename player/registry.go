// Player Registry: the process-wide set of known players.
//
// Grounded on go-kgp's pattern of a single long-lived manager guarding
// a map under its own mutex (conf.go's Database/TCP managers), adapted
// to the simpler register/finalize lifecycle spec.md §4.3 describes.
package player

import (
	"fmt"
	"sync"
)

// Registry is the process-wide mapping from name to Player. The zero
// value is not usable; construct one with NewRegistry.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
	closed  bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Register returns the existing Player with NAME, creating one at the
// initial rating if none exists yet. The registry itself always
// retains one reference on the returned Player; the caller's copy of
// the pointer is a borrow, not an additional ownership stake — there
// are no further reference counts to release in this implementation,
// since the registry never evicts a player while the process runs.
func (reg *Registry) Register(name string) *Player {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.closed {
		panic("player: Register called after Finalize")
	}

	if p, ok := reg.players[name]; ok {
		return p
	}
	p := newPlayer(name)
	reg.players[name] = p
	return p
}

// Lookup returns the Player registered under NAME, or nil if no such
// player has ever been registered.
func (reg *Registry) Lookup(name string) *Player {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.players[name]
}

// Finalize releases the registry's references on every player and
// frees the underlying map. Callers must ensure the client registry
// has already drained; calling Finalize while sessions are still live
// is a caller error (spec.md §4.3).
func (reg *Registry) Finalize() error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.closed {
		return fmt.Errorf("player: registry already finalized")
	}
	reg.players = nil
	reg.closed = true
	return nil
}

// Count returns the number of distinct players ever registered.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.players)
}
