// Invitation state machine coupling two client sessions.
//
// Grounded on go-kgp's matchmaking coupling in queue.go/organizer.go
// (pairing two Clients and handing them off to a Game), reshaped
// around spec.md §4.5's explicit three-state handle instead of an
// implicit match-and-start flow.
package invite

import (
	"errors"
	"sync"

	"jeux/game"
	"jeux/proto"
)

// State is where an Invitation sits in its lifecycle.
type State uint8

const (
	Open State = iota
	Accepted
	Closed
)

var (
	// ErrSameClient is returned by Create when source == target.
	ErrSameClient = errors.New("invite: source and target must differ")
	// ErrNotOpen is returned by Accept outside the Open state.
	ErrNotOpen = errors.New("invite: not open")
	// ErrNotActive is returned by Close outside {Open, Accepted}.
	ErrNotActive = errors.New("invite: not open or accepted")
	// ErrRoleRequired is returned by Close when resigning an in-progress game without a role.
	ErrRoleRequired = errors.New("invite: resigning role required")
)

// Session is the minimal surface Invitation needs from a client
// session; it is implemented by session.Session. The cut keeps this
// package free of a dependency on the concurrency-heavy session
// package, breaking what would otherwise be an import cycle (a
// session's invitation list holds *Invitation, and an Invitation
// holds the two Sessions it pairs).
type Session interface {
	// Identity is opaque to Invitation; it exists only for logging and
	// for session package equality checks.
	String() string
}

// Invitation is a two-party handle with states Open -> Accepted ->
// Closed (or Open -> Closed directly on revoke/decline). It is safe
// for concurrent use; its own mutex linearizes the transition so that
// if both sides race to act on it, the loser observes a non-Open
// state and fails cleanly (spec.md §5).
type Invitation struct {
	mu sync.Mutex

	source, target         Session
	sourceRole, targetRole proto.Role
	state                  State
	game                   *game.Game
}

// Create returns a fresh Open invitation pairing source and target
// under the given roles, which must partition {First, Second}. It
// fails if source == target.
func Create(source, target Session, sourceRole, targetRole proto.Role) (*Invitation, error) {
	if source == target {
		return nil, ErrSameClient
	}
	return &Invitation{
		source:     source,
		target:     target,
		sourceRole: sourceRole,
		targetRole: targetRole,
		state:      Open,
	}, nil
}

// Source returns the inviting session.
func (inv *Invitation) Source() Session { return inv.source }

// Target returns the invited session.
func (inv *Invitation) Target() Session { return inv.target }

// SourceRole returns the role the source plays.
func (inv *Invitation) SourceRole() proto.Role { return inv.sourceRole }

// TargetRole returns the role the target plays.
func (inv *Invitation) TargetRole() proto.Role { return inv.targetRole }

// State returns the invitation's current state.
func (inv *Invitation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Game returns the invitation's Game, or nil if it has none yet
// (State() == Open).
func (inv *Invitation) Game() *game.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game
}

// GameOver reports whether the invitation has no game yet, or one
// that has already ended. It takes inv's own lock, so a caller
// deciding whether to resign or move sees a result consistent with a
// concurrent Close/ApplyMove rather than racing the unguarded Game.
func (inv *Invitation) GameOver() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game == nil || inv.game.IsOver()
}

// MoveResult snapshots the board state immediately after a move, so a
// caller can notify sessions without a second, separately-locked read
// racing a concurrent Close on the same invitation.
type MoveResult struct {
	Board  string
	Over   bool
	Winner proto.Role
	Next   game.Piece
}

// ApplyMove applies M to the invitation's in-progress Game and
// snapshots the resulting state, all under inv's own lock. Game has
// no lock of its own; this is the only path that is allowed to
// mutate it, so a move and a concurrent Close (resigning the same
// game) or the other side's own move cannot race on its fields.
func (inv *Invitation) ApplyMove(m game.Move) (MoveResult, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != Accepted || inv.game == nil || inv.game.IsOver() {
		return MoveResult{}, ErrNotActive
	}
	if err := inv.game.ApplyMove(m); err != nil {
		return MoveResult{}, err
	}
	return MoveResult{
		Board:  inv.game.UnparseState(),
		Over:   inv.game.IsOver(),
		Winner: inv.game.Winner(),
		Next:   inv.game.NextPiece(),
	}, nil
}

// Accept transitions an Open invitation to Accepted, creating its
// Game. It fails unless the invitation is Open.
func (inv *Invitation) Accept() (*game.Game, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != Open {
		return nil, ErrNotOpen
	}
	inv.game = game.New()
	inv.state = Accepted
	return inv.game, nil
}

// Close transitions the invitation to Closed. It fails unless the
// invitation is Open or Accepted. If the invitation is Accepted and
// its Game is still in progress, resigningRole must be non-NoRole and
// is passed to Game.Resign; if the Game is already over, resigningRole
// is ignored.
func (inv *Invitation) Close(resigningRole proto.Role) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch inv.state {
	case Open:
		inv.state = Closed
		return nil
	case Accepted:
		if !inv.game.IsOver() {
			if resigningRole == proto.NoRole {
				return ErrRoleRequired
			}
			if err := inv.game.Resign(resigningRole); err != nil {
				return err
			}
		}
		inv.state = Closed
		return nil
	default:
		return ErrNotActive
	}
}
