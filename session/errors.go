package session

import "errors"

var (
	// ErrAlreadyLoggedIn is returned by Login on a session that already has an identity.
	ErrAlreadyLoggedIn = errors.New("session: already logged in")
	// ErrNotLoggedIn is returned by operations that require an identity when none is set.
	ErrNotLoggedIn = errors.New("session: not logged in")
	// ErrNameInUse is returned by Login when another live session already owns the name.
	ErrNameInUse = errors.New("session: name already in use")
	// ErrUnknownID is returned when a local invitation ID does not name a live invitation.
	ErrUnknownID = errors.New("session: unknown invitation id")
	// ErrWrongRole is returned when the caller is neither the source nor the
	// target of an invitation, or calls a source-only/target-only action
	// from the wrong side.
	ErrWrongRole = errors.New("session: wrong role for this action")
	// ErrInvalidState is returned when an invitation/game is not in the
	// state an operation requires (e.g. resigning a game that already ended).
	ErrInvalidState = errors.New("session: invalid invitation or game state")
	// ErrInvalidMove is returned by MakeMove on an unparsable or illegal move.
	ErrInvalidMove = errors.New("session: invalid move")
	// ErrRegistryFull is returned by Registry.Register at capacity.
	ErrRegistryFull = errors.New("session: registry at capacity")
)
