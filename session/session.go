// Client Session: per-connection protocol state and actions.
//
// Grounded on go-kgp's client.go (a Client wraps a connection, a send
// mutex, and per-connection state mutated by protocol handlers) and
// on spec.md §9's design note that recursive locks should be replaced
// by a lock-holding/lock-free split: every exported method here
// acquires s.mu (or, for cross-session actions, both sessions' locks
// via lockPair) and then calls an unexported "Locked" helper that
// assumes the lock is already held, instead of relying on a re-entrant
// mutex.
package session

import (
	"fmt"
	"net"
	"sync"

	"jeux/game"
	"jeux/invite"
	"jeux/player"
	"jeux/proto"
)

type invEntry struct {
	id  uint8
	inv *invite.Invitation
}

// Session is a single connection's state: its identity (if any), its
// outstanding invitations under session-local IDs, and a serialized
// send path.
type Session struct {
	seq      uint64
	conn     net.Conn
	sendMu   sync.Mutex
	registry *Registry
	ratingK  float64

	mu          sync.Mutex
	me          *player.Player
	entries     []invEntry
	nextLocalID uint8
}

func newSession(seq uint64, conn net.Conn, reg *Registry) *Session {
	k := reg.RatingK
	if k == 0 {
		k = player.DefaultK
	}
	return &Session{seq: seq, conn: conn, registry: reg, ratingK: k}
}

// Outcome classifies how a game ended, from the acting session's own
// point of view, or Ongoing if the call did not end it. Callers use
// this instead of comparing ratings before and after, since a drawn
// game still moves both players' ratings under spec.md §4.2's
// symmetric formula.
type Outcome uint8

const (
	Ongoing Outcome = iota
	Won
	Lost
	Drawn
)

// EndedGame describes one game a Logout call ended by resignation, for
// a caller tracking in-progress-game counts or a ledger to account for
// a game ended by disconnect the same way it would an explicit RESIGN.
type EndedGame struct {
	Peer *Session
	// Delta is the winning side's (Peer's, since the logged-out
	// session always loses these) rating gain.
	Delta int
}

// String identifies the session for logging and satisfies
// invite.Session.
func (s *Session) String() string {
	if p := s.Player(); p != nil {
		return p.Name()
	}
	if s.conn != nil {
		return s.conn.RemoteAddr().String()
	}
	return fmt.Sprintf("session#%d", s.seq)
}

// Conn returns the underlying connection, for the service loop to read from.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Player returns the session's logged-in Player, or nil.
func (s *Session) Player() *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me
}

// IsLoggedIn reports whether the session has an identity.
func (s *Session) IsLoggedIn() bool {
	return s.Player() != nil
}

// halfClose disables further writes on the underlying socket where
// possible, falling back to a full close. Used by Registry.ShutdownAll.
func (s *Session) halfClose() {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = s.conn.Close()
}

// SendPacket serializes PAYLOAD behind HDR onto the connection,
// guarded by this session's send mutex so that no two goroutines can
// interleave bytes on the wire.
func (s *Session) SendPacket(hdr proto.Header, payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return proto.Encode(s.conn, hdr, payload)
}

// SendAck sends an ACK carrying PAYLOAD (which may be nil).
func (s *Session) SendAck(payload []byte) error {
	return s.SendPacket(proto.Header{Type: proto.ACK}, payload)
}

// SendNack sends an empty NACK.
func (s *Session) SendNack() error {
	return s.SendPacket(proto.Header{Type: proto.NACK}, nil)
}

// lockPair locks both sessions in a fixed global order (by creation
// sequence number) so that any two concurrent cross-session actions —
// even two simultaneous MakeInvitation calls between the same pair in
// opposite directions — acquire the pair in the same order and cannot
// deadlock. spec.md §5 describes the convention as "acting session,
// then paired session"; ordering by sequence number subsumes that
// convention while also covering the case the spec's prose does not
// rule out: two *different* invitations being created between the
// same two sessions concurrently, each acting as the other's peer. It
// returns an unlock function that releases both in reverse order.
func lockPair(a, b *Session) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.seq < a.seq {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// addInvitationLocked assumes s.mu is held.
func (s *Session) addInvitationLocked(inv *invite.Invitation) uint8 {
	id := s.nextLocalID
	s.nextLocalID++
	s.entries = append(s.entries, invEntry{id: id, inv: inv})
	return id
}

// removeInvitationLocked assumes s.mu is held. Returns the removed
// entry's local ID, or -1 if INV was not found.
func (s *Session) removeInvitationLocked(inv *invite.Invitation) int {
	for i, e := range s.entries {
		if e.inv == inv {
			id := int(e.id)
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return id
		}
	}
	return -1
}

// lookupInvitationLocked assumes s.mu is held.
func (s *Session) lookupInvitationLocked(id uint8) (*invite.Invitation, bool) {
	for _, e := range s.entries {
		if e.id == id {
			return e.inv, true
		}
	}
	return nil, false
}

// AddInvitation appends INV to the session's list under a freshly
// allocated local ID and returns it.
func (s *Session) AddInvitation(inv *invite.Invitation) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addInvitationLocked(inv)
}

// RemoveInvitation removes INV by identity, returning the local ID it
// was filed under, or -1 if it was not present.
func (s *Session) RemoveInvitation(inv *invite.Invitation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeInvitationLocked(inv)
}

// invitationID scans S's own list for INV and returns its local ID.
func (s *Session) invitationID(inv *invite.Invitation) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.inv == inv {
			return e.id, true
		}
	}
	return 0, false
}

// Peer returns the other session party to the invitation ID names on
// S's list, or nil if ID does not name a live invitation.
func (s *Session) Peer(id uint8) *Session {
	s.mu.Lock()
	inv, ok := s.lookupInvitationLocked(id)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return counterpart(s, inv)
}

// counterpart returns the other session party to INV, given that S is
// one side of it.
func counterpart(s *Session, inv *invite.Invitation) *Session {
	source, _ := inv.Source().(*Session)
	if source == s {
		target, _ := inv.Target().(*Session)
		return target
	}
	return source
}

// roleIn returns the role S plays in INV, and whether S is a party to it at all.
func (s *Session) roleIn(inv *invite.Invitation) (proto.Role, bool) {
	source, _ := inv.Source().(*Session)
	target, _ := inv.Target().(*Session)
	switch s {
	case source:
		return inv.SourceRole(), true
	case target:
		return inv.TargetRole(), true
	default:
		return proto.NoRole, false
	}
}

// Login retains PLAYER for the session, failing if the session is
// already logged in or if another live session already owns the name.
func (s *Session) Login(p *player.Player) error {
	s.mu.Lock()
	if s.me != nil {
		s.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	s.mu.Unlock()

	if err := s.registry.bindName(s, p.Name()); err != nil {
		return err
	}

	s.mu.Lock()
	s.me = p
	s.mu.Unlock()
	return nil
}

// Logout winds down every outstanding invitation (resigning any game
// in progress, revoking what the session initiated, declining what it
// was invited to) and releases the Player. It fails if the session is
// not logged in. The returned slice lists every game this logout ended
// by resignation, so a caller tracking in-progress-game counts or a
// ledger can account for games ended by disconnect the same way it
// accounts for an explicit RESIGN.
func (s *Session) Logout() ([]EndedGame, error) {
	s.mu.Lock()
	if s.me == nil {
		s.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	me := s.me
	snapshot := make([]invEntry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	var ended []EndedGame
	for _, e := range snapshot {
		source, _ := e.inv.Source().(*Session)
		switch {
		case e.inv.State() == invite.Accepted && !gameInProgressOver(e.inv):
			peer := counterpart(s, e.inv)
			if _, delta, err := s.ResignGame(e.id); err == nil {
				ended = append(ended, EndedGame{Peer: peer, Delta: delta})
			}
		case source == s:
			_ = s.Revoke(e.id)
		default:
			_ = s.Decline(e.id)
		}
	}

	s.mu.Lock()
	s.me = nil
	s.mu.Unlock()

	s.registry.unbindName(me.Name())
	return ended, nil
}

func gameInProgressOver(inv *invite.Invitation) bool {
	return inv.GameOver()
}

// MakeInvitation creates an Invitation from S to TARGET under the
// given roles, files it on both sessions' lists, and notifies TARGET
// with an INVITED packet. It returns S's own local ID for the new
// invitation.
func (s *Session) MakeInvitation(target *Session, sourceRole, targetRole proto.Role) (uint8, error) {
	me := s.Player()
	if me == nil {
		return 0, ErrNotLoggedIn
	}

	inv, err := invite.Create(s, target, sourceRole, targetRole)
	if err != nil {
		return 0, err
	}

	unlock := lockPair(s, target)
	srcID := s.addInvitationLocked(inv)
	tgtID := target.addInvitationLocked(inv)
	unlock()

	_ = target.SendPacket(proto.Header{Type: proto.INVITED, ID: tgtID, Role: targetRole}, []byte(me.Name()))

	return srcID, nil
}

// Revoke closes an Open invitation S initiated, removes it from both
// lists, and notifies the target with REVOKED carrying its own local ID.
func (s *Session) Revoke(id uint8) error {
	s.mu.Lock()
	inv, ok := s.lookupInvitationLocked(id)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownID
	}

	source, _ := inv.Source().(*Session)
	if source != s {
		return ErrWrongRole
	}

	if err := inv.Close(proto.NoRole); err != nil {
		return err
	}

	peer := counterpart(s, inv)
	unlock := lockPair(s, peer)
	peerID := peer.removeInvitationLocked(inv)
	s.removeInvitationLocked(inv)
	unlock()

	if peerID >= 0 {
		_ = peer.SendPacket(proto.Header{Type: proto.REVOKED, ID: uint8(peerID)}, nil)
	}
	return nil
}

// Decline closes an Open invitation S was the target of, removes it
// from both lists, and notifies the source with DECLINED carrying its
// own local ID.
func (s *Session) Decline(id uint8) error {
	s.mu.Lock()
	inv, ok := s.lookupInvitationLocked(id)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownID
	}

	target, _ := inv.Target().(*Session)
	if target != s {
		return ErrWrongRole
	}

	if err := inv.Close(proto.NoRole); err != nil {
		return err
	}

	peer := counterpart(s, inv)
	unlock := lockPair(s, peer)
	peerID := peer.removeInvitationLocked(inv)
	s.removeInvitationLocked(inv)
	unlock()

	if peerID >= 0 {
		_ = peer.SendPacket(proto.Header{Type: proto.DECLINED, ID: uint8(peerID)}, nil)
	}
	return nil
}

// Accept transitions an Open invitation S is the target of into
// Accepted, creating its Game, and returns the payload the caller
// (the service loop) should ACK with: the initial board text if S
// plays First, else nil. The ACCEPTED notification to the source
// carries the board text too, iff the source plays First — exactly
// one side's accept-direction message carries the board, the side to
// move first.
func (s *Session) Accept(id uint8) ([]byte, error) {
	s.mu.Lock()
	inv, ok := s.lookupInvitationLocked(id)
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownID
	}

	target, _ := inv.Target().(*Session)
	if target != s {
		return nil, ErrWrongRole
	}

	g, err := inv.Accept()
	if err != nil {
		return nil, err
	}

	source, _ := inv.Source().(*Session)
	board := []byte(g.UnparseState())

	srcID, _ := source.invitationID(inv)
	var sourcePayload []byte
	if inv.SourceRole() == proto.First {
		sourcePayload = board
	}
	_ = source.SendPacket(proto.Header{Type: proto.ACCEPTED, ID: srcID}, sourcePayload)

	var ack []byte
	if inv.TargetRole() == proto.First {
		ack = board
	}
	return ack, nil
}

// ResignGame resigns S's side of an Accepted, in-progress game,
// closes the invitation, removes it from both lists, updates both
// players' ratings, and sends RESIGNED to the opponent plus ENDED to
// both sides, each carrying the final winner role and the recipient's
// own local invitation id. The returned Outcome is always Lost, since
// resigning is always a loss for the resigning side; the returned int
// is the opponent's (the winner's) resulting rating gain.
func (s *Session) ResignGame(id uint8) (Outcome, int, error) {
	s.mu.Lock()
	inv, ok := s.lookupInvitationLocked(id)
	s.mu.Unlock()
	if !ok {
		return Ongoing, 0, ErrUnknownID
	}

	if inv.State() != invite.Accepted {
		return Ongoing, 0, ErrInvalidState
	}
	if inv.GameOver() {
		return Ongoing, 0, ErrInvalidState
	}

	role, ok := s.roleIn(inv)
	if !ok {
		return Ongoing, 0, ErrWrongRole
	}

	if err := inv.Close(role); err != nil {
		return Ongoing, 0, err
	}

	peer := counterpart(s, inv)
	unlock := lockPair(s, peer)
	peerID := peer.removeInvitationLocked(inv)
	selfID := s.removeInvitationLocked(inv)
	unlock()

	winner := inv.Game().Winner()
	peerBefore := peer.Player().Rating()
	player.UpdateK(s.Player(), peer.Player(), player.P2Win, s.ratingK)
	delta := peer.Player().Rating() - peerBefore

	if peerID >= 0 {
		_ = peer.SendPacket(proto.Header{Type: proto.RESIGNED, ID: uint8(peerID)}, nil)
	}
	if selfID >= 0 {
		_ = s.SendPacket(proto.Header{Type: proto.ENDED, ID: uint8(selfID), Role: winner}, nil)
	}
	if peerID >= 0 {
		_ = peer.SendPacket(proto.Header{Type: proto.ENDED, ID: uint8(peerID), Role: winner}, nil)
	}

	return Lost, delta, nil
}

// MakeMove parses MOVESTR with S's role in the game named by ID,
// applies it, and notifies the opponent with MOVED carrying the
// opponent's own local invitation id, the new board, plus a "X to
// move"/"O to move" trailer (omitted once the game has ended). If the
// move ends the game, ratings are updated for every outcome including
// a draw, ENDED is sent to both sides (each carrying the recipient's
// own local id), the invitation is closed and removed from both
// lists, and the returned Outcome reports Won/Lost/Drawn from S's own
// side; otherwise it is Ongoing. The returned int is the winning
// side's rating gain (0 for a draw or an ongoing game).
func (s *Session) MakeMove(id uint8, moveStr string) (Outcome, int, error) {
	s.mu.Lock()
	inv, ok := s.lookupInvitationLocked(id)
	s.mu.Unlock()
	if !ok {
		return Ongoing, 0, ErrUnknownID
	}

	if inv.State() != invite.Accepted {
		return Ongoing, 0, ErrInvalidState
	}
	if inv.GameOver() {
		return Ongoing, 0, ErrInvalidState
	}

	role, ok := s.roleIn(inv)
	if !ok {
		return Ongoing, 0, ErrWrongRole
	}

	mv, ok := game.ParseMove(role, moveStr)
	if !ok {
		return Ongoing, 0, ErrInvalidMove
	}
	result, err := inv.ApplyMove(mv)
	if err != nil {
		return Ongoing, 0, ErrInvalidMove
	}

	peer := counterpart(s, inv)

	peerID, _ := peer.invitationID(inv)
	payload := result.Board
	if !result.Over {
		payload += "\n" + result.Next.String() + " to move"
	}
	_ = peer.SendPacket(proto.Header{Type: proto.MOVED, ID: peerID}, []byte(payload))

	if !result.Over {
		return Ongoing, 0, nil
	}

	_ = inv.Close(proto.NoRole)

	unlock := lockPair(s, peer)
	peerEndID := peer.removeInvitationLocked(inv)
	selfEndID := s.removeInvitationLocked(inv)
	unlock()

	winner := result.Winner
	selfBefore, peerBefore := s.Player().Rating(), peer.Player().Rating()
	var outcome Outcome
	var delta int
	switch {
	case winner == proto.NoRole:
		outcome = Drawn
		player.UpdateK(s.Player(), peer.Player(), player.Draw, s.ratingK)
	case winner == role:
		outcome = Won
		player.UpdateK(s.Player(), peer.Player(), player.P1Win, s.ratingK)
		delta = s.Player().Rating() - selfBefore
	default:
		outcome = Lost
		player.UpdateK(s.Player(), peer.Player(), player.P2Win, s.ratingK)
		delta = peer.Player().Rating() - peerBefore
	}

	if selfEndID >= 0 {
		_ = s.SendPacket(proto.Header{Type: proto.ENDED, ID: uint8(selfEndID), Role: winner}, nil)
	}
	if peerEndID >= 0 {
		_ = peer.SendPacket(proto.Header{Type: proto.ENDED, ID: uint8(peerEndID), Role: winner}, nil)
	}

	return outcome, delta, nil
}
