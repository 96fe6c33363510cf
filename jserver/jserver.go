// Connection Service Loop.
//
// Grounded on go-kgp's proto.go (a single Interpret dispatch switching
// on a command verb, translating each branch into an action on the
// Client) and client.go's Handle (one goroutine per connection,
// reading until EOF, then tearing the client down). Here the dispatch
// key is the fixed packet Type byte rather than a parsed command
// word, and every branch maps directly onto a Client Session method.
package jserver

import (
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"jeux/ledger"
	"jeux/player"
	"jeux/proto"
	"jeux/session"
)

// Server wires the player and session registries, and an optional
// ledger, into the packet dispatch table of spec.md §4.8.
type Server struct {
	Sessions *session.Registry
	Players  *player.Registry
	Ledger   *ledger.Ledger // nil disables audit recording
	Log      *log.Logger

	gamesInProgress int64
	gamesCompleted  int64
}

// New builds a Server. LOGGER may be nil, in which case log.Default is used.
func New(sessions *session.Registry, players *player.Registry, led *ledger.Ledger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{Sessions: sessions, Players: players, Ledger: led, Log: logger}
}

// LiveSessions, GamesInProgress, and GamesCompleted satisfy ops.Source.
func (srv *Server) LiveSessions() int    { return srv.Sessions.Count() }
func (srv *Server) GamesInProgress() int { return int(atomic.LoadInt64(&srv.gamesInProgress)) }
func (srv *Server) GamesCompleted() int  { return int(atomic.LoadInt64(&srv.gamesCompleted)) }

// Serve registers CONN as a Client Session and runs its service loop
// until the peer disconnects, then logs the session out (if needed)
// and unregisters it. It never returns an error to the caller; per
// spec.md §7, a registry-full or read failure simply ends this one
// connection.
func (srv *Server) Serve(conn net.Conn) {
	s, err := srv.Sessions.Register(conn)
	if err != nil {
		srv.Log.Print("jserver: ", err)
		conn.Close()
		return
	}
	defer func() {
		if s.IsLoggedIn() {
			srv.logout(s)
		}
		srv.Sessions.Unregister(s)
	}()

	srv.Log.Printf("jserver: new connection from %s", remoteAddr(conn))
	for {
		pkt, err := proto.Decode(conn)
		if err != nil {
			srv.Log.Printf("jserver: %s disconnected", s)
			return
		}
		srv.dispatch(s, pkt)
	}
}

func remoteAddr(conn net.Conn) string {
	if conn.RemoteAddr() == nil {
		return "unknown"
	}
	return conn.RemoteAddr().String()
}

// requiresLogin reports whether TYP may only be issued by a
// logged-in session, per spec.md §4.8's dispatch table.
func requiresLogin(typ proto.Type) bool {
	return typ != proto.LOGIN
}

// dispatch handles one decoded packet for S, per spec.md §4.8, and
// replies with exactly one ACK or NACK (except LOGIN, whose ACK/NACK
// is sent by handleLogin directly, since its ACK-vs-NACK decision is
// entangled with the login-state check itself).
func (srv *Server) dispatch(s *session.Session, pkt proto.Packet) {
	if requiresLogin(pkt.Type) && !s.IsLoggedIn() {
		_ = s.SendNack()
		return
	}

	var (
		ok      bool
		payload []byte
	)

	switch pkt.Type {
	case proto.LOGIN:
		srv.handleLogin(s, pkt)
		return
	case proto.USERS:
		payload, ok = srv.handleUsers(s), true
	case proto.INVITE:
		ok = srv.handleInvite(s, pkt)
	case proto.REVOKE:
		ok = s.Revoke(pkt.ID) == nil
	case proto.DECLINE:
		ok = s.Decline(pkt.ID) == nil
	case proto.ACCEPT:
		var ack []byte
		ack, ok = handleErr(s.Accept(pkt.ID))
		if ok {
			atomic.AddInt64(&srv.gamesInProgress, 1)
		}
		payload = ack
	case proto.MOVE:
		ok = srv.handleMove(s, pkt)
	case proto.RESIGN:
		ok = srv.handleResign(s, pkt)
	default:
		ok = false
	}

	if !ok {
		_ = s.SendNack()
		return
	}
	_ = s.SendAck(payload)
}

// handleErr adapts a (value, error) accessor to the (value, ok) shape
// the dispatch switch above expects.
func handleErr(payload []byte, err error) ([]byte, bool) {
	return payload, err == nil
}

// handleLogin processes LOGIN: the payload names the player; failure
// (already logged in, or the name is already claimed by another live
// session) yields NACK, success registers the Player and ACKs.
func (srv *Server) handleLogin(s *session.Session, pkt proto.Packet) {
	name := pkt.Text()
	if name == "" {
		_ = s.SendNack()
		return
	}

	p := srv.Players.Register(name)
	if err := s.Login(p); err != nil {
		_ = s.SendNack()
		return
	}
	_ = s.SendAck(nil)
}

// handleUsers builds the tab-separated "<name>\t<rating>\n" listing
// of every logged-in player, with no trailing newline.
func (srv *Server) handleUsers(s *session.Session) []byte {
	players := srv.Sessions.AllPlayers()
	var out []byte
	for i, p := range players {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, p.Name()...)
		out = append(out, '\t')
		out = append(out, strconv.Itoa(p.Rating())...)
	}
	return out
}

// handleInvite looks up the target by the payload name and derives
// roles from the header's role byte: 1 => target plays First, source
// Second; 2 => target Second, source First; anything else is
// InvalidRequest per spec.md §9's resolved open question.
func (srv *Server) handleInvite(s *session.Session, pkt proto.Packet) bool {
	target := srv.Sessions.Lookup(pkt.Text())
	if target == nil {
		return false
	}

	var srcRole, tgtRole proto.Role
	switch pkt.Role {
	case proto.First:
		tgtRole, srcRole = proto.First, proto.Second
	case proto.Second:
		tgtRole, srcRole = proto.Second, proto.First
	default:
		return false
	}

	_, err := s.MakeInvitation(target, srcRole, tgtRole)
	return err == nil
}

// handleMove applies a MOVE and, if it ended the game, records it to
// the ledger and adjusts the in-progress/completed counters. MakeMove
// itself reports the Outcome, so there is no need to infer it by
// comparing ratings before and after.
func (srv *Server) handleMove(s *session.Session, pkt proto.Packet) bool {
	peer := s.Peer(pkt.ID)
	if peer == nil {
		return false
	}

	outcome, delta, err := s.MakeMove(pkt.ID, pkt.Text())
	if err != nil {
		return false
	}
	if outcome != session.Ongoing {
		srv.recordGameEnd(s.Player(), peer.Player(), outcome, delta)
	}
	return true
}

// handleResign always ends the game.
func (srv *Server) handleResign(s *session.Session, pkt proto.Packet) bool {
	peer := s.Peer(pkt.ID)
	if peer == nil {
		return false
	}

	outcome, delta, err := s.ResignGame(pkt.ID)
	if err != nil {
		return false
	}
	srv.recordGameEnd(s.Player(), peer.Player(), outcome, delta)
	return true
}

// logout logs S out, then accounts for every game its pending
// invitations ended by resignation — the same bookkeeping handleResign
// does for an explicit RESIGN, needed here because a dropped connection
// ends an in-progress game without ever reaching handleResign.
func (srv *Server) logout(s *session.Session) {
	me := s.Player()
	ended, err := s.Logout()
	if err != nil {
		return
	}
	for _, e := range ended {
		srv.recordGameEnd(me, e.Peer.Player(), session.Lost, e.Delta)
	}
}

// recordGameEnd updates the in-progress/completed counters and, if a
// ledger is configured, records the outcome from ME's point of view.
func (srv *Server) recordGameEnd(me, them *player.Player, outcome session.Outcome, delta int) {
	atomic.AddInt64(&srv.gamesInProgress, -1)
	atomic.AddInt64(&srv.gamesCompleted, 1)

	if srv.Ledger == nil || me == nil || them == nil {
		return
	}

	switch outcome {
	case session.Won:
		srv.Ledger.RecordGame(me.Name(), them.Name(), "win", delta)
	case session.Lost:
		srv.Ledger.RecordGame(them.Name(), me.Name(), "win", delta)
	default:
		srv.Ledger.RecordGame("", me.Name()+","+them.Name(), "draw", 0)
	}
}
