package jserver

import (
	"net"
	"testing"
	"time"

	"jeux/player"
	"jeux/proto"
	"jeux/session"
)

// client wraps one end of a pipe with the send/receive helpers a real
// client would use: write a request packet, then block for the reply.
type client struct {
	t    *testing.T
	conn net.Conn
}

func (c *client) send(typ proto.Type, id uint8, role proto.Role, payload string) {
	c.t.Helper()
	var body []byte
	if payload != "" {
		body = []byte(payload)
	}
	if err := proto.Encode(c.conn, proto.Header{Type: typ, ID: id, Role: role}, body); err != nil {
		c.t.Fatalf("send %v: %v", typ, err)
	}
}

func (c *client) recv() proto.Packet {
	c.t.Helper()
	pkt, err := proto.Decode(c.conn)
	if err != nil {
		c.t.Fatalf("recv: %v", err)
	}
	return pkt
}

func newServer() *Server {
	return New(session.NewRegistry(session.DefaultCapacity), player.NewRegistry(), nil, nil)
}

func serveOnPipe(srv *Server) net.Conn {
	serverSide, clientSide := net.Pipe()
	go srv.Serve(serverSide)
	return clientSide
}

func login(t *testing.T, srv *Server, name string) (*client, net.Conn) {
	t.Helper()
	conn := serveOnPipe(srv)
	c := &client{t: t, conn: conn}
	c.send(proto.LOGIN, 0, proto.NoRole, name)
	if reply := c.recv(); reply.Type != proto.ACK {
		t.Fatalf("login %s: got %v, want ACK", name, reply.Type)
	}
	return c, conn
}

func TestLoginUniqueness(t *testing.T) {
	srv := newServer()

	_, aconn := login(t, srv, "alice")
	defer aconn.Close()

	bconn := serveOnPipe(srv)
	defer bconn.Close()
	bob := &client{t: t, conn: bconn}

	bob.send(proto.LOGIN, 0, proto.NoRole, "alice")
	if reply := bob.recv(); reply.Type != proto.NACK {
		t.Fatalf("duplicate login: got %v, want NACK", reply.Type)
	}

	bob.send(proto.LOGIN, 0, proto.NoRole, "bob")
	if reply := bob.recv(); reply.Type != proto.ACK {
		t.Fatalf("bob login: got %v, want ACK", reply.Type)
	}
}

func TestUsersBeforeLoginIsNacked(t *testing.T) {
	srv := newServer()
	conn := serveOnPipe(srv)
	defer conn.Close()
	c := &client{t: t, conn: conn}

	c.send(proto.USERS, 0, proto.NoRole, "")
	if reply := c.recv(); reply.Type != proto.NACK {
		t.Fatalf("USERS before login: got %v, want NACK", reply.Type)
	}
}

func TestInviteAcceptPlayMoveToWin(t *testing.T) {
	srv := newServer()

	alice, aconn := login(t, srv, "alice")
	defer aconn.Close()
	bob, bconn := login(t, srv, "bob")
	defer bconn.Close()

	alice.send(proto.INVITE, 0, proto.Second, "bob")
	// net.Pipe is unbuffered: the server writes INVITED to bob before
	// it ACKs alice, so bob's packet has to be read first.
	invited := bob.recv()
	if invited.Type != proto.INVITED || invited.Role != proto.Second {
		t.Fatalf("unexpected INVITED: %+v", invited.Header)
	}
	if invited.Text() != "alice" {
		t.Fatalf("INVITED payload = %q, want alice", invited.Text())
	}
	if reply := alice.recv(); reply.Type != proto.ACK {
		t.Fatalf("invite: got %v, want ACK", reply.Type)
	}

	bob.send(proto.ACCEPT, invited.ID, proto.NoRole, "")
	accepted := alice.recv() // ACCEPTED to source, who plays First
	if accepted.Type != proto.ACCEPTED || accepted.Text() == "" {
		t.Fatalf("unexpected ACCEPTED: %+v", accepted.Header)
	}
	ack := bob.recv()
	if ack.Type != proto.ACK || ack.Text() != "" {
		t.Fatalf("target ACK should be empty (plays Second): %+v %q", ack.Header, ack.Text())
	}

	srcID := accepted.ID
	tgtID := invited.ID

	play := func(mover *client, watcher *client, id uint8, mv string) {
		t.Helper()
		mover.send(proto.MOVE, id, proto.NoRole, mv)
		// MOVED to the watcher is written before the mover's ACK.
		moved := watcher.recv()
		if moved.Type != proto.MOVED {
			t.Fatalf("move %q: watcher got %v, want MOVED", mv, moved.Type)
		}
		ackPkt := mover.recv()
		if ackPkt.Type != proto.ACK {
			t.Fatalf("move %q ack: got %v", mv, ackPkt.Type)
		}
	}

	play(alice, bob, srcID, "1X")
	play(bob, alice, tgtID, "4O")
	play(alice, bob, srcID, "2X")
	play(bob, alice, tgtID, "5O")

	alice.send(proto.MOVE, srcID, proto.NoRole, "3X")
	// MakeMove writes MOVED to bob, then ENDED to alice and to bob,
	// all before returning; dispatch's ACK follows, so alice sees ENDED
	// first and bob sees MOVED before his ENDED.
	if moved := bob.recv(); moved.Type != proto.MOVED {
		t.Fatalf("final move: bob got %v, want MOVED", moved.Type)
	}
	endedAlice := alice.recv()
	endedBob := bob.recv()
	finalAck := alice.recv()
	if finalAck.Type != proto.ACK {
		t.Fatalf("final move ack: got %v", finalAck.Type)
	}
	if endedAlice.Type != proto.ENDED || endedAlice.Role != proto.First {
		t.Fatalf("alice ENDED = %+v, want role First", endedAlice.Header)
	}
	if endedBob.Type != proto.ENDED || endedBob.Role != proto.First {
		t.Fatalf("bob ENDED = %+v, want role First", endedBob.Header)
	}

	if srv.GamesCompleted() != 1 {
		t.Fatalf("GamesCompleted = %d, want 1", srv.GamesCompleted())
	}
}

func TestResignEndsGameAndDisconnectCleansUp(t *testing.T) {
	srv := newServer()

	alice, aconn := login(t, srv, "alice")
	bob, bconn := login(t, srv, "bob")
	defer bconn.Close()

	alice.send(proto.INVITE, 0, proto.Second, "bob")
	invited := bob.recv()
	if reply := alice.recv(); reply.Type != proto.ACK {
		t.Fatalf("invite: got %v", reply.Type)
	}

	bob.send(proto.ACCEPT, invited.ID, proto.NoRole, "")
	alice.recv() // ACCEPTED
	bob.recv()   // ACK

	bob.send(proto.RESIGN, invited.ID, proto.NoRole, "")
	// ResignGame writes RESIGNED to alice, ENDED to bob, then ENDED to
	// alice before it returns; dispatch's ACK follows, so bob sees
	// ENDED first. The pipes are unbuffered, so reads follow that order.
	if reply := alice.recv(); reply.Type != proto.RESIGNED {
		t.Fatalf("alice should see RESIGNED: got %v", reply.Type)
	}
	if reply := bob.recv(); reply.Type != proto.ENDED {
		t.Fatalf("bob should see ENDED: got %v", reply.Type)
	}
	if reply := alice.recv(); reply.Type != proto.ENDED {
		t.Fatalf("alice should then see ENDED: got %v", reply.Type)
	}
	if reply := bob.recv(); reply.Type != proto.ACK {
		t.Fatalf("resign ack: got %v", reply.Type)
	}

	// Closing alice's connection should drive logout/unregister without
	// leaving the service loop goroutine blocked.
	aconn.Close()
	deadline := time.Now().Add(time.Second)
	for srv.LiveSessions() == 2 {
		if time.Now().After(deadline) {
			t.Fatalf("alice's session was never unregistered after disconnect")
		}
		time.Sleep(time.Millisecond)
	}
}
