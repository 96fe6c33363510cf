package invite

import (
	"testing"

	"jeux/game"
	"jeux/proto"
)

type fakeSession string

func (f fakeSession) String() string { return string(f) }

func TestApplyMoveRejectsBeforeAccept(t *testing.T) {
	inv, err := Create(fakeSession("a"), fakeSession("b"), proto.First, proto.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inv.ApplyMove(game.Move{Cell: 0, Piece: game.X}); err != ErrNotActive {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
}

func TestApplyMoveSnapshotsResult(t *testing.T) {
	inv, err := Create(fakeSession("a"), fakeSession("b"), proto.First, proto.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Accept(); err != nil {
		t.Fatal(err)
	}

	res, err := inv.ApplyMove(game.Move{Cell: 0, Piece: game.X})
	if err != nil {
		t.Fatal(err)
	}
	if res.Over {
		t.Fatal("one move should not end the game")
	}
	if res.Next != game.O {
		t.Fatalf("Next = %v, want O", res.Next)
	}
	if inv.GameOver() {
		t.Fatal("GameOver should be false mid-game")
	}
}

func TestApplyMoveRejectsAfterClose(t *testing.T) {
	inv, err := Create(fakeSession("a"), fakeSession("b"), proto.First, proto.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Accept(); err != nil {
		t.Fatal(err)
	}
	if err := inv.Close(proto.First); err != nil {
		t.Fatal(err)
	}
	if !inv.GameOver() {
		t.Fatal("GameOver should be true once Closed")
	}
	if _, err := inv.ApplyMove(game.Move{Cell: 0, Piece: game.X}); err != ErrNotActive {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
}
