package game

import (
	"testing"

	"jeux/proto"
)

func TestFirstPlayerWinsTopRow(t *testing.T) {
	g := New()
	moves := []Move{
		{Cell: 0, Piece: X}, {Cell: 3, Piece: O},
		{Cell: 1, Piece: X}, {Cell: 4, Piece: O},
		{Cell: 2, Piece: X},
	}
	for i, m := range moves {
		if err := g.ApplyMove(m); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}
	if !g.IsOver() {
		t.Fatal("expected game over")
	}
	if g.Winner() != proto.First {
		t.Fatalf("winner = %v, want First", g.Winner())
	}
}

func TestDraw(t *testing.T) {
	g := New()
	// standard draw: X O X / X O O / O X X
	seq := []int{0, 1, 2, 4, 3, 5, 7, 6, 8}
	for i, cell := range seq {
		piece := X
		if i%2 == 1 {
			piece = O
		}
		if err := g.ApplyMove(Move{Cell: cell, Piece: piece}); err != nil {
			t.Fatalf("move %d (cell %d): %v", i, cell, err)
		}
	}
	if !g.IsOver() {
		t.Fatal("expected game over")
	}
	if g.Winner() != proto.NoRole {
		t.Fatalf("winner = %v, want draw (NoRole)", g.Winner())
	}
}

func TestApplyMoveRejectsWrongPiece(t *testing.T) {
	g := New()
	if err := g.ApplyMove(Move{Cell: 0, Piece: O}); err != ErrWrongPiece {
		t.Fatalf("err = %v, want ErrWrongPiece", err)
	}
}

func TestApplyMoveRejectsOccupiedCell(t *testing.T) {
	g := New()
	if err := g.ApplyMove(Move{Cell: 0, Piece: X}); err != nil {
		t.Fatal(err)
	}
	if err := g.ApplyMove(Move{Cell: 0, Piece: O}); err != ErrOccupied {
		t.Fatalf("err = %v, want ErrOccupied", err)
	}
}

func TestApplyMoveRejectsAfterOver(t *testing.T) {
	g := New()
	if err := g.Resign(proto.First); err != nil {
		t.Fatal(err)
	}
	if err := g.ApplyMove(Move{Cell: 0, Piece: X}); err != ErrOver {
		t.Fatalf("err = %v, want ErrOver", err)
	}
}

func TestResignSetsOppositeWinner(t *testing.T) {
	g := New()
	if err := g.Resign(proto.First); err != nil {
		t.Fatal(err)
	}
	if g.Winner() != proto.Second {
		t.Fatalf("winner = %v, want Second", g.Winner())
	}
	if err := g.Resign(proto.Second); err != ErrOver {
		t.Fatalf("second resign should fail, got %v", err)
	}
}

func TestParseMoveRoundTrip(t *testing.T) {
	for cell := 0; cell < 9; cell++ {
		for _, piece := range []Piece{X, O} {
			m := Move{Cell: cell, Piece: piece}
			s := UnparseMove(m)
			got, ok := ParseMove(proto.NoRole, s)
			if !ok {
				t.Fatalf("ParseMove(%q) failed", s)
			}
			if got != m {
				t.Fatalf("round trip mismatch: %v != %v", got, m)
			}
		}
	}
}

func TestParseMoveRoleMismatchFails(t *testing.T) {
	if _, ok := ParseMove(proto.Second, "3X"); ok {
		t.Fatal("expected role mismatch to fail parsing")
	}
	if _, ok := ParseMove(proto.First, "3X"); !ok {
		t.Fatal("expected matching role to parse")
	}
}

func TestParseMoveRequiresPiece(t *testing.T) {
	if _, ok := ParseMove(proto.First, "3"); ok {
		t.Fatal("expected parse failure without explicit piece")
	}
}
