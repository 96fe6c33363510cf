package ledger

import (
	"testing"
	"time"
)

func open(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(2, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestRecordGameThenQuery(t *testing.T) {
	l := open(t)

	l.RecordGame("alice", "bob", "win", 16)
	l.RecordGame("carol", "alice", "win", 12)

	// RecordGame is fire-and-forget; give the worker pool a moment to
	// drain before querying.
	deadline := time.Now().Add(time.Second)
	for {
		n, err := l.Count()
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 recorded games, got %d", n)
		}
		time.Sleep(time.Millisecond)
	}

	games, err := l.GamesFor("alice")
	if err != nil {
		t.Fatalf("GamesFor: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("expected alice in 2 games, got %d", len(games))
	}
}

func TestGamesForUninvolvedPlayerIsEmpty(t *testing.T) {
	l := open(t)
	l.RecordGame("alice", "bob", "win", 16)

	deadline := time.Now().Add(time.Second)
	for {
		n, _ := l.Count()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	games, err := l.GamesFor("dave")
	if err != nil {
		t.Fatalf("GamesFor: %v", err)
	}
	if len(games) != 0 {
		t.Fatalf("expected no games for dave, got %d", len(games))
	}
}
