// In-memory game ledger.
//
// Grounded on go-kgp's db.go: an "action" type closing over a *sql.DB
// and a context, submitted on a channel that a small worker pool
// drains (databaseManager/manageDatabase there), plus the shared
// sqlite3 driver import. The ledger never touches disk: it exists to
// give the running process an auditable record of completed games,
// not to persist state across restarts.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// action is a unit of work submitted to the ledger's worker pool.
type action func(*sql.DB, context.Context) error

// Record is one completed game as stored in the ledger.
type Record struct {
	ID       int64
	Winner   string
	Loser    string
	Outcome  string // "win" or "draw"
	Delta    int    // magnitude of the winner's rating gain
	RecordAt time.Time
}

// Ledger is an in-memory, shared-cache sqlite database fed by a
// worker pool of goroutines reading from a single actions channel, so
// that callers do not wait for the write itself; RecordGame blocks
// only while the channel's 16 queued actions are all pending.
type Ledger struct {
	db  *sql.DB
	act chan action
	wg  sync.WaitGroup
	log *log.Logger
}

// Open creates the ledger's in-memory database, runs its schema, and
// starts THREADS worker goroutines to drain submitted actions. THREADS
// is clamped to at least 1.
func Open(threads uint, logger *log.Logger) (*Ledger, error) {
	if logger == nil {
		logger = log.Default()
	}
	if threads == 0 {
		threads = 1
	}

	// A shared-cache DSN is required for more than one connection to
	// see the same in-memory database; go-kgp's manageDatabase opens
	// a single on-disk file instead, which needs no such trick.
	db, err := sql.Open("sqlite3", "file:jeux?mode=memory&cache=shared")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(int(threads))

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	l := &Ledger{
		db:  db,
		act: make(chan action, 16),
		log: logger,
	}
	for i := uint(0); i < threads; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l, nil
}

const schema = `
CREATE TABLE games (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	winner   TEXT NOT NULL,
	loser    TEXT NOT NULL,
	outcome  TEXT NOT NULL,
	delta    INTEGER NOT NULL,
	recorded DATETIME NOT NULL
);
`

func (l *Ledger) worker() {
	defer l.wg.Done()
	for act := range l.act {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := act(l.db, ctx); err != nil {
			l.log.Print("ledger: ", err)
		}
		cancel()
	}
}

// RecordGame queues an insert of a completed game. WINNER is empty on
// a draw, in which case OUTCOME should be "draw" and DELTA is ignored
// by convention (callers pass 0).
func (l *Ledger) RecordGame(winner, loser, outcome string, delta int) {
	when := time.Now()
	l.act <- func(db *sql.DB, ctx context.Context) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO games (winner, loser, outcome, delta, recorded) VALUES (?, ?, ?, ?, ?)`,
			winner, loser, outcome, delta, when)
		return err
	}
}

// GamesFor returns every recorded game naming PLAYER as winner or
// loser, most recent first.
func (l *Ledger) GamesFor(player string) ([]Record, error) {
	rows, err := l.db.Query(
		`SELECT id, winner, loser, outcome, delta, recorded FROM games
		 WHERE winner = ? OR loser = ? ORDER BY recorded DESC`,
		player, player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Winner, &r.Loser, &r.Outcome, &r.Delta, &r.RecordAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of games recorded.
func (l *Ledger) Count() (int, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}

// Close stops accepting new actions, waits for the worker pool to
// drain the queue, and closes the database.
func (l *Ledger) Close() {
	close(l.act)
	l.wg.Wait()
	l.db.Close()
}
