// 3x3 board state machine.
//
// Grounded on go-kgp's board.go (pit-array board representation,
// Legal/Sow/Over accessors) and game.go (Side, Outcome, move
// application), adapted from Kalah's pit-sowing rules to tic-tac-toe's
// mark-and-check rules.
package game

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"jeux/proto"
)

// Piece is a mark on the board. Empty denotes an unoccupied cell.
type Piece uint8

const (
	Empty Piece = iota
	X
	O
)

func (p Piece) String() string {
	switch p {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return " "
	}
}

var (
	// ErrOver is returned by ApplyMove or Resign on a terminated game.
	ErrOver = errors.New("game: already terminated")
	// ErrOccupied is returned by ApplyMove targeting a non-empty cell.
	ErrOccupied = errors.New("game: cell already occupied")
	// ErrWrongPiece is returned by ApplyMove when the move's piece is
	// not the one whose turn it is.
	ErrWrongPiece = errors.New("game: not that piece's turn")
	// ErrOutOfRange is returned by ApplyMove for a cell outside [0,8].
	ErrOutOfRange = errors.New("game: cell out of range")
)

// Move is a single placement: Cell is a row-major index in [0,8] and
// Piece is the mark being placed.
type Move struct {
	Cell  int
	Piece Piece
}

// the eight winning lines as cell-index triples: rows, columns, diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Game is a 3x3 tic-tac-toe board plus whose turn it is.
type Game struct {
	cells      [9]Piece
	next       Piece
	terminated bool
	winner     proto.Role
}

// New returns a fresh, empty board with X to move.
func New() *Game {
	return &Game{next: X}
}

// NextPiece returns the piece to move next. Once the game is over its
// value is meaningless.
func (g *Game) NextPiece() Piece {
	return g.next
}

// IsOver reports whether the game has terminated, by line, draw, or
// resignation.
func (g *Game) IsOver() bool {
	return g.terminated
}

// Winner reports the winning role once the game is over. It returns
// proto.NoRole both while the game is in progress and on a draw;
// callers must check IsOver to distinguish the two.
func (g *Game) Winner() proto.Role {
	return g.winner
}

// Board returns a snapshot of the 9 cells in row-major order.
func (g *Game) Board() [9]Piece {
	return g.cells
}

// ApplyMove places m.Piece at m.Cell. It fails if the game is over,
// the cell is out of range or occupied, or m.Piece is not the piece
// whose turn it is. On success the next piece to move toggles and
// termination is recomputed.
func (g *Game) ApplyMove(m Move) error {
	if g.terminated {
		return ErrOver
	}
	if m.Cell < 0 || m.Cell > 8 {
		return ErrOutOfRange
	}
	if m.Piece != g.next {
		return ErrWrongPiece
	}
	if g.cells[m.Cell] != Empty {
		return ErrOccupied
	}

	g.cells[m.Cell] = m.Piece
	g.next = g.opposite(m.Piece)
	g.recompute()
	return nil
}

// Resign terminates the game in favour of the opposite of ROLE. It
// fails if the game is already over.
func (g *Game) Resign(role proto.Role) error {
	if g.terminated {
		return ErrOver
	}
	g.terminated = true
	g.winner = role.Opposite()
	return nil
}

func (g *Game) opposite(p Piece) Piece {
	if p == X {
		return O
	}
	return X
}

// recompute scans for a completed line or a full board and updates
// g.terminated/g.winner accordingly.
func (g *Game) recompute() {
	for _, line := range lines {
		a, b, c := g.cells[line[0]], g.cells[line[1]], g.cells[line[2]]
		if a != Empty && a == b && b == c {
			g.terminated = true
			if a == X {
				g.winner = proto.First
			} else {
				g.winner = proto.Second
			}
			return
		}
	}

	for _, c := range g.cells {
		if c == Empty {
			return
		}
	}
	g.terminated = true
	g.winner = proto.NoRole // draw
}

// pieceForRole maps a role to the piece it plays: First is X, Second
// is O. NoRole has no corresponding piece.
func pieceForRole(r proto.Role) (Piece, bool) {
	switch r {
	case proto.First:
		return X, true
	case proto.Second:
		return O, true
	default:
		return Empty, false
	}
}

// ParseMove parses a textual move of the form "<digit>[ -> <letter>]":
// a leading decimal digit 1-9 names the cell in row-major order
// (cell = digit-1), and a trailing X/x or O/o names the piece. The
// piece is REQUIRED: spec.md §4.4 leaves open whether a role-supplied
// move may omit it, and this implementation always requires it
// explicit, which keeps UnparseMove a total inverse of ParseMove
// without depending on session context. If ROLE is not proto.NoRole,
// the parsed piece must match the piece ROLE plays, or parsing fails.
// Returns false on any parse failure or role mismatch.
func ParseMove(role proto.Role, s string) (Move, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Move{}, false
	}

	if !unicode.IsDigit(rune(s[0])) {
		return Move{}, false
	}
	digit, err := strconv.Atoi(s[:1])
	if err != nil || digit < 1 || digit > 9 {
		return Move{}, false
	}

	last := s[len(s)-1]
	var piece Piece
	switch last {
	case 'X', 'x':
		piece = X
	case 'O', 'o':
		piece = O
	default:
		return Move{}, false
	}

	if role != proto.NoRole {
		want, ok := pieceForRole(role)
		if !ok || want != piece {
			return Move{}, false
		}
	}

	return Move{Cell: digit - 1, Piece: piece}, true
}

// UnparseMove renders M in the textual form ParseMove accepts, e.g.
// "5X". It is the round-trip inverse of ParseMove for any valid move.
func UnparseMove(m Move) string {
	return strconv.Itoa(m.Cell+1) + m.Piece.String()
}

// UnparseState renders the board as the 5-line human-readable form:
// three content rows of "X|O| " separated by "-----" rows.
func (g *Game) UnparseState() string {
	var b strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("\n-----\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				b.WriteByte('|')
			}
			b.WriteString(g.cells[row*3+col].String())
		}
	}
	return b.String()
}
