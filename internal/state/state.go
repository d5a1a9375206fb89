// Package state holds the checkers board representation and rules.
//
// The board is 8x8, stored row-major: cell (x, y) lives at index x*8+y. Row 0 is the top,
// where the Opponent pieces start, and row 7 is the bottom, where Mine pieces start.
//
// Cells hold a signed value: positive values belong to Mine, negative to Opponent,
// and the magnitude tells a regular piece (1) from a king (2).
package state

import (
	"fmt"
	"github.com/gomlx/exceptions"
	"strings"
)

const (
	// BoardSize is the number of rows and columns of the board.
	BoardSize = 8

	// NumCells in the board.
	NumCells = BoardSize * BoardSize

	// DefaultMaxPlies after which the game is considered a draw.
	DefaultMaxPlies = 200
)

// Cell is the content of one square of the board.
type Cell int8

const (
	OpponentKing    Cell = -2
	OpponentRegular Cell = -1
	Empty           Cell = 0
	OwnRegular      Cell = 1
	OwnKing         Cell = 2
)

// CellCategories enumerates all the possible cell values, in the order used by the features encoding.
var CellCategories = [5]Cell{OpponentKing, OpponentRegular, Empty, OwnRegular, OwnKing}

// IsValid returns whether the cell holds one of the 5 valid values.
func (c Cell) IsValid() bool {
	return c >= OpponentKing && c <= OwnKing
}

// IsKing returns whether cell holds a king of any side.
func (c Cell) IsKing() bool {
	return c == OwnKing || c == OpponentKing
}

// Owner returns the side owning the piece in the cell. The second value is false if the cell is empty.
func (c Cell) Owner() (Side, bool) {
	switch {
	case c > 0:
		return Mine, true
	case c < 0:
		return Opponent, true
	}
	return Opponent, false
}

// Letter used to display the cell.
func (c Cell) Letter() string {
	switch c {
	case OpponentKing:
		return "O"
	case OpponentRegular:
		return "o"
	case OwnRegular:
		return "x"
	case OwnKing:
		return "X"
	}
	return "."
}

// Side identifies one of the two players. Mine always moves first.
type Side int8

const (
	Mine     Side = 1
	Opponent Side = -1
)

// Other returns the other side.
func (s Side) Other() Side {
	return -s
}

// Regular returns the cell value of a regular piece of the side.
func (s Side) Regular() Cell {
	return Cell(s)
}

// King returns the cell value of a king of the side.
func (s Side) King() Cell {
	return Cell(2 * s)
}

func (s Side) String() string {
	switch s {
	case Mine:
		return "Mine"
	case Opponent:
		return "Opponent"
	}
	return fmt.Sprintf("Side(%d)", int8(s))
}

// Outcome of a game.
type Outcome uint8

const (
	Undecided Outcome = iota
	WinnerMine
	WinnerOpponent
	Draw
)

var outcomeNames = [...]string{"Undecided", "WinnerMine", "WinnerOpponent", "Draw"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// WinnerOf returns the Outcome where side wins.
func WinnerOf(side Side) Outcome {
	if side == Mine {
		return WinnerMine
	}
	return WinnerOpponent
}

// Coord of a cell in the board: X is the row and Y the column, both in [0, 7].
type Coord struct {
	X, Y int8
}

// IsValid returns whether the coordinate is within the board.
func (c Coord) IsValid() bool {
	return c.X >= 0 && c.X < BoardSize && c.Y >= 0 && c.Y < BoardSize
}

// Index of the coordinate in the row-major flattened board.
func (c Coord) Index() int {
	if !c.IsValid() {
		exceptions.Panicf("coordinate %s out of the board", c)
	}
	return int(c.X)*BoardSize + int(c.Y)
}

// CoordFromIndex is the inverse of Coord.Index.
func CoordFromIndex(idx int) Coord {
	if idx < 0 || idx >= NumCells {
		exceptions.Panicf("cell index %d out of the board", idx)
	}
	return Coord{X: int8(idx / BoardSize), Y: int8(idx % BoardSize)}
}

// Mirror returns the coordinate seen from the other side of the board: (7-x, 7-y).
func (c Coord) Mirror() Coord {
	return Coord{X: BoardSize - 1 - c.X, Y: BoardSize - 1 - c.Y}
}

// Add returns the coordinate displaced by (dx, dy). It may be outside the board.
func (c Coord) Add(dx, dy int8) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// Move of a piece from one cell to another.
type Move struct {
	From, To Coord
}

// Mirror returns the move seen from the other side of the board.
func (m Move) Mirror() Move {
	return Move{From: m.From.Mirror(), To: m.To.Mirror()}
}

// IsValid returns whether both coordinates are within the board.
func (m Move) IsValid() bool {
	return m.From.IsValid() && m.To.IsValid()
}

// Array returns the move as [from.x, from.y, to.x, to.y].
func (m Move) Array() [4]int8 {
	return [4]int8{m.From.X, m.From.Y, m.To.X, m.To.Y}
}

// MoveFromArray is the inverse of Move.Array.
func MoveFromArray(a [4]int8) Move {
	return Move{From: Coord{X: a[0], Y: a[1]}, To: Coord{X: a[2], Y: a[3]}}
}

func (m Move) String() string {
	return fmt.Sprintf("%s->%s", m.From, m.To)
}

// BoardState is an immutable snapshot of the 64 cells of the board, row-major.
type BoardState [NumCells]Cell

// At returns the cell at the given coordinate.
func (s BoardState) At(c Coord) Cell {
	return s[c.Index()]
}

// Mirror returns the state with the flattened cell order reversed, that is, the board rotated
// by 180 degrees. Cell values are kept as they are.
func (s BoardState) Mirror() BoardState {
	var m BoardState
	for ii, c := range s {
		m[NumCells-1-ii] = c
	}
	return m
}

// Int8s returns the cells as plain int8 values.
func (s BoardState) Int8s() [NumCells]int8 {
	var a [NumCells]int8
	for ii, c := range s {
		a[ii] = int8(c)
	}
	return a
}

// BoardStateFromInt8s is the inverse of BoardState.Int8s.
// It panics if any of the values is not a valid Cell.
func BoardStateFromInt8s(a [NumCells]int8) BoardState {
	var s BoardState
	for ii, v := range a {
		c := Cell(v)
		if !c.IsValid() {
			exceptions.Panicf("invalid cell value %d at index %d", v, ii)
		}
		s[ii] = c
	}
	return s
}

// Count returns how many cells hold the value c.
func (s BoardState) Count(c Cell) int {
	count := 0
	for _, v := range s {
		if v == c {
			count++
		}
	}
	return count
}

// String renders the state as 8 lines of letters, see Cell.Letter.
func (s BoardState) String() string {
	var sb strings.Builder
	for x := range BoardSize {
		for y := range BoardSize {
			sb.WriteString(s[x*BoardSize+y].Letter())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Game is the interface of a checkers game as seen by players and self-play sessions.
type Game interface {
	// CurrentMover returns the side to move next.
	CurrentMover() Side

	// State returns a snapshot of the current board.
	State() BoardState

	// LegalPieces returns the coordinates of the pieces of side that have at least one legal move.
	LegalPieces(side Side) []Coord

	// LegalDestinations returns where the piece at the given coordinate can move to.
	LegalDestinations(piece Coord) []Coord

	// ApplyMove executes the move for the current mover, including any follow-up captures,
	// and passes the turn.
	ApplyMove(move Move) error

	// IsFinished returns whether the game is over, and if so, its outcome.
	IsFinished() (bool, Outcome)

	// Clone returns an independent copy of the game.
	Clone() Game
}
