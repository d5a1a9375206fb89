package state

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrIllegalMove is returned by Board.ApplyMove when the move is not among the legal ones.
var ErrIllegalMove = errors.New("illegal move")

// Board implements Game with the checkers rules:
//
//   - Mine moves first, starts on rows 5 to 7 and moves "up" towards row 0; Opponent starts on
//     rows 0 to 2 and moves "down" towards row 7. Pieces only occupy cells where x+y is odd.
//   - Regular pieces step diagonally forward, kings step diagonally in any direction.
//   - Any piece may capture by jumping over an adjacent enemy piece, in any diagonal direction.
//     A piece that can capture can only capture.
//   - After a capture, the same piece keeps capturing while it can, unless it was just promoted.
//   - A piece reaching the far row is promoted to king.
//   - A side with no movable pieces loses (Mine is checked first), and after MaxPlies the game
//     is a draw.
type Board struct {
	cells BoardState
	mover Side

	// PlyNumber counts the plies played so far.
	PlyNumber int

	// MaxPlies after which the game is a draw.
	MaxPlies int
}

var _ Game = (*Board)(nil)

// diagonals in the order they are searched.
var diagonals = [4][2]int8{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}

// NewBoard creates a board in the initial position, Mine to move.
func NewBoard() *Board {
	b := &Board{mover: Mine, MaxPlies: DefaultMaxPlies}
	for x := range BoardSize {
		if x == 3 || x == 4 {
			continue
		}
		for y := range BoardSize {
			if (x+y)%2 == 0 {
				continue
			}
			if x <= 2 {
				b.cells[x*BoardSize+y] = OpponentRegular
			} else {
				b.cells[x*BoardSize+y] = OwnRegular
			}
		}
	}
	return b
}

// NewBoardFromState creates a board with the given cells and side to move.
func NewBoardFromState(cells BoardState, mover Side) *Board {
	return &Board{cells: cells, mover: mover, MaxPlies: DefaultMaxPlies}
}

// CurrentMover implements Game.
func (b *Board) CurrentMover() Side { return b.mover }

// State implements Game.
func (b *Board) State() BoardState { return b.cells }

// Clone implements Game.
func (b *Board) Clone() Game {
	newB := &Board{}
	*newB = *b
	return newB
}

// forward returns the row direction regular pieces of side move to.
func forward(side Side) int8 {
	if side == Mine {
		return -1
	}
	return 1
}

// captures returns the landing cells of the jumps available to the piece at c.
func (b *Board) captures(c Coord) []Coord {
	piece := b.cells.At(c)
	owner, ok := piece.Owner()
	if !ok {
		return nil
	}
	var landings []Coord
	for _, d := range diagonals {
		over, land := c.Add(d[0], d[1]), c.Add(2*d[0], 2*d[1])
		if !land.IsValid() || b.cells.At(land) != Empty {
			continue
		}
		if overOwner, ok := b.cells.At(over).Owner(); ok && overOwner != owner {
			landings = append(landings, land)
		}
	}
	return landings
}

// steps returns the plain (non-capturing) destinations of the piece at c.
func (b *Board) steps(c Coord) []Coord {
	piece := b.cells.At(c)
	owner, ok := piece.Owner()
	if !ok {
		return nil
	}
	var dests []Coord
	for _, d := range diagonals {
		if !piece.IsKing() && d[0] != forward(owner) {
			continue
		}
		to := c.Add(d[0], d[1])
		if to.IsValid() && b.cells.At(to) == Empty {
			dests = append(dests, to)
		}
	}
	return dests
}

// LegalDestinations implements Game. If the piece can capture, only capture landings are returned.
func (b *Board) LegalDestinations(piece Coord) []Coord {
	if !piece.IsValid() {
		return nil
	}
	if landings := b.captures(piece); len(landings) > 0 {
		return landings
	}
	return b.steps(piece)
}

// LegalPieces implements Game.
func (b *Board) LegalPieces(side Side) []Coord {
	var pieces []Coord
	for idx, cell := range b.cells {
		if owner, ok := cell.Owner(); !ok || owner != side {
			continue
		}
		c := CoordFromIndex(idx)
		if len(b.LegalDestinations(c)) > 0 {
			pieces = append(pieces, c)
		}
	}
	return pieces
}

// LegalMoves enumerates all legal moves of side.
func (b *Board) LegalMoves(side Side) []Move {
	var moves []Move
	for _, from := range b.LegalPieces(side) {
		for _, to := range b.LegalDestinations(from) {
			moves = append(moves, Move{From: from, To: to})
		}
	}
	return moves
}

// isCapture returns whether the move jumps over a piece.
func isCapture(m Move) bool {
	dx := m.To.X - m.From.X
	return dx == 2 || dx == -2
}

// ApplyMove implements Game.
func (b *Board) ApplyMove(move Move) error {
	if !move.IsValid() {
		return errors.Wrapf(ErrIllegalMove, "move %s is out of the board", move)
	}
	owner, ok := b.cells.At(move.From).Owner()
	if !ok || owner != b.mover {
		return errors.Wrapf(ErrIllegalMove, "no piece of %s at %s", b.mover, move.From)
	}
	legal := false
	for _, to := range b.LegalDestinations(move.From) {
		if to == move.To {
			legal = true
			break
		}
	}
	if !legal {
		return errors.Wrapf(ErrIllegalMove, "%s for %s", move, b.mover)
	}

	for {
		promoted := b.movePiece(move)
		if promoted || !isCapture(move) {
			break
		}
		next := b.captures(move.To)
		if len(next) == 0 {
			break
		}
		move = Move{From: move.To, To: next[0]}
		klog.V(3).Infof("%s continues capturing with %s", b.mover, move)
	}
	b.mover = b.mover.Other()
	b.PlyNumber++
	return nil
}

// movePiece moves the piece, removing any jumped piece, and returns whether it was promoted.
func (b *Board) movePiece(move Move) (promoted bool) {
	piece := b.cells.At(move.From)
	owner, _ := piece.Owner()
	b.cells[move.From.Index()] = Empty
	if isCapture(move) {
		over := Coord{X: (move.From.X + move.To.X) / 2, Y: (move.From.Y + move.To.Y) / 2}
		b.cells[over.Index()] = Empty
	}
	if !piece.IsKing() && ((owner == Mine && move.To.X == 0) || (owner == Opponent && move.To.X == BoardSize-1)) {
		piece = owner.King()
		promoted = true
	}
	b.cells[move.To.Index()] = piece
	return
}

// IsFinished implements Game.
func (b *Board) IsFinished() (bool, Outcome) {
	if len(b.LegalPieces(Mine)) == 0 {
		return true, WinnerOpponent
	}
	if len(b.LegalPieces(Opponent)) == 0 {
		return true, WinnerMine
	}
	if b.MaxPlies > 0 && b.PlyNumber >= b.MaxPlies {
		return true, Draw
	}
	return false, Undecided
}
