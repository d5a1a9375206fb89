// Package dataset holds the training examples collected from self-play, their canonicalization,
// and the Store where multiple self-play workers accumulate them for the trainer.
package dataset

import (
	"github.com/janpfeifer/checkersGo/internal/features"
	. "github.com/janpfeifer/checkersGo/internal/state"
)

// Ply is one move played in a game: the side that moved, the state it observed before moving,
// and the move it chose.
type Ply struct {
	Mover Side
	State BoardState
	Move  Move
}

// Example is a canonicalized training example, as persisted in the Store.
// Board holds the 64 raw cell values and Move holds [from.x, from.y, to.x, to.y].
type Example struct {
	Board [NumCells]int8 `json:"board"`
	Move  [4]int8        `json:"move"`
}

// NewExample creates an Example from a state and move.
func NewExample(s BoardState, m Move) Example {
	return Example{Board: s.Int8s(), Move: m.Array()}
}

// State returns the board of the example.
func (e Example) State() BoardState {
	return BoardStateFromInt8s(e.Board)
}

// Features returns the encoded board, see features.EncodeBoard.
func (e Example) Features() []float32 {
	return features.EncodeBoard(e.State())
}

// Labels returns the encoded move, see features.EncodeMove.
func (e Example) Labels() []float32 {
	return features.EncodeMoveArray(e.Move)
}

// Canonicalize converts a ply to the canonical perspective, given the final outcome of the game.
//
// Only plies of the side that didn't lose are kept:
//
//   - Opponent plies, on a draw or Opponent victory, are kept as they are.
//   - Mine plies, on a draw or Mine victory, are mirrored: the flattened board is reversed
//     (cell values are not negated) and each move coordinate c becomes 7-c.
//
// It returns false if the ply is discarded.
func Canonicalize(ply Ply, outcome Outcome) (Example, bool) {
	switch {
	case ply.Mover == Opponent && (outcome == Draw || outcome == WinnerOpponent):
		return NewExample(ply.State, ply.Move), true
	case ply.Mover == Mine && (outcome == Draw || outcome == WinnerMine):
		return NewExample(ply.State.Mirror(), ply.Move.Mirror()), true
	}
	return Example{}, false
}

// CanonicalizeAll applies Canonicalize to the plies of a game, and returns the examples kept.
func CanonicalizeAll(plies []Ply, outcome Outcome) []Example {
	examples := make([]Example, 0, len(plies))
	for _, ply := range plies {
		if example, ok := Canonicalize(ply, outcome); ok {
			examples = append(examples, example)
		}
	}
	return examples
}

// EncodeAll returns the board features and move labels of all examples.
func EncodeAll(examples []Example) (boards, moves [][]float32) {
	boards = make([][]float32, len(examples))
	moves = make([][]float32, len(examples))
	for ii, e := range examples {
		boards[ii] = e.Features()
		moves[ii] = e.Labels()
	}
	return
}
