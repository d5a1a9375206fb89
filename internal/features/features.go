// Package features implements the encoding of boards and moves into the fixed size float vectors
// used by the models, and their decoding back.
//
// Board features are one-hot per cell category (see state.CellCategories): 5 blocks of 64 cells,
// concatenated and then reversed, for a total of BoardFeaturesDim.
//
// Move labels are 4 one-hot blocks of 8 values, for from.x, from.y, to.x and to.y, for a total
// of MoveLabelsDim.
package features

import (
	"fmt"
	"github.com/gomlx/exceptions"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"strings"
)

const (
	// NumCategories of cell values, see state.CellCategories.
	NumCategories = len(CellCategories)

	// BoardFeaturesDim is the dimension of the encoded board.
	BoardFeaturesDim = NumCategories * NumCells

	// NumMoveBlocks is the number of one-hot blocks in a move label: from.x, from.y, to.x, to.y.
	NumMoveBlocks = 4

	// MoveLabelsDim is the dimension of the encoded move.
	MoveLabelsDim = NumMoveBlocks * BoardSize
)

// categoryIndex returns the position of the cell value in state.CellCategories.
func categoryIndex(c Cell) int {
	for ii, cat := range CellCategories {
		if c == cat {
			return ii
		}
	}
	exceptions.Panicf("invalid cell value %d", c)
	return -1
}

// EncodeBoard returns the board features vector of length BoardFeaturesDim.
// It panics if the state holds invalid cell values.
func EncodeBoard(s BoardState) []float32 {
	f := make([]float32, BoardFeaturesDim)
	for cellIdx, c := range s {
		vecIdx := categoryIndex(c)*NumCells + cellIdx
		// Stored reversed.
		f[BoardFeaturesDim-1-vecIdx] = 1
	}
	return f
}

// DecodeBoard is the inverse of EncodeBoard. It returns an error if the vector has the wrong
// length, or if a cell matches zero or more than one category.
func DecodeBoard(f []float32) (BoardState, error) {
	var s BoardState
	if len(f) != BoardFeaturesDim {
		return s, errors.Errorf("board features must have length %d, got %d", BoardFeaturesDim, len(f))
	}
	for cellIdx := range NumCells {
		found := -1
		for catIdx := range NumCategories {
			if f[BoardFeaturesDim-1-(catIdx*NumCells+cellIdx)] == 0 {
				continue
			}
			if found >= 0 {
				return s, errors.Errorf("cell %s is set for categories %d and %d", CoordFromIndex(cellIdx), CellCategories[found], CellCategories[catIdx])
			}
			found = catIdx
		}
		if found < 0 {
			return s, errors.Errorf("cell %s has no category set", CoordFromIndex(cellIdx))
		}
		s[cellIdx] = CellCategories[found]
	}
	return s, nil
}

// EncodeMove returns the one-hot move labels, of length MoveLabelsDim.
// It panics if any coordinate is out of the board.
func EncodeMove(m Move) []float32 {
	if !m.IsValid() {
		exceptions.Panicf("move %s is out of the board", m)
	}
	f := make([]float32, MoveLabelsDim)
	for block, v := range m.Array() {
		f[block*BoardSize+int(v)] = 1
	}
	return f
}

// EncodeMoveArray is like EncodeMove, but takes the move as [from.x, from.y, to.x, to.y].
func EncodeMoveArray(a [4]int8) []float32 {
	return EncodeMove(MoveFromArray(a))
}

// ArgMax returns the index of the largest value. The first one wins on ties.
func ArgMax(values []float32) int {
	best := 0
	for ii, v := range values {
		if v > values[best] {
			best = ii
		}
	}
	return best
}

// DecodeMove takes the arg-max of each of the 4 blocks of a move labels vector (either one-hot
// or predicted scores) and returns the coordinates [from.x, from.y, to.x, to.y].
func DecodeMove(f []float32) [4]int8 {
	if len(f) != MoveLabelsDim {
		exceptions.Panicf("move labels must have length %d, got %d", MoveLabelsDim, len(f))
	}
	var coords [4]int8
	for block := range NumMoveBlocks {
		coords[block] = int8(ArgMax(f[block*BoardSize : (block+1)*BoardSize]))
	}
	return coords
}

// IsDegenerateBlock returns true if any of the 4 blocks of the move prediction has all values
// equal, in which case its arg-max carries no information.
func IsDegenerateBlock(f []float32) bool {
	for block := range NumMoveBlocks {
		values := f[block*BoardSize : (block+1)*BoardSize]
		allEqual := true
		for _, v := range values[1:] {
			if v != values[0] {
				allEqual = false
				break
			}
		}
		if allEqual {
			return true
		}
	}
	return false
}

// PrettyPrintMove returns the move labels formatted one block per line.
func PrettyPrintMove(f []float32) string {
	var sb strings.Builder
	names := [NumMoveBlocks]string{"from.x", "from.y", "to.x", "to.y"}
	for block := range NumMoveBlocks {
		_, _ = fmt.Fprintf(&sb, "%-7s %.3v\n", names[block], f[block*BoardSize:(block+1)*BoardSize])
	}
	return sb.String()
}
