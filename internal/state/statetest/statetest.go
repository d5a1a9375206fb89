// Package statetest provides helper functions to create tests using checkers state.
package statetest

import (
	"github.com/gomlx/exceptions"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"strings"
)

// ParseState builds a BoardState from 8 lines of 8 letters (see Cell.Letter): "x" and "X" for
// Mine regular and king, "o" and "O" for Opponent, "." for empty.
// Spaces and empty lines are ignored, so layouts can be indented.
func ParseState(layout string) BoardState {
	var s BoardState
	idx := 0
	for _, r := range layout {
		var c Cell
		switch r {
		case ' ', '\t', '\n':
			continue
		case '.':
			c = Empty
		case 'x':
			c = OwnRegular
		case 'X':
			c = OwnKing
		case 'o':
			c = OpponentRegular
		case 'O':
			c = OpponentKing
		default:
			exceptions.Panicf("invalid letter %q in board layout", r)
		}
		if idx >= NumCells {
			exceptions.Panicf("board layout has more than %d cells", NumCells)
		}
		s[idx] = c
		idx++
	}
	if idx != NumCells {
		exceptions.Panicf("board layout has %d cells, wanted %d: %q", idx, NumCells, strings.TrimSpace(layout))
	}
	return s
}

// BuildBoard from a layout (see ParseState), with the given side to move.
func BuildBoard(layout string, mover Side) *Board {
	return NewBoardFromState(ParseState(layout), mover)
}
