// Package searchers implements the move selection policies used by self-play and by the
// interactive game.
package searchers

import (
	"github.com/janpfeifer/checkersGo/internal/generics"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
)

// ErrNoLegalMoves is returned by a Policy when the side to move has no legal move.
var ErrNoLegalMoves = errors.New("no legal moves")

// Policy selects the next move for the current mover of a game.
//
// Implementations must not modify the game.
type Policy interface {
	Select(game Game) (Move, error)
}

// MoveScorer scores each of the given moves for the current mover of the game: the higher
// the better.
type MoveScorer interface {
	ScoreMoves(game Game, moves []Move) ([]float32, error)
}

// LegalMoves lists all moves available to the current mover of the game, in the order given by
// Game.LegalPieces and Game.LegalDestinations.
func LegalMoves(game Game) []Move {
	var moves []Move
	for _, from := range game.LegalPieces(game.CurrentMover()) {
		moves = append(moves, generics.SliceMap(game.LegalDestinations(from), func(to Coord) Move {
			return Move{From: from, To: to}
		})...)
	}
	return moves
}

// NewBestScore returns a Policy that always picks the move with the highest score. Ties go to
// the first move.
func NewBestScore(scorer MoveScorer) Policy {
	return &bestScore{scorer: scorer}
}

type bestScore struct {
	scorer MoveScorer
}

var _ Policy = (*bestScore)(nil)

// Select implements Policy.
func (p *bestScore) Select(game Game) (Move, error) {
	moves := LegalMoves(game)
	if len(moves) == 0 {
		return Move{}, errors.Wrapf(ErrNoLegalMoves, "%s to move", game.CurrentMover())
	}
	scores, err := p.scorer.ScoreMoves(game, moves)
	if err != nil {
		return Move{}, err
	}
	best := 0
	for ii, score := range scores {
		if score > scores[best] {
			best = ii
		}
	}
	return moves[best], nil
}
