package searchers

import (
	"github.com/gomlx/exceptions"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
)

// NewRandomized returns a Policy that samples moves with probability given by the softmax of
// the scores of the scorer, divided by the temperature.
//
// Args:
//
//   - scorer: scores each move for the current mover.
//   - temperature (>=0): the larger the value the more it leads to randomness (exploration), and lower
//     values lead to "pick the best scoring move" (exploitation), with zero meaning no randomness.
//   - rng: random number generator; if nil the global one from math/rand/v2 is used.
func NewRandomized(scorer MoveScorer, temperature float64, rng *rand.Rand) Policy {
	if temperature <= 0 {
		return NewBestScore(scorer)
	}
	return &randomized{scorer: scorer, temperature: temperature, rng: rng}
}

type randomized struct {
	scorer      MoveScorer
	temperature float64

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Policy = (*randomized)(nil)

func (p *randomized) float64() float64 {
	if p.rng == nil {
		return rand.Float64()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// Select implements Policy.
func (p *randomized) Select(game Game) (Move, error) {
	moves := LegalMoves(game)
	if len(moves) == 0 {
		return Move{}, errors.Wrapf(ErrNoLegalMoves, "%s to move", game.CurrentMover())
	}
	if len(moves) == 1 {
		return moves[0], nil
	}
	scores, err := p.scorer.ScoreMoves(game, moves)
	if err != nil {
		return Move{}, err
	}
	if len(scores) != len(moves) {
		exceptions.Panicf("randomized policy: scorer returned %d scores for %d moves", len(scores), len(moves))
	}
	logits := make([]float64, len(scores))
	for ii, score := range scores {
		logits[ii] = float64(score) / p.temperature
	}
	probabilities := softmax(logits)

	chance := p.float64()
	for moveIdx, value := range probabilities {
		if chance > value {
			chance -= value
			continue
		}
		if klog.V(3).Enabled() {
			klog.Infof("randomized selection: move=%s, score=%g, probability=%.3f", moves[moveIdx], scores[moveIdx], value)
		}
		return moves[moveIdx], nil
	}
	// Rounding errors may leave some chance left: take the last move.
	return moves[len(moves)-1], nil
}

func softmax(values []float64) (probs []float64) {
	probs = make([]float64, len(values))
	var sum float64

	// Subtracting the max value doesn't change the probabilities, but keeps the exponentials small.
	maxValue := slices.Max(values)
	for ii, value := range values {
		probs[ii] = math.Exp(value - maxValue)
		sum += probs[ii]
	}
	for ii := range probs {
		probs[ii] /= sum
	}
	return
}
