package searchers

import (
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"math/rand/v2"
	"sync"
)

// Random is the reference Policy: it picks uniformly a piece among the ones that can move, and
// then uniformly one of its destinations.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Policy = (*Random)(nil)

// NewRandom creates a Random policy using the given random number generator.
// If rng is nil, the global generator from math/rand/v2 is used.
//
// It is safe for concurrent use.
func NewRandom(rng *rand.Rand) *Random {
	return &Random{rng: rng}
}

func (p *Random) intN(n int) int {
	if p.rng == nil {
		return rand.IntN(n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}

// Select implements Policy.
func (p *Random) Select(game Game) (Move, error) {
	mover := game.CurrentMover()
	pieces := game.LegalPieces(mover)
	if len(pieces) == 0 {
		return Move{}, errors.Wrapf(ErrNoLegalMoves, "%s has no piece to move", mover)
	}
	from := pieces[p.intN(len(pieces))]
	destinations := game.LegalDestinations(from)
	if len(destinations) == 0 {
		return Move{}, errors.Wrapf(ErrNoLegalMoves, "%s piece at %s was listed as movable but has no destinations", mover, from)
	}
	return Move{From: from, To: destinations[p.intN(len(destinations))]}, nil
}
