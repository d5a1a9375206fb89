package searchers

import (
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math"
	"math/rand/v2"
)

// Weights of the heuristic board evaluation used by the alpha-beta search.
const (
	KingWeight     = 1000
	CaptureWeight  = 100
	MobilityWeight = 10
	MaterialWeight = 1

	// WinScore is the score of a won game, well above any heuristic value.
	WinScore = 1_000_000

	// DefaultMaxDepth of the alpha-beta search.
	DefaultMaxDepth = 4
)

// Evaluate returns the heuristic value of the game from the Opponent's point of view: each term
// is the Opponent count minus the Mine count, weighted by KingWeight (kings), CaptureWeight
// (capturing moves available), MobilityWeight (moves available) and MaterialWeight (regular
// pieces).
func Evaluate(game Game) int32 {
	s := game.State()
	kings := s.Count(OpponentKing) - s.Count(OwnKing)
	material := s.Count(OpponentRegular) - s.Count(OwnRegular)
	oppMoves, oppCaptures := countMoves(game, Opponent)
	myMoves, myCaptures := countMoves(game, Mine)
	return int32(KingWeight*kings + CaptureWeight*(oppCaptures-myCaptures) +
		MobilityWeight*(oppMoves-myMoves) + MaterialWeight*material)
}

func countMoves(game Game, side Side) (moves, captures int) {
	for _, from := range game.LegalPieces(side) {
		for _, to := range game.LegalDestinations(from) {
			moves++
			if to.X-from.X == 2 || from.X-to.X == 2 {
				captures++
			}
		}
	}
	return
}

// AlphaBeta is a depth limited minimax search with alpha-beta pruning, using the Evaluate
// heuristic at the leaves. The Opponent maximizes the score and Mine minimizes it.
//
// Search results are memoized in a Cache, which can be shared among concurrent searches.
// It implements both Policy and MoveScorer.
type AlphaBeta struct {
	maxDepth int
	cache    *Cache

	randomness        float32
	maxMoveRandomness int
}

var (
	_ Policy     = (*AlphaBeta)(nil)
	_ MoveScorer = (*AlphaBeta)(nil)
)

// NewAlphaBeta creates an AlphaBeta search of the given depth. If cache is nil, a new one is created.
func NewAlphaBeta(maxDepth int, cache *Cache) *AlphaBeta {
	if cache == nil {
		cache = NewCache(0)
	}
	return &AlphaBeta{maxDepth: maxDepth, cache: cache}
}

// WithRandomness adds a gaussian noise scaled by randomness to the scores of the moves at the
// root of the search. Scores are in heuristic units (see Evaluate), so a value of 1 only breaks
// ties and near ties, while a few times MaterialWeight makes it play noticeably worse.
//
// Cached search values never include noise.
//
// Set to 0 to disable randomness, this is the default.
//
// See also WithMaxMoveRandomness.
func (ab *AlphaBeta) WithRandomness(randomness float32) *AlphaBeta {
	ab.randomness = randomness
	return ab
}

// WithMaxMoveRandomness sets a ply limit after which randomness is disabled, for instance
// to use randomness only to generate different openings. It only applies to games that are
// a *Board. Set to 0 (the default) for no limit.
func (ab *AlphaBeta) WithMaxMoveRandomness(maxMoveRandomness int) *AlphaBeta {
	ab.maxMoveRandomness = maxMoveRandomness
	return ab
}

// addNoise reports whether the scores for the current position get noise.
func (ab *AlphaBeta) addNoise(game Game) bool {
	if ab.randomness <= 0 {
		return false
	}
	if b, ok := game.(*Board); ok && ab.maxMoveRandomness > 0 && b.PlyNumber >= ab.maxMoveRandomness {
		return false
	}
	return true
}

// Cache used by the search.
func (ab *AlphaBeta) Cache() *Cache { return ab.cache }

// Select implements Policy: it picks the move with the best score for the current mover.
func (ab *AlphaBeta) Select(game Game) (Move, error) {
	return NewBestScore(ab).Select(game)
}

// ScoreMoves implements MoveScorer. Scores are from the point of view of the current mover.
func (ab *AlphaBeta) ScoreMoves(game Game, moves []Move) ([]float32, error) {
	mover := game.CurrentMover()
	addNoise := ab.addNoise(game)
	scores := make([]float32, len(moves))
	for ii, move := range moves {
		child := game.Clone()
		if err := child.ApplyMove(move); err != nil {
			return nil, errors.WithMessagef(err, "alpha-beta scoring move %s", move)
		}
		score := ab.search(child, ab.maxDepth-1, math.MinInt32, math.MaxInt32)
		if mover == Mine {
			score = -score
		}
		scores[ii] = float32(score)
		if addNoise {
			scores[ii] += float32(rand.NormFloat64()) * ab.randomness
		}
	}
	if klog.V(2).Enabled() {
		hits, misses := ab.cache.Stats()
		klog.Infof("alpha-beta: scored %d moves for %s, cache hits=%d misses=%d", len(moves), mover, hits, misses)
	}
	return scores, nil
}

// search returns the minimax value of the game, from the Opponent's point of view.
func (ab *AlphaBeta) search(game Game, depth int, alpha, beta int32) int32 {
	if finished, outcome := game.IsFinished(); finished {
		switch outcome {
		case WinnerOpponent:
			return WinScore + int32(depth)
		case WinnerMine:
			return -WinScore - int32(depth)
		}
		return 0
	}
	if depth <= 0 {
		return Evaluate(game)
	}

	key := cacheKey{State: game.State(), Mover: game.CurrentMover(), Depth: int8(depth)}
	alphaOrig, betaOrig := alpha, beta
	if entry, found := ab.cache.get(key); found {
		switch entry.Bound {
		case boundExact:
			return entry.Score
		case boundLower:
			alpha = max(alpha, entry.Score)
		case boundUpper:
			beta = min(beta, entry.Score)
		}
		if alpha >= beta {
			return entry.Score
		}
	}

	maximize := game.CurrentMover() == Opponent
	var value int32 = math.MaxInt32
	if maximize {
		value = math.MinInt32
	}
Loop:
	for _, from := range game.LegalPieces(game.CurrentMover()) {
		for _, to := range game.LegalDestinations(from) {
			child := game.Clone()
			if err := child.ApplyMove(Move{From: from, To: to}); err != nil {
				// Moves come from the game itself: failing to apply them is a bug of the rules.
				panic(errors.WithMessagef(err, "alpha-beta applying listed move %s", Move{From: from, To: to}))
			}
			childValue := ab.search(child, depth-1, alpha, beta)
			if maximize {
				value = max(value, childValue)
				alpha = max(alpha, value)
			} else {
				value = min(value, childValue)
				beta = min(beta, value)
			}
			if alpha >= beta {
				break Loop
			}
		}
	}

	entry := cacheEntry{Score: value, Bound: boundExact}
	if value <= alphaOrig {
		entry.Bound = boundUpper
	} else if value >= betaOrig {
		entry.Bound = boundLower
	}
	ab.cache.put(key, entry)
	return value
}
