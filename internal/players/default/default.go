// Package _default registers the default players that can be included in any
// front-end for checkersGo.
//
// Currently, it includes a uniformly random player ("random") and an alpha-beta
// pruning player with the hand-written heuristic ("ab").
package _default

import (
	"github.com/janpfeifer/checkersGo/internal/parameters"
	"github.com/janpfeifer/checkersGo/internal/players"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math/rand/v2"
	"sync"
)

func init() {
	players.RegisterModule("random", &Random{})
	players.RegisterModule("ab", &AlphaBeta{})
}

// Random creates searchers.Random players.
//
// Parameters: "seed" (int) to make the sequence of moves reproducible. The n-th player created
// with a given seed uses the n-th random stream of that seed, so players built for consecutive
// games don't repeat each other.
type Random struct{}

var (
	muSeedStreams sync.Mutex
	seedStreams   = make(map[int]uint64)
)

// nextStream returns the next unused random stream for seed.
func nextStream(seed int) uint64 {
	muSeedStreams.Lock()
	defer muSeedStreams.Unlock()
	stream := seedStreams[seed]
	seedStreams[seed]++
	return stream
}

// Assert Random implements Module.
var _ players.Module = (*Random)(nil)

// NewPolicy implements players.Module.
func (r *Random) NewPolicy(params parameters.Params) (searchers.Policy, error) {
	seed, err := parameters.PopParamOr(params, "seed", -1)
	if err != nil {
		return nil, err
	}
	if seed < 0 {
		return searchers.NewRandom(nil), nil
	}
	return searchers.NewRandom(rand.New(rand.NewPCG(uint64(seed), nextStream(seed)))), nil
}

// AlphaBeta creates searchers.AlphaBeta players.
//
// Parameters:
//
//   - max_depth (int): search depth in plies, default is searchers.DefaultMaxDepth.
//   - cache_file (string): file where the transposition cache is loaded from. Players created with
//     the same cache_file share the same cache. Save it with SaveCaches.
//   - cache_size (int): max number of entries in the cache.
//   - randomness (float): scale of the gaussian noise added to the scores of the moves, default is
//     DefaultABRandomness, enough to vary games between equally scored moves. Set to 0 for a
//     deterministic player.
//   - max_move_randomness (int): ply after which no more noise is added, 0 for no limit.
type AlphaBeta struct{}

// DefaultABRandomness is the default "randomness" of the "ab" players.
const DefaultABRandomness = 1.0

// Assert AlphaBeta implements Module.
var _ players.Module = (*AlphaBeta)(nil)

var (
	muCaches sync.Mutex
	caches   = make(map[string]*searchers.Cache)
)

// NewPolicy implements players.Module.
func (ab *AlphaBeta) NewPolicy(params parameters.Params) (searchers.Policy, error) {
	maxDepth, err := parameters.PopParamOr(params, "max_depth", searchers.DefaultMaxDepth)
	if err != nil {
		return nil, err
	}
	if maxDepth < 1 {
		return nil, errors.Errorf("ab: max_depth must be >= 1, got %d", maxDepth)
	}
	cacheFile, _ := parameters.PopParamOr(params, "cache_file", "")
	cacheSize, err := parameters.PopParamOr(params, "cache_size", searchers.DefaultCacheMaxEntries)
	if err != nil {
		return nil, err
	}
	randomness, err := parameters.PopParamOr(params, "randomness", float32(DefaultABRandomness))
	if err != nil {
		return nil, err
	}
	if randomness < 0 {
		return nil, errors.Errorf("ab: randomness must be >= 0, got %g", randomness)
	}
	maxMoveRandomness, err := parameters.PopParamOr(params, "max_move_randomness", 0)
	if err != nil {
		return nil, err
	}

	muCaches.Lock()
	defer muCaches.Unlock()
	cache, found := caches[cacheFile]
	if !found {
		cache = searchers.NewCache(cacheSize)
		if cacheFile != "" {
			if err = cache.LoadFile(cacheFile); err != nil {
				return nil, err
			}
			klog.V(1).Infof("ab: loaded %d cached positions from %s", cache.Len(), cacheFile)
		}
		caches[cacheFile] = cache
	}
	return searchers.NewAlphaBeta(maxDepth, cache).
		WithRandomness(randomness).
		WithMaxMoveRandomness(maxMoveRandomness), nil
}

// SaveCaches saves the transposition caches of the "ab" players that were configured with a cache_file.
func SaveCaches() error {
	muCaches.Lock()
	defer muCaches.Unlock()
	for cacheFile, cache := range caches {
		if cacheFile == "" {
			continue
		}
		if err := cache.SaveFile(cacheFile); err != nil {
			return err
		}
		klog.V(1).Infof("ab: saved %d cached positions to %s", cache.Len(), cacheFile)
	}
	return nil
}
