package selfplay

import (
	"context"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Store is where the Runner flushes the examples of each finished game. Implemented by *dataset.Store.
type Store interface {
	Append(ctx context.Context, batch []dataset.Example) error
	Size() (int, error)
}

// Config of a Runner.
type Config struct {
	// NumGames to play. If 0, play until DatasetTarget is reached or the context is cancelled.
	NumGames int

	// Parallelism is the number of games played simultaneously. If 0 it uses GOMAXPROCS.
	Parallelism int

	// DatasetTarget is the size of the dataset at which self-play stops. If 0 there is no target.
	DatasetTarget int

	// MaxPlies before the game is considered a draw. If 0, state.DefaultMaxPlies is used.
	MaxPlies int

	// ShowProgress displays a progress bar.
	ShowProgress bool
}

// Stats of the games played by a Runner.
type Stats struct {
	Games, WinsMine, WinsOpponent, Draws, Plies, Examples int64
}

func (s Stats) String() string {
	if s.Games == 0 {
		return "no games played"
	}
	ratio := func(v int64) float64 { return 100 * float64(v) / float64(s.Games) }
	return fmt.Sprintf("%s games (%.1f%% Mine wins, %.1f%% Opponent wins, %.1f%% draws), %s plies, %s examples",
		humanize.Comma(s.Games), ratio(s.WinsMine), ratio(s.WinsOpponent), ratio(s.Draws),
		humanize.Comma(s.Plies), humanize.Comma(s.Examples))
}

// Runner plays self-play games in parallel and appends their examples to a Store.
type Runner struct {
	cfg       Config
	store     Store
	newPolicy func() (searchers.Policy, error)
	newGame   func(maxPlies int) Game

	targetReached atomic.Bool

	muStats sync.Mutex
	stats   Stats
	bar     *progressbar.ProgressBar
}

// NewRunner creates a Runner that plays with the policies created by newPolicy (one per game),
// and appends the examples to store.
func NewRunner(cfg Config, store Store, newPolicy func() (searchers.Policy, error)) *Runner {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = DefaultMaxPlies
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		newPolicy: newPolicy,
		newGame: func(maxPlies int) Game {
			b := NewBoard()
			b.MaxPlies = maxPlies
			return b
		},
	}
}

// WithGame sets the factory of new games, by default state.NewBoard.
func (r *Runner) WithGame(newGame func(maxPlies int) Game) *Runner {
	r.newGame = newGame
	return r
}

// Stats of the games played so far.
func (r *Runner) Stats() Stats {
	r.muStats.Lock()
	defer r.muStats.Unlock()
	return r.stats
}

// Run plays games until Config.NumGames are played, the store reaches Config.DatasetTarget, or the context
// is cancelled. Games in progress when the context is cancelled are still finished and flushed.
//
// It returns the first error of any game or flush.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	if err := r.checkTarget(); err != nil {
		return r.Stats(), err
	}
	if r.targetReached.Load() {
		klog.Infof("Dataset already reached target size of %s examples", humanize.Comma(int64(r.cfg.DatasetTarget)))
		return r.Stats(), nil
	}
	if r.cfg.ShowProgress {
		maxBar := int64(-1)
		if r.cfg.NumGames > 0 {
			maxBar = int64(r.cfg.NumGames)
		}
		r.bar = progressbar.NewOptions64(maxBar,
			progressbar.OptionSetDescription("self-play"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("games"),
			progressbar.OptionThrottle(200*time.Millisecond))
	}

	start := time.Now()
	klog.Infof("Self-play: parallelism=%d, num_games=%d, target=%d", r.cfg.Parallelism, r.cfg.NumGames, r.cfg.DatasetTarget)
	var g errgroup.Group
	g.SetLimit(r.cfg.Parallelism)
	var failed atomic.Bool
	for gameIdx := 0; r.cfg.NumGames == 0 || gameIdx < r.cfg.NumGames; gameIdx++ {
		if ctx.Err() != nil || r.targetReached.Load() || failed.Load() {
			break
		}
		g.Go(func() error {
			err := r.playGame(ctx, gameIdx)
			if err != nil {
				failed.Store(true)
			}
			return err
		})
	}
	err := g.Wait()
	if r.bar != nil {
		_ = r.bar.Finish()
		fmt.Println()
	}
	stats := r.Stats()
	klog.Infof("Self-play finished in %s: %s", time.Since(start).Round(time.Millisecond), stats)
	if ctx.Err() != nil {
		klog.Infof("Self-play interrupted: %v", ctx.Err())
	}
	return stats, err
}

// playGame plays one game and flushes its examples.
func (r *Runner) playGame(ctx context.Context, gameIdx int) error {
	policy, err := r.newPolicy()
	if err != nil {
		return errors.WithMessagef(err, "game #%d: failed to create policy", gameIdx)
	}
	session := NewSession(r.newGame(r.cfg.MaxPlies), policy)
	result, err := session.Play()
	if err != nil {
		return errors.WithMessagef(err, "game #%d", gameIdx)
	}

	// A finished game is flushed even if the context was cancelled meanwhile.
	if err = r.store.Append(context.WithoutCancel(ctx), result.Examples); err != nil {
		return errors.WithMessagef(err, "game #%d: failed to flush %d examples", gameIdx, len(result.Examples))
	}
	r.record(result)
	klog.V(1).Infof("game #%d: %s after %d plies, %d examples", gameIdx, result.Outcome, result.NumPlies, len(result.Examples))
	return r.checkTarget()
}

func (r *Runner) record(result Result) {
	r.muStats.Lock()
	defer r.muStats.Unlock()
	r.stats.Games++
	r.stats.Plies += int64(result.NumPlies)
	r.stats.Examples += int64(len(result.Examples))
	switch result.Outcome {
	case WinnerMine:
		r.stats.WinsMine++
	case WinnerOpponent:
		r.stats.WinsOpponent++
	default:
		r.stats.Draws++
	}
	if r.bar != nil {
		r.bar.Describe(fmt.Sprintf("self-play (%d/%d/%d Mine/Opponent/Draws)",
			r.stats.WinsMine, r.stats.WinsOpponent, r.stats.Draws))
		_ = r.bar.Add(1)
	}
}

// checkTarget updates targetReached with the current size of the store.
func (r *Runner) checkTarget() error {
	if r.cfg.DatasetTarget <= 0 {
		return nil
	}
	size, err := r.store.Size()
	if err != nil {
		return err
	}
	if size >= r.cfg.DatasetTarget {
		r.targetReached.Store(true)
	}
	return nil
}
