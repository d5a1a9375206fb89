// selfplay plays games with an AI policy for both sides, and appends the canonicalized training
// examples to the shared dataset directory. Many selfplay processes can share the same dataset.
package main

import (
	"context"
	"flag"
	_ "github.com/janpfeifer/checkersGo/internal/ai/gomlx"
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/players"
	_default "github.com/janpfeifer/checkersGo/internal/players/default"
	"github.com/janpfeifer/checkersGo/internal/profilers"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	"github.com/janpfeifer/checkersGo/internal/selfplay"
	"github.com/janpfeifer/checkersGo/internal/state"
	"github.com/janpfeifer/checkersGo/internal/ui/spinning"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
	"time"
)

var (
	flagDataset     = flag.String("dataset", "", "Directory of the shared dataset. Required.")
	flagPolicy      = flag.String("policy", "random", "AI used for both sides, e.g. \"random\", \"ab:max_depth=4,randomness=2\" or \"model:fnn=<dir>,temperature=0.5\".")
	flagNumGames    = flag.Int("num_games", 0, "Number of games to play. If 0, play until -target is reached or interrupted.")
	flagParallelism = flag.Int("parallelism", 0, "Number of games played simultaneously. If 0 it uses GOMAXPROCS.")
	flagTarget      = flag.Int("target", 1_000_000, "Stop when the dataset reaches this number of examples. If 0 there is no target.")
	flagMaxPlies    = flag.Int("max_plies", state.DefaultMaxPlies, "Max plies before the game is considered a draw.")
	flagProgress    = flag.Bool("progress", true, "Display a progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDataset == "" {
		klog.Fatal("Please set the dataset directory with -dataset")
	}

	// Capture Control+C: games in progress are finished and flushed.
	ctx, cancel := spinning.WithSafeInterrupt(context.Background(), 30*time.Second)
	defer cancel()
	profilers.Setup(ctx)
	defer profilers.OnQuit()

	// Fail early on bad configurations.
	_ = must.M1(players.New(*flagPolicy))

	store := must.M1(dataset.Open(*flagDataset))
	defer store.Close()
	runner := selfplay.NewRunner(selfplay.Config{
		NumGames:      *flagNumGames,
		Parallelism:   *flagParallelism,
		DatasetTarget: *flagTarget,
		MaxPlies:      *flagMaxPlies,
		ShowProgress:  *flagProgress,
	}, store, func() (searchers.Policy, error) { return players.New(*flagPolicy) })
	stats, err := runner.Run(ctx)
	if err != nil {
		klog.Fatalf("Self-play failed after %s: %+v", stats, err)
	}
	must.M(_default.SaveCaches())
	klog.Infof("Dataset %s has %d examples", store.Dir(), must.M1(store.Size()))
}
