// play runs an interactive game in the terminal: the human plays Mine (x), moving first, against
// the AI playing Opponent (o).
package main

import (
	"context"
	"flag"
	"fmt"
	_ "github.com/janpfeifer/checkersGo/internal/ai/gomlx"
	"github.com/janpfeifer/checkersGo/internal/players"
	_ "github.com/janpfeifer/checkersGo/internal/players/default"
	"github.com/janpfeifer/checkersGo/internal/state"
	"github.com/janpfeifer/checkersGo/internal/ui/cli"
	"github.com/janpfeifer/checkersGo/internal/ui/spinning"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
	"time"
)

var (
	flagAI          = flag.String("ai", "", "AI opponent, e.g. \"model:fnn=<dir>\", \"ab:max_depth=6\" or \"random\". Defaults to -model if set, otherwise \"ab\".")
	flagModel       = flag.String("model", "", "Model directory (the trainer's export) for the AI opponent.")
	flagMaxPlies    = flag.Int("max_plies", state.DefaultMaxPlies, "Max plies before the game is considered a draw.")
	flagColor       = flag.Bool("color", true, "Use colors in the board.")
	flagClearScreen = flag.Bool("clear", false, "Clear screen before each move.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx, cancel := spinning.WithSafeInterrupt(context.Background(), time.Second)
	defer cancel()

	config := *flagAI
	if config == "" {
		config = "ab"
		if *flagModel != "" {
			config = "model:fnn=" + *flagModel
		}
	}
	opponent := must.M1(players.New(config))
	fmt.Println("Enter moves as \"<from.x> <from.y> <to.x> <to.y>\": rows (x) first, columns (y) second.")

	board := state.NewBoard()
	board.MaxPlies = *flagMaxPlies
	ui := cli.New(*flagColor, *flagClearScreen)
	if _, err := ui.Play(ctx, board, opponent); err != nil {
		spinning.Reset()
		klog.Fatalf("Game aborted: %+v", err)
	}
}
