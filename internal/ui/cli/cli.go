// Package cli implements a command-line UI for the game: a human plays the Mine side against
// an AI policy playing Opponent.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/janpfeifer/checkersGo/internal/ui/spinning"
	"github.com/pkg/errors"
	"golang.org/x/term"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var ansiFilter = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// displayWidth of s removes its color/control sequences and returns the length of what is left.
func displayWidth(s string) int {
	return len([]rune(ansiFilter.ReplaceAllString(s, "")))
}

var (
	// moveParser accepts the 4 coordinates from.x, from.y, to.x, to.y separated by spaces, commas or dashes,
	// or written together as in "52-43".
	moveParser = regexp.MustCompile(`^\s*([0-7])[\s,]*([0-7])[\s,\-]*([0-7])[\s,]*([0-7])\s*$`)

	// ErrTooManyParsingErrors is returned by ReadMove after 3 invalid moves.
	ErrTooManyParsingErrors = errors.New("failed to read a move 3 times")

	darkSquare  = lipgloss.NewStyle().Background(lipgloss.Color("94"))
	lightSquare = lipgloss.NewStyle().Background(lipgloss.Color("230"))
	minePiece   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	oppPiece    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Bold(true)
	lastMoveBg  = lipgloss.NewStyle().Background(lipgloss.Color("136"))
)

// UI reads the moves of the human player and prints the board.
type UI struct {
	color, clearScreen bool
	reader             *bufio.Reader
	out                io.Writer
}

// New creates a UI on the standard input and output.
func New(color bool, clearScreen bool) *UI {
	return NewWithIO(os.Stdin, os.Stdout, color, clearScreen)
}

// NewWithIO creates a UI reading from in and writing to out.
func NewWithIO(in io.Reader, out io.Writer, color bool, clearScreen bool) *UI {
	return &UI{
		color:       color,
		clearScreen: clearScreen,
		reader:      bufio.NewReader(in),
		out:         out,
	}
}

// ParseMove parses the 4 coordinates "from.x from.y to.x to.y" of a move.
func ParseMove(text string) (Move, error) {
	matches := moveParser.FindStringSubmatch(text)
	if matches == nil {
		return Move{}, errors.Errorf("can't parse move %q, use \"<from.x> <from.y> <to.x> <to.y>\"", text)
	}
	var coords [4]int8
	for ii := range coords {
		v, err := strconv.Atoi(matches[ii+1])
		if err != nil {
			return Move{}, errors.Wrapf(err, "can't parse coordinate %q", matches[ii+1])
		}
		coords[ii] = int8(v)
	}
	return MoveFromArray(coords), nil
}

func (ui *UI) printCentered(block string) {
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	terminalWidth := 0
	if f, ok := ui.out.(*os.File); ok {
		terminalWidth, _, _ = term.GetSize(int(f.Fd()))
	}
	blockWidth := 0
	for _, line := range lines {
		blockWidth = max(blockWidth, displayWidth(line))
	}
	indent := max((terminalWidth-blockWidth)/2, 0)
	for _, line := range lines {
		_, _ = fmt.Fprintf(ui.out, "%s%s\n", strings.Repeat(" ", indent), line)
	}
}

// RenderBoard returns the board drawn with rows (x) top to bottom and columns (y) left to right.
// If last is given, its origin and destination are highlighted.
func (ui *UI) RenderBoard(s BoardState, last *Move) string {
	var sb strings.Builder
	sb.WriteString("   ")
	for y := range BoardSize {
		_, _ = fmt.Fprintf(&sb, " %d ", y)
	}
	sb.WriteString("\n")
	for x := range BoardSize {
		_, _ = fmt.Fprintf(&sb, " %d ", x)
		for y := range BoardSize {
			c := Coord{X: int8(x), Y: int8(y)}
			cell := s.At(c)
			letter := " " + cell.Letter() + " "
			if !ui.color {
				if last != nil && (last.From == c || last.To == c) && cell == Empty {
					letter = " * "
				}
				sb.WriteString(letter)
				continue
			}
			if cell == Empty {
				letter = "   "
			}
			style := lightSquare
			if (x+y)%2 == 1 {
				style = darkSquare
			}
			if last != nil && (last.From == c || last.To == c) {
				style = lastMoveBg
			}
			if owner, ok := cell.Owner(); ok {
				if owner == Mine {
					style = style.Inherit(minePiece)
				} else {
					style = style.Inherit(oppPiece)
				}
			}
			sb.WriteString(style.Render(letter))
		}
		_, _ = fmt.Fprintf(&sb, " %d\n", x)
	}
	return sb.String()
}

// PrintBoard prints the current state of game.
func (ui *UI) PrintBoard(game Game, last *Move) {
	if ui.clearScreen {
		_, _ = fmt.Fprint(ui.out, "\033[H\033[2J")
	}
	_, _ = fmt.Fprintln(ui.out)
	ui.printCentered(ui.RenderBoard(game.State(), last))
	_, _ = fmt.Fprintln(ui.out)
}

// PrintWinner prints the final outcome of the game.
func (ui *UI) PrintWinner(outcome Outcome) {
	var msg string
	switch outcome {
	case WinnerMine:
		msg = "*** YOU WIN!! Congratulations! ***"
	case WinnerOpponent:
		msg = "*** The AI wins, better luck next time. ***"
	default:
		msg = "*** DRAW ***"
	}
	if ui.color {
		msg = lipgloss.NewStyle().
			Background(lipgloss.Color("13")).
			Foreground(lipgloss.Color("0")).
			Padding(1, 2).
			Render(msg)
	}
	_, _ = fmt.Fprintln(ui.out)
	ui.printCentered(msg)
	_, _ = fmt.Fprintln(ui.out)
}

// ReadMove reads a legal move for the current mover of game. It gives up after 3 invalid moves.
func (ui *UI) ReadMove(game Game) (Move, error) {
	mover := game.CurrentMover()
	for range 3 {
		_, _ = fmt.Fprintf(ui.out, "    %s move > ", mover)
		text, err := ui.reader.ReadString('\n')
		if err != nil {
			return Move{}, errors.Wrap(err, "failed to read move")
		}
		move, err := ParseMove(text)
		if err != nil {
			_, _ = fmt.Fprintf(ui.out, "    * %v\n", err)
			continue
		}
		if !slices.Contains(game.LegalPieces(mover), move.From) {
			_, _ = fmt.Fprintf(ui.out, "    * Piece at %s can't move, movable pieces: %v\n", move.From, game.LegalPieces(mover))
			continue
		}
		if destinations := game.LegalDestinations(move.From); !slices.Contains(destinations, move.To) {
			_, _ = fmt.Fprintf(ui.out, "    * Piece at %s can't move to %s, valid destinations: %v\n", move.From, move.To, destinations)
			continue
		}
		return move, nil
	}
	return Move{}, ErrTooManyParsingErrors
}

// Play runs a game where the human plays Mine and opponent plays the Opponent side.
// It returns the final outcome.
func (ui *UI) Play(ctx context.Context, game Game, opponent searchers.Policy) (Outcome, error) {
	var last *Move
	for {
		if done, outcome := game.IsFinished(); done {
			ui.PrintBoard(game, last)
			ui.PrintWinner(outcome)
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			return Undecided, err
		}
		ui.PrintBoard(game, last)
		var move Move
		var err error
		if game.CurrentMover() == Mine {
			move, err = ui.ReadMove(game)
		} else {
			var spinner *spinning.Spinning
			if ui.color {
				spinner = spinning.New(ctx)
			}
			move, err = opponent.Select(game)
			if spinner != nil {
				spinner.Done()
			}
			if err == nil {
				_, _ = fmt.Fprintf(ui.out, "    %s plays %s\n", Opponent, move)
			}
		}
		if err != nil {
			return Undecided, err
		}
		if err = game.ApplyMove(move); err != nil {
			return Undecided, err
		}
		last = &move
	}
}
