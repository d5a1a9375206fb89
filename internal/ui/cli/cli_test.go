package cli

import (
	"bytes"
	"context"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/janpfeifer/checkersGo/internal/state/statetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestParseMove(t *testing.T) {
	want := Move{From: Coord{X: 5, Y: 2}, To: Coord{X: 4, Y: 3}}
	for _, text := range []string{"5 2 4 3", "5,2,4,3", " 52-43\n", "52 43"} {
		got, err := ParseMove(text)
		require.NoError(t, err, "parsing %q", text)
		assert.Equal(t, want, got)
	}
	for _, text := range []string{"", "5 2 4", "5 2 4 8", "a b c d"} {
		_, err := ParseMove(text)
		require.Error(t, err, "parsing %q", text)
	}
}

func TestRenderBoard(t *testing.T) {
	ui := NewWithIO(strings.NewReader(""), &bytes.Buffer{}, false, false)
	rendered := ui.RenderBoard(NewBoard().State(), nil)
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "    0  1  2  3  4  5  6  7 ", lines[0])
	assert.Equal(t, " 0  .  o  .  o  .  o  .  o  0", lines[1])
	assert.Equal(t, " 3  .  .  .  .  .  .  .  .  3", lines[4])
	assert.Equal(t, " 7  x  .  x  .  x  .  x  .  7", lines[8])

	last := Move{From: Coord{X: 3, Y: 0}, To: Coord{X: 4, Y: 1}}
	rendered = ui.RenderBoard(NewBoard().State(), &last)
	assert.Contains(t, rendered, " 3  *  . ")

	colored := NewWithIO(strings.NewReader(""), &bytes.Buffer{}, true, false)
	assert.Equal(t, 9, strings.Count(colored.RenderBoard(NewBoard().State(), &last), "\n"))
}

func TestPlay(t *testing.T) {
	b := statetest.BuildBoard(`
		........
		........
		........
		........
		...o....
		..x.....
		........
		........`, Mine)
	out := &bytes.Buffer{}
	// An unparseable move, a step where the piece must capture, and then the capture.
	ui := NewWithIO(strings.NewReader("bad\n5 2 4 1\n52-34\n"), out, false, false)
	outcome, err := ui.Play(context.Background(), b, searchers.NewRandom(nil))
	require.NoError(t, err)
	assert.Equal(t, WinnerMine, outcome)
	assert.Contains(t, out.String(), "can't parse move")
	assert.Contains(t, out.String(), "can't move to")
	assert.Contains(t, out.String(), "YOU WIN")

	// Too many errors.
	b = NewBoard()
	ui = NewWithIO(strings.NewReader("1 1 1 1\n2 2 2 2\n3 3 3 3\n"), out, false, false)
	_, err = ui.ReadMove(b)
	require.ErrorIs(t, err, ErrTooManyParsingErrors)
}
