package features_test

import (
	. "github.com/janpfeifer/checkersGo/internal/features"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/janpfeifer/checkersGo/internal/state/statetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDims(t *testing.T) {
	assert.Equal(t, 320, BoardFeaturesDim)
	assert.Equal(t, 32, MoveLabelsDim)
}

func TestEncodeBoard(t *testing.T) {
	s := NewBoard().State()
	f := EncodeBoard(s)
	require.Len(t, f, BoardFeaturesDim)

	// One category set per cell.
	var sum float32
	for _, v := range f {
		sum += v
	}
	assert.Equal(t, float32(NumCells), sum)

	// Cell 0 is empty: category index 2, reversed.
	assert.Equal(t, float32(1), f[BoardFeaturesDim-1-(2*NumCells+0)])
	// Cell (0, 1) holds an opponent regular piece: category index 1.
	assert.Equal(t, float32(1), f[BoardFeaturesDim-1-(1*NumCells+1)])
	// Cell (7, 0) holds a regular piece of Mine: category index 3.
	assert.Equal(t, float32(1), f[BoardFeaturesDim-1-(3*NumCells+56)])

	decoded, err := DecodeBoard(f)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)

	withKings := statetest.ParseState(`
		.O......
		........
		...o....
		........
		........
		....x...
		........
		......X.`)
	decoded, err = DecodeBoard(EncodeBoard(withKings))
	require.NoError(t, err)
	assert.Equal(t, withKings, decoded)
}

func TestDecodeBoardErrors(t *testing.T) {
	_, err := DecodeBoard(make([]float32, 10))
	require.Error(t, err)

	_, err = DecodeBoard(make([]float32, BoardFeaturesDim))
	require.Error(t, err)

	f := EncodeBoard(NewBoard().State())
	f[0] = 1
	f[NumCells] = 1
	_, err = DecodeBoard(f)
	require.Error(t, err)
}

func TestEncodeMove(t *testing.T) {
	m := Move{From: Coord{X: 5, Y: 2}, To: Coord{X: 4, Y: 3}}
	f := EncodeMove(m)
	require.Len(t, f, MoveLabelsDim)
	want := make([]float32, MoveLabelsDim)
	want[5] = 1
	want[8+2] = 1
	want[16+4] = 1
	want[24+3] = 1
	assert.Equal(t, want, f)
	assert.Equal(t, m.Array(), DecodeMove(f))
	assert.Equal(t, f, EncodeMoveArray(m.Array()))

	assert.Panics(t, func() { EncodeMove(Move{From: Coord{X: 8, Y: 0}, To: Coord{X: 0, Y: 0}}) })
	assert.Panics(t, func() { DecodeMove(make([]float32, 5)) })
}

func TestDecodeMoveScores(t *testing.T) {
	scores := make([]float32, MoveLabelsDim)
	scores[3] = 0.7
	scores[6] = 0.7 // Tie: first wins.
	scores[8+1] = -0.1
	scores[16+7] = 2
	scores[24+0] = 0.5
	assert.Equal(t, [4]int8{3, 0, 7, 0}, DecodeMove(scores))
	assert.True(t, IsDegenerateBlock(make([]float32, MoveLabelsDim)))

	for ii := range scores {
		scores[ii] += float32(ii%8) * 0.01
	}
	assert.False(t, IsDegenerateBlock(scores))
}
