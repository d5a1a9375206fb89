package ai

import (
	"github.com/chewxy/math32"
	"github.com/janpfeifer/checkersGo/internal/features"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

// fixedPredictor always predicts the encoding of the same move, and records the last board.
type fixedPredictor struct {
	move      Move
	lastBoard []float32
}

func (p *fixedPredictor) Predict(board []float32) []float32 {
	p.lastBoard = board
	return features.EncodeMove(p.move)
}

func (p *fixedPredictor) String() string { return "fixed" }

func TestBlockLogSoftmax(t *testing.T) {
	prediction := make([]float32, features.MoveLabelsDim)
	for ii := range prediction {
		prediction[ii] = float32(ii%5) - 1
	}
	logProbs := BlockLogSoftmax(prediction)
	for block := range features.NumMoveBlocks {
		var sum float32
		for _, v := range logProbs[block*BoardSize : (block+1)*BoardSize] {
			assert.LessOrEqual(t, v, float32(0))
			sum += math32.Exp(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestPredictorScorer(t *testing.T) {
	favorite := Move{From: Coord{X: 2, Y: 1}, To: Coord{X: 3, Y: 2}}
	predictor := &fixedPredictor{move: favorite}
	scorer := NewPredictorScorer(predictor)

	b := NewBoard()
	require.NoError(t, b.ApplyMove(Move{From: Coord{X: 5, Y: 0}, To: Coord{X: 4, Y: 1}}))
	// Opponent to move: moves are scored as they are.
	moves := []Move{{From: Coord{X: 2, Y: 1}, To: Coord{X: 3, Y: 0}}, favorite}
	scores, err := scorer.ScoreMoves(b, moves)
	require.NoError(t, err)
	assert.Greater(t, scores[1], scores[0])
	assert.Equal(t, features.EncodeBoard(b.State()), predictor.lastBoard)

	// Mine to move: the board and the moves are mirrored.
	b = NewBoard()
	mirrored := favorite.Mirror()
	moves = []Move{mirrored, {From: Coord{X: 5, Y: 0}, To: Coord{X: 4, Y: 1}}}
	scores, err = scorer.ScoreMoves(b, moves)
	require.NoError(t, err)
	assert.Greater(t, scores[0], scores[1])
	assert.Equal(t, features.EncodeBoard(b.State().Mirror()), predictor.lastBoard)
}

func TestBatchProxy(t *testing.T) {
	predictor := &fixedPredictor{move: Move{From: Coord{X: 1, Y: 2}, To: Coord{X: 3, Y: 4}}}
	batch := AsBatch(predictor)
	predictions := batch.BatchPredict([][]float32{{1}, {2}, {3}})
	require.Len(t, predictions, 3)
	assert.Equal(t, features.EncodeMove(predictor.move), predictions[2])
	assert.Equal(t, "fixed", batch.String())
	assert.Equal(t, []float32{0, 0, 1}, OneHotEncoding(3, 2))
}
