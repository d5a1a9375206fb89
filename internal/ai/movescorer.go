package ai

import (
	"github.com/chewxy/math32"
	"github.com/janpfeifer/checkersGo/internal/features"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
)

// PredictorScorer scores moves of a game with a MovePredictor.
//
// Models predict moves in the canonical perspective of the Opponent, so for Mine the board and
// the moves are mirrored before and after prediction. Each 8-value block of the prediction is
// converted to log-probabilities with a log-softmax, and the score of a move is the sum of the
// log-probabilities of its 4 coordinates.
//
// It implements searchers.MoveScorer.
type PredictorScorer struct {
	Predictor MovePredictor
}

// NewPredictorScorer creates a move scorer from the predictor.
func NewPredictorScorer(predictor MovePredictor) *PredictorScorer {
	return &PredictorScorer{Predictor: predictor}
}

// CanonicalState returns the board as seen by the model, for the given mover.
func CanonicalState(s BoardState, mover Side) BoardState {
	if mover == Mine {
		return s.Mirror()
	}
	return s
}

// ScoreMoves returns one score per move, the higher the more likely the model thinks the move is.
func (s *PredictorScorer) ScoreMoves(game Game, moves []Move) ([]float32, error) {
	mover := game.CurrentMover()
	prediction := s.Predictor.Predict(features.EncodeBoard(CanonicalState(game.State(), mover)))
	if len(prediction) != features.MoveLabelsDim {
		return nil, errors.Errorf("model %s predicted %d values, wanted %d", s.Predictor, len(prediction), features.MoveLabelsDim)
	}
	logProbs := BlockLogSoftmax(prediction)
	scores := make([]float32, len(moves))
	for ii, move := range moves {
		if mover == Mine {
			move = move.Mirror()
		}
		for block, coord := range move.Array() {
			scores[ii] += logProbs[block*BoardSize+int(coord)]
		}
	}
	return scores, nil
}

// BlockLogSoftmax applies a log-softmax to each of the 4 blocks of 8 values of a move prediction.
func BlockLogSoftmax(prediction []float32) []float32 {
	logProbs := make([]float32, len(prediction))
	for start := 0; start+BoardSize <= len(prediction); start += BoardSize {
		block := prediction[start : start+BoardSize]
		maxValue := block[0]
		for _, v := range block[1:] {
			maxValue = max(maxValue, v)
		}
		var sum float32
		for _, v := range block {
			sum += math32.Exp(v - maxValue)
		}
		logSum := math32.Log(sum) + maxValue
		for ii, v := range block {
			logProbs[start+ii] = v - logSum
		}
	}
	return logProbs
}
