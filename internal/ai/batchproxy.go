package ai

import (
	"github.com/janpfeifer/checkersGo/internal/generics"
)

// BatchMovePredictorProxy is a trivial implementation of a BatchMovePredictor, with no efficiency gains.
type BatchMovePredictorProxy struct {
	MovePredictor
}

// BatchPredict calls Predict for each board of the batch.
func (p BatchMovePredictorProxy) BatchPredict(boards [][]float32) [][]float32 {
	return generics.SliceMap(boards, p.Predict)
}

func (p BatchMovePredictorProxy) String() string {
	return p.MovePredictor.String()
}

// Assert BatchMovePredictorProxy implements BatchMovePredictor
var _ BatchMovePredictor = &BatchMovePredictorProxy{}

// AsBatch returns predictor as a BatchMovePredictor, wrapping it with BatchMovePredictorProxy if needed.
func AsBatch(predictor MovePredictor) BatchMovePredictor {
	if batch, ok := predictor.(BatchMovePredictor); ok {
		return batch
	}
	return BatchMovePredictorProxy{predictor}
}
