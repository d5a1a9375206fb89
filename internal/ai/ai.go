// Package ai (Artificial Intelligence) defines standard interfaces that move prediction models
// have to implement, and adapters to use them as move scorers.
//
// Models work on encoded vectors (see package features): the input is the board features
// vector of dimension features.BoardFeaturesDim, and the output has one score per value of each
// of the 4 move coordinates (from.x, from.y, to.x, to.y), for a total of features.MoveLabelsDim.
package ai

// MovePredictor predicts the move labels for an encoded board, in the canonical (Opponent)
// perspective.
type MovePredictor interface {
	// Predict returns the predicted move labels (dimension features.MoveLabelsDim) for the board features.
	Predict(board []float32) []float32

	// String returns the model name.
	String() string
}

// BatchMovePredictor is a MovePredictor that handles batches.
type BatchMovePredictor interface {
	MovePredictor

	// BatchPredict aggregates predictions in batches, presumably more efficient.
	BatchPredict(boards [][]float32) [][]float32
}

// MoveLearner is the interface used to train a move prediction model.
type MoveLearner interface {
	BatchMovePredictor

	// Learn from the given batch of boards and move labels.
	// It returns the training loss, the mean over the batch.
	Learn(boards, moves [][]float32) (loss float32)

	// Loss returns the loss of the model on the given examples, without training.
	Loss(boards, moves [][]float32) (loss float32)

	// Save the model being learned: it creates a new checkpoint.
	Save() error

	// Export writes a copy of the current model to dir, for deployment. The contents of dir are replaced.
	Export(dir string) error

	// BatchSize returns the batch size used by the learner.
	// It is used only as an optimization hint for the trainer.
	// If Learn is called with more examples than this, it will be split, and if smaller
	// it will be padded (or something equivalent).
	BatchSize() int

	// Finalize frees resources held by the model. It can't be used afterward.
	Finalize()
}

// OneHotEncoding returns a slice of float32 with one element set to 1, and all others to 0.
func OneHotEncoding(total, selected int) (vec []float32) {
	vec = make([]float32, total)
	if total > 0 {
		vec[selected] = 1
	}
	return
}
