package training

import (
	"fmt"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/features"
	"github.com/pkg/errors"
	"math/rand/v2"
	"slices"
)

// EvalReport is the result of Evaluate.
type EvalReport struct {
	// Samples evaluated.
	Samples int

	// LooseCorrect counts predictions whose 4 decoded coordinates match the label's after sorting both,
	// so coordinates predicted in the wrong position may still count as correct.
	LooseCorrect int

	// StrictCorrect counts predictions whose decoded move is exactly the label.
	StrictCorrect int

	// Degenerate counts predictions with at least one block of all equal values.
	Degenerate int
}

// LooseAccuracy is the fraction of samples counted in LooseCorrect.
func (r EvalReport) LooseAccuracy() float64 {
	if r.Samples == 0 {
		return 0
	}
	return float64(r.LooseCorrect) / float64(r.Samples)
}

// StrictAccuracy is the fraction of samples counted in StrictCorrect.
func (r EvalReport) StrictAccuracy() float64 {
	if r.Samples == 0 {
		return 0
	}
	return float64(r.StrictCorrect) / float64(r.Samples)
}

func (r EvalReport) String() string {
	return fmt.Sprintf("accuracy %.1f%% (sorted coordinates), %.1f%% (exact move), %d degenerate predictions, %d samples",
		100*r.LooseAccuracy(), 100*r.StrictAccuracy(), r.Degenerate, r.Samples)
}

// Evaluate samples n examples with replacement, predicts their moves with predictor and compares the
// decoded predictions with the labels.
//
// Failures of the predictor are returned as errors: anomalous predictions are only counted.
func Evaluate(predictor ai.MovePredictor, examples []dataset.Example, n int, rng *rand.Rand) (report EvalReport, err error) {
	if len(examples) == 0 || n <= 0 {
		return
	}
	sampled := make([]dataset.Example, n)
	boards := make([][]float32, n)
	for ii := range n {
		sampled[ii] = examples[rng.IntN(len(examples))]
		boards[ii] = sampled[ii].Features()
	}
	var predictions [][]float32
	err = exceptions.TryCatch[error](func() { predictions = ai.AsBatch(predictor).BatchPredict(boards) })
	if err != nil {
		return report, errors.WithMessagef(err, "%s failed to predict", predictor)
	}
	for ii, prediction := range predictions {
		report.Samples++
		if len(prediction) != features.MoveLabelsDim {
			report.Degenerate++
			continue
		}
		if features.IsDegenerateBlock(prediction) {
			report.Degenerate++
		}
		got := features.DecodeMove(prediction)
		want := sampled[ii].Move
		if got == want {
			report.StrictCorrect++
		}
		slices.Sort(got[:])
		slices.Sort(want[:])
		if got == want {
			report.LooseCorrect++
		}
	}
	return
}
