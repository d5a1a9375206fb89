package training

import (
	"context"
	"fmt"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
	"math/rand/v2"
)

// movingAverage of the loss, with a warm-up: the first values are plainly averaged.
type movingAverage struct {
	value float32
	count int
	decay float32
}

func (ma *movingAverage) add(v float32) {
	ma.count++
	weight := max(ma.decay, 1/float32(ma.count))
	ma.value = ma.value*(1-weight) + v*weight
}

// Fit trains the learner for the given number of epochs over all boards and moves, in mini-batches
// of learner.BatchSize() visited in a random order for each epoch.
//
// It returns the mean loss of the last epoch. Panics of the learner are returned as errors,
// and it stops between mini-batches if the context is cancelled.
func Fit(ctx context.Context, learner ai.MoveLearner, boards, moves [][]float32, epochs int, rng *rand.Rand, showProgress bool) (loss float32, err error) {
	if len(boards) != len(moves) {
		return 0, errors.Errorf("Fit: %d boards but %d moves", len(boards), len(moves))
	}
	if len(boards) == 0 || epochs <= 0 {
		return 0, nil
	}
	batchSize := max(learner.BatchSize(), 1)
	numBatches := (len(boards) + batchSize - 1) / batchSize
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(epochs*numBatches,
			progressbar.OptionSetDescription("fit"),
			progressbar.OptionShowCount())
		defer func() { _ = bar.Finish(); fmt.Println() }()
	}

	batchBoards := make([][]float32, 0, batchSize)
	batchMoves := make([][]float32, 0, batchSize)
	ma := movingAverage{decay: 0.01}
	for epoch := range epochs {
		var epochLoss float64
		perm := rng.Perm(len(boards))
		for batchStart := 0; batchStart < len(perm); batchStart += batchSize {
			if err = ctx.Err(); err != nil {
				return 0, err
			}
			batchBoards, batchMoves = batchBoards[:0], batchMoves[:0]
			for _, idx := range perm[batchStart:min(batchStart+batchSize, len(perm))] {
				batchBoards = append(batchBoards, boards[idx])
				batchMoves = append(batchMoves, moves[idx])
			}
			var batchLoss float32
			err = exceptions.TryCatch[error](func() { batchLoss = learner.Learn(batchBoards, batchMoves) })
			if err != nil {
				return 0, errors.WithMessagef(err, "%s failed to learn, epoch %d", learner, epoch+1)
			}
			epochLoss += float64(batchLoss) * float64(len(batchBoards))
			ma.add(batchLoss)
			if bar != nil {
				bar.Describe(fmt.Sprintf("fit: epoch %d/%d, loss=%.4g", epoch+1, epochs, ma.value))
				_ = bar.Add(1)
			}
		}
		loss = float32(epochLoss / float64(len(boards)))
		if klog.V(2).Enabled() {
			klog.Infof("epoch %d/%d: loss=%.4g", epoch+1, epochs, loss)
		}
	}
	return loss, nil
}
