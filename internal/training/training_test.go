package training

import (
	"context"
	"fmt"
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/features"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memorizer is a fake ai.MoveLearner that memorizes the moves it learns, and predicts all zeros
// for boards it hasn't seen.
type memorizer struct {
	mu                  sync.Mutex
	batchSize           int
	memory              map[string][]float32
	learnCalls, samples int
	saves, exports      int
	finalized           bool
	swapFromTo          bool
}

var _ ai.MoveLearner = (*memorizer)(nil)

func newMemorizer(batchSize int) *memorizer {
	return &memorizer{batchSize: batchSize, memory: make(map[string][]float32)}
}

func (m *memorizer) String() string { return "memorizer" }

func (m *memorizer) Predict(board []float32) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if move, found := m.memory[fmt.Sprint(board)]; found {
		if m.swapFromTo {
			return append(append([]float32{}, move[16:]...), move[:16]...)
		}
		return move
	}
	return make([]float32, features.MoveLabelsDim)
}

func (m *memorizer) BatchPredict(boards [][]float32) [][]float32 {
	return ai.BatchMovePredictorProxy{MovePredictor: m}.BatchPredict(boards)
}

func (m *memorizer) Learn(boards, moves [][]float32) float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(boards) > m.batchSize {
		panic(errors.Errorf("batch of %d > batch size %d", len(boards), m.batchSize))
	}
	m.learnCalls++
	m.samples += len(boards)
	var unknown int
	for ii, board := range boards {
		key := fmt.Sprint(board)
		if _, found := m.memory[key]; !found {
			unknown++
		}
		m.memory[key] = moves[ii]
	}
	return float32(unknown) / float32(len(boards))
}

func (m *memorizer) Loss(boards, moves [][]float32) float32 { return 0 }
func (m *memorizer) BatchSize() int                        { return m.batchSize }
func (m *memorizer) Finalize()                             { m.finalized = true }
func (m *memorizer) Save() error {
	m.saves++
	return nil
}

func (m *memorizer) Export(dir string) error {
	m.exports++
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "model.txt"), []byte(m.String()), 0o644)
}

// randomExamples creates n examples of random boards with single pieces, and distinct moves.
func randomExamples(n int, rng *rand.Rand) []dataset.Example {
	examples := make([]dataset.Example, n)
	for ii := range examples {
		var s BoardState
		s[rng.IntN(NumCells)] = OpponentRegular
		s[rng.IntN(NumCells)] = OwnKing
		s[ii%NumCells] = OpponentKing
		move := Move{
			From: Coord{X: int8(rng.IntN(BoardSize)), Y: int8(rng.IntN(BoardSize))},
			To:   Coord{X: int8(rng.IntN(BoardSize)), Y: int8(rng.IntN(BoardSize))},
		}
		examples[ii] = dataset.NewExample(s, move)
	}
	return examples
}

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochs_per_generation: 3\nmax_generations: 2\nexport_dir: /tmp/x\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.EpochsPerGeneration)
	assert.Equal(t, 2, cfg.MaxGenerations)
	assert.Equal(t, "/tmp/x", cfg.ExportDir)
	assert.Equal(t, 100, cfg.EvaluationSampleSize)
	assert.Equal(t, 1_000_000, cfg.DatasetSizeTarget)

	require.NoError(t, os.WriteFile(path, []byte("epochs_per_generation: 0\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestFit(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	examples := randomExamples(50, rng)
	boards, moves := dataset.EncodeAll(examples)
	learner := newMemorizer(8)
	loss, err := Fit(context.Background(), learner, boards, moves, 3, rng, false)
	require.NoError(t, err)
	assert.Equal(t, float32(0), loss, "last epoch should have seen only memorized boards")
	assert.Equal(t, 3*7, learner.learnCalls)
	assert.Equal(t, 3*50, learner.samples)

	// Nothing to fit.
	loss, err = Fit(context.Background(), learner, nil, nil, 3, rng, false)
	require.NoError(t, err)
	assert.Zero(t, loss)
	_, err = Fit(context.Background(), learner, boards, moves[:1], 1, rng, false)
	require.Error(t, err)

	// Panics become errors.
	_, err = Fit(context.Background(), newMemorizer(0), boards, moves, 1, rng, false)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fit(ctx, learner, boards, moves, 1, rng, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	examples := randomExamples(20, rng)
	learner := newMemorizer(100)

	// Nothing learned: all predictions are degenerate.
	report, err := Evaluate(learner, examples, 30, rng)
	require.NoError(t, err)
	assert.Equal(t, 30, report.Samples)
	assert.Equal(t, 30, report.Degenerate)

	boards, moves := dataset.EncodeAll(examples)
	learner.Learn(boards, moves)
	report, err = Evaluate(learner, examples, 30, rng)
	require.NoError(t, err)
	assert.Equal(t, EvalReport{Samples: 30, LooseCorrect: 30, StrictCorrect: 30}, report)
	assert.Equal(t, 1.0, report.StrictAccuracy())

	// Swapping from and to is only correct for the sorted comparison.
	learner.swapFromTo = true
	report, err = Evaluate(learner, examples, 30, rng)
	require.NoError(t, err)
	assert.Equal(t, 30, report.LooseCorrect)
	assert.Less(t, report.StrictCorrect, 30)
	assert.Contains(t, report.String(), "100.0%")

	report, err = Evaluate(learner, nil, 30, rng)
	require.NoError(t, err)
	assert.Zero(t, report.Samples)
	assert.Zero(t, report.LooseAccuracy())
}

func TestCycle(t *testing.T) {
	dir := t.TempDir()
	store, err := dataset.Open(filepath.Join(dir, "dataset"))
	require.NoError(t, err)
	defer store.Close()
	rng := rand.New(rand.NewPCG(5, 6))
	require.NoError(t, store.Append(context.Background(), randomExamples(30, rng)))

	cfg := DefaultConfig()
	cfg.EpochsPerGeneration = 2
	cfg.EvaluationSampleSize = 10
	cfg.MaxGenerations = 3
	cfg.CompactEachGeneration = true
	cfg.ExportDir = filepath.Join(dir, "export")
	cfg.Seed = 42

	var learners []*memorizer
	var gotDims [][2]int
	factory := func(inputDim, outputDim int) (ai.MoveLearner, bool, error) {
		gotDims = append(gotDims, [2]int{inputDim, outputDim})
		m := newMemorizer(16)
		learners = append(learners, m)
		return m, len(learners) == 1, nil
	}
	var reports []GenerationReport
	cycle := NewCycle(cfg, store, factory)
	cycle.OnGeneration = func(r GenerationReport) { reports = append(reports, r) }
	require.NoError(t, cycle.Run(context.Background()))

	require.Len(t, reports, 3)
	for ii, r := range reports {
		assert.Equal(t, ii+1, r.Generation)
		assert.Equal(t, ii == 0, r.Created)
		assert.Equal(t, 30, r.Examples)
		assert.Equal(t, 10, r.Eval.StrictCorrect)
		assert.Equal(t, [2]int{320, 32}, gotDims[ii])
		assert.True(t, learners[ii].finalized)
		assert.Equal(t, 1, learners[ii].saves)
		assert.Equal(t, 1, learners[ii].exports)
	}
	assert.FileExists(t, filepath.Join(cfg.ExportDir, "model.txt"))
	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 30, size)

	// A failing factory is fatal.
	err = NewCycle(cfg, store, func(int, int) (ai.MoveLearner, bool, error) {
		return nil, false, errors.New("malformed checkpoint")
	}).Run(context.Background())
	require.ErrorContains(t, err, "malformed checkpoint")
}

func TestCycleWaitsForExamples(t *testing.T) {
	store, err := dataset.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	cfg := DefaultConfig()
	cfg.EpochsPerGeneration = 1
	cfg.MaxGenerations = 1
	cfg.MinExamples = 5
	var report GenerationReport
	cycle := NewCycle(cfg, store, func(int, int) (ai.MoveLearner, bool, error) {
		return newMemorizer(4), true, nil
	})
	cycle.OnGeneration = func(r GenerationReport) { report = r }

	done := make(chan error, 1)
	go func() { done <- cycle.Run(context.Background()) }()
	rng := rand.New(rand.NewPCG(7, 8))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Append(context.Background(), randomExamples(3, rng)))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Append(context.Background(), randomExamples(3, rng)))
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("training cycle didn't notice the new examples")
	}
	assert.Equal(t, 6, report.Examples)

	// Interrupted while waiting.
	cfg.MinExamples = 1000
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	cycle = NewCycle(cfg, store, func(int, int) (ai.MoveLearner, bool, error) {
		return newMemorizer(4), true, nil
	})
	require.NoError(t, cycle.Run(ctx))
	assert.Equal(t, 1, cycle.Generation())
}

func TestEmptyDatasetGeneration(t *testing.T) {
	store, err := dataset.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	cfg := DefaultConfig()
	cfg.MaxGenerations = 1
	cfg.MinExamples = 0
	learner := newMemorizer(4)
	var report GenerationReport
	cycle := NewCycle(cfg, store, func(inputDim, outputDim int) (ai.MoveLearner, bool, error) {
		assert.Equal(t, features.BoardFeaturesDim, inputDim)
		assert.Equal(t, features.MoveLabelsDim, outputDim)
		return learner, true, nil
	})
	cycle.OnGeneration = func(r GenerationReport) { report = r }
	require.NoError(t, cycle.Run(context.Background()))
	assert.Zero(t, report.Examples)
	assert.Equal(t, 1, learner.saves)
}
