package gomlx

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/checkersGo/internal/features"
	"github.com/janpfeifer/checkersGo/internal/generics"
	"github.com/janpfeifer/checkersGo/internal/parameters"
	"github.com/janpfeifer/checkersGo/internal/players"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"slices"
	"testing"
)

// trainingData returns a few encoded boards from the start of a game, each labeled with its first legal move.
func trainingData(t *testing.T) (boards, moves [][]float32) {
	b := NewBoard()
	for range 6 {
		legal := b.LegalMoves(b.CurrentMover())
		require.NotEmpty(t, legal)
		m := legal[0]
		boards = append(boards, features.EncodeBoard(b.State()))
		moves = append(moves, features.EncodeMove(m))
		require.NoError(t, b.ApplyMove(m))
	}
	return
}

func TestLayerWidths(t *testing.T) {
	assert.Equal(t, []int{160, 64, 112, 32}, LayerWidths(features.BoardFeaturesDim, features.MoveLabelsDim))
}

func TestFNN_Padding(t *testing.T) {
	fnn := NewFNN(features.BoardFeaturesDim, features.MoveLabelsDim)
	want := []int{1, 2, 3, 5, 5, 8, 8, 8, 12}
	got := make([]int, len(want))
	for ii := range want {
		got[ii] = fnn.paddedBatchSize(ii + 1)
	}
	require.Equal(t, want, got)
	assert.Equal(t, 128, fnn.paddedBatchSize(128))
}

func TestFNN_ForwardGraph(t *testing.T) {
	boards, _ := trainingData(t)
	fnn := NewFNN(features.BoardFeaturesDim, features.MoveLabelsDim)
	inputs := fnn.CreateInputs(boards)
	require.Len(t, inputs, 2)
	assert.Equal(t, int32(len(boards)), tensors.ToScalar[int32](inputs[1]))
	paddedSize := fnn.paddedBatchSize(len(boards))
	inputs[0].Shape().AssertDims(paddedSize, features.BoardFeaturesDim)

	backend := graphtest.BuildTestBackend()
	inputsAny := generics.SliceMap(inputs, func(t *tensors.Tensor) any { return t })
	outputT := context.ExecOnce(backend, fnn.Context(), func(ctx *context.Context, inputs []*graph.Node) *graph.Node {
		return fnn.ForwardGraph(ctx, inputs)
	}, inputsAny...)
	outputT.Shape().AssertDims(paddedSize, features.MoveLabelsDim)
}

func TestMoveModel(t *testing.T) {
	// No model configured.
	m, err := New(parameters.NewFromConfigString("foo=bar"))
	require.NoError(t, err)
	require.Nil(t, m)

	// Model not associated with any directory.
	params := parameters.NewFromConfigString("fnn=,learning_rate=0.01")
	m, err = New(params)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, params)
	assert.True(t, m.Created())
	assert.Equal(t, 0.01, context.GetParamOr(m.Context(), "learning_rate", 0.0))
	assert.Equal(t, 128, m.BatchSize())

	boards, moves := trainingData(t)
	prediction := m.Predict(boards[0])
	require.Len(t, prediction, features.MoveLabelsDim)
	predictions := m.BatchPredict(boards)
	require.Len(t, predictions, len(boards))

	initialLoss := m.Loss(boards, moves)
	for range 100 {
		_ = m.Learn(boards, moves)
	}
	finalLoss := m.Loss(boards, moves)
	assert.Less(t, finalLoss, initialLoss)
	require.NoError(t, m.Save())
	m.Finalize()
}

func TestMoveModel_Checkpoints(t *testing.T) {
	dir := t.TempDir()
	m, err := New(parameters.NewFromConfigString("fnn=" + dir + "/model,keep=2"))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Created())

	boards, moves := trainingData(t)
	_ = m.Learn(boards, moves)
	require.NoError(t, m.Save())
	want := m.Predict(boards[1])

	exportDir := dir + "/export"
	require.NoError(t, m.Export(exportDir))
	// Exporting twice replaces the previous export.
	require.NoError(t, m.Export(exportDir))

	for _, path := range []string{dir + "/model", exportDir} {
		loaded, err := New(parameters.NewFromConfigString("fnn=" + path))
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.False(t, loaded.Created(), "model at %s should have been loaded", path)
		assert.InDeltaSlice(t, want, loaded.Predict(boards[1]), 1e-4)
		loaded.Finalize()
	}
}

func TestPolicyModule(t *testing.T) {
	assert.True(t, slices.Contains(players.Modules(), "model"))
	_, err := players.New("model")
	require.Error(t, err)

	policy, err := players.New("model:fnn=,temperature=0.5")
	require.NoError(t, err)
	b := NewBoard()
	m, err := policy.Select(b)
	require.NoError(t, err)
	assert.True(t, slices.Contains(b.LegalMoves(Mine), m))
}
