package gomlx

import (
	"fmt"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/regularizers"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/checkersGo/internal/features"
)

const (
	// ParamInputDim is the hyperparameter with the dimension of the encoded boards.
	ParamInputDim = "input_dim"

	// ParamOutputDim is the hyperparameter with the dimension of the encoded moves.
	ParamOutputDim = "output_dim"

	// ParamBatchSize is the hyperparameter with the training batch size.
	ParamBatchSize = "batch_size"
)

// LayerWidths returns the widths of the dense layers of the FNN, sized from the input and output
// dimensions: [in/2, out*2, (out*2+in/2)/2, out]. For boards (320) and moves (32) that is
// [160, 64, 112, 32].
func LayerWidths(inputDim, outputDim int) []int {
	first, second := inputDim/2, outputDim*2
	return []int{first, second, (first + second) / 2, outputDim}
}

// FNN implements a feed-forward model mapping encoded boards to encoded moves: ReLU hidden
// layers sized by LayerWidths, and a linear output layer. It's trained with mean squared error.
type FNN struct {
	ctx *context.Context
}

var _ Model = (*FNN)(nil)

// NewFNN creates an FNN model with a fresh context, initialized with hyperparameters set to their defaults.
func NewFNN(inputDim, outputDim int) *FNN {
	fnn := &FNN{ctx: context.New()}
	fnn.ctx.RngStateReset()
	fnn.ctx.SetParams(map[string]any{
		ParamBatchSize: 128,
		ParamInputDim:  inputDim,
		ParamOutputDim: outputDim,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.001,
		optimizers.ParamAdamEpsilon:  1e-7,
		optimizers.ParamAdamDType:    "",
		regularizers.ParamL2:         0.0,
	})
	fnn.ctx = fnn.ctx.Checked(false)
	return fnn
}

// Context implements Model.
func (fnn *FNN) Context() *context.Context {
	return fnn.ctx
}

func (fnn *FNN) dims() (inputDim, outputDim int) {
	inputDim = context.GetParamOr(fnn.ctx, ParamInputDim, features.BoardFeaturesDim)
	outputDim = context.GetParamOr(fnn.ctx, ParamOutputDim, features.MoveLabelsDim)
	return
}

// paddedBatchSize returns a padded batchSize for the given numBoards.
// This is important so we don't have too many different versions of the program for every different batch size.
func (fnn *FNN) paddedBatchSize(numBoards int) int {
	// Make sure the default batchSize is supported without padding.
	defaultBatchSize := context.GetParamOr(fnn.ctx, ParamBatchSize, 128)
	if numBoards == defaultBatchSize {
		return numBoards
	}

	paddedSize := 1
	for paddedSize < numBoards {
		// Increase 1.5x at a time.
		paddedSize = paddedSize + (paddedSize+1)/2
	}
	return paddedSize
}

// padded creates a [paddedBatchSize, dim] tensor with the given rows, and zeros for padding.
func (fnn *FNN) padded(rows [][]float32, dim int) *tensors.Tensor {
	t := tensors.FromShape(shapes.Make(dtypes.Float32, fnn.paddedBatchSize(len(rows)), dim))
	tensors.MutableFlatData(t, func(flat []float32) {
		for rowIdx, row := range rows {
			if len(row) != dim {
				exceptions.Panicf("FNN: row #%d has dimension %d, wanted %d", rowIdx, len(row), dim)
			}
			copy(flat[rowIdx*dim:], row)
		}
	})
	return t
}

// CreateInputs implements Model. It returns the padded boards and the number of boards actually used.
func (fnn *FNN) CreateInputs(boards [][]float32) []*tensors.Tensor {
	inputDim, _ := fnn.dims()
	return []*tensors.Tensor{fnn.padded(boards, inputDim), tensors.FromScalar(int32(len(boards)))}
}

// CreateLabels implements Model.
func (fnn *FNN) CreateLabels(moves [][]float32) *tensors.Tensor {
	_, outputDim := fnn.dims()
	return fnn.padded(moves, outputDim)
}

// getBatchMask based on padding on the inputs, shaped [batch_size, output_dim].
func (fnn *FNN) getBatchMask(inputs []*Node) *Node {
	boards := inputs[0]
	usedBatchSize := inputs[1]
	g := boards.Graph()
	batchSize := boards.Shape().Dim(0)
	_, outputDim := fnn.dims()
	batchMask := LessThan(Iota(g, shapes.Make(dtypes.Int32, batchSize, 1), 0), usedBatchSize)
	return BroadcastToDims(batchMask, batchSize, outputDim)
}

// ForwardGraph implements Model.
func (fnn *FNN) ForwardGraph(ctx *context.Context, inputs []*Node) *Node {
	x := inputs[0]
	batchSize := x.Shape().Dim(0)
	inputDim, outputDim := fnn.dims()
	widths := LayerWidths(inputDim, outputDim)
	numHidden := len(widths) - 1
	for ii, width := range widths[:numHidden] {
		x = layers.DenseWithBias(ctx.In(fmt.Sprintf("hidden_%d", ii)), x, width)
		x = activations.Relu(x)
	}
	x = layers.DenseWithBias(ctx.In("output"), x, widths[numHidden])
	x.AssertDims(batchSize, outputDim)
	return x
}

// LossGraph implements Model.
func (fnn *FNN) LossGraph(ctx *context.Context, inputs []*Node, labels *Node) *Node {
	predictions := fnn.ForwardGraph(ctx, inputs)
	batchMask := fnn.getBatchMask(inputs)
	return losses.MeanSquaredError([]*Node{labels, batchMask}, []*Node{predictions})
}
