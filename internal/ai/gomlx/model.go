package gomlx

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
)

// Model is a GoMLX supported move prediction model, the backend of the gomlx.MoveModel.
type Model interface {
	// Context used by the model: with both its weights and hyperparameters.
	Context() *context.Context

	// CreateInputs for a batch of encoded boards as tensors.
	// It should also do the padding.
	CreateInputs(boards [][]float32) []*tensors.Tensor

	// CreateLabels tensor for the encoded moves.
	// It should also do the padding to match the inputs.
	CreateLabels(moves [][]float32) *tensors.Tensor

	// ForwardGraph is the GoMLX model graph function with the forward path.
	// It must return the move scores for each board, shaped [batch_size, output_dim].
	ForwardGraph(ctx *context.Context, inputs []*graph.Node) *graph.Node

	// LossGraph should calculate the loss given the board inputs and the labels (shaped [batch_size, output_dim]).
	// It must return a scalar with the loss value.
	LossGraph(ctx *context.Context, inputs []*graph.Node, labels *graph.Node) *graph.Node
}
