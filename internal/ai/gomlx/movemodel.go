package gomlx

import (
	"bytes"
	"fmt"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/janpfeifer/checkersGo/internal/generics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
	"sync"
)

// MoveModel implements a generic GoMLX move predictor and learner.
// It implements ai.MovePredictor, ai.BatchMovePredictor and ai.MoveLearner.
//
// It is just a wrapper around one of the models implemented.
type MoveModel struct {
	Type ModelType

	// model holds the context with the weights and hyperparameters.
	model Model

	// Executors.
	predictExec, lossExec, trainStepExec *context.Exec

	// checkpoint handler, if model is being saved/loaded to/from disk.
	checkpoint *checkpoints.Handler

	// checkpointsToKeep is the number of copies of older checkpoints to keep around.
	checkpointsToKeep int

	// created is true if there was no checkpoint to load from.
	created bool

	// Hyperparameters cached values: they should also be set in the model context.
	batchSize int

	// muLearning "write" for learning, and "read" for predicting.
	muLearning sync.RWMutex

	// optimizer used when training the model.
	optimizer optimizers.Interface

	// muSave makes saving sequential.
	muSave sync.Mutex
}

var (
	// Assert MoveModel is an ai.MovePredictor, an ai.BatchMovePredictor and an ai.MoveLearner.
	_ ai.MovePredictor      = (*MoveModel)(nil)
	_ ai.BatchMovePredictor = (*MoveModel)(nil)
	_ ai.MoveLearner        = (*MoveModel)(nil)
)

// String implements fmt.Stringer and ai.MovePredictor.
func (m *MoveModel) String() string {
	if m == nil {
		return "<nil>[GoMLX]"
	}
	if m.checkpoint == nil {
		return fmt.Sprintf("%s[GoMLX]", m.Type)
	}
	return fmt.Sprintf("%s[GoMLX]@%s", m.Type, m.checkpoint.Dir())
}

// Created returns true if the model was created with random weights, because there was no
// checkpoint to load from.
func (m *MoveModel) Created() bool {
	return m.created
}

// Context returns the GoMLX context with the model weights and hyperparameters.
func (m *MoveModel) Context() *context.Context {
	return m.model.Context()
}

// buildExecs creates the executors of the model.
func (m *MoveModel) buildExecs() {
	ctx := m.model.Context()
	m.optimizer = optimizers.FromContext(ctx)

	muNewClient.Lock()
	defer muNewClient.Unlock()
	m.predictExec = context.NewExec(backend(), ctx,
		func(ctx *context.Context, inputs []*graph.Node) *graph.Node {
			return m.model.ForwardGraph(ctx, inputs)
		})
	m.lossExec = context.NewExec(backend(), ctx,
		func(ctx *context.Context, inputsAndLabels []*graph.Node) *graph.Node {
			inputs := inputsAndLabels[:len(inputsAndLabels)-1]
			labels := inputsAndLabels[len(inputsAndLabels)-1]
			loss := m.model.LossGraph(ctx, inputs, labels)
			if !loss.IsScalar() {
				// Some losses may return one value per example of the batch.
				loss = graph.ReduceAllMean(loss)
			}
			return loss
		})
	m.trainStepExec = context.NewExec(backend(), ctx,
		func(ctx *context.Context, inputsAndLabels []*graph.Node) *graph.Node {
			inputs := inputsAndLabels[:len(inputsAndLabels)-1]
			labels := inputsAndLabels[len(inputsAndLabels)-1]
			g := labels.Graph()
			ctx.SetTraining(g, true)
			loss := m.model.LossGraph(ctx, inputs, labels)
			if !loss.IsScalar() {
				loss = graph.ReduceAllMean(loss)
			}
			m.optimizer.UpdateGraph(ctx, g, loss)
			train.ExecPerStepUpdateGraphFn(ctx, g)
			return loss
		})
	m.lossExec.SetMaxCache(100)
	m.trainStepExec.SetMaxCache(100)
}

// Predict implements ai.MovePredictor.
func (m *MoveModel) Predict(board []float32) []float32 {
	return m.BatchPredict([][]float32{board})[0]
}

// BatchPredict implements ai.BatchMovePredictor.
func (m *MoveModel) BatchPredict(boards [][]float32) [][]float32 {
	inputs := m.model.CreateInputs(boards)

	m.muLearning.RLock()
	defer m.muLearning.RUnlock()
	donatedInputs := generics.SliceMap(inputs, func(t *tensors.Tensor) any {
		return graph.DonateTensorBuffer(t, backend())
	})
	predictionsT := m.predictExec.Call(donatedInputs...)[0]
	predictions := predictionsT.Value().([][]float32)
	// Remove any padding:
	return predictions[:len(boards)]
}

// Learn implements ai.MoveLearner, and trains model with the boards and move labels.
// It returns the loss.
func (m *MoveModel) Learn(boards, moves [][]float32) (loss float32) {
	m.muLearning.Lock()
	defer m.muLearning.Unlock()
	lossT := m.trainStepExec.Call(m.createInputsAndLabels(boards, moves)...)[0]
	return tensors.ToScalar[float32](lossT)
}

// Loss implements ai.MoveLearner.
func (m *MoveModel) Loss(boards, moves [][]float32) (loss float32) {
	m.muLearning.RLock()
	defer m.muLearning.RUnlock()
	lossT := m.lossExec.Call(m.createInputsAndLabels(boards, moves)...)[0]
	return tensors.ToScalar[float32](lossT)
}

func (m *MoveModel) createInputsAndLabels(boards, moves [][]float32) []any {
	inputs := m.model.CreateInputs(boards)
	inputs = append(inputs, m.model.CreateLabels(moves))
	return generics.SliceMap(inputs, func(t *tensors.Tensor) any {
		return graph.DonateTensorBuffer(t, backend())
	})
}

// Save implements ai.MoveLearner: it creates a new checkpoint, and older ones are pruned.
func (m *MoveModel) Save() error {
	if m.checkpoint == nil {
		klog.Warningf("This %s model is not associated to a checkpoint directory, not saving", m.Type)
		return nil
	}
	m.muSave.Lock()
	defer m.muSave.Unlock()
	m.muLearning.RLock()
	defer m.muLearning.RUnlock()
	return m.checkpoint.Save()
}

// Export implements ai.MoveLearner. It writes a single checkpoint with the current weights and
// hyperparameters to dir, replacing its previous contents. The result can be loaded with
// New by passing dir as the model path.
//
// It should be called after the model variables were created (after the first Predict or Learn),
// since the export handler becomes the loader of the context for variables created later.
func (m *MoveModel) Export(dir string) error {
	m.muSave.Lock()
	defer m.muSave.Unlock()
	m.muLearning.RLock()
	defer m.muLearning.RUnlock()

	dir = filepath.Clean(dir)
	tmpDir := dir + "~export"
	if err := os.RemoveAll(tmpDir); err != nil {
		return errors.Wrapf(err, "failed to clean temporary export directory %q", tmpDir)
	}
	// An empty directory: the handler has nothing to load into the context.
	exportHandler, err := checkpoints.Build(m.model.Context()).Dir(tmpDir).Keep(1).Done()
	if err != nil {
		return errors.WithMessagef(err, "failed to create export checkpoint in %q", tmpDir)
	}
	if err := exportHandler.Save(); err != nil {
		return errors.WithMessagef(err, "failed to save export checkpoint in %q", tmpDir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to remove previous export %q", dir)
	}
	if err := os.Rename(tmpDir, dir); err != nil {
		return errors.Wrapf(err, "failed renaming %q to %q", tmpDir, dir)
	}
	klog.V(1).Infof("Exported %s to %s", m, dir)
	return nil
}

// BatchSize returns the recommended batch size and implements ai.MoveLearner.
func (m *MoveModel) BatchSize() int {
	return m.batchSize
}

// Finalize implements ai.MoveLearner, and frees the executors and the model weights.
func (m *MoveModel) Finalize() {
	m.muLearning.Lock()
	defer m.muLearning.Unlock()
	m.predictExec.Finalize()
	m.lossExec.Finalize()
	m.trainStepExec.Finalize()
	m.model.Context().Finalize()
}

// writeHyperparametersHelp enumerates all the hyperparameters set in the context.
func (m *MoveModel) writeHyperparametersHelp() {
	buf := &bytes.Buffer{}
	_, _ = fmt.Fprintf(buf, "Model %s parameters:\n", m.Type)
	_, _ = fmt.Fprintf(buf, "\t%s=<path_to_model> to use the model saved at the given directory (created if it doesn't exist), or\n", m.Type)
	_, _ = fmt.Fprintf(buf, "\t%s=-help to show this help message\n", m.Type)
	for key, value := range generics.SortedKeysAndValues(rootParams(m.model.Context())) {
		_, _ = fmt.Fprintf(buf, "\t%q: default value is %v\n", key, value)
	}
	klog.Info(buf)
}

// rootParams returns the hyperparameters of the root scope of the context.
func rootParams(ctx *context.Context) map[string]any {
	params := make(map[string]any)
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope == context.RootScope {
			params[key] = value
		}
	})
	return params
}

// createCheckpoint for the model in dir, loading the latest checkpoint if there is one.
func (m *MoveModel) createCheckpoint(dir string) error {
	existing, err := filepath.Glob(filepath.Join(dir, "checkpoint-*.json"))
	if err != nil {
		return errors.Wrapf(err, "failed to list checkpoints in %q", dir)
	}
	m.created = len(existing) == 0
	m.checkpoint, err = checkpoints.
		Build(m.model.Context()).
		Dir(dir).
		Immediate().
		Keep(m.checkpointsToKeep).
		Done()
	if err != nil {
		return err
	}
	if m.created {
		klog.Infof("No checkpoint found in %s: created model %s with random weights", dir, m.Type)
	} else {
		klog.Infof("Loaded model %s from %s", m.Type, dir)
	}
	return nil
}
