// Package gomlx implements move prediction models (ai.MoveLearner) with GoMLX.
//
// It separates the checkersGo MoveLearner implementation (MoveModel) from the GoMLX models that
// support it: for now only an FNN (Feedforward Neural Network) model is implemented.
//
// Importing this package also registers the "model" player module, see package players.
package gomlx

import (
	"fmt"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/xla"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/janpfeifer/checkersGo/internal/features"
	"github.com/janpfeifer/checkersGo/internal/parameters"
	"github.com/janpfeifer/checkersGo/internal/players"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"slices"
	"sync"
	"weak"
)

// ModelType enumerates the GoMLX models available.
type ModelType int

const (
	ModelNone ModelType = iota
	ModelFNN
)

var modelTypeNames = []string{"none", "fnn"}

// ModelTypeValues returns all values of ModelType.
func ModelTypeValues() []ModelType {
	return []ModelType{ModelNone, ModelFNN}
}

func (t ModelType) String() string {
	if int(t) >= 0 && int(t) < len(modelTypeNames) {
		return modelTypeNames[t]
	}
	return fmt.Sprintf("ModelType(%d)", int(t))
}

var (
	// Backend is a singleton, the same for all models.
	backend = sync.OnceValue(func() backends.Backend { return backends.New() })

	// muNewClient is a Mutex used to synchronize access to GoMLX executors creation.
	muNewClient sync.Mutex

	// Cache of models: per model type / checkpoint name.
	muModelsCache sync.Mutex
	modelsCache   = make(map[string]map[string]weak.Pointer[MoveModel])
)

const notSpecified = "#<not_specified>"

// New creates a new GoMLX based move model with the default dimensions (features.BoardFeaturesDim
// and features.MoveLabelsDim), if a supported model is selected in params.
// See NewWithDims.
func New(params parameters.Params) (*MoveModel, error) {
	return NewWithDims(features.BoardFeaturesDim, features.MoveLabelsDim, params)
}

// NewWithDims creates a new GoMLX based move model if the supported model is selected in parameters.
// Currently selected model names:
//
//   - "fnn": the parameter should map to the directory with the model checkpoints. If there are
//     no checkpoints there, a model is created with random weights (see MoveModel.Created).
//     If the value is empty, the model is not associated with any directory.
//
// Other parameters are used to override the model hyperparameters, and "keep" sets the number
// of checkpoints to keep. Parameters used are removed from params.
//
// If no known model type is configured, it returns nil, nil.
// A checkpoint that exists but can't be loaded is returned as an error.
func NewWithDims(inputDim, outputDim int, params parameters.Params) (*MoveModel, error) {
	for _, modelType := range ModelTypeValues() {
		if modelType == ModelNone {
			continue
		}
		key := modelType.String()
		filePath, _ := parameters.PopParamOr(params, key, notSpecified)
		if filePath == notSpecified {
			continue
		}

		m := &MoveModel{Type: modelType}
		switch modelType {
		case ModelFNN:
			m.model = NewFNN(inputDim, outputDim)
		default:
			return nil, errors.Errorf("model type %s defined but not implemented", modelType)
		}

		// Help if requested.
		if slices.Index([]string{"help", "--help", "-help", "-h"}, filePath) != -1 {
			m.writeHyperparametersHelp()
			return nil, errors.Errorf("model type %s help requested", modelType)
		}

		// Number of checkpoints to keep.
		var err error
		m.checkpointsToKeep, err = parameters.PopParamOr(params, "keep", 10)
		if err != nil {
			return nil, err
		}

		// Create checkpoint, and load it if it exists.
		if filePath != "" {
			if err = m.createCheckpoint(filePath); err != nil {
				return nil, errors.WithMessagef(err, "failed to build checkpoint for model %s in path %s",
					modelType, filePath)
			}
		} else {
			m.created = true
		}

		// Overwrite hyperparameters from given params.
		ctx := m.model.Context()
		if err = extractParams(modelType.String(), params, ctx); err != nil {
			return nil, err
		}
		m.batchSize = context.GetParamOr(ctx, ParamBatchSize, 128)
		m.buildExecs()

		// Force creating/loading of variables without race conditions first.
		_ = m.Predict(make([]float32, context.GetParamOr(ctx, ParamInputDim, inputDim)))
		klog.V(1).Infof("Created model %s", m)
		return m, nil
	}
	return nil, nil
}

// Cached is like New, but models are shared among callers asking for the same model type and
// checkpoint directory while they are in use. Other parameters are ignored when a cached model is returned.
func Cached(params parameters.Params) (*MoveModel, error) {
	muModelsCache.Lock()
	defer muModelsCache.Unlock()

	for _, modelType := range ModelTypeValues() {
		if modelType == ModelNone {
			continue
		}
		key := modelType.String()
		filePath, _ := parameters.GetParamOr(params, key, notSpecified)
		if filePath == notSpecified {
			continue
		}

		// Check cache for previously created models.
		cachePerModelType, found := modelsCache[key]
		if found {
			if weakPtr, found := cachePerModelType[filePath]; found {
				if m := weakPtr.Value(); m != nil {
					// Hyperparameters only apply when the model is first created.
					clear(params)
					return m, nil
				}
				// Model has been collected.
				delete(cachePerModelType, filePath)
			}
		} else {
			cachePerModelType = make(map[string]weak.Pointer[MoveModel])
			modelsCache[key] = cachePerModelType
		}

		m, err := New(params)
		if err != nil {
			return nil, err
		}
		cachePerModelType[filePath] = weak.Make(m)
		return m, nil
	}
	return nil, nil
}

// init registers the "model" player module, so end users can play with a trained model.
func init() {
	players.RegisterModule("model", &policyModule{})
}

// policyModule creates policies that play with a MoveModel.
type policyModule struct{}

// Assert policyModule implements players.Module.
var _ players.Module = (*policyModule)(nil)

// NewPolicy implements players.Module. It takes the model parameters (e.g. "fnn=<dir>") and
// optionally a "temperature" for sampling moves (0 always plays the best scored move).
func (policyModule) NewPolicy(params parameters.Params) (searchers.Policy, error) {
	temperature, err := parameters.PopParamOr(params, "temperature", 0.0)
	if err != nil {
		return nil, err
	}
	m, err := Cached(params)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("no model configured, use for instance \"model:fnn=<path>\"")
	}
	return searchers.NewRandomized(ai.NewPredictorScorer(m), temperature, nil), nil
}

// extractParams and write them as context hyperparameters
func extractParams(modelName string, params parameters.Params, ctx *context.Context) error {
	var err error
	ctx.EnumerateParams(func(scope, key string, valueAny any) {
		if err != nil {
			// If error happened skip the rest.
			return
		}
		if scope != context.RootScope {
			return
		}
		switch defaultValue := valueAny.(type) {
		case string:
			value, _ := parameters.PopParamOr(params, key, defaultValue)
			ctx.SetParam(key, value)
		case int:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (int) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		case float64:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (float64) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		case float32:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (float32) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		case bool:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (bool) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		default:
			err = errors.Errorf("model %s parameter %q is of unknown type %T", modelName, key, defaultValue)
		}
	})
	return err
}
