package main

import (
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/janpfeifer/checkersGo/internal/ai/gomlx"
	"github.com/janpfeifer/checkersGo/internal/features"
	"github.com/janpfeifer/checkersGo/internal/parameters"
	"github.com/pkg/errors"
)

// newModel implements training.ModelFactory with the GoMLX model configured by -model.
// Zero dimensions use the default encoding dimensions.
func newModel(inputDim, outputDim int) (ai.MoveLearner, bool, error) {
	if inputDim == 0 || outputDim == 0 {
		inputDim, outputDim = features.BoardFeaturesDim, features.MoveLabelsDim
	}
	params := parameters.NewFromConfigString(*flagModel)
	model, err := gomlx.NewWithDims(inputDim, outputDim, params)
	if err != nil {
		return nil, false, err
	}
	if model == nil {
		return nil, false, errors.Errorf("no model configured in -model=%q, use for instance \"fnn=<dir>\"", *flagModel)
	}
	if err = parameters.CheckAllUsed(params, "-model"); err != nil {
		model.Finalize()
		return nil, false, err
	}
	return model, model.Created(), nil
}
