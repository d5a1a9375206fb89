package training

import (
	"context"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/janpfeifer/checkersGo/internal/ai"
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/features"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math/rand/v2"
	"time"
)

// ModelFactory loads the latest checkpoint of the model, or creates a new one with the given
// dimensions if there is none, in which case created is true.
// A checkpoint that can't be loaded must be returned as an error.
type ModelFactory func(inputDim, outputDim int) (learner ai.MoveLearner, created bool, err error)

// Store is the dataset as seen by the training cycle. Implemented by *dataset.Store.
type Store interface {
	Dir() string
	Size() (int, error)
	LoadSnapshot() ([]dataset.Example, error)
	Compact(ctx context.Context) error
}

// GenerationReport summarizes one generation of the Cycle.
type GenerationReport struct {
	Generation int
	Created    bool
	Examples   int
	Loss       float32
	Eval       EvalReport
	Elapsed    time.Duration
}

// Cycle is the training loop: see Run.
type Cycle struct {
	cfg        Config
	store      Store
	factory    ModelFactory
	rng        *rand.Rand
	generation int

	// OnGeneration, if set, is called at the end of each generation.
	OnGeneration func(report GenerationReport)
}

// NewCycle creates a training cycle over the examples of store, with the models created by factory.
func NewCycle(cfg Config, store Store, factory ModelFactory) *Cycle {
	seed := cfg.seed()
	return &Cycle{
		cfg:     cfg,
		store:   store,
		factory: factory,
		rng:     rand.New(rand.NewPCG(seed, seed+1)),
	}
}

// Generation returns the current generation, starting at 1.
func (c *Cycle) Generation() int { return c.generation }

// Run trains generation after generation, until Config.MaxGenerations is reached or ctx is cancelled.
// In each generation it:
//
//  1. Loads the latest checkpoint of the model, or creates a new one.
//  2. Waits until the dataset has Config.MinExamples, and fits the model on the whole dataset for
//     Config.EpochsPerGeneration epochs.
//  3. Evaluates the model on Config.EvaluationSampleSize examples sampled from the dataset.
//  4. Saves the checkpoint and, if Config.ExportDir is set, exports a deployment copy.
//
// An interrupted generation is not saved, and Run returns nil. Errors loading the model or
// accessing the dataset are returned.
func (c *Cycle) Run(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	for c.generation = 1; c.cfg.MaxGenerations == 0 || c.generation <= c.cfg.MaxGenerations; c.generation++ {
		report, err := c.runGeneration(ctx)
		if err != nil {
			if ctx.Err() != nil {
				klog.Infof("Training interrupted during generation %d: %v", c.generation, ctx.Err())
				return nil
			}
			return errors.WithMessagef(err, "generation %d", c.generation)
		}
		klog.Infof("Generation %d: %s examples, loss=%.4g, %s (%s)", report.Generation,
			humanize.Comma(int64(report.Examples)), report.Loss, report.Eval, report.Elapsed.Round(time.Millisecond))
		if c.OnGeneration != nil {
			c.OnGeneration(report)
		}
	}
	return nil
}

func (c *Cycle) runGeneration(ctx context.Context) (report GenerationReport, err error) {
	start := time.Now()
	report.Generation = c.generation
	learner, created, err := c.factory(features.BoardFeaturesDim, features.MoveLabelsDim)
	if err != nil {
		return report, errors.WithMessage(err, "failed to load or create the model")
	}
	defer learner.Finalize()
	report.Created = created
	if created {
		klog.Infof("Generation %d: created new model %s", c.generation, learner)
	} else {
		klog.V(1).Infof("Generation %d: loaded model %s", c.generation, learner)
	}

	if err = c.waitForExamples(ctx); err != nil {
		return
	}
	examples, err := c.store.LoadSnapshot()
	if err != nil {
		return
	}
	report.Examples = len(examples)
	if c.cfg.DatasetSizeTarget > 0 {
		klog.V(1).Infof("Generation %d: dataset has %s of the target %s examples", c.generation,
			humanize.Comma(int64(len(examples))), humanize.Comma(int64(c.cfg.DatasetSizeTarget)))
	}
	if c.cfg.CompactEachGeneration {
		if err = c.store.Compact(ctx); err != nil {
			return
		}
	}

	boards, moves := dataset.EncodeAll(examples)
	report.Loss, err = Fit(ctx, learner, boards, moves, c.cfg.EpochsPerGeneration, c.rng, c.cfg.ShowProgress)
	if err != nil {
		return
	}
	report.Eval, err = Evaluate(learner, examples, c.cfg.EvaluationSampleSize, c.rng)
	if err != nil {
		return
	}

	if err = learner.Save(); err != nil {
		return report, errors.WithMessagef(err, "failed to save %s", learner)
	}
	if c.cfg.ExportDir != "" {
		if err = learner.Export(c.cfg.ExportDir); err != nil {
			return report, errors.WithMessagef(err, "failed to export %s to %q", learner, c.cfg.ExportDir)
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

// waitForExamples blocks until the store holds Config.MinExamples, watching the store directory for changes.
func (c *Cycle) waitForExamples(ctx context.Context) error {
	enough := func() (bool, error) {
		size, err := c.store.Size()
		return size >= c.cfg.MinExamples, err
	}
	if ok, err := enough(); ok || err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create dataset watcher")
	}
	defer func() { _ = watcher.Close() }()
	if err = watcher.Add(c.store.Dir()); err != nil {
		return errors.Wrapf(err, "failed to watch dataset directory %q", c.store.Dir())
	}
	klog.Infof("Waiting for the dataset in %s to have %s examples", c.store.Dir(), humanize.Comma(int64(c.cfg.MinExamples)))
	for {
		// Checked after the watch started, so no commit is missed.
		if ok, err := enough(); ok || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watcher.Events:
			if !ok {
				return errors.New("dataset watcher closed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("dataset watcher closed")
			}
			return errors.Wrapf(err, "watching dataset directory %q", c.store.Dir())
		}
	}
}
