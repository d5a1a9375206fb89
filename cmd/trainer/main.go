// trainer runs the training cycle: generation after generation it fits the move model on the whole
// dataset accumulated by the selfplay workers, evaluates it, saves a checkpoint and exports it.
package main

import (
	"context"
	"flag"
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/profilers"
	"github.com/janpfeifer/checkersGo/internal/training"
	"github.com/janpfeifer/checkersGo/internal/ui/spinning"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
	"time"
)

var (
	flagDataset = flag.String("dataset", "", "Directory of the shared dataset. Required.")
	flagModel   = flag.String("model", "", "Model configuration, e.g. \"fnn=<checkpoint_dir>,learning_rate=0.001\". "+
		"Use \"fnn=help\" to list the hyperparameters. Required.")
	flagConfig = flag.String("config", "", "Optional YAML file with the training configuration. Flags set explicitly override it.")

	flagExport         = flag.String("export", "", "Directory where the deployment copy of the model is exported after each generation.")
	flagEpochs         = flag.Int("epochs", 100, "Epochs per generation.")
	flagMaxGenerations = flag.Int("max_generations", 0, "Number of generations to train. If 0, train until interrupted.")
	flagEvalSamples    = flag.Int("eval_samples", 100, "Number of examples sampled to evaluate the model.")
	flagMinExamples    = flag.Int("min_examples", 1, "Wait for the dataset to have these many examples before training.")
	flagTarget         = flag.Int("target", 1_000_000, "Dataset size targeted by the selfplay workers, for reporting only.")
	flagCompact        = flag.Bool("compact", false, "Compact the dataset files at each generation.")
	flagProgress       = flag.Bool("progress", true, "Display progress bars while training.")
	flagSeed           = flag.Uint64("seed", 0, "Random seed for shuffling and evaluation. If 0 it uses the current time.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDataset == "" || *flagModel == "" {
		klog.Fatal("Please set -dataset and -model")
	}

	// Capture Control+C
	ctx, cancel := spinning.WithSafeInterrupt(context.Background(), 10*time.Second)
	defer cancel()
	profilers.Setup(ctx)
	defer profilers.OnQuit()

	cfg := must.M1(buildConfig())
	store := must.M1(dataset.Open(*flagDataset))
	defer store.Close()

	// Fail early if the model can't be loaded.
	learner, created := must.M2(newModel(0, 0))
	klog.Infof("Training %s (new model: %v)", learner, created)
	learner.Finalize()

	cycle := training.NewCycle(cfg, store, newModel)
	if err := cycle.Run(ctx); err != nil {
		klog.Fatalf("Training failed: %+v", err)
	}
}

// buildConfig reads the configuration file, if given, and overrides it with the flags set explicitly.
func buildConfig() (training.Config, error) {
	cfg := training.DefaultConfig()
	cfg.EpochsPerGeneration = *flagEpochs
	cfg.MaxGenerations = *flagMaxGenerations
	cfg.EvaluationSampleSize = *flagEvalSamples
	cfg.MinExamples = *flagMinExamples
	cfg.DatasetSizeTarget = *flagTarget
	cfg.CompactEachGeneration = *flagCompact
	cfg.ExportDir = *flagExport
	cfg.ShowProgress = *flagProgress
	cfg.Seed = *flagSeed
	if *flagConfig == "" {
		return cfg, cfg.Validate()
	}

	fileCfg, err := training.LoadConfig(*flagConfig)
	if err != nil {
		return cfg, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "export":
			fileCfg.ExportDir = cfg.ExportDir
		case "epochs":
			fileCfg.EpochsPerGeneration = cfg.EpochsPerGeneration
		case "max_generations":
			fileCfg.MaxGenerations = cfg.MaxGenerations
		case "eval_samples":
			fileCfg.EvaluationSampleSize = cfg.EvaluationSampleSize
		case "min_examples":
			fileCfg.MinExamples = cfg.MinExamples
		case "target":
			fileCfg.DatasetSizeTarget = cfg.DatasetSizeTarget
		case "compact":
			fileCfg.CompactEachGeneration = cfg.CompactEachGeneration
		case "progress":
			fileCfg.ShowProgress = cfg.ShowProgress
		case "seed":
			fileCfg.Seed = cfg.Seed
		}
	})
	return fileCfg, fileCfg.Validate()
}
