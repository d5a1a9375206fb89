// Package training implements the training cycle: generation after generation it loads (or creates)
// the move model, fits it on the whole dataset snapshot, evaluates it, and saves and exports it.
package training

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// Config of the training Cycle. It can be loaded from a YAML file with LoadConfig.
type Config struct {
	// EpochsPerGeneration is the number of passes over the whole dataset in each generation.
	EpochsPerGeneration int `yaml:"epochs_per_generation"`

	// DatasetSizeTarget is the dataset size the self-play workers aim at. The cycle only reports it.
	DatasetSizeTarget int `yaml:"dataset_size_target"`

	// EvaluationSampleSize is the number of examples sampled (with replacement) for evaluation.
	EvaluationSampleSize int `yaml:"evaluation_sample_size"`

	// MaxGenerations to train. If 0, train until interrupted.
	MaxGenerations int `yaml:"max_generations"`

	// MinExamples that the dataset must hold before a generation is trained.
	MinExamples int `yaml:"min_examples"`

	// CompactEachGeneration compacts the dataset store after loading the snapshot of each generation.
	CompactEachGeneration bool `yaml:"compact_each_generation"`

	// ExportDir where a deployment copy of the model is written after each generation. Empty to disable.
	ExportDir string `yaml:"export_dir"`

	// ShowProgress displays progress bars while fitting.
	ShowProgress bool `yaml:"show_progress"`

	// Seed for the shuffling and evaluation sampling. If 0 the current time is used.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		EpochsPerGeneration:  100,
		DatasetSizeTarget:    1_000_000,
		EvaluationSampleSize: 100,
		MinExamples:          1,
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	contents, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read training configuration from %q", path)
	}
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse training configuration in %q", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.EpochsPerGeneration < 1 {
		return errors.Errorf("epochs_per_generation must be >= 1, got %d", c.EpochsPerGeneration)
	}
	if c.EvaluationSampleSize < 0 {
		return errors.Errorf("evaluation_sample_size must be >= 0, got %d", c.EvaluationSampleSize)
	}
	if c.MaxGenerations < 0 {
		return errors.Errorf("max_generations must be >= 0, got %d", c.MaxGenerations)
	}
	return nil
}

func (c Config) seed() uint64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return uint64(time.Now().UnixNano())
}
