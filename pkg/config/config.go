package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. STACKML_ENSEMBLE_FOLDS.
const EnvPrefix = "STACKML"

// Config represents the complete toolkit configuration.
type Config struct {
	Ensemble  Ensemble  `yaml:"ensemble" envconfig:"ENSEMBLE"`
	Evaluator Evaluator `yaml:"evaluator" envconfig:"EVALUATOR"`
	Data      Data      `yaml:"data" envconfig:"DATA"`
	Logging   Logging   `yaml:"logging" envconfig:"LOGGING"`
}

// Ensemble configures a prediction feature.
type Ensemble struct {
	Folds       int    `yaml:"folds" envconfig:"FOLDS" validate:"gte=2"`
	Shuffle     bool   `yaml:"shuffle" envconfig:"SHUFFLE"`
	RandomState int64  `yaml:"random_state" envconfig:"RANDOM_STATE"`
	SampleSize  int    `yaml:"sample_size" envconfig:"SAMPLE_SIZE" validate:"gte=1"`
	Verbose     int    `yaml:"verbose" envconfig:"VERBOSE" validate:"gte=0"`
	Jobs        int    `yaml:"n_jobs" envconfig:"N_JOBS"`
	Scorer      string `yaml:"scorer" envconfig:"SCORER" validate:"omitempty,oneof=rmse mse mae r2 accuracy"`
	Concat      bool   `yaml:"concat" envconfig:"CONCAT"`
}

// Evaluator configures randomized parameter search.
type Evaluator struct {
	Folds       int    `yaml:"cv" envconfig:"CV" validate:"gte=2"`
	Shuffle     bool   `yaml:"shuffle" envconfig:"SHUFFLE"`
	RandomState int64  `yaml:"random_state" envconfig:"RANDOM_STATE"`
	Jobs        int    `yaml:"n_jobs" envconfig:"N_JOBS"`
	Iterations  int    `yaml:"n_iter" envconfig:"N_ITER" validate:"gte=1"`
	Scorer      string `yaml:"scorer" envconfig:"SCORER" validate:"required,oneof=rmse mse mae r2 accuracy"`
}

// Data configures CSV ingestion.
type Data struct {
	Label  string `yaml:"label" envconfig:"LABEL"`
	Index  string `yaml:"index" envconfig:"INDEX"`
	Impute string `yaml:"impute" envconfig:"IMPUTE" validate:"oneof=mean median zero none"`
}

// Logging contains logging configuration.
type Logging struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Ensemble: Ensemble{
			Folds:      2,
			Shuffle:    true,
			SampleSize: 10,
			Jobs:       1,
			Concat:     true,
		},
		Evaluator: Evaluator{
			Folds:       10,
			RandomState: 100,
			Jobs:        1,
			Iterations:  3,
			Scorer:      "rmse",
		},
		Data:    Data{Impute: "mean"},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then STACKML_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// only variables that are set override
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config validation failed: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
