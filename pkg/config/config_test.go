package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stackml.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, 2, cfg.Ensemble.Folds)
	assert.True(t, cfg.Ensemble.Shuffle)
	assert.True(t, cfg.Ensemble.Concat)
	assert.Equal(t, 10, cfg.Ensemble.SampleSize)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
ensemble:
  folds: 5
  shuffle: false
  scorer: mae
logging:
  format: text
`)
	t.Setenv("STACKML_ENSEMBLE_FOLDS", "7")
	t.Setenv("STACKML_EVALUATOR_N_ITER", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Ensemble.Folds, "env wins over file")
	assert.False(t, cfg.Ensemble.Shuffle, "file wins over default")
	assert.Equal(t, "mae", cfg.Ensemble.Scorer)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Evaluator.Iterations)
	// untouched keys keep defaults
	assert.Equal(t, 10, cfg.Ensemble.SampleSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"one fold", "ensemble:\n  folds: 1\n", nil, "Folds"},
		{"zero sample", "ensemble:\n  sample_size: 0\n", nil, "SampleSize"},
		{"bad scorer", "ensemble:\n  scorer: auc\n", nil, "Scorer"},
		{"bad level", "logging:\n  level: loud\n", nil, "Level"},
		{"bad impute", "data:\n  impute: mode\n", nil, "Impute"},
		{"bad yaml", "ensemble: [", nil, "parse"},
		{"bad env", "", map[string]string{"STACKML_ENSEMBLE_FOLDS": "many"}, "env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
