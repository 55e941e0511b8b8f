package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
environment: test
log_level: debug
paths:
  feature_data: testdata/features.csv
  models_dir: out/models
  reports_dir: out/reports
training:
  study_name: spy_daily
  n_trials: 25
  n_startup_trials: 5
  cv_splits: 4
  test_size_split: 20
  years_of_data: 6
  target_metric: sharpe_ratio
  multi_objective: true
  seed: 7
  workers: 2
backtest:
  commission: 0.001
  slippage: 0.0005
  initial_balance: 25000
params:
  horizon: {min: 1, max: 20, optimize: true}
  threshold: {min: 0.0, max: 0.05, optimize: true}
  top_n_features: {fixed: 15}
  stop_loss_pct: {min: 0.5, max: 5.0, optimize: true}
  take_profit_pct: {min: 1.0, max: 10.0, optimize: true}
  risk_per_trade: {fixed: 0.02}
  learning_rate: {min: 0.005, max: 0.3, optimize: true}
  n_estimators: {min: 50, max: 400, optimize: true}
  max_depth: {min: 2, max: 8, optimize: true}
`

const fixedParamsYAML = `
params:
  horizon: {fixed: 5}
  threshold: {fixed: 0.01}
  top_n_features: {fixed: 15}
  stop_loss_pct: {fixed: 2.0}
  take_profit_pct: {fixed: 4.0}
  risk_per_trade: {fixed: 0.02}
  learning_rate: {fixed: 0.1}
  n_estimators: {fixed: 100}
  max_depth: {fixed: 4}
`

func loadFrom(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Chdir(dir)
	return Load()
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := loadFrom(t, testConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "out/models", cfg.Paths.ModelsDir)
	assert.Equal(t, "spy_daily", cfg.Training.StudyName)
	assert.Equal(t, 25, cfg.Training.NTrials)
	assert.Equal(t, "sharpe_ratio", cfg.Training.TargetMetric)
	assert.True(t, cfg.Training.Multi)
	assert.Equal(t, 25000.0, cfg.Backtest.InitialBalance)

	require.Len(t, cfg.Params, 9)
	assert.True(t, cfg.Params["horizon"].Optimize)
	require.NotNil(t, cfg.Params["risk_per_trade"].Fixed)
	assert.Equal(t, 0.02, *cfg.Params["risk_per_trade"].Fixed)

	specs := cfg.ParamSpecs()
	require.Len(t, specs, 9)
	assert.Equal(t, 20.0, specs["horizon"].Max)
}

func TestLoadDefaults(t *testing.T) {
	// A params table is mandatory even when everything else defaults.
	cfg, err := loadFrom(t, fixedParamsYAML)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 100, cfg.Training.NTrials)
	assert.Equal(t, 5, cfg.Training.CVSplits)
	assert.Equal(t, "total_return", cfg.Training.TargetMetric)
	assert.Equal(t, 0.0005, cfg.Backtest.Commission)
	assert.Equal(t, "models", cfg.Paths.ModelsDir)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing params",
			yaml:    "environment: test\n",
			wantErr: "params table is empty",
		},
		{
			name:    "bad target metric",
			yaml:    "training:\n  target_metric: profit_factor\n" + fixedParamsYAML,
			wantErr: "target_metric",
		},
		{
			name: "inverted range",
			yaml: `
params:
  horizon: {min: 20, max: 1, optimize: true}
  threshold: {fixed: 0.01}
  top_n_features: {fixed: 15}
  stop_loss_pct: {fixed: 2.0}
  take_profit_pct: {fixed: 4.0}
  risk_per_trade: {fixed: 0.02}
  learning_rate: {fixed: 0.1}
  n_estimators: {fixed: 100}
  max_depth: {fixed: 4}
`,
			wantErr: "below max",
		},
		{
			name:    "bad cv splits",
			yaml:    "training:\n  cv_splits: 1\n" + fixedParamsYAML,
			wantErr: "cv_splits",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom(t, tt.yaml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
