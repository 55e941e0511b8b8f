package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/omerbh/tradelab-go/internal/optimize"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Paths       PathsConfig    `mapstructure:"paths"`
	Training    TrainingConfig `mapstructure:"training"`
	Backtest    BacktestConfig `mapstructure:"backtest"`
	Database    DatabaseConfig `mapstructure:"database"`
	// Params is the search space: one entry per tunable parameter.
	Params map[string]ParamLimit `mapstructure:"params"`
}

type PathsConfig struct {
	FeatureData string `mapstructure:"feature_data"`
	ModelsDir   string `mapstructure:"models_dir"`
	ReportsDir  string `mapstructure:"reports_dir"`
}

type TrainingConfig struct {
	StudyName     string `mapstructure:"study_name"`
	NTrials       int    `mapstructure:"n_trials"`
	NStartup      int    `mapstructure:"n_startup_trials"`
	CVSplits      int    `mapstructure:"cv_splits"`
	TestSizeSplit int    `mapstructure:"test_size_split"`
	YearsOfData   int    `mapstructure:"years_of_data"`
	TargetMetric  string `mapstructure:"target_metric"`
	Multi         bool   `mapstructure:"multi_objective"`
	Seed          int64  `mapstructure:"seed"`
	Workers       int    `mapstructure:"workers"`
}

type BacktestConfig struct {
	Commission     float64 `mapstructure:"commission"`
	Slippage       float64 `mapstructure:"slippage"`
	InitialBalance float64 `mapstructure:"initial_balance"`
}

type DatabaseConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// ParamLimit mirrors one entry of the params table: a sampling range when
// optimize is true, a pinned value otherwise.
type ParamLimit struct {
	Min      float64  `mapstructure:"min"`
	Max      float64  `mapstructure:"max"`
	Fixed    *float64 `mapstructure:"fixed"`
	Optimize bool     `mapstructure:"optimize"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("paths.feature_data", "data/features.csv")
	viper.SetDefault("paths.models_dir", "models")
	viper.SetDefault("paths.reports_dir", "reports")

	viper.SetDefault("training.study_name", "walkforward")
	viper.SetDefault("training.n_trials", 100)
	viper.SetDefault("training.n_startup_trials", 10)
	viper.SetDefault("training.cv_splits", 5)
	viper.SetDefault("training.test_size_split", 20)
	viper.SetDefault("training.years_of_data", 0)
	viper.SetDefault("training.target_metric", "total_return")
	viper.SetDefault("training.multi_objective", false)
	viper.SetDefault("training.seed", 42)
	viper.SetDefault("training.workers", 4)

	viper.SetDefault("backtest.commission", 0.0005)
	viper.SetDefault("backtest.slippage", 0.0005)
	viper.SetDefault("backtest.initial_balance", 10000)
}

// Validate rejects configurations the pipeline cannot run with. Checks here
// fail the process at startup rather than hours into a study.
func (c *Config) Validate() error {
	if c.Training.NTrials < 1 {
		return fmt.Errorf("training.n_trials must be at least 1, got %d", c.Training.NTrials)
	}
	if c.Training.CVSplits < 2 {
		return fmt.Errorf("training.cv_splits must be at least 2, got %d", c.Training.CVSplits)
	}
	if c.Training.TestSizeSplit < 1 || c.Training.TestSizeSplit > 50 {
		return fmt.Errorf("training.test_size_split must be in [1, 50] percent, got %d", c.Training.TestSizeSplit)
	}
	switch c.Training.TargetMetric {
	case optimize.MetricTotalReturn, optimize.MetricSharpe:
	default:
		return fmt.Errorf("training.target_metric must be %q or %q, got %q",
			optimize.MetricTotalReturn, optimize.MetricSharpe, c.Training.TargetMetric)
	}
	if c.Backtest.InitialBalance <= 0 {
		return fmt.Errorf("backtest.initial_balance must be positive, got %v", c.Backtest.InitialBalance)
	}
	if len(c.Params) == 0 {
		return errors.New("params table is empty; every tunable parameter needs an entry")
	}
	return optimize.Validate(c.ParamSpecs())
}

// ParamSpecs converts the configured limits into the optimizer's spec table.
func (c *Config) ParamSpecs() map[string]optimize.Spec {
	specs := make(map[string]optimize.Spec, len(c.Params))
	for name, limit := range c.Params {
		specs[name] = optimize.Spec{
			Min:        limit.Min,
			Max:        limit.Max,
			FixedValue: limit.Fixed,
			Optimize:   limit.Optimize,
		}
	}
	return specs
}
