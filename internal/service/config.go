// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full run configuration. It is passed explicitly to every stage;
// there is no package-level copy.
type Config struct {
	Data       DataConfig     `mapstructure:"data"`
	Features   FeatureConfig  `mapstructure:"features"`
	Timeframes []string       `mapstructure:"timeframes"`
	Fomo       FomoConfig     `mapstructure:"fomo"`
	Backtest   BacktestConfig `mapstructure:"backtest"`
	Model      ModelConfig    `mapstructure:"model"`
	Store      StoreConfig    `mapstructure:"store"`
	Log        LogConfig      `mapstructure:"log"`
}

// DataConfig locates the two raw series.
type DataConfig struct {
	QuotesPath string `mapstructure:"quotes_path"`
	OHLCPath   string `mapstructure:"ohlc_path"`
	Format     string `mapstructure:"format"` // csv | parquet (parquet applies to OHLC only)
}

// FeatureConfig controls the feature and alignment stages.
type FeatureConfig struct {
	Prefix           string        `mapstructure:"prefix"`
	AlignTolerance   time.Duration `mapstructure:"align_tolerance"`
	Stride           int           `mapstructure:"stride"`
	Offset           int           `mapstructure:"offset"`
	SessionStartHour int           `mapstructure:"session_start_hour"`
	SessionEndHour   int           `mapstructure:"session_end_hour"`
}

// FomoConfig controls the synthetic odds simulator.
type FomoConfig struct {
	Seed    uint64 `mapstructure:"seed"`
	Workers int    `mapstructure:"workers"`
}

// BacktestConfig holds the edge threshold and the two capital policies.
type BacktestConfig struct {
	Threshold           float64 `mapstructure:"threshold"`
	InitialCapital      float64 `mapstructure:"initial_capital"`
	CapitalRiskFraction float64 `mapstructure:"capital_risk_fraction"`
	ShareFraction       float64 `mapstructure:"share_fraction"`
}

// ModelConfig parameterises the baseline classifier.
type ModelConfig struct {
	TestFraction  float64 `mapstructure:"test_fraction"`
	Seed          uint64  `mapstructure:"seed"`
	MaxIterations int     `mapstructure:"max_iterations"`
	L2            float64 `mapstructure:"l2"`
}

// StoreConfig is where fitted models, metric tables and ledgers are written.
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.format", "csv")
	v.SetDefault("features.prefix", "m1")
	v.SetDefault("features.align_tolerance", "5m")
	v.SetDefault("features.stride", 1)
	v.SetDefault("features.session_start_hour", 8)
	v.SetDefault("features.session_end_hour", 20)
	v.SetDefault("timeframes", []string{"m15", "h1", "daily"})
	v.SetDefault("fomo.seed", 17)
	v.SetDefault("backtest.threshold", 0.05)
	v.SetDefault("backtest.initial_capital", 1000.0)
	v.SetDefault("backtest.capital_risk_fraction", 0.02)
	v.SetDefault("backtest.share_fraction", 0.04)
	v.SetDefault("model.test_fraction", 0.3)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.max_iterations", 200)
	v.SetDefault("model.l2", 1e-4)
	v.SetDefault("store.dir", "models")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from configPath, applying defaults and
// environment overrides (e.g. BACKTEST_THRESHOLD=0.08).
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		Logger.Warn("config file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
