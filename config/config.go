package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance      BinanceConfig      `mapstructure:"binance"`
	DataSaving   DataSavingConfig   `mapstructure:"data_saving"`
	CVDReset     CVDResetConfig     `mapstructure:"cvd_reset"`
	ConfigReload ConfigReloadConfig `mapstructure:"config_reload"`
	Symbols      SymbolsConfig      `mapstructure:"symbols"`
	Log          LogConfig          `mapstructure:"log"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type BinanceConfig struct {
	WS WSConfig `mapstructure:"ws"`
}

type WSConfig struct {
	ProxyURL         string        `mapstructure:"proxy_url"`         // optional, e.g. "http://127.0.0.1:7890"
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // dial timeout per session
}

// DataSavingConfig controls the flush cadence and the durable layouts.
type DataSavingConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"` // flush cadence
	DualModeEnabled bool   `mapstructure:"dual_mode_enabled"`
	DataDir         string `mapstructure:"data_dir"`
}

// CVDResetConfig is the recovery staleness policy.
type CVDResetConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days"`
}

type ConfigReloadConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"` // symbol registry re-check cadence
}

// SymbolsConfig lists monitored pairs per market in "BASE/QUOTE" form.
// Futures entries may carry a ":SETTLE" suffix, e.g. "BTC/USDT:USDT".
type SymbolsConfig struct {
	Spot        []string `mapstructure:"spot"`
	Futures     []string `mapstructure:"futures"`
	CoinFutures []string `mapstructure:"coin-futures"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"` // listen address for /metrics, e.g. ":9108"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() (*Config, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ReadSymbols re-reads only the symbols block from the config file. Used by
// the registry watcher on its reload tick; a broken file is reported as an
// error so the caller keeps the previous registry.
func ReadSymbols() (SymbolsConfig, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		return SymbolsConfig{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return SymbolsConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg.Symbols, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	if dir := os.Getenv("CVD_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}
	v.AddConfigPath("./config")

	// Support environment variables with dot notation (e.g., DATA_SAVING_INTERVAL_SECONDS)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func (c *Config) applyDefaults() {
	if c.DataSaving.IntervalSeconds == 0 {
		c.DataSaving.IntervalSeconds = 60
	}
	if c.DataSaving.DataDir == "" {
		c.DataSaving.DataDir = "cvd_data"
	}
	if c.CVDReset.MaxAgeDays == 0 {
		c.CVDReset.MaxAgeDays = 6
	}
	if c.ConfigReload.IntervalSeconds == 0 {
		c.ConfigReload.IntervalSeconds = 600
	}
	if c.Binance.WS.HandshakeTimeout == 0 {
		c.Binance.WS.HandshakeTimeout = 10 * time.Second
	}
}

// Validate rejects settings the collector cannot start with.
func (c *Config) Validate() error {
	if c.DataSaving.IntervalSeconds < 0 {
		return fmt.Errorf("data_saving.interval_seconds must not be negative, got %d", c.DataSaving.IntervalSeconds)
	}
	if c.CVDReset.MaxAgeDays < 0 {
		return fmt.Errorf("cvd_reset.max_age_days must not be negative, got %d", c.CVDReset.MaxAgeDays)
	}
	if c.ConfigReload.IntervalSeconds < 0 {
		return fmt.Errorf("config_reload.interval_seconds must not be negative, got %d", c.ConfigReload.IntervalSeconds)
	}
	return nil
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.DataSaving.IntervalSeconds) * time.Second
}

func (c *Config) ReloadInterval() time.Duration {
	return time.Duration(c.ConfigReload.IntervalSeconds) * time.Second
}

func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.CVDReset.MaxAgeDays) * 24 * time.Hour
}
