package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.DataSaving.IntervalSeconds != 60 {
		t.Errorf("interval_seconds default = %d, want 60", cfg.DataSaving.IntervalSeconds)
	}
	if cfg.DataSaving.DataDir != "cvd_data" {
		t.Errorf("data_dir default = %s, want cvd_data", cfg.DataSaving.DataDir)
	}
	if cfg.CVDReset.MaxAgeDays != 6 {
		t.Errorf("max_age_days default = %d, want 6", cfg.CVDReset.MaxAgeDays)
	}
	if cfg.ConfigReload.IntervalSeconds != 600 {
		t.Errorf("reload interval default = %d, want 600", cfg.ConfigReload.IntervalSeconds)
	}
	if cfg.Binance.WS.HandshakeTimeout != 10*time.Second {
		t.Errorf("handshake_timeout default = %v, want 10s", cfg.Binance.WS.HandshakeTimeout)
	}

	// Explicit values survive.
	cfg.DataSaving.IntervalSeconds = 30
	cfg.applyDefaults()
	if cfg.DataSaving.IntervalSeconds != 30 {
		t.Errorf("explicit interval overwritten to %d", cfg.DataSaving.IntervalSeconds)
	}
}

func TestValidateRejectsNegatives(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative flush interval", func(c *Config) { c.DataSaving.IntervalSeconds = -1 }},
		{"negative max age", func(c *Config) { c.CVDReset.MaxAgeDays = -1 }},
		{"negative reload interval", func(c *Config) { c.ConfigReload.IntervalSeconds = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.applyDefaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	var cfg Config
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{
		DataSaving:   DataSavingConfig{IntervalSeconds: 60},
		CVDReset:     CVDResetConfig{MaxAgeDays: 6},
		ConfigReload: ConfigReloadConfig{IntervalSeconds: 600},
	}

	if cfg.FlushInterval() != time.Minute {
		t.Errorf("FlushInterval = %v, want 1m", cfg.FlushInterval())
	}
	if cfg.ReloadInterval() != 10*time.Minute {
		t.Errorf("ReloadInterval = %v, want 10m", cfg.ReloadInterval())
	}
	if cfg.MaxAge() != 6*24*time.Hour {
		t.Errorf("MaxAge = %v, want 144h", cfg.MaxAge())
	}
}
