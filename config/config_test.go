package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		StrategyMode: ModeAdaptive,
		StrategyName: StrategyBreakout,
		TradeQty:     25,
		MarginPerLot: 250000,
		Trading: TradingConfig{
			EntryBuffer:          10,
			SLFactor:             1.5,
			TargetFactor:         4.0,
			Deviation:            0.002,
			RRThreshold:          1.2,
			CooldownMinutes:      5,
			MaxDailyLoss:         -1500,
			SleepIntervalSeconds: 60,
			LookbackDays:         4,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"single reversion", func(c *Config) {
			c.StrategyMode = ModeSingle
			c.StrategyName = StrategyReversion
		}, false},
		{"unknown mode", func(c *Config) { c.StrategyMode = "auto" }, true},
		{"unknown strategy", func(c *Config) { c.StrategyName = "SCALP" }, true},
		{"zero qty", func(c *Config) { c.TradeQty = 0 }, true},
		{"zero margin per lot", func(c *Config) { c.MarginPerLot = 0 }, true},
		{"negative cooldown", func(c *Config) { c.Trading.CooldownMinutes = -1 }, true},
		{"negative entry buffer", func(c *Config) { c.Trading.EntryBuffer = -5 }, true},
		{"zero sl factor", func(c *Config) { c.Trading.SLFactor = 0 }, true},
		{"zero rr threshold", func(c *Config) { c.Trading.RRThreshold = 0 }, true},
		{"zero sleep interval", func(c *Config) { c.Trading.SleepIntervalSeconds = 0 }, true},
		{"zero lookback", func(c *Config) { c.Trading.LookbackDays = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()
	if cfg.Cooldown() != 5*time.Minute {
		t.Errorf("Cooldown = %v", cfg.Cooldown())
	}
	if cfg.SleepInterval() != time.Minute {
		t.Errorf("SleepInterval = %v", cfg.SleepInterval())
	}
}

func TestParseHolidays(t *testing.T) {
	got := parseHolidays("2025-01-26, 2025-08-15,not-a-date,")
	if len(got) != 2 {
		t.Fatalf("parsed %d holidays, want 2", len(got))
	}
	if !got["2025-01-26"] || !got["2025-08-15"] {
		t.Errorf("holidays = %v", got)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()

	if cfg.Symbol == "" || cfg.BarInterval == "" {
		t.Errorf("instrument defaults missing: %q %q", cfg.Symbol, cfg.BarInterval)
	}
	if !cfg.PaperTrading {
		t.Errorf("paper trading must default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}
}
