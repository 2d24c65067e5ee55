package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 4, cfg.Workers)

	assert.Equal(t, 2.5, cfg.RateCalculation.PeakMultiplier)
	assert.Equal(t, 1.2, cfg.RateCalculation.SafetyMargin)
	assert.Equal(t, 100, cfg.RateCalculation.MinRateLimit)
	assert.Equal(t, 50000, cfg.RateCalculation.MaxRateLimit)
	assert.Equal(t, RoundNearestHundred, cfg.RateCalculation.Rounding)
	assert.Equal(t, 1.2, cfg.RateCalculation.PatternMultipliers.Stable)
	assert.Equal(t, 0.9, cfg.RateCalculation.PatternMultipliers.VerySpiky)

	assert.Equal(t, 10, cfg.Analysis.MinPointsForModel)
	assert.Equal(t, 0.95, cfg.Analysis.IntervalWidth)
	assert.Equal(t, []string{"high"}, cfg.Analysis.FilterSeverities)
	assert.True(t, cfg.Analysis.DailySeasonality)
	assert.True(t, cfg.Analysis.WeeklySeasonality)

	assert.Equal(t, 100.0, cfg.PrimeTime.MinTrafficThreshold)
	assert.Equal(t, 9, cfg.PrimeTime.FallbackStartHour)
	assert.Equal(t, 18, cfg.PrimeTime.FallbackEndHour)

	assert.Equal(t, 0.15, cfg.Cache.DefaultHitRatio)
	assert.Equal(t, 1.2, cfg.Cache.DefaultFactor)

	assert.Equal(t, "global-ratelimit", cfg.Output.Domain)
	assert.True(t, cfg.Output.SelectiveUpdate)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: Production
workers: 8
partners:
  partners: ["acme", "globex"]
  apis: ["/api/v1/orders"]
  partner_multipliers:
    acme: 1.5
  path_multipliers:
    - pattern: "/orders"
      multiplier: 1.25
    - pattern: "/api"
      multiplier: 0.8
exclusions:
  global_partners: ["internal-test"]
  conditional:
    production:
      acme: ["/api/v1/debug"]
rate_calculation:
  rounding: nearest_fifty
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment, "environment is normalized to lowercase")
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Partners.Partners)
	assert.Equal(t, 1.5, cfg.Partners.PartnerMultipliers["acme"])

	require.Len(t, cfg.Partners.PathMultipliers, 2)
	assert.Equal(t, "/orders", cfg.Partners.PathMultipliers[0].Pattern, "multiplier order is preserved")
	assert.Equal(t, 1.25, cfg.Partners.PathMultipliers[0].Multiplier)

	assert.Equal(t, []string{"/api/v1/debug"}, cfg.Exclusions.Conditional["production"]["acme"])
	assert.Equal(t, RoundNearestFifty, cfg.RateCalculation.Rounding)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min rate", func(c *Config) { c.RateCalculation.MinRateLimit = 0 }},
		{"max below min", func(c *Config) { c.RateCalculation.MaxRateLimit = 50 }},
		{"unknown rounding", func(c *Config) { c.RateCalculation.Rounding = "nearest_thousand" }},
		{"cache factor not above one", func(c *Config) { c.Cache.DefaultFactor = 1.0 }},
		{"interval width out of range", func(c *Config) { c.Analysis.IntervalWidth = 1.0 }},
		{"inverted fallback window", func(c *Config) { c.PrimeTime.FallbackStartHour = 20 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
