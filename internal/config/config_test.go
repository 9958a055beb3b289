package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	t.Setenv("HOME", dir)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 50.0, cfg.Athlete.RestingHR)
	assert.Equal(t, 185.0, cfg.Athlete.MaxHR)
	assert.Equal(t, "km", cfg.Display.DistanceUnit)
	assert.Equal(t, "min/km", cfg.Display.PaceUnit)
	assert.Equal(t, DefaultDurations, cfg.Features.DurationsSecs)
	assert.Equal(t, "two_parameter", cfg.Curve.Family)
	assert.Equal(t, "huber", cfg.Curve.Loss)
	assert.Equal(t, 4, cfg.Curve.MinBuckets)
	assert.Equal(t, "linearized", cfg.Predict.Interval)
	assert.Equal(t, 1000, cfg.Predict.Resamples)
	assert.Empty(t, cfg.Strava.ClientID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 30, cfg.Pipeline.FetchTimeoutSecs)
	assert.InDelta(t, 1.0, cfg.Normalize.ResampleStepSecs, 0.001)
	assert.InDelta(t, 5.0, cfg.Normalize.DistanceRegressionToleranceM, 0.001)
	assert.Equal(t, 10, cfg.Normalize.MinSamples)
	assert.InDelta(t, 1e-6, cfg.Curve.Tolerance, 1e-12)
	assert.Equal(t, 50, cfg.Curve.MaxIterations)
	assert.InDelta(t, 0.95, cfg.Curve.ConfidenceLevel, 0.001)
	assert.Equal(t, "daniels", cfg.Curve.VO2Model)
	assert.InDelta(t, 2.0, cfg.Predict.OutOfDomainRatio, 0.001)
	assert.True(t, cfg.Predict.DefaultTargets)
	assert.InDelta(t, 1.8, cfg.Predict.Elevation.GainSecsPerM, 0.001)
	assert.InDelta(t, 10.0, cfg.Predict.Weather.OptimalC, 0.001)
	assert.Equal(t, DefaultDurations, cfg.Features.DurationsSecs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
curve:
  family: three_parameter
  loss: tukey
pipeline:
  workers: 8
features:
  durations_secs: [60, 300, 1200]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "three_parameter", cfg.Curve.Family)
	assert.Equal(t, "tukey", cfg.Curve.Loss)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, []int{60, 300, 1200}, cfg.Features.DurationsSecs)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Curve.MaxIterations)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := chdirTemp(t)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("predict:\n  interval: resampled\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "resampled", cfg.Predict.Interval)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("pipeline:\n  workers: 2\n"), 0644))
	t.Setenv("RACECURVE_PIPELINE_WORKERS", "16")
	t.Setenv("RACECURVE_CURVE_LOSS", "tukey")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Pipeline.Workers)
	assert.Equal(t, "tukey", cfg.Curve.Loss)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:        "unknown family",
			mutate:      func(c *Config) { c.Curve.Family = "power_law" },
			errContains: "curve.family",
		},
		{
			name:        "unknown loss",
			mutate:      func(c *Config) { c.Curve.Loss = "cauchy" },
			errContains: "curve.loss",
		},
		{
			name:        "unknown vo2 model",
			mutate:      func(c *Config) { c.Curve.VO2Model = "cooper" },
			errContains: "curve.vo2_model",
		},
		{
			name:        "too few buckets",
			mutate:      func(c *Config) { c.Curve.MinBuckets = 3 },
			errContains: "curve.min_buckets",
		},
		{
			name:        "spread of one",
			mutate:      func(c *Config) { c.Curve.MinDurationSpread = 1 },
			errContains: "curve.min_duration_spread",
		},
		{
			name:        "confidence level out of range",
			mutate:      func(c *Config) { c.Curve.ConfidenceLevel = 1.5 },
			errContains: "curve.confidence_level",
		},
		{
			name:        "unknown interval",
			mutate:      func(c *Config) { c.Predict.Interval = "bayesian" },
			errContains: "predict.interval",
		},
		{
			name: "too few resamples",
			mutate: func(c *Config) {
				c.Predict.Interval = "resampled"
				c.Predict.Resamples = 10
			},
			errContains: "predict.resamples",
		},
		{
			name:        "empty durations",
			mutate:      func(c *Config) { c.Features.DurationsSecs = nil },
			errContains: "features.durations_secs",
		},
		{
			name:        "negative duration",
			mutate:      func(c *Config) { c.Features.DurationsSecs = []int{60, -1} },
			errContains: "features.durations_secs",
		},
		{
			name: "duration off the resample grid",
			mutate: func(c *Config) {
				c.Normalize.ResampleStepSecs = 2
				c.Features.DurationsSecs = []int{60, 301}
			},
			errContains: "features.durations_secs",
		},
		{
			name: "durations on a coarser grid",
			mutate: func(c *Config) {
				c.Normalize.ResampleStepSecs = 5
				c.Features.DurationsSecs = []int{60, 300, 1200}
			},
		},
		{
			name:        "zero workers",
			mutate:      func(c *Config) { c.Pipeline.Workers = 0 },
			errContains: "pipeline.workers",
		},
		{
			name:        "invalid distance unit",
			mutate:      func(c *Config) { c.Display.DistanceUnit = "yards" },
			errContains: "display.distance_unit",
		},
		{
			name:        "invalid output format",
			mutate:      func(c *Config) { c.Output.Format = "xml" },
			errContains: "output.format",
		},
		{
			name: "resting above max",
			mutate: func(c *Config) {
				c.Athlete.RestingHR = 190
				c.Athlete.MaxHR = 185
			},
			errContains: "athlete.resting_hr",
		},
		{
			name:        "negative trimp coefficient",
			mutate:      func(c *Config) { c.Athlete.TRIMPCoefficient = -1 },
			errContains: "athlete.trimp_coefficient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateStrava(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.ValidateStrava())

	cfg.Strava.AccessToken = "token"
	assert.NoError(t, cfg.ValidateStrava())

	cfg = DefaultConfig()
	cfg.Strava.ClientID = "12345"
	cfg.Strava.ClientSecret = "secret"
	assert.ErrorContains(t, cfg.ValidateStrava(), "refresh_token")

	cfg.Strava.RefreshToken = "refresh"
	assert.NoError(t, cfg.ValidateStrava())
}

func TestCreateExample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	written, err := CreateExample(path)
	require.NoError(t, err)
	assert.True(t, written)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "YOUR_CLIENT_ID", cfg.Strava.ClientID)
	assert.Equal(t, "huber", cfg.Curve.Loss)

	written, err = CreateExample(path)
	require.NoError(t, err)
	assert.False(t, written, "existing config must not be overwritten")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
