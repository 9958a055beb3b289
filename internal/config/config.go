package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Strava    StravaConfig    `yaml:"strava" mapstructure:"strava"`
	Athlete   AthleteConfig   `yaml:"athlete" mapstructure:"athlete"`
	Display   DisplayConfig   `yaml:"display" mapstructure:"display"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Features  FeaturesConfig  `yaml:"features" mapstructure:"features"`
	Curve     CurveConfig     `yaml:"curve" mapstructure:"curve"`
	Predict   PredictConfig   `yaml:"predict" mapstructure:"predict"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID      string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string  `yaml:"client_secret" mapstructure:"client_secret"`
	AccessToken   string  `yaml:"access_token" mapstructure:"access_token"`
	RefreshToken  string  `yaml:"refresh_token" mapstructure:"refresh_token"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	MaxActivities int     `yaml:"max_activities" mapstructure:"max_activities"`
	CallbackPort  int     `yaml:"callback_port" mapstructure:"callback_port"`
}

// AthleteConfig holds heart-rate settings used for HR covariates
type AthleteConfig struct {
	RestingHR float64 `yaml:"resting_hr" mapstructure:"resting_hr"`
	MaxHR     float64 `yaml:"max_hr" mapstructure:"max_hr"`
	// TRIMPCoefficient is Banister's b: 1.92 for men, 1.67 for women.
	TRIMPCoefficient float64 `yaml:"trimp_coefficient" mapstructure:"trimp_coefficient"`
}

// DisplayConfig holds display preferences
type DisplayConfig struct {
	DistanceUnit string `yaml:"distance_unit" mapstructure:"distance_unit"`
	PaceUnit     string `yaml:"pace_unit" mapstructure:"pace_unit"`
}

// NormalizeConfig configures the data normalizer.
type NormalizeConfig struct {
	ResampleStepSecs             float64 `yaml:"resample_step_secs" mapstructure:"resample_step_secs"`
	DistanceRegressionToleranceM float64 `yaml:"distance_regression_tolerance_m" mapstructure:"distance_regression_tolerance_m"`
	DedupStartWindowSecs         float64 `yaml:"dedup_start_window_secs" mapstructure:"dedup_start_window_secs"`
	DedupDistanceTolerance       float64 `yaml:"dedup_distance_tolerance" mapstructure:"dedup_distance_tolerance"`
	MinSamples                   int     `yaml:"min_samples" mapstructure:"min_samples"`
}

// FeaturesConfig configures per-activity feature extraction.
type FeaturesConfig struct {
	DurationsSecs   []int   `yaml:"durations_secs" mapstructure:"durations_secs"`
	ElevationNoiseM float64 `yaml:"elevation_noise_m" mapstructure:"elevation_noise_m"`
}

// CurveConfig configures the performance-curve estimator.
type CurveConfig struct {
	Family            string  `yaml:"family" mapstructure:"family"`
	Loss              string  `yaml:"loss" mapstructure:"loss"`
	TuningConstant    float64 `yaml:"tuning_constant" mapstructure:"tuning_constant"`
	MinBuckets        int     `yaml:"min_buckets" mapstructure:"min_buckets"`
	MinDurationSpread float64 `yaml:"min_duration_spread" mapstructure:"min_duration_spread"`
	Tolerance         float64 `yaml:"tolerance" mapstructure:"tolerance"`
	MaxIterations     int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	ConfidenceLevel   float64 `yaml:"confidence_level" mapstructure:"confidence_level"`
	VO2Model          string  `yaml:"vo2_model" mapstructure:"vo2_model"`
	VO2FractionAtCS   float64 `yaml:"vo2_fraction_at_cs" mapstructure:"vo2_fraction_at_cs"`
}

// PredictConfig configures the race-time predictor.
type PredictConfig struct {
	DefaultTargets   bool            `yaml:"default_targets" mapstructure:"default_targets"`
	Interval         string          `yaml:"interval" mapstructure:"interval"`
	IntervalLevel    float64         `yaml:"interval_level" mapstructure:"interval_level"`
	Resamples        int             `yaml:"resamples" mapstructure:"resamples"`
	Seed             uint64          `yaml:"seed" mapstructure:"seed"`
	OutOfDomainRatio float64         `yaml:"out_of_domain_ratio" mapstructure:"out_of_domain_ratio"`
	Elevation        ElevationConfig `yaml:"elevation" mapstructure:"elevation"`
	Weather          WeatherConfig   `yaml:"weather" mapstructure:"weather"`
}

// ElevationConfig configures the additive elevation adjustment.
type ElevationConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	GainSecsPerM float64 `yaml:"gain_secs_per_m" mapstructure:"gain_secs_per_m"`
	LossSecsPerM float64 `yaml:"loss_secs_per_m" mapstructure:"loss_secs_per_m"`
	MaxFraction  float64 `yaml:"max_fraction" mapstructure:"max_fraction"`
}

// WeatherConfig configures the multiplicative temperature adjustment.
type WeatherConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	OptimalC    float64 `yaml:"optimal_c" mapstructure:"optimal_c"`
	HeatPerC    float64 `yaml:"heat_per_c" mapstructure:"heat_per_c"`
	ColdPerC    float64 `yaml:"cold_per_c" mapstructure:"cold_per_c"`
	MaxFraction float64 `yaml:"max_fraction" mapstructure:"max_fraction"`
}

// PipelineConfig configures the per-athlete worker pool.
type PipelineConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// OutputConfig configures report export.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultDurations are the rolling-best buckets in seconds. They span 1 to 60
// minutes so the curve sees both the D' dominated and the CS dominated regime.
var DefaultDurations = []int{60, 120, 300, 600, 1200, 1800, 3600}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Path: defaultStorePath()},
		Strava: StravaConfig{
			BaseURL:       "https://www.strava.com/api/v3",
			RatePerSecond: 1,
			Burst:         5,
			MaxActivities: 200,
			CallbackPort:  8089,
		},
		Athlete: AthleteConfig{
			RestingHR:        50,
			MaxHR:            185,
			TRIMPCoefficient: 1.92,
		},
		Display: DisplayConfig{
			DistanceUnit: "km",
			PaceUnit:     "min/km",
		},
		Normalize: NormalizeConfig{
			ResampleStepSecs:             1,
			DistanceRegressionToleranceM: 5,
			DedupStartWindowSecs:         60,
			DedupDistanceTolerance:       0.02,
			MinSamples:                   10,
		},
		Features: FeaturesConfig{
			DurationsSecs:   append([]int(nil), DefaultDurations...),
			ElevationNoiseM: 2,
		},
		Curve: CurveConfig{
			Family:            "two_parameter",
			Loss:              "huber",
			MinBuckets:        4,
			MinDurationSpread: 3,
			Tolerance:         1e-6,
			MaxIterations:     50,
			ConfidenceLevel:   0.95,
			VO2Model:          "daniels",
			VO2FractionAtCS:   0.88,
		},
		Predict: PredictConfig{
			DefaultTargets:   true,
			Interval:         "linearized",
			IntervalLevel:    0.95,
			Resamples:        1000,
			Seed:             1,
			OutOfDomainRatio: 2,
			Elevation: ElevationConfig{
				Enabled:      true,
				GainSecsPerM: 1.8,
				LossSecsPerM: 0.6,
				MaxFraction:  0.15,
			},
			Weather: WeatherConfig{
				Enabled:     true,
				OptimalC:    10,
				HeatPerC:    0.004,
				ColdPerC:    0.002,
				MaxFraction: 0.15,
			},
		},
		Pipeline: PipelineConfig{
			Workers:          4,
			FetchTimeoutSecs: 30,
		},
		Output: OutputConfig{
			Dir:    "out",
			Format: "json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from file and environment. An empty path searches
// the working directory and ~/.racecurve for config.yaml; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("RACECURVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("strava.base_url", d.Strava.BaseURL)
	v.SetDefault("strava.rate_per_second", d.Strava.RatePerSecond)
	v.SetDefault("strava.burst", d.Strava.Burst)
	v.SetDefault("strava.max_activities", d.Strava.MaxActivities)
	v.SetDefault("strava.callback_port", d.Strava.CallbackPort)
	v.SetDefault("athlete.resting_hr", d.Athlete.RestingHR)
	v.SetDefault("athlete.max_hr", d.Athlete.MaxHR)
	v.SetDefault("athlete.trimp_coefficient", d.Athlete.TRIMPCoefficient)
	v.SetDefault("display.distance_unit", d.Display.DistanceUnit)
	v.SetDefault("display.pace_unit", d.Display.PaceUnit)
	v.SetDefault("normalize.resample_step_secs", d.Normalize.ResampleStepSecs)
	v.SetDefault("normalize.distance_regression_tolerance_m", d.Normalize.DistanceRegressionToleranceM)
	v.SetDefault("normalize.dedup_start_window_secs", d.Normalize.DedupStartWindowSecs)
	v.SetDefault("normalize.dedup_distance_tolerance", d.Normalize.DedupDistanceTolerance)
	v.SetDefault("normalize.min_samples", d.Normalize.MinSamples)
	v.SetDefault("features.durations_secs", d.Features.DurationsSecs)
	v.SetDefault("features.elevation_noise_m", d.Features.ElevationNoiseM)
	v.SetDefault("curve.family", d.Curve.Family)
	v.SetDefault("curve.loss", d.Curve.Loss)
	v.SetDefault("curve.tuning_constant", d.Curve.TuningConstant)
	v.SetDefault("curve.min_buckets", d.Curve.MinBuckets)
	v.SetDefault("curve.min_duration_spread", d.Curve.MinDurationSpread)
	v.SetDefault("curve.tolerance", d.Curve.Tolerance)
	v.SetDefault("curve.max_iterations", d.Curve.MaxIterations)
	v.SetDefault("curve.confidence_level", d.Curve.ConfidenceLevel)
	v.SetDefault("curve.vo2_model", d.Curve.VO2Model)
	v.SetDefault("curve.vo2_fraction_at_cs", d.Curve.VO2FractionAtCS)
	v.SetDefault("predict.default_targets", d.Predict.DefaultTargets)
	v.SetDefault("predict.interval", d.Predict.Interval)
	v.SetDefault("predict.interval_level", d.Predict.IntervalLevel)
	v.SetDefault("predict.resamples", d.Predict.Resamples)
	v.SetDefault("predict.seed", d.Predict.Seed)
	v.SetDefault("predict.out_of_domain_ratio", d.Predict.OutOfDomainRatio)
	v.SetDefault("predict.elevation.enabled", d.Predict.Elevation.Enabled)
	v.SetDefault("predict.elevation.gain_secs_per_m", d.Predict.Elevation.GainSecsPerM)
	v.SetDefault("predict.elevation.loss_secs_per_m", d.Predict.Elevation.LossSecsPerM)
	v.SetDefault("predict.elevation.max_fraction", d.Predict.Elevation.MaxFraction)
	v.SetDefault("predict.weather.enabled", d.Predict.Weather.Enabled)
	v.SetDefault("predict.weather.optimal_c", d.Predict.Weather.OptimalC)
	v.SetDefault("predict.weather.heat_per_c", d.Predict.Weather.HeatPerC)
	v.SetDefault("predict.weather.cold_per_c", d.Predict.Weather.ColdPerC)
	v.SetDefault("predict.weather.max_fraction", d.Predict.Weather.MaxFraction)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.fetch_timeout_secs", d.Pipeline.FetchTimeoutSecs)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Save writes the configuration as YAML to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(err, "config: create directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "config: encode")
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return eris.Wrap(err, "config: write file")
	}

	return nil
}

// CreateExample writes the default configuration to path unless a file
// already exists there. It reports whether a file was written.
func CreateExample(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	example := DefaultConfig()
	example.Strava.ClientID = "YOUR_CLIENT_ID"
	example.Strava.ClientSecret = "YOUR_CLIENT_SECRET"

	if err := Save(&example, path); err != nil {
		return false, err
	}
	return true, nil
}

// Validate checks enum values and numeric ranges.
func (c *Config) Validate() error {
	switch c.Curve.Family {
	case "two_parameter", "three_parameter":
	default:
		return eris.Errorf("curve.family must be \"two_parameter\" or \"three_parameter\", got %q", c.Curve.Family)
	}
	switch c.Curve.Loss {
	case "huber", "tukey":
	default:
		return eris.Errorf("curve.loss must be \"huber\" or \"tukey\", got %q", c.Curve.Loss)
	}
	switch c.Curve.VO2Model {
	case "daniels", "acsm", "vdot_table":
	default:
		return eris.Errorf("curve.vo2_model must be one of daniels, acsm, vdot_table, got %q", c.Curve.VO2Model)
	}
	if c.Curve.MinBuckets < 4 {
		return eris.Errorf("curve.min_buckets must be at least 4, got %d", c.Curve.MinBuckets)
	}
	if c.Curve.MinDurationSpread <= 1 {
		return eris.Errorf("curve.min_duration_spread must be greater than 1, got %v", c.Curve.MinDurationSpread)
	}
	if c.Curve.Tolerance <= 0 || c.Curve.MaxIterations <= 0 {
		return eris.New("curve.tolerance and curve.max_iterations must be positive")
	}
	if c.Curve.ConfidenceLevel <= 0 || c.Curve.ConfidenceLevel >= 1 {
		return eris.Errorf("curve.confidence_level must be in (0, 1), got %v", c.Curve.ConfidenceLevel)
	}

	switch c.Predict.Interval {
	case "linearized", "resampled":
	default:
		return eris.Errorf("predict.interval must be \"linearized\" or \"resampled\", got %q", c.Predict.Interval)
	}
	if c.Predict.IntervalLevel <= 0 || c.Predict.IntervalLevel >= 1 {
		return eris.Errorf("predict.interval_level must be in (0, 1), got %v", c.Predict.IntervalLevel)
	}
	if c.Predict.Interval == "resampled" && c.Predict.Resamples < 100 {
		return eris.Errorf("predict.resamples must be at least 100, got %d", c.Predict.Resamples)
	}
	if c.Predict.OutOfDomainRatio < 1 {
		return eris.Errorf("predict.out_of_domain_ratio must be at least 1, got %v", c.Predict.OutOfDomainRatio)
	}

	if c.Normalize.ResampleStepSecs <= 0 {
		return eris.Errorf("normalize.resample_step_secs must be positive, got %v", c.Normalize.ResampleStepSecs)
	}
	if len(c.Features.DurationsSecs) == 0 {
		return eris.New("features.durations_secs must not be empty")
	}
	for _, d := range c.Features.DurationsSecs {
		if d <= 0 {
			return eris.Errorf("features.durations_secs must be positive, got %d", d)
		}
		if steps := float64(d) / c.Normalize.ResampleStepSecs; math.Abs(steps-math.Round(steps)) > 1e-9 {
			return eris.Errorf("features.durations_secs must be multiples of normalize.resample_step_secs (%v), got %d",
				c.Normalize.ResampleStepSecs, d)
		}
	}
	if c.Pipeline.Workers <= 0 {
		return eris.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}

	if c.Display.DistanceUnit != "" && c.Display.DistanceUnit != "km" && c.Display.DistanceUnit != "mi" {
		return eris.Errorf("display.distance_unit must be \"km\" or \"mi\", got %q", c.Display.DistanceUnit)
	}
	if c.Display.PaceUnit != "" && c.Display.PaceUnit != "min/km" && c.Display.PaceUnit != "min/mi" {
		return eris.Errorf("display.pace_unit must be \"min/km\" or \"min/mi\", got %q", c.Display.PaceUnit)
	}

	switch c.Output.Format {
	case "json", "csv", "parquet":
	default:
		return eris.Errorf("output.format must be json, csv or parquet, got %q", c.Output.Format)
	}

	if c.Athlete.RestingHR > 0 && c.Athlete.MaxHR > 0 && c.Athlete.RestingHR >= c.Athlete.MaxHR {
		return eris.Errorf("athlete.resting_hr (%v) must be less than athlete.max_hr (%v)", c.Athlete.RestingHR, c.Athlete.MaxHR)
	}
	if c.Athlete.TRIMPCoefficient < 0 {
		return eris.Errorf("athlete.trimp_coefficient must not be negative, got %v", c.Athlete.TRIMPCoefficient)
	}

	return nil
}

// ValidateStrava checks that API credentials are present for the fetch command.
func (c *Config) ValidateStrava() error {
	if c.Strava.AccessToken != "" {
		return nil
	}
	if err := c.ValidateStravaClient(); err != nil {
		return err
	}
	if c.Strava.RefreshToken == "" {
		return eris.New("strava.refresh_token is required when no access_token is configured")
	}
	return nil
}

// ValidateStravaClient checks the OAuth application credentials used by the
// auth command and by token refresh.
func (c *Config) ValidateStravaClient() error {
	if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
		return eris.New("strava.client_id is required - get it from https://www.strava.com/settings/api")
	}
	if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
		return eris.New("strava.client_secret is required - get it from https://www.strava.com/settings/api")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "config: home directory")
	}
	return filepath.Join(home, ".racecurve"), nil
}

// DefaultConfigPath returns ~/.racecurve/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultStorePath() string {
	dir, err := GetConfigDir()
	if err != nil {
		return "racecurve.db"
	}
	return filepath.Join(dir, "data.db")
}
