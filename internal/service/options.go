package service

import (
	"time"

	"racecurve/internal/analysis"
	"racecurve/internal/config"
	"racecurve/internal/ingest"
)

// Options configures every pipeline stage.
type Options struct {
	Normalize      ingest.Options
	Features       analysis.FeatureOptions
	Estimator      analysis.EstimatorOptions
	Predictor      analysis.PredictorOptions
	DefaultTargets bool
	Workers        int
	FetchTimeout   time.Duration
}

// DefaultOptions mirrors config.DefaultConfig.
func DefaultOptions() Options {
	cfg := config.DefaultConfig()
	opts, _ := OptionsFromConfig(&cfg)
	return opts
}

// OptionsFromConfig maps the configuration file onto stage options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	vo2, err := analysis.NewVO2Model(cfg.Curve.VO2Model, cfg.Curve.VO2FractionAtCS)
	if err != nil {
		return Options{}, err
	}

	var adjustments []analysis.Adjustment
	if e := cfg.Predict.Elevation; e.Enabled {
		adjustments = append(adjustments, analysis.ElevationAdjustment{
			GainSecsPerM: e.GainSecsPerM,
			LossSecsPerM: e.LossSecsPerM,
			MaxFraction:  e.MaxFraction,
		})
	}
	if w := cfg.Predict.Weather; w.Enabled {
		adjustments = append(adjustments, analysis.TemperatureAdjustment{
			OptimalC:    w.OptimalC,
			HeatPerC:    w.HeatPerC,
			ColdPerC:    w.ColdPerC,
			MaxFraction: w.MaxFraction,
		})
	}

	return Options{
		Normalize: ingest.Options{
			ResampleStep:           cfg.Normalize.ResampleStepSecs,
			DistanceTolerance:      cfg.Normalize.DistanceRegressionToleranceM,
			DedupWindow:            time.Duration(cfg.Normalize.DedupStartWindowSecs * float64(time.Second)),
			DedupDistanceTolerance: cfg.Normalize.DedupDistanceTolerance,
			MinSamples:             cfg.Normalize.MinSamples,
		},
		Features: analysis.FeatureOptions{
			Durations:       cfg.Features.DurationsSecs,
			ElevationNoiseM: cfg.Features.ElevationNoiseM,
			Zones:           analysis.HRZones{RestingHR: cfg.Athlete.RestingHR, MaxHR: cfg.Athlete.MaxHR, Coefficient: cfg.Athlete.TRIMPCoefficient},
		},
		Estimator: analysis.EstimatorOptions{
			Family:            analysis.CurveFamily(cfg.Curve.Family),
			Loss:              analysis.LossKind(cfg.Curve.Loss),
			TuningConstant:    cfg.Curve.TuningConstant,
			MinBuckets:        cfg.Curve.MinBuckets,
			MinDurationSpread: cfg.Curve.MinDurationSpread,
			Tolerance:         cfg.Curve.Tolerance,
			MaxIterations:     cfg.Curve.MaxIterations,
			ConfidenceLevel:   cfg.Curve.ConfidenceLevel,
			VO2:               vo2,
		},
		Predictor: analysis.PredictorOptions{
			Interval:         cfg.Predict.Interval,
			IntervalLevel:    cfg.Predict.IntervalLevel,
			Resamples:        cfg.Predict.Resamples,
			Seed:             cfg.Predict.Seed,
			OutOfDomainRatio: cfg.Predict.OutOfDomainRatio,
			Adjustments:      adjustments,
		},
		DefaultTargets: cfg.Predict.DefaultTargets,
		Workers:        cfg.Pipeline.Workers,
		FetchTimeout:   time.Duration(cfg.Pipeline.FetchTimeoutSecs) * time.Second,
	}, nil
}
