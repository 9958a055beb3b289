package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedCurve(t *testing.T, family CurveFamily, pts []DurationSpeed) *PerformanceCurve {
	t.Helper()
	e := newTestEstimator(t, func(o *EstimatorOptions) {
		o.Family = family
		o.MaxIterations = 200
	})
	curve, err := e.Fit("a1", pts)
	require.NoError(t, err)
	return curve
}

func newTestPredictor(t *testing.T, mutate func(*PredictorOptions)) *Predictor {
	t.Helper()
	opts := DefaultPredictorOptions()
	if mutate != nil {
		mutate(&opts)
	}
	p, err := NewPredictor(opts)
	require.NoError(t, err)
	return p
}

func noisyCurve(t *testing.T) *PerformanceCurve {
	return fittedCurve(t, FamilyTwoParameter,
		synthetic(4, 200, 0, sevenBuckets, []float64{0.006, -0.004, 0.003, -0.007, 0.002, 0.005, -0.003}))
}

func TestPredictTwoParameterClosedForm(t *testing.T) {
	curve := fittedCurve(t, FamilyTwoParameter, synthetic(4, 200, 0, sevenBuckets, nil))
	p := newTestPredictor(t, nil)

	pred, err := p.Predict(curve, RaceTarget{AthleteID: "a1", Race: "10k", DistanceM: Distance10K})
	require.NoError(t, err)

	assert.InDelta(t, (10000-200)/4.0, pred.BaseSeconds, 1e-3)
	assert.Equal(t, pred.BaseSeconds, pred.PredictedSeconds)
	assert.Equal(t, IntervalLinearized, pred.IntervalMethod)
	assert.Equal(t, 0.95, pred.IntervalLevel)
	assert.LessOrEqual(t, pred.LowerSeconds, pred.PredictedSeconds)
	assert.GreaterOrEqual(t, pred.UpperSeconds, pred.PredictedSeconds)
	assert.False(t, pred.OutOfDomain)
	assert.Empty(t, pred.Adjustments)
	assert.InDelta(t, pred.PredictedSeconds/10, pred.PaceSPerKm, 1e-9)
	assert.Greater(t, pred.VDOT, 0.0)
	assert.Greater(t, pred.ReferenceSeconds, 0.0)
	assert.Equal(t, ConfidenceHigh, pred.Confidence)
}

func TestPredictThreeParameterSolvesDistance(t *testing.T) {
	durations := []float64{30, 60, 120, 300, 600, 1200, 1800, 3600}
	curve := fittedCurve(t, FamilyThreeParameter, synthetic(4, 250, 20, durations, nil))
	p := newTestPredictor(t, nil)

	pred, err := p.Predict(curve, RaceTarget{AthleteID: "a1", Race: "5k", DistanceM: Distance5K})
	require.NoError(t, err)

	// the finishing time covers the distance at the curve's speed for that time
	covered := pred.BaseSeconds * curve.Speed(pred.BaseSeconds)
	assert.InDelta(t, Distance5K, covered, 1e-6)
}

func TestPredictIntervalWidensWithNoise(t *testing.T) {
	p := newTestPredictor(t, nil)
	target := RaceTarget{AthleteID: "a1", Race: "10k", DistanceM: Distance10K}

	exact, err := p.Predict(fittedCurve(t, FamilyTwoParameter, synthetic(4, 200, 0, sevenBuckets, nil)), target)
	require.NoError(t, err)
	noisy, err := p.Predict(noisyCurve(t), target)
	require.NoError(t, err)

	assert.Less(t, exact.UpperSeconds-exact.LowerSeconds, 1e-3)
	assert.Greater(t, noisy.UpperSeconds-noisy.LowerSeconds, 1.0)
}

func TestPredictAdjustments(t *testing.T) {
	curve := fittedCurve(t, FamilyTwoParameter, synthetic(4, 200, 0, sevenBuckets, nil))
	p := newTestPredictor(t, func(o *PredictorOptions) {
		o.Adjustments = []Adjustment{
			ElevationAdjustment{GainSecsPerM: 1.8, LossSecsPerM: 0.6, MaxFraction: 0.15},
			TemperatureAdjustment{OptimalC: 10, HeatPerC: 0.004, ColdPerC: 0.002, MaxFraction: 0.15},
		}
	})

	pred, err := p.Predict(curve, RaceTarget{
		AthleteID: "a1",
		Race:      "city 10k",
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		DistanceM: Distance10K,
		Covariates: map[string]float64{
			CovElevationGain: 100,
			CovElevationLoss: 50,
			CovTemperature:   25,
		},
	})
	require.NoError(t, err)

	base := pred.BaseSeconds
	require.Len(t, pred.Adjustments, 2)
	assert.Equal(t, "elevation", pred.Adjustments[0].Name)
	assert.InDelta(t, 150, pred.Adjustments[0].DeltaSeconds, 1e-9)
	assert.Equal(t, "temperature", pred.Adjustments[1].Name)
	assert.InDelta(t, 1.06, pred.Adjustments[1].Factor, 1e-9)
	assert.InDelta(t, (base+150)*1.06, pred.PredictedSeconds, 1e-6)
	assert.Equal(t, 25.0, pred.Covariates[CovTemperature])
	assert.LessOrEqual(t, pred.LowerSeconds, pred.PredictedSeconds)
	assert.GreaterOrEqual(t, pred.UpperSeconds, pred.PredictedSeconds)
}

func TestElevationAdjustmentBounds(t *testing.T) {
	adj := ElevationAdjustment{GainSecsPerM: 1.8, LossSecsPerM: 0.6, MaxFraction: 0.15}

	got, ok := adj.Adjust(1000, map[string]float64{CovElevationGain: 2000})
	assert.True(t, ok)
	assert.InDelta(t, 1150, got, 1e-9)

	got, ok = adj.Adjust(1000, map[string]float64{CovElevationLoss: 2000})
	assert.True(t, ok)
	assert.InDelta(t, 850, got, 1e-9)

	got, ok = adj.Adjust(1000, map[string]float64{CovTemperature: 30})
	assert.False(t, ok)
	assert.Equal(t, 1000.0, got)
}

func TestTemperatureAdjustmentNeverSpeedsUp(t *testing.T) {
	adj := TemperatureAdjustment{OptimalC: 10, HeatPerC: 0.004, ColdPerC: 0.002, MaxFraction: 0.15}
	for temp := -30.0; temp <= 50; temp += 5 {
		got, ok := adj.Adjust(1000, map[string]float64{CovTemperature: temp})
		require.True(t, ok)
		assert.GreaterOrEqual(t, got, 1000.0, "%v°C", temp)
		assert.LessOrEqual(t, got, 1150.0+1e-9, "%v°C", temp)
	}
	got, _ := adj.Adjust(1000, map[string]float64{CovTemperature: 10})
	assert.Equal(t, 1000.0, got)
	got, _ = adj.Adjust(1000, map[string]float64{CovTemperature: 0})
	assert.InDelta(t, 1020, got, 1e-9)
}

func TestPredictOutOfDomain(t *testing.T) {
	curve := noisyCurve(t)
	p := newTestPredictor(t, nil)

	pred, err := p.Predict(curve, RaceTarget{AthleteID: "a1", Race: "marathon", DistanceM: DistanceMarathon})
	require.ErrorIs(t, err, ErrOutOfDomain)
	assert.True(t, pred.OutOfDomain)
	assert.Equal(t, ConfidenceLow, pred.Confidence)
	assert.Greater(t, pred.PredictedSeconds, curve.MaxDurationS*2)

	wide := newTestPredictor(t, func(o *PredictorOptions) { o.OutOfDomainRatio = 4 })
	pred, err = wide.Predict(curve, RaceTarget{AthleteID: "a1", Race: "marathon", DistanceM: DistanceMarathon})
	require.NoError(t, err)
	assert.False(t, pred.OutOfDomain)
}

func TestPredictNoSolution(t *testing.T) {
	curve := noisyCurve(t)
	p := newTestPredictor(t, nil)

	_, err := p.Predict(curve, RaceTarget{AthleteID: "a1", Race: "dash", DistanceM: 100})
	assert.ErrorIs(t, err, ErrNoSolution)

	_, err = p.Predict(nil, RaceTarget{AthleteID: "a1", Race: "5k", DistanceM: Distance5K})
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestPredictResampledReproducible(t *testing.T) {
	curve := noisyCurve(t)
	target := RaceTarget{AthleteID: "a1", Race: "10k", DistanceM: Distance10K}
	resampled := func(seed uint64) RacePrediction {
		p := newTestPredictor(t, func(o *PredictorOptions) {
			o.Interval = IntervalResampled
			o.Resamples = 2000
			o.Seed = seed
		})
		pred, err := p.Predict(curve, target)
		require.NoError(t, err)
		return pred
	}

	first := resampled(1)
	second := resampled(1)
	other := resampled(2)

	assert.Equal(t, IntervalResampled, first.IntervalMethod)
	assert.Equal(t, first.LowerSeconds, second.LowerSeconds)
	assert.Equal(t, first.UpperSeconds, second.UpperSeconds)
	assert.NotEqual(t, first.LowerSeconds, other.LowerSeconds)
	assert.Less(t, first.LowerSeconds, first.PredictedSeconds)
	assert.Greater(t, first.UpperSeconds, first.PredictedSeconds)

	// both methods describe the same uncertainty
	linear, err := newTestPredictor(t, nil).Predict(curve, target)
	require.NoError(t, err)
	width := linear.UpperSeconds - linear.LowerSeconds
	assert.InDelta(t, width, first.UpperSeconds-first.LowerSeconds, width*0.35)
}

// syntheticCoverage fits a cohort of noisy athletes on the two-parameter curve
// and returns the share whose true 10k time lies inside the interval.
func syntheticCoverage(t *testing.T, athletes int, seed uint64, level float64) float64 {
	t.Helper()
	const sigma = 0.045 // m/s, about 1% of speed
	durations := []float64{60, 120, 180, 300, 600, 900, 1200, 1800, 2700, 3600}
	rng := rand.New(rand.NewPCG(seed, 1))

	e := newTestEstimator(t, nil)
	p := newTestPredictor(t, func(o *PredictorOptions) { o.IntervalLevel = level })

	covered := 0
	for i := 0; i < athletes; i++ {
		cs := 3.5 + 1.5*rng.Float64()
		dp := 150 + 150*rng.Float64()
		pts := make([]DurationSpeed, len(durations))
		for j, d := range durations {
			pts[j] = DurationSpeed{DurationS: d, SpeedMPS: cs + dp/d + sigma*rng.NormFloat64()}
		}

		curve, err := e.Fit("a", pts)
		if err != nil && !errors.Is(err, ErrUnconverged) {
			t.Fatalf("athlete %d: %v", i, err)
		}
		pred, err := p.Predict(curve, RaceTarget{AthleteID: "a", Race: "10k", DistanceM: Distance10K})
		require.NoError(t, err)

		if pred.Contains((Distance10K - dp) / cs) {
			covered++
		}
	}
	return float64(covered) / float64(athletes)
}

func TestIntervalCoverageOnSyntheticCohort(t *testing.T) {
	const level = 0.8
	// three binomial standard errors plus a fixed allowance for the
	// linearisation; the band narrows as the cohort grows
	tests := []struct {
		athletes int
		seed     uint64
	}{
		{150, 42},
		{1200, 7},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d athletes", tt.athletes), func(t *testing.T) {
			coverage := syntheticCoverage(t, tt.athletes, tt.seed, level)
			band := 3*math.Sqrt(level*(1-level)/float64(tt.athletes)) + 0.03
			assert.InDelta(t, level, coverage, band, "coverage %.3f", coverage)
		})
	}
}

func TestCalculateConfidence(t *testing.T) {
	curve := &PerformanceCurve{MinDurationS: 60, MaxDurationS: 3600, Converged: true, RobustR2: 0.99}

	tests := []struct {
		name      string
		base      float64
		ood       bool
		mutate    func(*PerformanceCurve)
		wantScore float64
		wantLabel string
	}{
		{"inside range", 1800, false, nil, 1, ConfidenceHigh},
		{"small extrapolation", 6000, false, nil, 0.95, ConfidenceHigh},
		{"moderate extrapolation", 9000, false, nil, 0.85, ConfidenceHigh},
		{"large extrapolation", 15000, false, nil, 0.7, ConfidenceMedium},
		{"short side", 20, false, nil, 0.85, ConfidenceHigh},
		{"unconverged", 1800, false, func(c *PerformanceCurve) { c.Converged = false }, 0.8, ConfidenceMedium},
		{"poor fit", 1800, false, func(c *PerformanceCurve) { c.RobustR2 = 0.5 }, 0.85, ConfidenceHigh},
		{"unconverged poor fit far out", 15000, false, func(c *PerformanceCurve) {
			c.Converged = false
			c.RobustR2 = 0.5
		}, 0.48, ConfidenceLow},
		{"out of domain", 9000, true, nil, 0.85, ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *curve
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			score, label := CalculateConfidence(&c, tt.base, tt.ood)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			assert.Equal(t, tt.wantLabel, label)
		})
	}

	score, label := CalculateConfidence(nil, 100, false)
	assert.Zero(t, score)
	assert.Equal(t, ConfidenceLow, label)
}

func TestDefaultTargetsAndKeys(t *testing.T) {
	targets := DefaultTargets("a1")
	require.Len(t, targets, 4)
	assert.Equal(t, "5k", targets[0].Race)
	assert.Equal(t, float64(DistanceMarathon), targets[3].DistanceM)
	assert.Equal(t, RaceKey{AthleteID: "a1", Race: "5k"}, targets[0].Key())

	dated := RaceTarget{AthleteID: "a1", Race: "city 10k", Date: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)}
	assert.Equal(t, "2024-06-01", dated.Key().Date)

	merged := WithDefaultTargets("a1", []RaceTarget{
		{AthleteID: "a1", Race: "5k", DistanceM: Distance5K, Covariates: map[string]float64{CovTemperature: 25}},
		dated,
	})
	require.Len(t, merged, 5)
	assert.Equal(t, "10k", merged[0].Race)
	assert.Equal(t, "5k", merged[3].Race)
	assert.Contains(t, merged[3].Covariates, CovTemperature)
	assert.Len(t, WithDefaultTargets("a1", nil), 4)

	assert.Equal(t, "Half Marathon", GetTargetLabel("half"))
	assert.Equal(t, "city 10k", GetTargetLabel("city 10k"))
}

func TestNewPredictorValidates(t *testing.T) {
	_, err := NewPredictor(PredictorOptions{Interval: "bayes", IntervalLevel: 0.9, OutOfDomainRatio: 2})
	assert.Error(t, err)
	_, err = NewPredictor(PredictorOptions{Interval: IntervalLinearized, IntervalLevel: 1.2, OutOfDomainRatio: 2})
	assert.Error(t, err)
	_, err = NewPredictor(PredictorOptions{Interval: IntervalResampled, IntervalLevel: 0.9, Resamples: 10, OutOfDomainRatio: 2})
	assert.Error(t, err)
	_, err = NewPredictor(PredictorOptions{Interval: IntervalLinearized, IntervalLevel: 0.9, OutOfDomainRatio: 0.5})
	assert.Error(t, err)
	assert.False(t, math.IsNaN(DefaultPredictorOptions().IntervalLevel))
}
