package analysis

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic builds points on v = cs + dp/(t+k) with a fixed relative noise
// pattern so tests stay deterministic.
func synthetic(cs, dp, k float64, durations []float64, noise []float64) []DurationSpeed {
	pts := make([]DurationSpeed, len(durations))
	for i, d := range durations {
		v := cs + dp/(d+k)
		if len(noise) > 0 {
			v *= 1 + noise[i%len(noise)]
		}
		pts[i] = DurationSpeed{DurationS: d, SpeedMPS: v}
	}
	return pts
}

var sevenBuckets = []float64{60, 120, 300, 600, 1200, 1800, 3600}

func newTestEstimator(t *testing.T, mutate func(*EstimatorOptions)) *Estimator {
	t.Helper()
	opts := DefaultEstimatorOptions()
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEstimator(opts)
	require.NoError(t, err)
	return e
}

func TestFitRecoversExactCurve(t *testing.T) {
	e := newTestEstimator(t, nil)
	curve, err := e.Fit("a1", synthetic(4, 200, 0, sevenBuckets, nil))
	require.NoError(t, err)

	assert.True(t, curve.Converged)
	assert.Equal(t, FamilyTwoParameter, curve.Family)
	assert.InDelta(t, 4, curve.CriticalSpeed(), 1e-6)
	assert.InDelta(t, 200, curve.DPrime(), 1e-3)
	assert.Equal(t, 60.0, curve.MinDurationS)
	assert.Equal(t, 3600.0, curve.MaxDurationS)
	assert.InDelta(t, 1, curve.RobustR2, 1e-9)
	assert.Equal(t, 5.0, curve.DF)
	assert.Len(t, curve.Weights, len(sevenBuckets))

	assert.Equal(t, VO2Daniels, curve.VO2Model)
	assert.InDelta(t, DanielsModel{FractionAtCS: DefaultFractionAtCS}.VO2(curve.CriticalSpeed()), curve.VO2, 1e-9)
	assert.True(t, math.IsInf(curve.MaxSpeed(), 1))
}

func TestFitIsIdempotent(t *testing.T) {
	pts := synthetic(4.2, 180, 0, sevenBuckets, []float64{0.004, -0.003, 0.002, -0.005, 0.001, 0.003, -0.002})
	e := newTestEstimator(t, nil)

	first, err := e.Fit("a1", pts)
	require.NoError(t, err)
	second, err := e.Fit("a1", pts)
	require.NoError(t, err)
	assert.Equal(t, first.Params, second.Params)
	assert.Equal(t, first.Covariance, second.Covariance)

	shuffled := append([]DurationSpeed(nil), pts...)
	rand.New(rand.NewPCG(7, 7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	third, err := e.Fit("a1", shuffled)
	require.NoError(t, err)
	assert.Equal(t, first.Params, third.Params)
}

func TestFitRobustToOutlier(t *testing.T) {
	const cs = 4.0
	pts := synthetic(cs, 200, 0, sevenBuckets, []float64{0.001, -0.001, 0, 0.001, -0.001, 0.0005, -0.0005})
	// a GPS glitch triples the 5 minute best
	for i := range pts {
		if pts[i].DurationS == 300 {
			pts[i].SpeedMPS *= 3
		}
	}

	for _, loss := range []LossKind{LossHuber, LossTukey} {
		t.Run(string(loss), func(t *testing.T) {
			e := newTestEstimator(t, func(o *EstimatorOptions) { o.Loss = loss })
			curve, err := e.Fit("a1", pts)
			if err != nil {
				require.ErrorIs(t, err, ErrUnconverged)
			}
			require.NotNil(t, curve)
			shift := math.Abs(curve.CriticalSpeed()-cs) / cs
			assert.Less(t, shift, 0.01, "robust CS %v", curve.CriticalSpeed())

			// the outlier carries almost no weight
			for i, p := range curve.Points {
				if p.DurationS == 300 {
					assert.Less(t, curve.Weights[i], 0.05)
				}
			}
		})
	}

	ols := newTestEstimator(t, func(o *EstimatorOptions) { o.Loss = LossLeastSquares })
	curve, err := ols.Fit("a1", pts)
	require.NoError(t, err)
	shift := math.Abs(curve.CriticalSpeed()-cs) / cs
	assert.Greater(t, shift, 0.1, "least squares CS %v", curve.CriticalSpeed())
}

func TestFitFourBucketScenario(t *testing.T) {
	// 1, 5, 20 and 60 minute bests
	pts := synthetic(4.5, 180, 0, []float64{60, 300, 1200, 3600}, []float64{0.002, -0.001, 0.001, -0.002})
	e := newTestEstimator(t, func(o *EstimatorOptions) {
		o.Tolerance = 1e-6
		o.MaxIterations = 50
	})

	curve, err := e.Fit("a1", pts)
	require.NoError(t, err)
	assert.True(t, curve.Converged)
	assert.LessOrEqual(t, curve.Iterations, 50)
	assert.InDelta(t, 4.5, curve.CriticalSpeed(), 4.5*0.02)
	assert.Equal(t, 2.0, curve.DF)

	for _, p := range curve.Params {
		assert.Greater(t, p.StdErr, 0.0, p.Name)
		assert.Less(t, p.Lower, p.Value, p.Name)
		assert.Greater(t, p.Upper, p.Value, p.Name)
	}
	cov := curve.CovarianceMatrix()
	assert.InDelta(t, cov.At(0, 1), cov.At(1, 0), 1e-15)
}

func TestFitInsufficientData(t *testing.T) {
	e := newTestEstimator(t, nil)

	_, err := e.Fit("a1", synthetic(4, 200, 0, []float64{60, 300, 1200}, nil))
	assert.ErrorIs(t, err, ErrInsufficientData)

	// duplicated durations do not count twice
	pts := synthetic(4, 200, 0, []float64{60, 300, 1200, 1200}, nil)
	_, err = e.Fit("a1", pts)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// four buckets but max/min only 2.5
	_, err = e.Fit("a1", synthetic(4, 200, 0, []float64{60, 90, 120, 150}, nil))
	assert.ErrorIs(t, err, ErrInsufficientData)

	// invalid points are dropped before counting
	pts = synthetic(4, 200, 0, []float64{60, 300, 1200}, nil)
	pts = append(pts, DurationSpeed{DurationS: 3600, SpeedMPS: math.NaN()}, DurationSpeed{DurationS: -5, SpeedMPS: 4})
	_, err = e.Fit("a1", pts)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitRejectsNonMonotonic(t *testing.T) {
	e := newTestEstimator(t, nil)
	pts := []DurationSpeed{
		{60, 3.0}, {300, 3.5}, {1200, 4.0}, {3600, 4.5},
	}
	curve, err := e.Fit("a1", pts)
	assert.ErrorIs(t, err, ErrNonMonotonic)
	assert.Nil(t, curve)
}

func TestFitThreeParameter(t *testing.T) {
	e := newTestEstimator(t, func(o *EstimatorOptions) {
		o.Family = FamilyThreeParameter
		o.MaxIterations = 200
	})
	durations := []float64{30, 60, 120, 300, 600, 1200, 1800, 3600}
	curve, err := e.Fit("a1", synthetic(4, 250, 20, durations, nil))
	require.NoError(t, err)

	assert.Equal(t, FamilyThreeParameter, curve.Family)
	require.Len(t, curve.Params, 3)
	assert.InDelta(t, 4, curve.CriticalSpeed(), 0.04)
	assert.InDelta(t, 250, curve.DPrime(), 12.5)
	k, ok := curve.Param(ParamK)
	require.True(t, ok)
	assert.GreaterOrEqual(t, k.Value, 0.0)
	assert.InDelta(t, 20, k.Value, 4)
	assert.False(t, math.IsInf(curve.MaxSpeed(), 1))

	// speed decreases over the fitted domain
	prev := math.Inf(1)
	for t0 := curve.MinDurationS; t0 <= curve.MaxDurationS; t0 *= 1.5 {
		v := curve.Speed(t0)
		assert.Less(t, v, prev)
		prev = v
	}
}

func TestNewEstimatorValidates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EstimatorOptions)
	}{
		{"family", func(o *EstimatorOptions) { o.Family = "power_law" }},
		{"loss", func(o *EstimatorOptions) { o.Loss = "cauchy" }},
		{"min buckets", func(o *EstimatorOptions) { o.MinBuckets = 2 }},
		{"min buckets three parameter", func(o *EstimatorOptions) {
			o.Family = FamilyThreeParameter
			o.MinBuckets = 3
		}},
		{"spread", func(o *EstimatorOptions) { o.MinDurationSpread = 1 }},
		{"tolerance", func(o *EstimatorOptions) { o.Tolerance = 0 }},
		{"confidence", func(o *EstimatorOptions) { o.ConfidenceLevel = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultEstimatorOptions()
			tt.mutate(&opts)
			_, err := NewEstimator(opts)
			assert.Error(t, err)
		})
	}
}

func TestEstimateFromFeatures(t *testing.T) {
	features := []Features{
		{BestSpeed: map[int]float64{60: 4 + 200.0/60, 300: 4 + 200.0/300}},
		{BestSpeed: map[int]float64{60: 5, 1200: 4 + 200.0/1200, 3600: 4 + 200.0/3600}},
	}
	e := newTestEstimator(t, nil)
	curve, err := e.Estimate("a1", features)
	require.NoError(t, err)
	assert.InDelta(t, 4, curve.CriticalSpeed(), 1e-6)
}
