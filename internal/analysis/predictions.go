package analysis

import (
	"hash/fnv"
	"maps"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Interval methods
const (
	IntervalLinearized = "linearized"
	IntervalResampled  = "resampled"
)

// Confidence labels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// PredictionTarget represents a target distance for predictions
type PredictionTarget struct {
	Name           string // "5k", "10k", "half", "marathon"
	DistanceMeters float64
}

// PredictionTargets defines the standard prediction distances
var PredictionTargets = []PredictionTarget{
	{"5k", Distance5K},
	{"10k", Distance10K},
	{"half", DistanceHalfMara},
	{"marathon", DistanceMarathon},
}

// RaceTarget is a race to predict. Date is zero for the default targets.
type RaceTarget struct {
	AthleteID  string
	Race       string
	Date       time.Time
	DistanceM  float64
	Covariates map[string]float64
}

// Key identifies the race for matching against results.
func (t RaceTarget) Key() RaceKey {
	return NewRaceKey(t.AthleteID, t.Race, t.Date)
}

// RaceKey pairs predictions with ground truth.
type RaceKey struct {
	AthleteID string
	Race      string
	Date      string // YYYY-MM-DD, empty when undated
}

// NewRaceKey builds a key, formatting the date as a calendar day.
func NewRaceKey(athleteID, race string, date time.Time) RaceKey {
	k := RaceKey{AthleteID: athleteID, Race: race}
	if !date.IsZero() {
		k.Date = date.Format(time.DateOnly)
	}
	return k
}

// DefaultTargets returns the standard distances as undated targets.
func DefaultTargets(athleteID string) []RaceTarget {
	targets := make([]RaceTarget, 0, len(PredictionTargets))
	for _, pt := range PredictionTargets {
		targets = append(targets, RaceTarget{
			AthleteID: athleteID,
			Race:      pt.Name,
			DistanceM: pt.DistanceMeters,
		})
	}
	return targets
}

// WithDefaultTargets puts the standard distances ahead of explicit targets.
// A default whose key an explicit target already uses is left out, so an
// undated "5k" from a races file keeps its own covariates.
func WithDefaultTargets(athleteID string, explicit []RaceTarget) []RaceTarget {
	taken := make(map[RaceKey]bool, len(explicit))
	for _, t := range explicit {
		taken[t.Key()] = true
	}
	out := make([]RaceTarget, 0, len(PredictionTargets)+len(explicit))
	for _, t := range DefaultTargets(athleteID) {
		if !taken[t.Key()] {
			out = append(out, t)
		}
	}
	return append(out, explicit...)
}

// RacePrediction represents a predicted race time
type RacePrediction struct {
	AthleteID string
	Race      string
	Date      time.Time
	DistanceM float64

	BaseSeconds      float64
	PredictedSeconds float64
	LowerSeconds     float64
	UpperSeconds     float64
	PaceSPerKm       float64
	IntervalMethod   string
	IntervalLevel    float64

	Adjustments []AppliedAdjustment
	Covariates  map[string]float64

	// VDOT-table equivalent for the curve's hour-run VDOT, for comparison
	VDOT             float64
	ReferenceSeconds float64

	Confidence      string
	ConfidenceScore float64

	OutOfDomain      bool
	UnconvergedCurve bool
}

// Key identifies the predicted race.
func (p RacePrediction) Key() RaceKey {
	return NewRaceKey(p.AthleteID, p.Race, p.Date)
}

// Contains reports whether seconds lies inside the prediction interval.
func (p RacePrediction) Contains(seconds float64) bool {
	return seconds >= p.LowerSeconds && seconds <= p.UpperSeconds
}

// PredictorOptions configures prediction.
type PredictorOptions struct {
	Interval         string
	IntervalLevel    float64
	Resamples        int
	Seed             uint64
	OutOfDomainRatio float64
	Adjustments      []Adjustment
}

// DefaultPredictorOptions returns linearized 95% intervals without adjustments.
func DefaultPredictorOptions() PredictorOptions {
	return PredictorOptions{
		Interval:         IntervalLinearized,
		IntervalLevel:    0.95,
		Resamples:        1000,
		Seed:             1,
		OutOfDomainRatio: 2,
	}
}

// Predictor turns fitted curves into race times. It is safe for concurrent
// use; resampling draws from a per-prediction seeded source.
type Predictor struct {
	opts PredictorOptions
}

// NewPredictor validates options.
func NewPredictor(opts PredictorOptions) (*Predictor, error) {
	if opts.Interval != IntervalLinearized && opts.Interval != IntervalResampled {
		return nil, eris.Errorf("analysis: unknown interval method %q", opts.Interval)
	}
	if opts.IntervalLevel <= 0 || opts.IntervalLevel >= 1 {
		return nil, eris.Errorf("analysis: interval level %v outside (0, 1)", opts.IntervalLevel)
	}
	if opts.Interval == IntervalResampled && opts.Resamples < 100 {
		return nil, eris.Errorf("analysis: %d resamples, need at least 100", opts.Resamples)
	}
	if opts.OutOfDomainRatio < 1 {
		return nil, eris.Errorf("analysis: out-of-domain ratio %v below 1", opts.OutOfDomainRatio)
	}
	return &Predictor{opts: opts}, nil
}

// Predict computes the finishing time for one target. ErrOutOfDomain comes
// back with a usable, low-confidence prediction; ErrNoSolution with none.
func (p *Predictor) Predict(curve *PerformanceCurve, target RaceTarget) (RacePrediction, error) {
	if curve == nil {
		return RacePrediction{}, eris.Wrapf(ErrNoSolution, "athlete %s: no curve", target.AthleteID)
	}
	model := modelFor(curve.Family)
	theta := curve.Values()

	base, ok := model.duration(target.DistanceM, theta)
	if !ok {
		return RacePrediction{}, eris.Wrapf(ErrNoSolution, "athlete %s: %s (%.0f m)", target.AthleteID, target.Race, target.DistanceM)
	}

	method := p.opts.Interval
	var lower, upper float64
	if method == IntervalResampled {
		lower, upper, ok = p.resampledInterval(curve, model, target, base)
		if !ok {
			method = IntervalLinearized
		}
	}
	if method == IntervalLinearized {
		lower, upper = p.linearizedInterval(curve, model, target.DistanceM, base)
	}

	point, lo, hi, applied := applyAdjustments(p.opts.Adjustments, target.Covariates, base, lower, upper)

	pred := RacePrediction{
		AthleteID:        target.AthleteID,
		Race:             target.Race,
		Date:             target.Date,
		DistanceM:        target.DistanceM,
		BaseSeconds:      base,
		PredictedSeconds: point,
		LowerSeconds:     math.Min(lo, point),
		UpperSeconds:     math.Max(hi, point),
		PaceSPerKm:       CalculatePace(target.DistanceM, point, 1000),
		IntervalMethod:   method,
		IntervalLevel:    p.opts.IntervalLevel,
		Adjustments:      applied,
		Covariates:       maps.Clone(target.Covariates),
		UnconvergedCurve: !curve.Converged,
	}

	pred.VDOT = CalculateVDOT(curve.CriticalSpeed()*3600, 3600)
	pred.ReferenceSeconds = PredictTime(pred.VDOT, target.DistanceM)

	ratio := p.opts.OutOfDomainRatio
	pred.OutOfDomain = base < curve.MinDurationS/ratio || base > curve.MaxDurationS*ratio
	pred.ConfidenceScore, pred.Confidence = CalculateConfidence(curve, base, pred.OutOfDomain)

	if pred.OutOfDomain {
		return pred, eris.Wrapf(ErrOutOfDomain, "athlete %s: %s needs %.0fs, fitted %.0f-%.0fs",
			target.AthleteID, target.Race, base, curve.MinDurationS, curve.MaxDurationS)
	}
	return pred, nil
}

// durationGradient is ∂t/∂θ at the solution of D = t·v(t), by implicit
// differentiation: ∂t/∂θ = −t·∂v/∂θ / (v + t·dv/dt).
func durationGradient(model curveModel, t float64, theta []float64) []float64 {
	g := make([]float64, len(theta))
	model.gradient(t, theta, g)
	denom := model.eval(t, theta) + t*model.slope(t, theta)
	for j := range g {
		g[j] = -t * g[j] / denom
	}
	return g
}

// linearizedInterval is the delta-method interval with a Student-t quantile.
func (p *Predictor) linearizedInterval(curve *PerformanceCurve, model curveModel, distance, base float64) (float64, float64) {
	g := durationGradient(model, base, curve.Values())
	var variance float64
	for i := range g {
		for j := range g {
			variance += g[i] * curve.Covariance[i][j] * g[j]
		}
	}
	se := math.Sqrt(math.Max(variance, 0))

	q := intervalQuantile(p.opts.IntervalLevel, curve.DF)
	lower := math.Max(base-q*se, distance/curve.MaxSpeed())
	return math.Max(lower, 0), base + q*se
}

func intervalQuantile(level, df float64) float64 {
	tail := 1 - (1-level)/2
	if df <= 0 {
		return distuv.UnitNormal.Quantile(tail)
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(tail)
}

// resampledInterval draws parameters from the fitted covariance and takes the
// percentile interval of the implied times. It fails when the covariance is
// not positive definite or fewer than half the draws give a valid time.
func (p *Predictor) resampledInterval(curve *PerformanceCurve, model curveModel, target RaceTarget, base float64) (float64, float64, bool) {
	src := rand.NewPCG(p.opts.Seed, targetSeed(target))
	dist, ok := distmv.NewNormal(curve.Values(), curve.CovarianceMatrix(), src)
	if !ok {
		return 0, 0, false
	}

	times := make([]float64, 0, p.opts.Resamples)
	draw := make([]float64, len(curve.Params))
	for i := 0; i < p.opts.Resamples; i++ {
		dist.Rand(draw)
		model.project(draw)
		if !model.monotonic(draw) {
			continue
		}
		if t, ok := model.duration(target.DistanceM, draw); ok {
			times = append(times, t)
		}
	}
	if len(times) < p.opts.Resamples/2 {
		return 0, 0, false
	}

	sort.Float64s(times)
	alpha := 1 - p.opts.IntervalLevel
	lower := stat.Quantile(alpha/2, stat.Empirical, times, nil)
	upper := stat.Quantile(1-alpha/2, stat.Empirical, times, nil)
	return math.Min(lower, base), math.Max(upper, base), true
}

// targetSeed makes resampling independent of the order athletes are processed.
func targetSeed(t RaceTarget) uint64 {
	h := fnv.New64a()
	h.Write([]byte(t.AthleteID))
	h.Write([]byte{0})
	h.Write([]byte(t.Race))
	h.Write([]byte{0})
	h.Write([]byte(t.Key().Date))
	return h.Sum64() ^ math.Float64bits(t.DistanceM)
}

// CalculateConfidence scores a prediction from 0.0 to 1.0
// Factors: extrapolation beyond the fitted durations, convergence, fit quality
func CalculateConfidence(curve *PerformanceCurve, base float64, outOfDomain bool) (float64, string) {
	if curve == nil {
		return 0, ConfidenceLow
	}

	score := 1.0

	// Factor 1: extrapolation ratio
	// Predictions are less reliable the further they sit from fitted efforts
	ratio := 1.0
	switch {
	case base > curve.MaxDurationS:
		ratio = base / curve.MaxDurationS
	case base < curve.MinDurationS:
		ratio = curve.MinDurationS / base
	}

	switch {
	case ratio > 4:
		score *= 0.7
	case ratio > 2:
		score *= 0.85
	case ratio > 1.5:
		score *= 0.95
	}

	// Factor 2: convergence
	if !curve.Converged {
		score *= 0.8
	}

	// Factor 3: fit quality
	if curve.RobustR2 < 0.9 {
		score *= 0.85
	}

	score = math.Round(score*100) / 100
	if outOfDomain {
		return score, ConfidenceLow
	}

	var label string
	switch {
	case score >= 0.85:
		label = ConfidenceHigh
	case score >= 0.65:
		label = ConfidenceMedium
	default:
		label = ConfidenceLow
	}

	return score, label
}

// GetTargetLabel returns a human-readable label for a target distance
func GetTargetLabel(targetName string) string {
	labels := map[string]string{
		"1mi":      "1 Mile",
		"5k":       "5K",
		"10k":      "10K",
		"half":     "Half Marathon",
		"marathon": "Marathon",
	}
	if label, ok := labels[targetName]; ok {
		return label
	}
	return targetName
}
