package analysis

import "math"

// Covariate keys read by the built-in adjustments.
const (
	CovElevationGain = "elevation_gain_m"
	CovElevationLoss = "elevation_loss_m"
	CovTemperature   = "temperature_c"
)

// Adjustment corrects a flat, temperate curve time for race conditions.
// Adjust returns the corrected time and whether the covariates it reads were
// present. Adjustments compose in order; each sees the previous one's output.
type Adjustment interface {
	Name() string
	Adjust(seconds float64, covariates map[string]float64) (float64, bool)
}

// AppliedAdjustment records one adjustment's effect on the point prediction.
type AppliedAdjustment struct {
	Name         string  `json:"name"`
	DeltaSeconds float64 `json:"delta_seconds"`
	Factor       float64 `json:"factor"`
}

// ElevationAdjustment adds GainSecsPerM for every metre climbed and gives back
// LossSecsPerM for every metre descended. The net change stays within
// ±MaxFraction of the input time.
type ElevationAdjustment struct {
	GainSecsPerM float64
	LossSecsPerM float64
	MaxFraction  float64
}

func (ElevationAdjustment) Name() string { return "elevation" }

func (a ElevationAdjustment) Adjust(seconds float64, cov map[string]float64) (float64, bool) {
	gain, hasGain := cov[CovElevationGain]
	loss, hasLoss := cov[CovElevationLoss]
	if !hasGain && !hasLoss {
		return seconds, false
	}
	delta := math.Max(gain, 0)*a.GainSecsPerM - math.Max(loss, 0)*a.LossSecsPerM
	bound := a.MaxFraction * seconds
	delta = math.Max(-bound, math.Min(bound, delta))
	return seconds + delta, true
}

// TemperatureAdjustment slows the time by HeatPerC per degree above OptimalC
// and ColdPerC per degree below it. The factor lies in [1, 1+MaxFraction]; it
// never speeds a runner up.
type TemperatureAdjustment struct {
	OptimalC    float64
	HeatPerC    float64
	ColdPerC    float64
	MaxFraction float64
}

func (TemperatureAdjustment) Name() string { return "temperature" }

func (a TemperatureAdjustment) Adjust(seconds float64, cov map[string]float64) (float64, bool) {
	temp, ok := cov[CovTemperature]
	if !ok {
		return seconds, false
	}
	factor := 1.0
	if temp > a.OptimalC {
		factor += a.HeatPerC * (temp - a.OptimalC)
	} else {
		factor += a.ColdPerC * (a.OptimalC - temp)
	}
	factor = math.Max(1, math.Min(1+a.MaxFraction, factor))
	return seconds * factor, true
}

// applyAdjustments runs the chain over a point time and its interval bounds.
// Only adjustments whose covariates were present are recorded.
func applyAdjustments(chain []Adjustment, cov map[string]float64, base, lower, upper float64) (point, lo, hi float64, applied []AppliedAdjustment) {
	point, lo, hi = base, lower, upper
	for _, adj := range chain {
		next, ok := adj.Adjust(point, cov)
		if !ok {
			continue
		}
		applied = append(applied, AppliedAdjustment{
			Name:         adj.Name(),
			DeltaSeconds: next - point,
			Factor:       next / point,
		})
		point = next
		lo, _ = adj.Adjust(lo, cov)
		hi, _ = adj.Adjust(hi, cov)
	}
	return point, lo, hi, applied
}
