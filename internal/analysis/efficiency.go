package analysis

import "racecurve/internal/ingest"

// HR validation thresholds
const (
	MinValidHeartrate = 50
	MaxValidHeartrate = 220
)

// sampleSpeed derives m/s from a normalized sample's pace.
func sampleSpeed(s ingest.Sample) (float64, bool) {
	if s.PaceSPerKm == nil || *s.PaceSPerKm <= 0 {
		return 0, false
	}
	return 1000 / *s.PaceSPerKm, true
}

// EfficiencyFactor calculates pace:HR efficiency
// Returns (speed in m/min) / (average HR); higher is better.
// Typical values range from 1.0 to 2.0
func EfficiencyFactor(samples []ingest.Sample) float64 {
	var totalVelocity, totalHR float64
	var count int

	for _, s := range samples {
		vel, ok := sampleSpeed(s)
		if !ok || s.Heartrate == nil {
			continue
		}
		hr := *s.Heartrate
		// Filter noise: must be actually moving with reasonable HR
		if vel > 0.5 && hr > 80 && hr < MaxValidHeartrate {
			totalVelocity += vel
			totalHR += hr
			count++
		}
	}

	if count == 0 {
		return 0
	}

	avgVelocityMPM := totalVelocity / float64(count) * 60
	return avgVelocityMPM / (totalHR / float64(count))
}

// AerobicDecoupling calculates the pace:HR drift between first and second half
// Returns percentage - positive means second half was less efficient
func AerobicDecoupling(samples []ingest.Sample) float64 {
	if len(samples) < 120 { // Need at least 2 minutes of data
		return 0
	}

	mid := len(samples) / 2
	firstEF := EfficiencyFactor(samples[:mid])
	secondEF := EfficiencyFactor(samples[mid:])
	if firstEF == 0 || secondEF == 0 {
		return 0
	}

	return ((firstEF / secondEF) - 1) * 100
}

// averageHR averages valid heart rate samples
func averageHR(samples []ingest.Sample) float64 {
	var total float64
	var count int
	for _, s := range samples {
		if s.Heartrate != nil && *s.Heartrate >= MinValidHeartrate && *s.Heartrate <= MaxValidHeartrate {
			total += *s.Heartrate
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
