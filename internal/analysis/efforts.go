package analysis

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"racecurve/internal/ingest"
)

// BestEffort is the fastest window of a given duration within an activity
type BestEffort struct {
	DurationSeconds float64
	DistanceMeters  float64
	StartOffset     float64 // elapsed seconds where the effort starts
	EndOffset       float64
	AvgHeartrate    float64
}

// Speed returns the effort's mean speed in m/s.
func (e BestEffort) Speed() float64 {
	if e.DurationSeconds <= 0 {
		return 0
	}
	return e.DistanceMeters / e.DurationSeconds
}

// Standard race distances in meters
const (
	Distance1Mile      = 1609.34
	Distance5K         = 5000
	Distance10K        = 10000
	DistanceHalfMara   = 21097.5
	DistanceMarathon   = 42195
	DistanceTolerance  = 0.05 // 5% tolerance for race distance matching
	MinPointsForEffort = 10
)

// RaceDistances maps standard race names to meters
var RaceDistances = map[string]float64{
	"1mi":      Distance1Mile,
	"5k":       Distance5K,
	"10k":      Distance10K,
	"half":     DistanceHalfMara,
	"marathon": DistanceMarathon,
}

// FindBestEffort finds the window of windowSeconds covering the most distance.
// Samples must be on a uniform grid. Returns nil when the activity is shorter
// than the window, or when the window is not a whole number of grid steps; a
// bucket is only observed at its own duration.
func FindBestEffort(samples []ingest.Sample, windowSeconds float64) *BestEffort {
	if len(samples) < MinPointsForEffort || windowSeconds <= 0 {
		return nil
	}

	step := samples[1].ElapsedS - samples[0].ElapsedS
	if step <= 0 {
		return nil
	}
	if samples[len(samples)-1].ElapsedS-samples[0].ElapsedS < windowSeconds-1e-9 {
		return nil
	}

	width := int(math.Round(windowSeconds / step))
	if width < 1 || width >= len(samples) {
		return nil
	}
	if math.Abs(float64(width)*step-windowSeconds) > 1e-6*windowSeconds {
		return nil
	}

	bestLeft := -1
	bestDist := -1.0
	for left := 0; left+width < len(samples); left++ {
		d := samples[left+width].DistanceM - samples[left].DistanceM
		if d > bestDist {
			bestDist = d
			bestLeft = left
		}
	}
	if bestLeft < 0 {
		return nil
	}

	right := bestLeft + width
	return &BestEffort{
		DurationSeconds: samples[right].ElapsedS - samples[bestLeft].ElapsedS,
		DistanceMeters:  bestDist,
		StartOffset:     samples[bestLeft].ElapsedS,
		EndOffset:       samples[right].ElapsedS,
		AvgHeartrate:    segmentAvgHR(samples[bestLeft : right+1]),
	}
}

// segmentAvgHR averages valid heart rate samples of a segment
func segmentAvgHR(samples []ingest.Sample) float64 {
	var hrSum float64
	var hrCount int
	for _, s := range samples {
		if s.Heartrate != nil && *s.Heartrate > MinValidHeartrate {
			hrSum += *s.Heartrate
			hrCount++
		}
	}
	if hrCount > 0 {
		return hrSum / float64(hrCount)
	}
	return 0
}

// MatchesRaceDistance checks if a distance matches a standard race distance
// within the tolerance (±5%)
func MatchesRaceDistance(distance float64, raceDistance float64) bool {
	lowerBound := raceDistance * (1 - DistanceTolerance)
	upperBound := raceDistance * (1 + DistanceTolerance)
	return distance >= lowerBound && distance <= upperBound
}

// GetMatchingRaceCategory returns the standard race name a distance matches
func GetMatchingRaceCategory(distance float64) (category string, raceDistance float64, matches bool) {
	for _, name := range []string{"1mi", "5k", "10k", "half", "marathon"} {
		if MatchesRaceDistance(distance, RaceDistances[name]) {
			return name, RaceDistances[name], true
		}
	}
	return "", 0, false
}

// CheckRaceDistance rejects a race named after a standard distance ("5k",
// "half", ...) whose distance is outside DistanceTolerance of it. Other names
// are not checked.
func CheckRaceDistance(race string, distance float64) error {
	want, ok := RaceDistances[strings.ToLower(strings.TrimSpace(race))]
	if !ok || MatchesRaceDistance(distance, want) {
		return nil
	}
	return eris.Errorf("race %q is %.0f m, more than %.0f%% off %.0f m",
		race, distance, 100*DistanceTolerance, want)
}

// CalculatePace returns seconds per unit (1000 for km, Distance1Mile for mi)
func CalculatePace(distanceMeters, durationSeconds, unitMeters float64) float64 {
	if distanceMeters <= 0 || durationSeconds <= 0 {
		return 0
	}
	return durationSeconds / (distanceMeters / unitMeters)
}
