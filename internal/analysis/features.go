package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"racecurve/internal/ingest"
)

// GradeCostFactor scales grade into extra effort: +10% grade costs ~30%.
const GradeCostFactor = 3.0

// DefaultElevationNoise is the hysteresis, in metres, below which elevation
// changes are treated as GPS noise.
const DefaultElevationNoise = 2.0

// FeatureOptions configures feature extraction.
type FeatureOptions struct {
	Durations       []int // rolling-best buckets, seconds
	ElevationNoiseM float64
	Zones           HRZones
}

// Features is the per-activity feature vector. BestSpeed holds only the
// buckets the activity actually covered.
type Features struct {
	AthleteID  string
	ActivityID string
	StartTime  time.Time

	DurationS               float64
	DistanceM               float64
	DistanceCategory        string // standard race the distance matches, if any
	ElevationGainM          float64
	ElevationLossM          float64
	AvgPaceSPerKm           float64
	GradeAdjustedPaceSPerKm float64
	BestSpeed               map[int]float64 // bucket seconds -> m/s

	TemperatureC *float64
	TimeOfDay    string
	DayOfWeek    time.Weekday
	HourOfDay    int

	AvgHeartrate      *float64
	EfficiencyFactor  *float64
	AerobicDecoupling *float64
	TRIMP             *float64
}

// BestPace returns the rolling best pace (s/km) for a bucket.
func (f Features) BestPace(bucket int) (float64, bool) {
	v, ok := f.BestSpeed[bucket]
	if !ok || v <= 0 {
		return 0, false
	}
	return 1000 / v, true
}

// ExtractFeatures computes the feature vector of one normalized activity.
func ExtractFeatures(rec ingest.ActivityRecord, opts FeatureOptions) Features {
	f := Features{
		AthleteID:  rec.AthleteID,
		ActivityID: rec.ActivityID,
		StartTime:  rec.StartTime,
		DurationS:  rec.Duration(),
		DistanceM:  rec.Distance(),
		BestSpeed:  make(map[int]float64),
		TimeOfDay:  TimeOfDayBucket(rec.StartTime),
		DayOfWeek:  rec.StartTime.Weekday(),
		HourOfDay:  rec.StartTime.Hour(),
	}

	f.AvgPaceSPerKm = CalculatePace(f.DistanceM, f.DurationS, 1000)
	f.DistanceCategory, _, _ = GetMatchingRaceCategory(f.DistanceM)

	noise := opts.ElevationNoiseM
	if noise <= 0 {
		noise = DefaultElevationNoise
	}
	f.ElevationGainM, f.ElevationLossM = elevationChange(rec.Samples, noise)
	f.GradeAdjustedPaceSPerKm = gradeAdjustedPace(rec.Samples, f.DurationS, f.AvgPaceSPerKm)

	for _, d := range opts.Durations {
		if effort := FindBestEffort(rec.Samples, float64(d)); effort != nil {
			f.BestSpeed[d] = effort.Speed()
		}
	}

	if t, ok := meanTemperature(rec.Samples); ok {
		f.TemperatureC = &t
	}

	if avg := averageHR(rec.Samples); avg > 0 {
		zones := opts.Zones
		if zones.MaxHR == 0 {
			zones = DefaultZones()
		}
		f.AvgHeartrate = &avg
		if ef := EfficiencyFactor(rec.Samples); ef > 0 {
			f.EfficiencyFactor = &ef
		}
		if dc := AerobicDecoupling(rec.Samples); dc != 0 {
			f.AerobicDecoupling = &dc
		}
		trimp := TRIMP(f.DurationS, avg, zones)
		f.TRIMP = &trimp
	}

	return f
}

// TimeOfDayBucket buckets a start time into morning, afternoon, evening or night.
func TimeOfDayBucket(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 21:
		return "evening"
	default:
		return "night"
	}
}

// elevationChange accumulates gain and loss once the change from the last
// reference point exceeds the noise threshold.
func elevationChange(samples []ingest.Sample, noise float64) (gain, loss float64) {
	var ref float64
	haveRef := false
	for _, s := range samples {
		if s.ElevationM == nil {
			continue
		}
		e := *s.ElevationM
		if !haveRef {
			ref, haveRef = e, true
			continue
		}
		switch diff := e - ref; {
		case diff >= noise:
			gain += diff
			ref = e
		case diff <= -noise:
			loss -= diff
			ref = e
		}
	}
	return gain, loss
}

// gradeAdjustedPace weights each step's distance by the effort cost of its
// grade. Without elevation it equals the average pace.
func gradeAdjustedPace(samples []ingest.Sample, duration, avgPace float64) float64 {
	var adjusted float64
	haveGrade := false
	for i := 1; i < len(samples); i++ {
		dd := samples[i].DistanceM - samples[i-1].DistanceM
		if dd <= 0 {
			continue
		}
		factor := 1.0
		if samples[i].ElevationM != nil && samples[i-1].ElevationM != nil {
			grade := (*samples[i].ElevationM - *samples[i-1].ElevationM) / dd
			factor = math.Min(math.Max(1+GradeCostFactor*grade, 0.5), 3.0)
			haveGrade = true
		}
		adjusted += dd * factor
	}
	if !haveGrade || adjusted <= 0 {
		return avgPace
	}
	return CalculatePace(adjusted, duration, 1000)
}

func meanTemperature(samples []ingest.Sample) (float64, bool) {
	var total float64
	var count int
	for _, s := range samples {
		if s.TemperatureC != nil {
			total += *s.TemperatureC
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}

// FeatureColumns names the flat feature vector produced by Vector.
func FeatureColumns(durations []int) []string {
	cols := []string{
		"duration_s", "distance_m", "elevation_gain_m", "elevation_loss_m",
		"avg_pace_s_per_km", "gap_s_per_km",
	}
	for _, d := range sortedDurations(durations) {
		cols = append(cols, fmt.Sprintf("best_speed_%ds", d))
	}
	return append(cols,
		"temperature_c", "hour_of_day", "day_of_week",
		"avg_hr", "efficiency_factor", "aerobic_decoupling", "trimp",
	)
}

// Vector flattens the features in FeatureColumns order. Unobserved values,
// including buckets longer than the activity, are NaN rather than zero.
func (f Features) Vector(durations []int) []float64 {
	v := []float64{
		f.DurationS, f.DistanceM, f.ElevationGainM, f.ElevationLossM,
		f.AvgPaceSPerKm, f.GradeAdjustedPaceSPerKm,
	}
	for _, d := range sortedDurations(durations) {
		if s, ok := f.BestSpeed[d]; ok {
			v = append(v, s)
		} else {
			v = append(v, math.NaN())
		}
	}
	return append(v,
		orNaN(f.TemperatureC), float64(f.HourOfDay), float64(f.DayOfWeek),
		orNaN(f.AvgHeartrate), orNaN(f.EfficiencyFactor), orNaN(f.AerobicDecoupling), orNaN(f.TRIMP),
	)
}

func sortedDurations(durations []int) []int {
	out := append([]int(nil), durations...)
	sort.Ints(out)
	return out
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
