package analysis

import (
	"time"

	"racecurve/internal/ingest"
)

func floatPtr(f float64) *float64 {
	return &f
}

func makeSample(t, speed, hr float64) ingest.Sample {
	s := ingest.Sample{ElapsedS: t}
	if speed > 0 {
		s.PaceSPerKm = floatPtr(1000 / speed)
	}
	if hr > 0 {
		s.Heartrate = floatPtr(hr)
	}
	return s
}

// steadyRun builds a 1 Hz track at a constant speed.
func steadyRun(seconds int, speed, hr float64) []ingest.Sample {
	samples := make([]ingest.Sample, seconds+1)
	for i := range samples {
		samples[i] = makeSample(float64(i), speed, hr)
		samples[i].DistanceM = float64(i) * speed
	}
	return samples
}

func record(athlete, activity string, start time.Time, samples []ingest.Sample) ingest.ActivityRecord {
	observed := 0
	withHR := 0
	for _, s := range samples {
		observed++
		if s.Heartrate != nil {
			withHR++
		}
	}
	rec := ingest.ActivityRecord{
		AthleteID:       athlete,
		ActivityID:      activity,
		StartTime:       start,
		Source:          "test",
		StepS:           1,
		Samples:         samples,
		ObservedSamples: observed,
	}
	if observed > 0 {
		rec.HRCoverage = float64(withHR) / float64(observed)
	}
	return rec
}
