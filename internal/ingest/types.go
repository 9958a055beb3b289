// Package ingest turns raw, irregularly sampled activity streams into
// canonical activity records on a uniform time grid.
package ingest

import (
	"time"
)

// Unit conversions
const (
	MetersPerKilometer = 1000.0
	MetersPerMile      = 1609.344
	MetersPerFoot      = 0.3048
)

// Units names the units of a raw activity's distance and elevation columns.
// Empty values mean metres.
type Units struct {
	Distance  string // m, km or mi
	Elevation string // m or ft
}

// RawSample is one observation as delivered by a source. Time is given either
// as an absolute timestamp or as elapsed seconds; every channel is optional.
type RawSample struct {
	Timestamp   time.Time
	Elapsed     *float64
	Distance    *float64
	Elevation   *float64
	Heartrate   *float64
	Speed       *float64 // m/s, used when Distance is missing
	Temperature *float64
}

// RawActivity is an activity before normalization.
type RawActivity struct {
	AthleteID  string
	ActivityID string
	StartTime  time.Time
	Source     string
	Units      Units
	Samples    []RawSample
}

// Sample is one point of a normalized stream.
type Sample struct {
	ElapsedS     float64
	DistanceM    float64
	ElevationM   *float64
	Heartrate    *float64
	PaceSPerKm   *float64
	TemperatureC *float64
}

// ActivityRecord is a normalized activity: elapsed time strictly increasing,
// distance non-decreasing, samples on a uniform grid of StepS seconds.
// Records are never mutated after normalization.
type ActivityRecord struct {
	AthleteID       string
	ActivityID      string
	StartTime       time.Time
	Source          string
	StepS           float64
	Samples         []Sample
	ObservedSamples int
	HRCoverage      float64
}

// Duration returns the elapsed time of the last sample.
func (r ActivityRecord) Duration() float64 {
	if len(r.Samples) == 0 {
		return 0
	}
	return r.Samples[len(r.Samples)-1].ElapsedS
}

// Distance returns the cumulative distance of the last sample.
func (r ActivityRecord) Distance() float64 {
	if len(r.Samples) == 0 {
		return 0
	}
	return r.Samples[len(r.Samples)-1].DistanceM
}

// HasHeartrate reports whether any sample carries heart rate.
func (r ActivityRecord) HasHeartrate() bool {
	return r.HRCoverage > 0
}

// DroppedRecord reports an activity excluded from the batch and why.
type DroppedRecord struct {
	AthleteID  string
	ActivityID string
	Err        error
}

func ptr(v float64) *float64 {
	return &v
}
