package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeActivities(t *testing.T) {
	day := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	hr := 150.0
	features := []Features{
		{AthleteID: "a1", StartTime: day, DistanceM: 10000, DurationS: 3000, AvgPaceSPerKm: 300, HourOfDay: 7, AvgHeartrate: &hr},
		{AthleteID: "a1", StartTime: day.AddDate(0, 0, 2), DistanceM: 5000, DurationS: 1200, AvgPaceSPerKm: 240, HourOfDay: 7},
		{AthleteID: "a2", StartTime: day.AddDate(0, 0, 5), DistanceM: 15000, DurationS: 5400, AvgPaceSPerKm: 360, HourOfDay: 18},
		{AthleteID: "a3", StartTime: day.AddDate(0, -6, 0), DistanceM: 8000, DurationS: 2400, AvgPaceSPerKm: 300, HourOfDay: 6},
	}

	s := SummarizeActivities(features, day.AddDate(0, -1, 0))
	assert.Equal(t, 3, s.TotalActivities)
	assert.Equal(t, 2, s.TotalAthletes)
	assert.InDelta(t, 30, s.TotalDistanceKm, 1e-9)
	assert.InDelta(t, 9600.0/3600, s.TotalTimeHours, 1e-9)
	assert.InDelta(t, 10, s.AvgDistanceKm, 1e-9)
	assert.InDelta(t, 300, s.AvgPaceSPerKm, 1e-9)
	assert.InDelta(t, 1.0/3, s.AvgHRCoverage, 1e-9)
	assert.Equal(t, day, s.First)
	assert.Equal(t, day.AddDate(0, 0, 5), s.Last)
	assert.Equal(t, 2, s.ActivitiesByHour[7])
	assert.Equal(t, 1, s.ActivitiesByHour[18])

	all := SummarizeActivities(features, time.Time{})
	assert.Equal(t, 4, all.TotalActivities)
	assert.Equal(t, 3, all.TotalAthletes)

	assert.Equal(t, ActivitySummary{}, SummarizeActivities(nil, time.Time{}))
}

func TestQualityLabels(t *testing.T) {
	assert.Equal(t, "Excellent", DataQualityDescription(0.99))
	assert.Equal(t, "Fair", DataQualityDescription(0.75))
	assert.Equal(t, "Very Poor", DataQualityDescription(0.1))
	assert.Equal(t, "Good aerobic fitness", DecouplingAssessment(4))
	assert.Equal(t, "Aerobic system needs work", DecouplingAssessment(15))
}
