package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"
)

func TestReadSamplesCSV(t *testing.T) {
	input := `athlete_id,activity_id,timestamp,elapsed_s,distance,distance_unit,elevation,elevation_unit,heartrate,speed,temperature_c
a1,r1,2025-03-01T07:30:00Z,,0,km,30,ft,140,,12
a1,r1,2025-03-01T07:30:02Z,,0.006,km,31,ft,,,
a2,r9,,0,0,mi,,,,3.1,
a1,r1,2025-03-01T07:30:04Z,,0.012,km,32,ft,142,,12.5
a2,r9,,1,,mi,,,,3.2,
`
	activities, err := ReadSamplesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, activities, 2)

	a1 := activities[0]
	assert.Equal(t, "a1", a1.AthleteID)
	assert.Equal(t, "r1", a1.ActivityID)
	assert.Equal(t, "csv", a1.Source)
	assert.Equal(t, Units{Distance: "km", Elevation: "ft"}, a1.Units)
	assert.Equal(t, time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC), a1.StartTime)
	require.Len(t, a1.Samples, 3)
	assert.Nil(t, a1.Samples[1].Heartrate)
	assert.Nil(t, a1.Samples[1].Temperature)
	require.NotNil(t, a1.Samples[2].Heartrate)
	assert.InDelta(t, 142, *a1.Samples[2].Heartrate, 1e-9)

	a2 := activities[1]
	assert.True(t, a2.StartTime.IsZero())
	require.Len(t, a2.Samples, 2)
	require.NotNil(t, a2.Samples[1].Elapsed)
	assert.Nil(t, a2.Samples[1].Distance)
	require.NotNil(t, a2.Samples[1].Speed)
	assert.InDelta(t, 3.2, *a2.Samples[1].Speed, 1e-9)
}

func TestReadSamplesCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "missing ids",
			input: "athlete_id,activity_id,elapsed_s\n,r1,0\n",
		},
		{
			name:  "bad timestamp",
			input: "athlete_id,activity_id,timestamp\na1,r1,yesterday\n",
		},
		{
			name:  "bad number",
			input: "athlete_id,activity_id,elapsed_s\na1,r1,soon\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSamplesCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReadRacesCSV(t *testing.T) {
	input := `athlete_id,race,date,distance_m,elevation_gain_m,elevation_loss_m,temperature_c,actual_seconds
a1,City 10K,2025-04-12,10000,45,40,18,2520
a2,Spring Half,2025-05-03,21097.5,,,,
`
	entries, err := ReadRacesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "City 10K", entries[0].Race)
	require.NotNil(t, entries[0].ActualSeconds)
	assert.InDelta(t, 2520, *entries[0].ActualSeconds, 1e-9)
	require.NotNil(t, entries[0].ElevationGainM)
	assert.InDelta(t, 45, *entries[0].ElevationGainM, 1e-9)
	date, err := entries[0].ParsedDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC), date)

	assert.Nil(t, entries[1].ActualSeconds)
	assert.Nil(t, entries[1].TemperatureC)
	assert.Nil(t, entries[1].ElevationGainM)

	_, err = ReadRacesCSV(strings.NewReader("athlete_id,race,distance_m\na1,Mystery,0\n"))
	assert.ErrorContains(t, err, "distance_m")

	_, err = ReadRacesCSV(strings.NewReader("athlete_id,race,date,distance_m\na1,Bad Date,12/04/2025,5000\n"))
	assert.Error(t, err)
}

func TestFITChannelValidity(t *testing.T) {
	rec := fit.NewRecordMsg()
	assert.Nil(t, fitHeartRate(rec))
	assert.Nil(t, fitTemperature(rec))
	assert.Nil(t, fitSpeed(rec))
	assert.Nil(t, fitAltitude(rec))
	assert.Nil(t, nonNegative(rec.GetDistanceScaled()))

	rec.HeartRate = 152
	rec.Temperature = 18
	rec.Distance = 123456
	rec.EnhancedSpeed = 3250

	require.NotNil(t, fitHeartRate(rec))
	assert.InDelta(t, 152, *fitHeartRate(rec), 1e-9)
	require.NotNil(t, fitTemperature(rec))
	assert.InDelta(t, 18, *fitTemperature(rec), 1e-9)
	require.NotNil(t, nonNegative(rec.GetDistanceScaled()))
	assert.InDelta(t, 1234.56, *nonNegative(rec.GetDistanceScaled()), 1e-9)
	require.NotNil(t, fitSpeed(rec))
	assert.InDelta(t, 3.25, *fitSpeed(rec), 1e-9)
}
