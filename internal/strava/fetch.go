package strava

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"racecurve/internal/ingest"
)

// SourceName tags activities fetched from the API.
const SourceName = "strava"

// Fetcher downloads the authenticated athlete's runs once and converts them
// into raw activities. There is no polling.
type Fetcher struct {
	client        *Client
	athleteID     string
	maxActivities int
}

// NewFetcher creates a fetcher. When athleteID is empty the id reported by
// Strava on each activity is used.
func NewFetcher(client *Client, athleteID string, maxActivities int) *Fetcher {
	return &Fetcher{client: client, athleteID: athleteID, maxActivities: maxActivities}
}

// Fetch returns runs started after the given time with their streams.
// Activities whose streams fail to download are skipped and logged.
func (f *Fetcher) Fetch(ctx context.Context, after time.Time) ([]ingest.RawActivity, error) {
	activities, err := f.client.GetAllActivities(ctx, after, f.maxActivities, nil)
	if err != nil {
		return nil, err
	}

	var raws []ingest.RawActivity
	for _, a := range activities {
		if !a.IsRun() {
			continue
		}
		streams, err := f.client.GetActivityStreams(ctx, a.ID)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrRateLimited) {
				return raws, err
			}
			zap.L().Warn("skipping activity without streams",
				zap.Int64("activity", a.ID), zap.Error(err))
			continue
		}
		raws = append(raws, f.convert(a, streams))
	}

	zap.L().Info("fetched strava activities",
		zap.Int("listed", len(activities)), zap.Int("runs", len(raws)))
	return raws, nil
}

// convert maps API streams onto raw samples. Time is elapsed seconds and
// distance is metres.
func (f *Fetcher) convert(a Activity, s *Streams) ingest.RawActivity {
	athlete := f.athleteID
	if athlete == "" {
		athlete = strconv.FormatInt(a.Athlete.ID, 10)
	}

	samples := make([]ingest.RawSample, s.Len())
	for i := range samples {
		samples[i] = ingest.RawSample{
			Elapsed:     at(s.Time, i),
			Distance:    at(s.Distance, i),
			Elevation:   at(s.Altitude, i),
			Heartrate:   at(s.Heartrate, i),
			Speed:       at(s.VelocitySmooth, i),
			Temperature: at(s.Temp, i),
		}
	}

	return ingest.RawActivity{
		AthleteID:  athlete,
		ActivityID: strconv.FormatInt(a.ID, 10),
		StartTime:  a.StartDate,
		Source:     SourceName,
		Units:      ingest.Units{Distance: "m", Elevation: "m"},
		Samples:    samples,
	}
}
