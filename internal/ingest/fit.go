package ingest

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tormoder/fit"
)

// ReadFIT decodes a FIT activity file into a raw activity. Invalid channel
// values (the FIT "not present" markers) become nil.
func ReadFIT(r io.Reader, athleteID, activityID string) (RawActivity, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return RawActivity{}, eris.Wrap(err, "ingest: decode FIT file")
	}

	activity, err := decoded.Activity()
	if err != nil {
		return RawActivity{}, eris.Wrap(err, "ingest: activity FIT expected")
	}

	raw := RawActivity{
		AthleteID:  athleteID,
		ActivityID: activityID,
		Source:     "fit",
	}
	if len(activity.Sessions) > 0 {
		raw.StartTime = validTimeOrZero(activity.Sessions[0].StartTime)
	}

	records := make([]*fit.RecordMsg, 0, len(activity.Records))
	for _, rec := range activity.Records {
		if rec != nil && !validTimeOrZero(rec.Timestamp).IsZero() {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	for _, rec := range records {
		raw.Samples = append(raw.Samples, RawSample{
			Timestamp:   rec.Timestamp,
			Distance:    nonNegative(rec.GetDistanceScaled()),
			Elevation:   fitAltitude(rec),
			Heartrate:   fitHeartRate(rec),
			Speed:       fitSpeed(rec),
			Temperature: fitTemperature(rec),
		})
	}
	if raw.StartTime.IsZero() && len(raw.Samples) > 0 {
		raw.StartTime = raw.Samples[0].Timestamp
	}

	return raw, nil
}

// ReadFITFile reads a single FIT file; the activity id is the file name
// without extension.
func ReadFITFile(path, athleteID string) (RawActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawActivity{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, err := ReadFIT(f, athleteID, id)
	if err != nil {
		return RawActivity{}, eris.Wrapf(err, "ingest: %s", path)
	}
	return raw, nil
}

// FITDirAthletes lists athlete ids of a FIT tree laid out as
// <root>/<athlete>/*.fit.
func FITDirAthletes(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", root)
	}
	var athletes []string
	for _, e := range entries {
		if e.IsDir() {
			athletes = append(athletes, e.Name())
		}
	}
	return athletes, nil
}

// ReadFITDir reads every .fit file under <root>/<athlete>. Files that fail to
// decode are returned as errors alongside the activities that did decode.
func ReadFITDir(root, athleteID string) ([]RawActivity, []error, error) {
	dir := filepath.Join(root, athleteID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: read %s", dir)
	}

	var activities []RawActivity
	var failures []error
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".fit") {
			continue
		}
		raw, err := ReadFITFile(filepath.Join(dir, e.Name()), athleteID)
		if err != nil {
			failures = append(failures, eris.Wrap(ErrMalformedRecord, err.Error()))
			continue
		}
		activities = append(activities, raw)
	}
	return activities, failures, nil
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func nonNegative(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	return ptr(v)
}

func fitAltitude(rec *fit.RecordMsg) *float64 {
	if v := rec.GetEnhancedAltitudeScaled(); !math.IsNaN(v) && !math.IsInf(v, 0) {
		return ptr(v)
	}
	if v := rec.GetAltitudeScaled(); !math.IsNaN(v) && !math.IsInf(v, 0) {
		return ptr(v)
	}
	return nil
}

func fitHeartRate(rec *fit.RecordMsg) *float64 {
	if rec.HeartRate == math.MaxUint8 || rec.HeartRate == 0 {
		return nil
	}
	return ptr(float64(rec.HeartRate))
}

func fitSpeed(rec *fit.RecordMsg) *float64 {
	if v := nonNegative(rec.GetEnhancedSpeedScaled()); v != nil {
		return v
	}
	return nonNegative(rec.GetSpeedScaled())
}

func fitTemperature(rec *fit.RecordMsg) *float64 {
	if rec.Temperature == math.MaxInt8 {
		return nil
	}
	return ptr(float64(rec.Temperature))
}
