package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// sampleRow is one line of a samples CSV. Either timestamp or elapsed_s must
// be present; every measurement column may be blank.
type sampleRow struct {
	AthleteID     string   `csv:"athlete_id"`
	ActivityID    string   `csv:"activity_id"`
	Source        string   `csv:"source,omitempty"`
	Timestamp     string   `csv:"timestamp,omitempty"`
	Elapsed       *float64 `csv:"elapsed_s,omitempty"`
	Distance      *float64 `csv:"distance,omitempty"`
	DistanceUnit  string   `csv:"distance_unit,omitempty"`
	Elevation     *float64 `csv:"elevation,omitempty"`
	ElevationUnit string   `csv:"elevation_unit,omitempty"`
	Heartrate     *float64 `csv:"heartrate,omitempty"`
	Speed         *float64 `csv:"speed,omitempty"`
	Temperature   *float64 `csv:"temperature_c,omitempty"`
}

// ReadSamplesCSV reads a long-format samples file (one row per sample) and
// groups rows into activities in order of first appearance.
func ReadSamplesCSV(r io.Reader) ([]RawActivity, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read samples header")
	}

	var activities []RawActivity
	index := make(map[string]int)
	line := 1
	for {
		var row sampleRow
		if err := dec.Decode(&row); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "ingest: decode samples line %d", line+1)
		}
		line++

		if row.AthleteID == "" || row.ActivityID == "" {
			return nil, eris.Errorf("ingest: samples line %d: athlete_id and activity_id are required", line)
		}

		sample := RawSample{
			Elapsed:     row.Elapsed,
			Distance:    row.Distance,
			Elevation:   row.Elevation,
			Heartrate:   row.Heartrate,
			Speed:       row.Speed,
			Temperature: row.Temperature,
		}
		if row.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(row.Timestamp))
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: samples line %d: timestamp", line)
			}
			sample.Timestamp = ts
		}

		key := row.AthleteID + "\x00" + row.ActivityID
		i, ok := index[key]
		if !ok {
			i = len(activities)
			index[key] = i
			activities = append(activities, RawActivity{
				AthleteID:  row.AthleteID,
				ActivityID: row.ActivityID,
				StartTime:  sample.Timestamp,
				Source:     sourceOrDefault(row.Source, "csv"),
				Units:      Units{Distance: row.DistanceUnit, Elevation: row.ElevationUnit},
			})
		}
		activities[i].Samples = append(activities[i].Samples, sample)
	}

	return activities, nil
}

// ReadSamplesFile opens path and reads it with ReadSamplesCSV.
func ReadSamplesFile(path string) ([]RawActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()
	return ReadSamplesCSV(f)
}

// RaceEntry is one row of a races file. ActualSeconds is nil when the race
// has no ground truth yet.
type RaceEntry struct {
	AthleteID      string   `csv:"athlete_id"`
	Race           string   `csv:"race"`
	Date           string   `csv:"date,omitempty"`
	DistanceM      float64  `csv:"distance_m"`
	ElevationGainM *float64 `csv:"elevation_gain_m,omitempty"`
	ElevationLossM *float64 `csv:"elevation_loss_m,omitempty"`
	TemperatureC   *float64 `csv:"temperature_c,omitempty"`
	ActualSeconds  *float64 `csv:"actual_seconds,omitempty"`
}

// ParsedDate returns the race date, zero when blank.
func (e RaceEntry) ParsedDate() (time.Time, error) {
	if strings.TrimSpace(e.Date) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, strings.TrimSpace(e.Date))
}

// ReadRacesCSV reads a races file.
func ReadRacesCSV(r io.Reader) ([]RaceEntry, error) {
	var entries []RaceEntry
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read races header")
	}
	for {
		var e RaceEntry
		if err := dec.Decode(&e); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "ingest: decode race %d", len(entries)+1)
		}
		if e.AthleteID == "" || e.Race == "" {
			return nil, eris.Errorf("ingest: race %d: athlete_id and race are required", len(entries)+1)
		}
		if e.DistanceM <= 0 {
			return nil, eris.Errorf("ingest: race %d (%s): distance_m must be positive", len(entries)+1, e.Race)
		}
		if _, err := e.ParsedDate(); err != nil {
			return nil, eris.Wrapf(err, "ingest: race %d (%s): date", len(entries)+1, e.Race)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReadRacesFile opens path and reads it with ReadRacesCSV.
func ReadRacesFile(path string) ([]RaceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()
	return ReadRacesCSV(f)
}

func sourceOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
