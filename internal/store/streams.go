package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"racecurve/internal/ingest"
)

func insertSamples(ctx context.Context, tx *sql.Tx, a ingest.RawActivity) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (
			athlete_id, activity_id, seq, timestamp, elapsed_s,
			distance, elevation, heartrate, speed, temperature_c
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return eris.Wrap(err, "preparing sample insert")
	}
	defer stmt.Close()

	for i, s := range a.Samples {
		if _, err := stmt.ExecContext(ctx,
			a.AthleteID, a.ActivityID, i, formatTime(s.Timestamp), s.Elapsed,
			s.Distance, s.Elevation, s.Heartrate, s.Speed, s.Temperature,
		); err != nil {
			return eris.Wrapf(err, "inserting sample %d of %s", i, a.ActivityID)
		}
	}
	return nil
}

// getSamples returns the raw samples of an activity in insertion order.
func (db *DB) getSamples(ctx context.Context, athleteID, activityID string) ([]ingest.RawSample, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT timestamp, elapsed_s, distance, elevation, heartrate, speed, temperature_c
		FROM samples
		WHERE athlete_id = ? AND activity_id = ?
		ORDER BY seq
	`, athleteID, activityID)
	if err != nil {
		return nil, eris.Wrapf(err, "querying samples for %s", activityID)
	}
	defer rows.Close()

	var samples []ingest.RawSample
	for rows.Next() {
		var ts sql.NullString
		var elapsed, dist, elev, hr, speed, temp sql.NullFloat64
		if err := rows.Scan(&ts, &elapsed, &dist, &elev, &hr, &speed, &temp); err != nil {
			return nil, eris.Wrap(err, "scanning sample")
		}
		samples = append(samples, ingest.RawSample{
			Timestamp:   parseTime(ts),
			Elapsed:     nullFloat(elapsed),
			Distance:    nullFloat(dist),
			Elevation:   nullFloat(elev),
			Heartrate:   nullFloat(hr),
			Speed:       nullFloat(speed),
			Temperature: nullFloat(temp),
		})
	}
	return samples, eris.Wrap(rows.Err(), "querying samples")
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
