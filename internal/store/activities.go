package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"racecurve/internal/ingest"
)

// SaveRawActivity replaces an activity and its samples.
func (db *DB) SaveRawActivity(ctx context.Context, a ingest.RawActivity) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM activities WHERE athlete_id = ? AND activity_id = ?
	`, a.AthleteID, a.ActivityID); err != nil {
		return eris.Wrapf(err, "clearing activity %s", a.ActivityID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activities (
			athlete_id, activity_id, source, start_time,
			distance_unit, elevation_unit, sample_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.AthleteID, a.ActivityID, a.Source, formatTime(a.StartTime),
		unitOrMeters(a.Units.Distance), unitOrMeters(a.Units.Elevation), len(a.Samples),
	); err != nil {
		return eris.Wrapf(err, "inserting activity %s", a.ActivityID)
	}

	if err := insertSamples(ctx, tx, a); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "commit activity")
}

// SaveRawActivities saves a batch of activities, stopping at the first error.
func (db *DB) SaveRawActivities(ctx context.Context, activities []ingest.RawActivity) error {
	for _, a := range activities {
		if err := db.SaveRawActivity(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// ListAthletes returns the ids of every athlete with at least one activity.
func (db *DB) ListAthletes(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT athlete_id FROM activities ORDER BY athlete_id
	`)
	if err != nil {
		return nil, eris.Wrap(err, "listing athletes")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "scanning athlete")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "listing athletes")
}

// ListActivities returns activity headers for an athlete, oldest first.
func (db *DB) ListActivities(ctx context.Context, athleteID string) ([]Activity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT athlete_id, activity_id, source, start_time,
			distance_unit, elevation_unit, sample_count
		FROM activities
		WHERE athlete_id = ?
		ORDER BY start_time, activity_id
	`, athleteID)
	if err != nil {
		return nil, eris.Wrapf(err, "listing activities for %s", athleteID)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		var start sql.NullString
		if err := rows.Scan(&a.AthleteID, &a.ActivityID, &a.Source, &start,
			&a.DistanceUnit, &a.ElevationUnit, &a.SampleCount); err != nil {
			return nil, eris.Wrap(err, "scanning activity")
		}
		a.StartTime = parseTime(start)
		activities = append(activities, a)
	}
	return activities, eris.Wrap(rows.Err(), "listing activities")
}

// GetRawActivities loads every activity of an athlete with its samples.
func (db *DB) GetRawActivities(ctx context.Context, athleteID string) ([]ingest.RawActivity, error) {
	headers, err := db.ListActivities(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	activities := make([]ingest.RawActivity, 0, len(headers))
	for _, h := range headers {
		samples, err := db.getSamples(ctx, h.AthleteID, h.ActivityID)
		if err != nil {
			return nil, err
		}
		activities = append(activities, ingest.RawActivity{
			AthleteID:  h.AthleteID,
			ActivityID: h.ActivityID,
			StartTime:  h.StartTime,
			Source:     h.Source,
			Units:      ingest.Units{Distance: h.DistanceUnit, Elevation: h.ElevationUnit},
			Samples:    samples,
		})
	}
	return activities, nil
}

// CountActivities returns the number of stored activities.
func (db *DB) CountActivities(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n)
	return n, eris.Wrap(err, "counting activities")
}

func unitOrMeters(u string) string {
	if u == "" {
		return "m"
	}
	return u
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
