package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"racecurve/internal/ingest"
)

// SaveRaces upserts race entries keyed by (athlete, race, date).
func (db *DB) SaveRaces(ctx context.Context, entries []ingest.RaceEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO races (
				athlete_id, race, date, distance_m,
				elevation_gain_m, elevation_loss_m, temperature_c, actual_seconds
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(athlete_id, race, date) DO UPDATE SET
				distance_m = excluded.distance_m,
				elevation_gain_m = excluded.elevation_gain_m,
				elevation_loss_m = excluded.elevation_loss_m,
				temperature_c = excluded.temperature_c,
				actual_seconds = excluded.actual_seconds
		`,
			e.AthleteID, e.Race, e.Date, e.DistanceM,
			e.ElevationGainM, e.ElevationLossM, e.TemperatureC, e.ActualSeconds,
		); err != nil {
			return eris.Wrapf(err, "saving race %s for %s", e.Race, e.AthleteID)
		}
	}

	return eris.Wrap(tx.Commit(), "commit races")
}

// LoadRaces returns all race entries, ordered by athlete, date and race.
func (db *DB) LoadRaces(ctx context.Context) ([]ingest.RaceEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT athlete_id, race, date, distance_m,
			elevation_gain_m, elevation_loss_m, temperature_c, actual_seconds
		FROM races
		ORDER BY athlete_id, date, race
	`)
	if err != nil {
		return nil, eris.Wrap(err, "querying races")
	}
	defer rows.Close()

	var entries []ingest.RaceEntry
	for rows.Next() {
		var e ingest.RaceEntry
		var gain, loss, temp, actual sql.NullFloat64
		if err := rows.Scan(&e.AthleteID, &e.Race, &e.Date, &e.DistanceM,
			&gain, &loss, &temp, &actual); err != nil {
			return nil, eris.Wrap(err, "scanning race")
		}
		e.ElevationGainM = nullFloat(gain)
		e.ElevationLossM = nullFloat(loss)
		e.TemperatureC = nullFloat(temp)
		e.ActualSeconds = nullFloat(actual)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "querying races")
}
