package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

// SaveValidations stores the matched prediction/result pairs of a run.
func (db *DB) SaveValidations(ctx context.Context, runID string, results []ValidationRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM validations WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "clearing validations")
	}

	for _, v := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO validations (
				run_id, athlete_id, race, race_date, distance_m, predicted_seconds, actual_seconds,
				lower_seconds, upper_seconds, interval_level,
				error_seconds, pct_error, in_interval, actual_percentile, predicted_percentile
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, v.AthleteID, v.Race, v.RaceDate, v.DistanceM, v.PredictedSeconds, v.ActualSeconds,
			v.LowerSeconds, v.UpperSeconds, v.IntervalLevel,
			v.ErrorSeconds, v.PctError, boolToInt(v.InInterval), v.ActualPercentile, v.PredictedPercentile,
		); err != nil {
			return eris.Wrapf(err, "inserting validation %s for %s", v.Race, v.AthleteID)
		}
	}

	return eris.Wrap(tx.Commit(), "commit validations")
}

// GetValidations returns the validation rows of a run.
func (db *DB) GetValidations(ctx context.Context, runID string) ([]ValidationRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, athlete_id, race, race_date, distance_m, predicted_seconds, actual_seconds,
			lower_seconds, upper_seconds, interval_level, error_seconds, pct_error, in_interval, actual_percentile, predicted_percentile
		FROM validations
		WHERE run_id = ?
		ORDER BY athlete_id, race_date, race
	`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "querying validations for run %s", runID)
	}
	defer rows.Close()

	var results []ValidationRow
	for rows.Next() {
		var v ValidationRow
		var inInterval int
		var actualPct, predPct sql.NullFloat64
		if err := rows.Scan(&v.RunID, &v.AthleteID, &v.Race, &v.RaceDate, &v.DistanceM, &v.PredictedSeconds,
			&v.ActualSeconds, &v.LowerSeconds, &v.UpperSeconds, &v.IntervalLevel, &v.ErrorSeconds, &v.PctError, &inInterval, &actualPct, &predPct); err != nil {
			return nil, eris.Wrap(err, "scanning validation")
		}
		v.InInterval = inInterval == 1
		v.ActualPercentile = actualPct.Float64
		v.PredictedPercentile = predPct.Float64
		results = append(results, v)
	}
	return results, eris.Wrap(rows.Err(), "querying validations")
}
