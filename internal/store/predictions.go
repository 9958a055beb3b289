package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// SavePredictions replaces the predictions of a run for one athlete.
func (db *DB) SavePredictions(ctx context.Context, runID, athleteID string, preds []PredictionRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM predictions WHERE run_id = ? AND athlete_id = ?
	`, runID, athleteID); err != nil {
		return eris.Wrap(err, "clearing predictions")
	}

	for _, p := range preds {
		adj, err := json.Marshal(p.Adjustments)
		if err != nil {
			return eris.Wrap(err, "encoding adjustments")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO predictions (
				run_id, athlete_id, race, race_date, distance_m,
				base_seconds, predicted_seconds, lower_seconds, upper_seconds, pace_s_per_km,
				interval_method, interval_level, adjustments, vdot, reference_seconds,
				confidence, confidence_score, out_of_domain, unconverged_curve
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, athleteID, p.Race, p.RaceDate, p.DistanceM,
			p.BaseSeconds, p.PredictedSeconds, p.LowerSeconds, p.UpperSeconds, p.PaceSPerKm,
			p.IntervalMethod, p.IntervalLevel, string(adj), p.VDOT, p.ReferenceSeconds,
			p.Confidence, p.ConfidenceScore, boolToInt(p.OutOfDomain), boolToInt(p.UnconvergedCurve),
		); err != nil {
			return eris.Wrapf(err, "inserting prediction %s for %s", p.Race, athleteID)
		}
	}

	return eris.Wrap(tx.Commit(), "commit predictions")
}

// GetPredictions returns all predictions of a run.
func (db *DB) GetPredictions(ctx context.Context, runID string) ([]PredictionRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, athlete_id, race, race_date, distance_m,
			base_seconds, predicted_seconds, lower_seconds, upper_seconds, pace_s_per_km,
			interval_method, interval_level, adjustments, vdot, reference_seconds,
			confidence, confidence_score, out_of_domain, unconverged_curve
		FROM predictions
		WHERE run_id = ?
		ORDER BY athlete_id, distance_m, race_date, race
	`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "querying predictions for run %s", runID)
	}
	defer rows.Close()

	var preds []PredictionRow
	for rows.Next() {
		var p PredictionRow
		var adj sql.NullString
		var ood, unconverged int
		if err := rows.Scan(&p.RunID, &p.AthleteID, &p.Race, &p.RaceDate, &p.DistanceM,
			&p.BaseSeconds, &p.PredictedSeconds, &p.LowerSeconds, &p.UpperSeconds, &p.PaceSPerKm,
			&p.IntervalMethod, &p.IntervalLevel, &adj, &p.VDOT, &p.ReferenceSeconds,
			&p.Confidence, &p.ConfidenceScore, &ood, &unconverged); err != nil {
			return nil, eris.Wrap(err, "scanning prediction")
		}
		if adj.Valid && adj.String != "" {
			if err := json.Unmarshal([]byte(adj.String), &p.Adjustments); err != nil {
				return nil, eris.Wrapf(err, "decoding adjustments for %s", p.AthleteID)
			}
		}
		p.OutOfDomain = ood == 1
		p.UnconvergedCurve = unconverged == 1
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "querying predictions")
}
