package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

// SaveAthleteStages records how far each athlete got in a run.
func (db *DB) SaveAthleteStages(ctx context.Context, runID string, stages []AthleteStageRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	for _, s := range stages {
		var failure any
		if s.Failure != "" {
			failure = s.Failure
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO athlete_stages (run_id, athlete_id, stage, activities, dropped, failure)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, athlete_id) DO UPDATE SET
				stage = excluded.stage,
				activities = excluded.activities,
				dropped = excluded.dropped,
				failure = excluded.failure
		`, runID, s.AthleteID, s.Stage, s.Activities, s.Dropped, failure); err != nil {
			return eris.Wrapf(err, "saving stage for %s", s.AthleteID)
		}
	}

	return eris.Wrap(tx.Commit(), "commit athlete stages")
}

// GetAthleteStages returns per-athlete stages of a run.
func (db *DB) GetAthleteStages(ctx context.Context, runID string) ([]AthleteStageRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, athlete_id, stage, activities, dropped, failure
		FROM athlete_stages
		WHERE run_id = ?
		ORDER BY athlete_id
	`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "querying stages for run %s", runID)
	}
	defer rows.Close()

	var stages []AthleteStageRow
	for rows.Next() {
		var s AthleteStageRow
		var failure sql.NullString
		if err := rows.Scan(&s.RunID, &s.AthleteID, &s.Stage, &s.Activities, &s.Dropped, &failure); err != nil {
			return nil, eris.Wrap(err, "scanning athlete stage")
		}
		s.Failure = failure.String
		stages = append(stages, s)
	}
	return stages, eris.Wrap(rows.Err(), "querying athlete stages")
}

// SaveStageCoverage stores the fraction of athletes reaching each stage.
func (db *DB) SaveStageCoverage(ctx context.Context, runID string, coverage []StageCoverageRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	for _, c := range coverage {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stage_coverage (run_id, stage, position, fraction)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, stage) DO UPDATE SET
				position = excluded.position,
				fraction = excluded.fraction
		`, runID, c.Stage, c.Position, c.Fraction); err != nil {
			return eris.Wrapf(err, "saving coverage for %s", c.Stage)
		}
	}

	return eris.Wrap(tx.Commit(), "commit stage coverage")
}

// GetStageCoverage returns the stage coverage of a run in pipeline order.
func (db *DB) GetStageCoverage(ctx context.Context, runID string) ([]StageCoverageRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, stage, position, fraction
		FROM stage_coverage
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "querying stage coverage for run %s", runID)
	}
	defer rows.Close()

	var coverage []StageCoverageRow
	for rows.Next() {
		var c StageCoverageRow
		if err := rows.Scan(&c.RunID, &c.Stage, &c.Position, &c.Fraction); err != nil {
			return nil, eris.Wrap(err, "scanning stage coverage")
		}
		coverage = append(coverage, c)
	}
	return coverage, eris.Wrap(rows.Err(), "querying stage coverage")
}
