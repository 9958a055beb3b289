package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// SaveCurve stores a fitted curve for a run.
func (db *DB) SaveCurve(ctx context.Context, c CurveRow) error {
	params, err := json.Marshal(c.Params)
	if err != nil {
		return eris.Wrap(err, "encoding params")
	}
	cov, err := json.Marshal(c.Covariance)
	if err != nil {
		return eris.Wrap(err, "encoding covariance")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO curves (
			run_id, athlete_id, family, loss, cs, d_prime, k, params, covariance,
			residual_scale, robust_r2, iterations, converged,
			min_duration_s, max_duration_s, vo2, vo2_model
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, athlete_id) DO UPDATE SET
			family = excluded.family,
			loss = excluded.loss,
			cs = excluded.cs,
			d_prime = excluded.d_prime,
			k = excluded.k,
			params = excluded.params,
			covariance = excluded.covariance,
			residual_scale = excluded.residual_scale,
			robust_r2 = excluded.robust_r2,
			iterations = excluded.iterations,
			converged = excluded.converged,
			min_duration_s = excluded.min_duration_s,
			max_duration_s = excluded.max_duration_s,
			vo2 = excluded.vo2,
			vo2_model = excluded.vo2_model
	`,
		c.RunID, c.AthleteID, c.Family, c.Loss, c.CS, c.DPrime, c.K, string(params), string(cov),
		c.ResidualScale, c.RobustR2, c.Iterations, boolToInt(c.Converged),
		c.MinDurationS, c.MaxDurationS, c.VO2, c.VO2Model,
	)
	return eris.Wrapf(err, "saving curve for %s", c.AthleteID)
}

// GetCurves returns the curves of a run ordered by athlete.
func (db *DB) GetCurves(ctx context.Context, runID string) ([]CurveRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, athlete_id, family, loss, cs, d_prime, k, params, covariance,
			residual_scale, robust_r2, iterations, converged,
			min_duration_s, max_duration_s, vo2, vo2_model
		FROM curves
		WHERE run_id = ?
		ORDER BY athlete_id
	`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "querying curves for run %s", runID)
	}
	defer rows.Close()

	var curves []CurveRow
	for rows.Next() {
		var c CurveRow
		var k sql.NullFloat64
		var params, cov string
		var converged int
		if err := rows.Scan(&c.RunID, &c.AthleteID, &c.Family, &c.Loss, &c.CS, &c.DPrime, &k,
			&params, &cov, &c.ResidualScale, &c.RobustR2, &c.Iterations, &converged,
			&c.MinDurationS, &c.MaxDurationS, &c.VO2, &c.VO2Model); err != nil {
			return nil, eris.Wrap(err, "scanning curve")
		}
		if err := json.Unmarshal([]byte(params), &c.Params); err != nil {
			return nil, eris.Wrapf(err, "decoding params for %s", c.AthleteID)
		}
		if err := json.Unmarshal([]byte(cov), &c.Covariance); err != nil {
			return nil, eris.Wrapf(err, "decoding covariance for %s", c.AthleteID)
		}
		c.K = nullFloat(k)
		c.Converged = converged == 1
		curves = append(curves, c)
	}
	return curves, eris.Wrap(rows.Err(), "querying curves")
}
