package service

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"racecurve/internal/analysis"
	"racecurve/internal/store"
)

// Persist writes a finished run to the store: curves, predictions,
// validations, per-athlete stages and stage coverage.
func Persist(ctx context.Context, db *store.DB, result *RunResult, configYAML string) error {
	if _, err := db.StartRun(ctx, result.RunID, len(result.Profiles), configYAML); err != nil {
		return err
	}

	if err := persistResults(ctx, db, result); err != nil {
		if ferr := db.FinishRun(ctx, result.RunID, store.RunStatusFailed); ferr != nil {
			zap.L().Error("marking run failed", zap.String("run", result.RunID), zap.Error(ferr))
		}
		return err
	}

	return db.FinishRun(ctx, result.RunID, store.RunStatusCompleted)
}

func persistResults(ctx context.Context, db *store.DB, result *RunResult) error {
	stages := make([]store.AthleteStageRow, 0, len(result.Profiles))
	for _, prof := range result.Profiles {
		if prof.Curve != nil {
			if err := db.SaveCurve(ctx, curveRow(result.RunID, prof.Curve)); err != nil {
				return err
			}
		}
		if len(prof.Predictions) > 0 {
			rows := make([]store.PredictionRow, len(prof.Predictions))
			for i, p := range prof.Predictions {
				rows[i] = predictionRow(result.RunID, p)
			}
			if err := db.SavePredictions(ctx, result.RunID, prof.AthleteID, rows); err != nil {
				return err
			}
		}
		stages = append(stages, stageRow(result.RunID, prof))
	}
	if err := db.SaveAthleteStages(ctx, result.RunID, stages); err != nil {
		return err
	}

	if result.Report == nil {
		return eris.New("run has no cohort report")
	}
	validations := make([]store.ValidationRow, len(result.Report.Results))
	for i, v := range result.Report.Results {
		validations[i] = validationRow(result.RunID, v)
	}
	if err := db.SaveValidations(ctx, result.RunID, validations); err != nil {
		return err
	}

	return db.SaveStageCoverage(ctx, result.RunID, coverageRows(result.RunID, result.Report.StageCoverage))
}

func curveRow(runID string, c *analysis.PerformanceCurve) store.CurveRow {
	row := store.CurveRow{
		RunID:         runID,
		AthleteID:     c.AthleteID,
		Family:        string(c.Family),
		Loss:          string(c.Loss),
		CS:            c.CriticalSpeed(),
		DPrime:        c.DPrime(),
		Covariance:    c.Covariance,
		ResidualScale: c.ResidualScale,
		RobustR2:      c.RobustR2,
		Iterations:    c.Iterations,
		Converged:     c.Converged,
		MinDurationS:  c.MinDurationS,
		MaxDurationS:  c.MaxDurationS,
		VO2:           c.VO2,
		VO2Model:      c.VO2Model,
	}
	if k, ok := c.Param(analysis.ParamK); ok {
		row.K = &k.Value
	}
	for _, p := range c.Params {
		row.Params = append(row.Params, store.ParamRow{
			Name:   p.Name,
			Value:  p.Value,
			StdErr: p.StdErr,
			Lower:  p.Lower,
			Upper:  p.Upper,
		})
	}
	return row
}

func predictionRow(runID string, p analysis.RacePrediction) store.PredictionRow {
	row := store.PredictionRow{
		RunID:            runID,
		AthleteID:        p.AthleteID,
		Race:             p.Race,
		RaceDate:         p.Key().Date,
		DistanceM:        p.DistanceM,
		BaseSeconds:      p.BaseSeconds,
		PredictedSeconds: p.PredictedSeconds,
		LowerSeconds:     p.LowerSeconds,
		UpperSeconds:     p.UpperSeconds,
		PaceSPerKm:       p.PaceSPerKm,
		IntervalMethod:   p.IntervalMethod,
		IntervalLevel:    p.IntervalLevel,
		VDOT:             p.VDOT,
		ReferenceSeconds: p.ReferenceSeconds,
		Confidence:       p.Confidence,
		ConfidenceScore:  p.ConfidenceScore,
		OutOfDomain:      p.OutOfDomain,
		UnconvergedCurve: p.UnconvergedCurve,
	}
	for _, a := range p.Adjustments {
		row.Adjustments = append(row.Adjustments, store.AdjustmentRow{
			Name:         a.Name,
			DeltaSeconds: a.DeltaSeconds,
			Factor:       a.Factor,
		})
	}
	return row
}

func validationRow(runID string, v analysis.ValidationResult) store.ValidationRow {
	return store.ValidationRow{
		RunID:               runID,
		AthleteID:           v.AthleteID,
		Race:                v.Race,
		RaceDate:            v.Date,
		DistanceM:           v.DistanceM,
		PredictedSeconds:    v.PredictedSeconds,
		ActualSeconds:       v.ActualSeconds,
		LowerSeconds:        v.LowerSeconds,
		UpperSeconds:        v.UpperSeconds,
		IntervalLevel:       v.IntervalLevel,
		ErrorSeconds:        v.ErrorSeconds,
		PctError:            v.PctError,
		InInterval:          v.InInterval,
		ActualPercentile:    v.ActualPercentile,
		PredictedPercentile: v.PredictedPercentile,
	}
}

// ValidationFromRow rebuilds the fields of a validation result that Summarize
// needs from a stored row.
func ValidationFromRow(row store.ValidationRow) analysis.ValidationResult {
	return analysis.ValidationResult{
		AthleteID:           row.AthleteID,
		Race:                row.Race,
		Date:                row.RaceDate,
		DistanceM:           row.DistanceM,
		PredictedSeconds:    row.PredictedSeconds,
		ActualSeconds:       row.ActualSeconds,
		LowerSeconds:        row.LowerSeconds,
		UpperSeconds:        row.UpperSeconds,
		IntervalLevel:       row.IntervalLevel,
		ErrorSeconds:        row.ErrorSeconds,
		AbsErrorSeconds:     math.Abs(row.ErrorSeconds),
		PctError:            row.PctError,
		AbsPctError:         math.Abs(row.PctError),
		InInterval:          row.InInterval,
		ActualPercentile:    row.ActualPercentile,
		PredictedPercentile: row.PredictedPercentile,
	}
}

func stageRow(runID string, prof *AthleteProfile) store.AthleteStageRow {
	row := store.AthleteStageRow{
		RunID:      runID,
		AthleteID:  prof.AthleteID,
		Stage:      prof.Stage.String(),
		Activities: len(prof.Records),
		Dropped:    len(prof.Dropped),
	}
	if prof.Err != nil {
		row.Failure = prof.Err.Error()
	}
	return row
}

func coverageRows(runID string, coverage map[string]float64) []store.StageCoverageRow {
	rows := make([]store.StageCoverageRow, 0, len(Stages))
	for _, s := range Stages {
		if f, ok := coverage[s.String()]; ok {
			rows = append(rows, store.StageCoverageRow{
				RunID:    runID,
				Stage:    s.String(),
				Position: int(s),
				Fraction: f,
			})
		}
	}
	return rows
}
