package service

import (
	"context"
	"time"

	"racecurve/internal/analysis"
	"racecurve/internal/report"
	"racecurve/internal/store"
)

// ReportData turns a finished run into report input.
func ReportData(result *RunResult) report.Data {
	d := report.Data{RunID: result.RunID, StartedAt: result.StartedAt}

	var features []analysis.Features
	for _, prof := range result.Profiles {
		features = append(features, prof.Features...)
		if prof.Curve != nil {
			d.Curves = append(d.Curves, curveRow(result.RunID, prof.Curve))
		}
		for _, p := range prof.Predictions {
			d.Predictions = append(d.Predictions, predictionRow(result.RunID, p))
		}
		d.Stages = append(d.Stages, stageRow(result.RunID, prof))
	}
	summary := analysis.SummarizeActivities(features, time.Time{})
	d.Summary = &summary

	if result.Report != nil {
		for _, v := range result.Report.Results {
			d.Validations = append(d.Validations, validationRow(result.RunID, v))
		}
		d.Coverage = coverageRows(result.RunID, result.Report.StageCoverage)
		d.Cohort = result.Report.Cohort
	}
	return d
}

// LoadReport reads a stored run. An empty runID selects the latest run.
func LoadReport(ctx context.Context, db *store.DB, runID string) (report.Data, error) {
	var run *store.Run
	var err error
	if runID == "" {
		run, err = db.LatestRun(ctx)
	} else {
		run, err = db.GetRun(ctx, runID)
	}
	if err != nil {
		return report.Data{}, err
	}

	d := report.Data{RunID: run.ID, StartedAt: run.StartedAt}
	if d.Curves, err = db.GetCurves(ctx, run.ID); err != nil {
		return d, err
	}
	if d.Predictions, err = db.GetPredictions(ctx, run.ID); err != nil {
		return d, err
	}
	if d.Validations, err = db.GetValidations(ctx, run.ID); err != nil {
		return d, err
	}
	if d.Stages, err = db.GetAthleteStages(ctx, run.ID); err != nil {
		return d, err
	}
	if d.Coverage, err = db.GetStageCoverage(ctx, run.ID); err != nil {
		return d, err
	}

	results := make([]analysis.ValidationResult, len(d.Validations))
	for i, v := range d.Validations {
		results[i] = ValidationFromRow(v)
	}
	d.Cohort = analysis.Summarize(results)
	return d, nil
}
