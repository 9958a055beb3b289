package service

import (
	"path/filepath"

	"racecurve/internal/analysis"
	"racecurve/internal/export"
	"racecurve/internal/report"
)

// ExportTables flattens report data for the exporter. Per-athlete error
// statistics are recomputed from the validation rows.
func ExportTables(d report.Data) export.Tables {
	byAthlete := make(map[string][]analysis.ValidationResult)
	for _, v := range d.Validations {
		byAthlete[v.AthleteID] = append(byAthlete[v.AthleteID], ValidationFromRow(v))
	}
	perAthlete := make(map[string]analysis.ErrorStats, len(byAthlete))
	for id, results := range byAthlete {
		perAthlete[id] = analysis.Summarize(results)
	}

	return export.Tables{
		Curves:      d.Curves,
		Predictions: d.Predictions,
		Validations: d.Validations,
		Coverage:    d.Coverage,
		Cohort:      d.Cohort,
		PerAthlete:  perAthlete,
	}
}

// ExportRun writes a live run's tables under dir/<run id>, including the
// per-activity feature tables that are not persisted.
func ExportRun(dir, format string, result *RunResult) ([]string, error) {
	runDir := filepath.Join(dir, result.RunID)
	paths, err := export.Write(runDir, format, ExportTables(ReportData(result)))
	if err != nil {
		return paths, err
	}

	var features []analysis.Features
	for _, prof := range result.Profiles {
		features = append(features, prof.Features...)
	}
	more, err := export.WriteFeatures(runDir, format, features)
	return append(paths, more...), err
}
