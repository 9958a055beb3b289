// Package report renders a pipeline run as styled terminal text.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"racecurve/internal/analysis"
	"racecurve/internal/store"
)

// Data is everything a report shows. It is built from a fresh run or loaded
// back from the store.
type Data struct {
	RunID       string
	StartedAt   time.Time
	Summary     *analysis.ActivitySummary
	Curves      []store.CurveRow
	Predictions []store.PredictionRow
	Validations []store.ValidationRow
	Stages      []store.AthleteStageRow
	Coverage    []store.StageCoverageRow
	Cohort      analysis.ErrorStats
}

// Render writes the report.
func Render(w io.Writer, d Data, u Units) error {
	sections := []string{
		headerStyle.Render("racecurve run " + d.RunID),
	}
	if !d.StartedAt.IsZero() {
		sections = append(sections, mutedStyle.Render(d.StartedAt.Local().Format("Jan 02, 2006 15:04")))
	}
	if d.Summary != nil {
		sections = append(sections, renderSummary(*d.Summary, u))
	}
	sections = append(sections,
		renderCoverage(d.Coverage),
		renderCurves(d.Curves, u),
		renderCurveChart(d.Curves),
		renderPredictions(d.Predictions, u),
		renderValidation(d.Validations, d.Cohort),
		renderFailures(d.Stages),
	)

	var out []string
	for _, s := range sections {
		if s != "" {
			out = append(out, s)
		}
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, out...))
	return err
}

func renderSummary(s analysis.ActivitySummary, u Units) string {
	if s.TotalActivities == 0 {
		return ""
	}
	lines := []string{
		titleStyle.Render("Activities"),
		RenderMetric("Athletes", fmt.Sprintf("%d", s.TotalAthletes)),
		RenderMetric("Activities", fmt.Sprintf("%d", s.TotalActivities)),
		RenderMetric("Total distance", u.FormatDistance(s.TotalDistanceKm*metersPerKm)),
		RenderMetric("Total time", fmt.Sprintf("%.1f h", s.TotalTimeHours)),
		RenderMetric("Average distance", u.FormatDistance(s.AvgDistanceKm*metersPerKm)),
		RenderMetric("Average pace", u.FormatPace(s.AvgPaceSPerKm, metersPerKm)),
		RenderMetric("HR coverage", fmt.Sprintf("%.0f%% (%s)", 100*s.AvgHRCoverage, analysis.DataQualityDescription(s.AvgHRCoverage))),
	}
	if !s.First.IsZero() {
		lines = append(lines, RenderMetric("Date range",
			s.First.Format("Jan 02, 2006")+" - "+s.Last.Format("Jan 02, 2006")))
	}
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderCoverage(coverage []store.StageCoverageRow) string {
	if len(coverage) == 0 {
		return ""
	}
	rows := append([]store.StageCoverageRow(nil), coverage...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	lines := []string{titleStyle.Render("Stage coverage")}
	for _, c := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
			metricLabelStyle.Render(c.Stage),
			RenderProgressBar(c.Fraction, 30),
			metricValueStyle.Render(fmt.Sprintf(" %3.0f%%", 100*c.Fraction)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderCurves(curves []store.CurveRow, u Units) string {
	if len(curves) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(curves))
	for _, c := range curves {
		k := "-"
		if c.K != nil {
			k = fmt.Sprintf("%.1f", *c.K)
		}
		converged := successStyle.Render("yes")
		if !c.Converged {
			converged = warningStyle.Render("no")
		}
		rows = append(rows, []string{
			c.AthleteID,
			fmt.Sprintf("%.2f", c.CS),
			u.FormatSpeed(c.CS),
			fmt.Sprintf("%.0f", c.DPrime),
			k,
			fmt.Sprintf("%.3f", c.RobustR2),
			fmt.Sprintf("%.1f", c.VO2),
			converged,
		})
	}
	return titleStyle.Render("Performance curves") + "\n" +
		renderTable([]string{"Athlete", "CS m/s", "CS pace", "D' m", "k s", "R²", "VO2", "Converged"}, rows)
}

func renderPredictions(preds []store.PredictionRow, u Units) string {
	if len(preds) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(preds))
	for _, p := range preds {
		race := analysis.GetTargetLabel(p.Race)
		if p.RaceDate != "" {
			race += " " + mutedStyle.Render(p.RaceDate)
		}
		var flags []string
		if p.OutOfDomain {
			flags = append(flags, "out of domain")
		}
		if p.UnconvergedCurve {
			flags = append(flags, "unconverged")
		}
		for _, a := range p.Adjustments {
			flags = append(flags, a.Name)
		}
		rows = append(rows, []string{
			p.AthleteID,
			race,
			FormatDuration(p.PredictedSeconds),
			FormatDuration(p.LowerSeconds) + " - " + FormatDuration(p.UpperSeconds),
			u.FormatPace(p.PredictedSeconds, p.DistanceM),
			confidenceStyle(p.Confidence).Render(p.Confidence),
			strings.Join(flags, ", "),
		})
	}
	return titleStyle.Render("Predictions") + "\n" +
		renderTable([]string{"Athlete", "Race", "Time", "Interval", "Pace", "Confidence", "Notes"}, rows)
}

func renderValidation(vals []store.ValidationRow, cohort analysis.ErrorStats) string {
	if len(vals) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(vals))
	for _, v := range vals {
		inside := successStyle.Render("yes")
		if !v.InInterval {
			inside = errorStyle.Render("no")
		}
		rows = append(rows, []string{
			v.AthleteID,
			v.Race + " " + mutedStyle.Render(v.RaceDate),
			FormatDuration(v.PredictedSeconds),
			FormatDuration(v.ActualSeconds),
			fmt.Sprintf("%+.1f%%", v.PctError),
			inside,
			fmt.Sprintf("%.0f / %.0f", v.ActualPercentile, v.PredictedPercentile),
		})
	}

	stats := cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		RenderMetric("Races validated", fmt.Sprintf("%d", cohort.Count)),
		RenderMetric("Median abs error", fmt.Sprintf("%.2f%%", cohort.MdAPE)),
		RenderMetric("Mean abs error", fmt.Sprintf("%.2f%%", cohort.MAPE)),
		RenderMetric("Bias", fmt.Sprintf("%+.2f%% (%+.0f s)", cohort.BiasPct, cohort.BiasSeconds)),
		RenderMetric("Interval coverage", fmt.Sprintf("%.0f%% of nominal %.0f%%", 100*cohort.Coverage, 100*cohort.NominalCoverage)),
	))

	return titleStyle.Render("Validation") + "\n" +
		renderTable([]string{"Athlete", "Race", "Predicted", "Actual", "Error", "In interval", "Pctl act/pred"}, rows) +
		"\n" + stats
}

func renderFailures(stages []store.AthleteStageRow) string {
	var lines []string
	for _, s := range stages {
		if s.Failure == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			metricValueStyle.Render(s.AthleteID),
			mutedStyle.Render("stopped at "+s.Stage+":"),
			errorStyle.Render(s.Failure)))
	}
	if len(lines) == 0 {
		return ""
	}
	return titleStyle.Render("Failures") + "\n" + strings.Join(lines, "\n")
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableRowStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
