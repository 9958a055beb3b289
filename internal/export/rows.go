package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"racecurve/internal/analysis"
	"racecurve/internal/store"
)

// CurveRow is one fitted curve with its parameter uncertainty flattened.
type CurveRow struct {
	RunID         string   `json:"run_id" csv:"run_id" parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AthleteID     string   `json:"athlete_id" csv:"athlete_id" parquet:"name=athlete_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Family        string   `json:"family" csv:"family" parquet:"name=family, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Loss          string   `json:"loss" csv:"loss" parquet:"name=loss, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CS            float64  `json:"cs" csv:"cs" parquet:"name=cs, type=DOUBLE"`
	CSStdErr      float64  `json:"cs_std_err" csv:"cs_std_err" parquet:"name=cs_std_err, type=DOUBLE"`
	CSLower       float64  `json:"cs_lower" csv:"cs_lower" parquet:"name=cs_lower, type=DOUBLE"`
	CSUpper       float64  `json:"cs_upper" csv:"cs_upper" parquet:"name=cs_upper, type=DOUBLE"`
	DPrime        float64  `json:"d_prime" csv:"d_prime" parquet:"name=d_prime, type=DOUBLE"`
	DPrimeStdErr  float64  `json:"d_prime_std_err" csv:"d_prime_std_err" parquet:"name=d_prime_std_err, type=DOUBLE"`
	DPrimeLower   float64  `json:"d_prime_lower" csv:"d_prime_lower" parquet:"name=d_prime_lower, type=DOUBLE"`
	DPrimeUpper   float64  `json:"d_prime_upper" csv:"d_prime_upper" parquet:"name=d_prime_upper, type=DOUBLE"`
	K             *float64 `json:"k" csv:"k,omitempty" parquet:"name=k, type=DOUBLE, repetitiontype=OPTIONAL"`
	ResidualScale float64  `json:"residual_scale" csv:"residual_scale" parquet:"name=residual_scale, type=DOUBLE"`
	RobustR2      float64  `json:"robust_r2" csv:"robust_r2" parquet:"name=robust_r2, type=DOUBLE"`
	Iterations    int64    `json:"iterations" csv:"iterations" parquet:"name=iterations, type=INT64"`
	Converged     bool     `json:"converged" csv:"converged" parquet:"name=converged, type=BOOLEAN"`
	MinDurationS  float64  `json:"min_duration_s" csv:"min_duration_s" parquet:"name=min_duration_s, type=DOUBLE"`
	MaxDurationS  float64  `json:"max_duration_s" csv:"max_duration_s" parquet:"name=max_duration_s, type=DOUBLE"`
	VO2           float64  `json:"vo2" csv:"vo2" parquet:"name=vo2, type=DOUBLE"`
	VO2Model      string   `json:"vo2_model" csv:"vo2_model" parquet:"name=vo2_model, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// PredictionRow is one predicted race time.
type PredictionRow struct {
	RunID            string  `json:"run_id" csv:"run_id" parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AthleteID        string  `json:"athlete_id" csv:"athlete_id" parquet:"name=athlete_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Race             string  `json:"race" csv:"race" parquet:"name=race, type=BYTE_ARRAY, convertedtype=UTF8"`
	RaceDate         string  `json:"race_date" csv:"race_date" parquet:"name=race_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	DistanceM        float64 `json:"distance_m" csv:"distance_m" parquet:"name=distance_m, type=DOUBLE"`
	BaseSeconds      float64 `json:"base_seconds" csv:"base_seconds" parquet:"name=base_seconds, type=DOUBLE"`
	PredictedSeconds float64 `json:"predicted_seconds" csv:"predicted_seconds" parquet:"name=predicted_seconds, type=DOUBLE"`
	LowerSeconds     float64 `json:"lower_seconds" csv:"lower_seconds" parquet:"name=lower_seconds, type=DOUBLE"`
	UpperSeconds     float64 `json:"upper_seconds" csv:"upper_seconds" parquet:"name=upper_seconds, type=DOUBLE"`
	PaceSPerKm       float64 `json:"pace_s_per_km" csv:"pace_s_per_km" parquet:"name=pace_s_per_km, type=DOUBLE"`
	IntervalMethod   string  `json:"interval_method" csv:"interval_method" parquet:"name=interval_method, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	IntervalLevel    float64 `json:"interval_level" csv:"interval_level" parquet:"name=interval_level, type=DOUBLE"`
	Adjustments      string  `json:"adjustments" csv:"adjustments" parquet:"name=adjustments, type=BYTE_ARRAY, convertedtype=UTF8"`
	VDOT             float64 `json:"vdot" csv:"vdot" parquet:"name=vdot, type=DOUBLE"`
	ReferenceSeconds float64 `json:"reference_seconds" csv:"reference_seconds" parquet:"name=reference_seconds, type=DOUBLE"`
	Confidence       string  `json:"confidence" csv:"confidence" parquet:"name=confidence, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ConfidenceScore  float64 `json:"confidence_score" csv:"confidence_score" parquet:"name=confidence_score, type=DOUBLE"`
	OutOfDomain      bool    `json:"out_of_domain" csv:"out_of_domain" parquet:"name=out_of_domain, type=BOOLEAN"`
	UnconvergedCurve bool    `json:"unconverged_curve" csv:"unconverged_curve" parquet:"name=unconverged_curve, type=BOOLEAN"`
}

// ValidationRow is a prediction matched with the actual result.
type ValidationRow struct {
	RunID               string  `json:"run_id" csv:"run_id" parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AthleteID           string  `json:"athlete_id" csv:"athlete_id" parquet:"name=athlete_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Race                string  `json:"race" csv:"race" parquet:"name=race, type=BYTE_ARRAY, convertedtype=UTF8"`
	RaceDate            string  `json:"race_date" csv:"race_date" parquet:"name=race_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	DistanceM           float64 `json:"distance_m" csv:"distance_m" parquet:"name=distance_m, type=DOUBLE"`
	PredictedSeconds    float64 `json:"predicted_seconds" csv:"predicted_seconds" parquet:"name=predicted_seconds, type=DOUBLE"`
	ActualSeconds       float64 `json:"actual_seconds" csv:"actual_seconds" parquet:"name=actual_seconds, type=DOUBLE"`
	LowerSeconds        float64 `json:"lower_seconds" csv:"lower_seconds" parquet:"name=lower_seconds, type=DOUBLE"`
	UpperSeconds        float64 `json:"upper_seconds" csv:"upper_seconds" parquet:"name=upper_seconds, type=DOUBLE"`
	ErrorSeconds        float64 `json:"error_seconds" csv:"error_seconds" parquet:"name=error_seconds, type=DOUBLE"`
	PctError            float64 `json:"pct_error" csv:"pct_error" parquet:"name=pct_error, type=DOUBLE"`
	InInterval          bool    `json:"in_interval" csv:"in_interval" parquet:"name=in_interval, type=BOOLEAN"`
	ActualPercentile    float64 `json:"actual_percentile" csv:"actual_percentile" parquet:"name=actual_percentile, type=DOUBLE"`
	PredictedPercentile float64 `json:"predicted_percentile" csv:"predicted_percentile" parquet:"name=predicted_percentile, type=DOUBLE"`
}

// SummaryRow holds error statistics for the cohort or a single athlete.
type SummaryRow struct {
	Scope           string  `json:"scope" csv:"scope" parquet:"name=scope, type=BYTE_ARRAY, convertedtype=UTF8"`
	Count           int64   `json:"count" csv:"count" parquet:"name=count, type=INT64"`
	MdAPE           float64 `json:"mdape" csv:"mdape" parquet:"name=mdape, type=DOUBLE"`
	MAPE            float64 `json:"mape" csv:"mape" parquet:"name=mape, type=DOUBLE"`
	BiasPct         float64 `json:"bias_pct" csv:"bias_pct" parquet:"name=bias_pct, type=DOUBLE"`
	BiasSeconds     float64 `json:"bias_seconds" csv:"bias_seconds" parquet:"name=bias_seconds, type=DOUBLE"`
	Coverage        float64 `json:"coverage" csv:"coverage" parquet:"name=coverage, type=DOUBLE"`
	NominalCoverage float64 `json:"nominal_coverage" csv:"nominal_coverage" parquet:"name=nominal_coverage, type=DOUBLE"`
}

// CoverageRow is the fraction of athletes that reached a stage.
type CoverageRow struct {
	Stage    string  `json:"stage" csv:"stage" parquet:"name=stage, type=BYTE_ARRAY, convertedtype=UTF8"`
	Position int64   `json:"position" csv:"position" parquet:"name=position, type=INT64"`
	Fraction float64 `json:"fraction" csv:"fraction" parquet:"name=fraction, type=DOUBLE"`
}

// FeatureRow is the fixed-width part of an activity's feature vector.
// Missing HR and temperature covariates stay null.
type FeatureRow struct {
	AthleteID               string   `json:"athlete_id" csv:"athlete_id" parquet:"name=athlete_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActivityID              string   `json:"activity_id" csv:"activity_id" parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartTime               string   `json:"start_time" csv:"start_time" parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationS               float64  `json:"duration_s" csv:"duration_s" parquet:"name=duration_s, type=DOUBLE"`
	DistanceM               float64  `json:"distance_m" csv:"distance_m" parquet:"name=distance_m, type=DOUBLE"`
	DistanceCategory        string   `json:"distance_category" csv:"distance_category" parquet:"name=distance_category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElevationGainM          float64  `json:"elevation_gain_m" csv:"elevation_gain_m" parquet:"name=elevation_gain_m, type=DOUBLE"`
	ElevationLossM          float64  `json:"elevation_loss_m" csv:"elevation_loss_m" parquet:"name=elevation_loss_m, type=DOUBLE"`
	AvgPaceSPerKm           float64  `json:"avg_pace_s_per_km" csv:"avg_pace_s_per_km" parquet:"name=avg_pace_s_per_km, type=DOUBLE"`
	GradeAdjustedPaceSPerKm float64  `json:"grade_adjusted_pace_s_per_km" csv:"grade_adjusted_pace_s_per_km" parquet:"name=grade_adjusted_pace_s_per_km, type=DOUBLE"`
	TemperatureC            *float64 `json:"temperature_c" csv:"temperature_c,omitempty" parquet:"name=temperature_c, type=DOUBLE, repetitiontype=OPTIONAL"`
	TimeOfDay               string   `json:"time_of_day" csv:"time_of_day" parquet:"name=time_of_day, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DayOfWeek               string   `json:"day_of_week" csv:"day_of_week" parquet:"name=day_of_week, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	HourOfDay               int64    `json:"hour_of_day" csv:"hour_of_day" parquet:"name=hour_of_day, type=INT64"`
	AvgHeartrate            *float64 `json:"avg_heartrate" csv:"avg_heartrate,omitempty" parquet:"name=avg_heartrate, type=DOUBLE, repetitiontype=OPTIONAL"`
	EfficiencyFactor        *float64 `json:"efficiency_factor" csv:"efficiency_factor,omitempty" parquet:"name=efficiency_factor, type=DOUBLE, repetitiontype=OPTIONAL"`
	AerobicDecoupling       *float64 `json:"aerobic_decoupling" csv:"aerobic_decoupling,omitempty" parquet:"name=aerobic_decoupling, type=DOUBLE, repetitiontype=OPTIONAL"`
	TRIMP                   *float64 `json:"trimp" csv:"trimp,omitempty" parquet:"name=trimp, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// BestEffortRow is one observed rolling-best bucket. Buckets an activity
// did not cover have no row.
type BestEffortRow struct {
	AthleteID  string  `json:"athlete_id" csv:"athlete_id" parquet:"name=athlete_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActivityID string  `json:"activity_id" csv:"activity_id" parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationS  int64   `json:"duration_s" csv:"duration_s" parquet:"name=duration_s, type=INT64"`
	SpeedMPS   float64 `json:"speed_mps" csv:"speed_mps" parquet:"name=speed_mps, type=DOUBLE"`
	PaceSPerKm float64 `json:"pace_s_per_km" csv:"pace_s_per_km" parquet:"name=pace_s_per_km, type=DOUBLE"`
}

func curveRows(curves []store.CurveRow) []CurveRow {
	rows := make([]CurveRow, len(curves))
	for i, c := range curves {
		r := CurveRow{
			RunID:         c.RunID,
			AthleteID:     c.AthleteID,
			Family:        c.Family,
			Loss:          c.Loss,
			CS:            c.CS,
			DPrime:        c.DPrime,
			K:             c.K,
			ResidualScale: c.ResidualScale,
			RobustR2:      c.RobustR2,
			Iterations:    int64(c.Iterations),
			Converged:     c.Converged,
			MinDurationS:  c.MinDurationS,
			MaxDurationS:  c.MaxDurationS,
			VO2:           c.VO2,
			VO2Model:      c.VO2Model,
		}
		for _, p := range c.Params {
			switch p.Name {
			case analysis.ParamCS:
				r.CSStdErr, r.CSLower, r.CSUpper = p.StdErr, p.Lower, p.Upper
			case analysis.ParamDPrime:
				r.DPrimeStdErr, r.DPrimeLower, r.DPrimeUpper = p.StdErr, p.Lower, p.Upper
			}
		}
		rows[i] = r
	}
	return rows
}

func predictionRows(preds []store.PredictionRow) []PredictionRow {
	rows := make([]PredictionRow, len(preds))
	for i, p := range preds {
		rows[i] = PredictionRow{
			RunID:            p.RunID,
			AthleteID:        p.AthleteID,
			Race:             p.Race,
			RaceDate:         p.RaceDate,
			DistanceM:        p.DistanceM,
			BaseSeconds:      p.BaseSeconds,
			PredictedSeconds: p.PredictedSeconds,
			LowerSeconds:     p.LowerSeconds,
			UpperSeconds:     p.UpperSeconds,
			PaceSPerKm:       p.PaceSPerKm,
			IntervalMethod:   p.IntervalMethod,
			IntervalLevel:    p.IntervalLevel,
			Adjustments:      formatAdjustments(p.Adjustments),
			VDOT:             p.VDOT,
			ReferenceSeconds: p.ReferenceSeconds,
			Confidence:       p.Confidence,
			ConfidenceScore:  p.ConfidenceScore,
			OutOfDomain:      p.OutOfDomain,
			UnconvergedCurve: p.UnconvergedCurve,
		}
	}
	return rows
}

// formatAdjustments renders "elevation:+52.0s;temperature:+31.5s".
func formatAdjustments(adj []store.AdjustmentRow) string {
	parts := make([]string, len(adj))
	for i, a := range adj {
		parts[i] = fmt.Sprintf("%s:%+.1fs", a.Name, a.DeltaSeconds)
	}
	return strings.Join(parts, ";")
}

func validationRows(vals []store.ValidationRow) []ValidationRow {
	rows := make([]ValidationRow, len(vals))
	for i, v := range vals {
		rows[i] = ValidationRow{
			RunID:               v.RunID,
			AthleteID:           v.AthleteID,
			Race:                v.Race,
			RaceDate:            v.RaceDate,
			DistanceM:           v.DistanceM,
			PredictedSeconds:    v.PredictedSeconds,
			ActualSeconds:       v.ActualSeconds,
			LowerSeconds:        v.LowerSeconds,
			UpperSeconds:        v.UpperSeconds,
			ErrorSeconds:        v.ErrorSeconds,
			PctError:            v.PctError,
			InInterval:          v.InInterval,
			ActualPercentile:    v.ActualPercentile,
			PredictedPercentile: v.PredictedPercentile,
		}
	}
	return rows
}

// CohortScope names the cohort-wide summary row.
const CohortScope = "cohort"

func summaryRows(cohort analysis.ErrorStats, perAthlete map[string]analysis.ErrorStats) []SummaryRow {
	rows := []SummaryRow{summaryRow(CohortScope, cohort)}
	ids := make([]string, 0, len(perAthlete))
	for id := range perAthlete {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rows = append(rows, summaryRow(id, perAthlete[id]))
	}
	return rows
}

func summaryRow(scope string, s analysis.ErrorStats) SummaryRow {
	return SummaryRow{
		Scope:           scope,
		Count:           int64(s.Count),
		MdAPE:           s.MdAPE,
		MAPE:            s.MAPE,
		BiasPct:         s.BiasPct,
		BiasSeconds:     s.BiasSeconds,
		Coverage:        s.Coverage,
		NominalCoverage: s.NominalCoverage,
	}
}

func coverageRows(coverage []store.StageCoverageRow) []CoverageRow {
	rows := make([]CoverageRow, len(coverage))
	for i, c := range coverage {
		rows[i] = CoverageRow{Stage: c.Stage, Position: int64(c.Position), Fraction: c.Fraction}
	}
	return rows
}

func featureRows(features []analysis.Features) ([]FeatureRow, []BestEffortRow) {
	rows := make([]FeatureRow, len(features))
	var bests []BestEffortRow
	for i, f := range features {
		rows[i] = FeatureRow{
			AthleteID:               f.AthleteID,
			ActivityID:              f.ActivityID,
			StartTime:               f.StartTime.UTC().Format(time.RFC3339),
			DurationS:               f.DurationS,
			DistanceM:               f.DistanceM,
			DistanceCategory:        f.DistanceCategory,
			ElevationGainM:          f.ElevationGainM,
			ElevationLossM:          f.ElevationLossM,
			AvgPaceSPerKm:           f.AvgPaceSPerKm,
			GradeAdjustedPaceSPerKm: f.GradeAdjustedPaceSPerKm,
			TemperatureC:            f.TemperatureC,
			TimeOfDay:               f.TimeOfDay,
			DayOfWeek:               f.DayOfWeek.String(),
			HourOfDay:               int64(f.HourOfDay),
			AvgHeartrate:            f.AvgHeartrate,
			EfficiencyFactor:        f.EfficiencyFactor,
			AerobicDecoupling:       f.AerobicDecoupling,
			TRIMP:                   f.TRIMP,
		}

		buckets := make([]int, 0, len(f.BestSpeed))
		for d := range f.BestSpeed {
			buckets = append(buckets, d)
		}
		sort.Ints(buckets)
		for _, d := range buckets {
			pace, _ := f.BestPace(d)
			bests = append(bests, BestEffortRow{
				AthleteID:  f.AthleteID,
				ActivityID: f.ActivityID,
				DurationS:  int64(d),
				SpeedMPS:   f.BestSpeed[d],
				PaceSPerKm: pace,
			})
		}
	}
	return rows, bests
}
