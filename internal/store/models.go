package store

import "time"

// Auth represents OAuth tokens for Strava API access
type Auth struct {
	Provider     string    `db:"provider"`
	AthleteID    string    `db:"athlete_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Activity is the header row of an imported raw activity.
type Activity struct {
	AthleteID     string    `db:"athlete_id"`
	ActivityID    string    `db:"activity_id"`
	Source        string    `db:"source"`
	StartTime     time.Time `db:"start_time"`
	DistanceUnit  string    `db:"distance_unit"`
	ElevationUnit string    `db:"elevation_unit"`
	SampleCount   int       `db:"sample_count"`
}

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one execution of the pipeline.
type Run struct {
	ID         string     `db:"id"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Status     string     `db:"status"`
	Athletes   int        `db:"athletes"`
	Config     string     `db:"config"` // YAML snapshot
}

// ParamRow is one fitted curve parameter.
type ParamRow struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	StdErr float64 `json:"std_err"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// CurveRow is a fitted performance curve.
type CurveRow struct {
	RunID         string      `db:"run_id"`
	AthleteID     string      `db:"athlete_id"`
	Family        string      `db:"family"`
	Loss          string      `db:"loss"`
	CS            float64     `db:"cs"`
	DPrime        float64     `db:"d_prime"`
	K             *float64    `db:"k"` // three parameter curves only
	Params        []ParamRow  `db:"params"`
	Covariance    [][]float64 `db:"covariance"`
	ResidualScale float64     `db:"residual_scale"`
	RobustR2      float64     `db:"robust_r2"`
	Iterations    int         `db:"iterations"`
	Converged     bool        `db:"converged"`
	MinDurationS  float64     `db:"min_duration_s"`
	MaxDurationS  float64     `db:"max_duration_s"`
	VO2           float64     `db:"vo2"`
	VO2Model      string      `db:"vo2_model"`
}

// AdjustmentRow records one adjustment applied to a prediction.
type AdjustmentRow struct {
	Name         string  `json:"name"`
	DeltaSeconds float64 `json:"delta_seconds"`
	Factor       float64 `json:"factor"`
}

// PredictionRow is a predicted race time
type PredictionRow struct {
	RunID            string          `db:"run_id"`
	AthleteID        string          `db:"athlete_id"`
	Race             string          `db:"race"`
	RaceDate         string          `db:"race_date"` // YYYY-MM-DD, empty for default targets
	DistanceM        float64         `db:"distance_m"`
	BaseSeconds      float64         `db:"base_seconds"`
	PredictedSeconds float64         `db:"predicted_seconds"`
	LowerSeconds     float64         `db:"lower_seconds"`
	UpperSeconds     float64         `db:"upper_seconds"`
	PaceSPerKm       float64         `db:"pace_s_per_km"`
	IntervalMethod   string          `db:"interval_method"`
	IntervalLevel    float64         `db:"interval_level"`
	Adjustments      []AdjustmentRow `db:"adjustments"`
	VDOT             float64         `db:"vdot"`
	ReferenceSeconds float64         `db:"reference_seconds"`
	Confidence       string          `db:"confidence"` // "high", "medium", "low"
	ConfidenceScore  float64         `db:"confidence_score"`
	OutOfDomain      bool            `db:"out_of_domain"`
	UnconvergedCurve bool            `db:"unconverged_curve"`
}

// ValidationRow pairs a prediction with the actual race result.
type ValidationRow struct {
	RunID               string  `db:"run_id"`
	AthleteID           string  `db:"athlete_id"`
	Race                string  `db:"race"`
	RaceDate            string  `db:"race_date"`
	DistanceM           float64 `db:"distance_m"`
	PredictedSeconds    float64 `db:"predicted_seconds"`
	ActualSeconds       float64 `db:"actual_seconds"`
	LowerSeconds        float64 `db:"lower_seconds"`
	UpperSeconds        float64 `db:"upper_seconds"`
	IntervalLevel       float64 `db:"interval_level"`
	ErrorSeconds        float64 `db:"error_seconds"`
	PctError            float64 `db:"pct_error"`
	InInterval          bool    `db:"in_interval"`
	ActualPercentile    float64 `db:"actual_percentile"`
	PredictedPercentile float64 `db:"predicted_percentile"`
}

// AthleteStageRow is the furthest stage an athlete reached in a run.
type AthleteStageRow struct {
	RunID      string `db:"run_id"`
	AthleteID  string `db:"athlete_id"`
	Stage      string `db:"stage"`
	Activities int    `db:"activities"`
	Dropped    int    `db:"dropped"`
	Failure    string `db:"failure"`
}

// StageCoverageRow is the fraction of athletes that reached a stage.
type StageCoverageRow struct {
	RunID    string  `db:"run_id"`
	Stage    string  `db:"stage"`
	Position int     `db:"position"`
	Fraction float64 `db:"fraction"`
}
