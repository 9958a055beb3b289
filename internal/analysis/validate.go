package analysis

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RaceResult is a ground-truth finishing time.
type RaceResult struct {
	AthleteID     string
	Race          string
	Date          time.Time
	DistanceM     float64
	ActualSeconds float64
}

// Key identifies the race for matching against predictions.
func (r RaceResult) Key() RaceKey {
	return NewRaceKey(r.AthleteID, r.Race, r.Date)
}

// ValidationResult compares one prediction with its result. Errors are
// predicted minus actual, so a positive error means the runner beat the
// prediction.
type ValidationResult struct {
	AthleteID string
	Race      string
	Date      string
	DistanceM float64

	PredictedSeconds float64
	ActualSeconds    float64
	LowerSeconds     float64
	UpperSeconds     float64
	IntervalLevel    float64

	ErrorSeconds    float64
	AbsErrorSeconds float64
	PctError        float64
	AbsPctError     float64
	InInterval      bool

	// Percentile ranks within the race cohort; faster is higher
	ActualPercentile    float64
	PredictedPercentile float64

	Confidence  string
	OutOfDomain bool
}

// ErrorStats aggregates validation results.
type ErrorStats struct {
	Count           int
	MdAPE           float64 // median absolute % error
	MAPE            float64
	BiasPct         float64 // mean signed % error
	BiasSeconds     float64
	Coverage        float64 // share of actuals inside the interval
	NominalCoverage float64 // mean interval level
}

// CohortReport summarizes a validation run. StageCoverage and Failures are
// filled in by the pipeline.
type CohortReport struct {
	Results              []ValidationResult
	PerAthlete           map[string]ErrorStats
	Cohort               ErrorStats
	UnmatchedPredictions []RacePrediction
	UnmatchedResults     []RaceResult
	StageCoverage        map[string]float64
	Failures             map[string]string
}

// Validator pairs predictions with results.
type Validator struct{}

// NewValidator returns a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate matches by (athlete, race, date) and aggregates errors. Unmatched
// entries on either side are kept in the report and left out of the stats.
func (v *Validator) Validate(predictions []RacePrediction, results []RaceResult) *CohortReport {
	report := &CohortReport{PerAthlete: make(map[string]ErrorStats)}

	byKey := make(map[RaceKey]RacePrediction, len(predictions))
	for _, p := range predictions {
		if _, dup := byKey[p.Key()]; !dup {
			byKey[p.Key()] = p
		}
	}

	matched := make(map[RaceKey]bool)
	for _, r := range results {
		key := r.Key()
		p, ok := byKey[key]
		if !ok || r.ActualSeconds <= 0 || matched[key] {
			report.UnmatchedResults = append(report.UnmatchedResults, r)
			continue
		}
		matched[key] = true
		report.Results = append(report.Results, compare(p, r))
	}

	for _, p := range predictions {
		if !matched[p.Key()] {
			report.UnmatchedPredictions = append(report.UnmatchedPredictions, p)
			matched[p.Key()] = true // keep only the first duplicate
		}
	}

	rankCohorts(report.Results)

	sort.Slice(report.Results, func(i, j int) bool {
		a, b := report.Results[i], report.Results[j]
		if a.AthleteID != b.AthleteID {
			return a.AthleteID < b.AthleteID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Race < b.Race
	})

	perAthlete := make(map[string][]ValidationResult)
	for _, r := range report.Results {
		perAthlete[r.AthleteID] = append(perAthlete[r.AthleteID], r)
	}
	for id, rs := range perAthlete {
		report.PerAthlete[id] = Summarize(rs)
	}
	report.Cohort = Summarize(report.Results)

	return report
}

func compare(p RacePrediction, r RaceResult) ValidationResult {
	errSecs := p.PredictedSeconds - r.ActualSeconds
	pct := 100 * errSecs / r.ActualSeconds
	return ValidationResult{
		AthleteID:        r.AthleteID,
		Race:             r.Race,
		Date:             r.Key().Date,
		DistanceM:        p.DistanceM,
		PredictedSeconds: p.PredictedSeconds,
		ActualSeconds:    r.ActualSeconds,
		LowerSeconds:     p.LowerSeconds,
		UpperSeconds:     p.UpperSeconds,
		IntervalLevel:    p.IntervalLevel,
		ErrorSeconds:     errSecs,
		AbsErrorSeconds:  math.Abs(errSecs),
		PctError:         pct,
		AbsPctError:      math.Abs(pct),
		InInterval:       p.Contains(r.ActualSeconds),
		Confidence:       p.Confidence,
		OutOfDomain:      p.OutOfDomain,
	}
}

// Summarize aggregates a set of validation results.
func Summarize(results []ValidationResult) ErrorStats {
	s := ErrorStats{Count: len(results)}
	if s.Count == 0 {
		return s
	}

	abs := make([]float64, len(results))
	pct := make([]float64, len(results))
	errSecs := make([]float64, len(results))
	levels := make([]float64, len(results))
	var inside int
	for i, r := range results {
		abs[i] = r.AbsPctError
		pct[i] = r.PctError
		errSecs[i] = r.ErrorSeconds
		levels[i] = r.IntervalLevel
		if r.InInterval {
			inside++
		}
	}
	n := float64(s.Count)
	s.MdAPE = median(abs)
	s.MAPE = stat.Mean(abs, nil)
	s.BiasPct = stat.Mean(pct, nil)
	s.BiasSeconds = stat.Mean(errSecs, nil)
	s.NominalCoverage = stat.Mean(levels, nil)
	s.Coverage = float64(inside) / n
	return s
}

// rankCohorts sets percentile ranks within each (race, date) group for both
// the actual and the predicted times.
func rankCohorts(results []ValidationResult) {
	cohorts := make(map[[2]string][]int)
	for i, r := range results {
		key := [2]string{r.Race, r.Date}
		cohorts[key] = append(cohorts[key], i)
	}

	for _, idx := range cohorts {
		actual := make([]float64, len(idx))
		predicted := make([]float64, len(idx))
		for j, i := range idx {
			actual[j] = results[i].ActualSeconds
			predicted[j] = results[i].PredictedSeconds
		}
		for j, i := range idx {
			results[i].ActualPercentile = PercentileRank(actual[j], actual)
			results[i].PredictedPercentile = PercentileRank(predicted[j], predicted)
		}
	}
}

// PercentileRank is the share of the rest of the cohort that finished slower
// than seconds, counting ties as half. cohort includes seconds itself. A lone
// finisher ranks 50.
func PercentileRank(seconds float64, cohort []float64) float64 {
	if len(cohort) <= 1 {
		return 50
	}
	var slower, ties float64
	for _, c := range cohort {
		switch {
		case c > seconds:
			slower++
		case c == seconds:
			ties++
		}
	}
	ties-- // self
	return 100 * (slower + 0.5*ties) / float64(len(cohort)-1)
}
