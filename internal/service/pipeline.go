package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"racecurve/internal/analysis"
	"racecurve/internal/ingest"
)

// ErrFetch marks an athlete whose raw activities could not be fetched. The
// athlete stays at StageIngested.
var ErrFetch = eris.New("fetch failed")

// Stage is how far an athlete got through the pipeline.
type Stage int

const (
	StageIngested Stage = iota
	StageNormalized
	StageFeaturesExtracted
	StageCurveFit
	StagePredicted
	StageValidated
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageIngested,
	StageNormalized,
	StageFeaturesExtracted,
	StageCurveFit,
	StagePredicted,
	StageValidated,
}

var stageNames = [...]string{
	"ingested",
	"normalized",
	"features_extracted",
	"curve_fit",
	"predicted",
	"validated",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// AthleteProfile holds everything one run computed for an athlete.
type AthleteProfile struct {
	AthleteID   string
	Records     []ingest.ActivityRecord
	Dropped     []ingest.DroppedRecord
	Features    []analysis.Features
	Curve       *analysis.PerformanceCurve
	Predictions []analysis.RacePrediction

	Stage    Stage
	Err      error   // failure that stopped the athlete
	Warnings []error // non-fatal: unconverged, out of domain, no solution
}

func (p *AthleteProfile) warn(err error) {
	p.Warnings = append(p.Warnings, err)
	zap.L().Warn("athlete warning", zap.String("athlete", p.AthleteID), zap.Error(err))
}

func (p *AthleteProfile) fail(err error) *AthleteProfile {
	p.Err = err
	zap.L().Warn("athlete stopped",
		zap.String("athlete", p.AthleteID),
		zap.Stringer("stage", p.Stage),
		zap.Error(err),
	)
	return p
}

func (p *AthleteProfile) advance(s Stage) {
	p.Stage = s
	zap.L().Debug("stage reached", zap.String("athlete", p.AthleteID), zap.Stringer("stage", s))
}

// Progress reports a finished athlete.
type Progress struct {
	AthleteID string
	Stage     Stage
	Err       error
	Completed int
	Total     int
}

// RunResult contains the results of a pipeline run
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Profiles   []*AthleteProfile
	Report     *analysis.CohortReport
}

// Pipeline runs every athlete through normalize, features, curve fit and
// prediction, then validates the cohort.
type Pipeline struct {
	source     Source
	opts       Options
	normalizer *ingest.Normalizer
	estimator  *analysis.Estimator
	predictor  *analysis.Predictor
	validator  *analysis.Validator
}

// NewPipeline validates options and builds the stage components.
func NewPipeline(source Source, opts Options) (*Pipeline, error) {
	estimator, err := analysis.NewEstimator(opts.Estimator)
	if err != nil {
		return nil, eris.Wrap(err, "curve options")
	}
	predictor, err := analysis.NewPredictor(opts.Predictor)
	if err != nil {
		return nil, eris.Wrap(err, "predict options")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{
		source:     source,
		opts:       opts,
		normalizer: ingest.NewNormalizer(opts.Normalize),
		estimator:  estimator,
		predictor:  predictor,
		validator:  analysis.NewValidator(),
	}, nil
}

// Run processes every athlete of the source plus any athlete named in races.
// Per-athlete failures are recorded on the profile and never abort the run;
// only context cancellation does. progress, when non-nil, is closed on return.
func (p *Pipeline) Run(ctx context.Context, races []ingest.RaceEntry, progress chan<- Progress) (*RunResult, error) {
	if progress != nil {
		defer close(progress)
	}

	result := &RunResult{RunID: uuid.NewString(), StartedAt: time.Now()}

	targets, actuals, err := RaceInputs(races)
	if err != nil {
		return nil, err
	}

	athletes, err := p.source.Athletes(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "listing athletes")
	}
	athletes = unionAthletes(athletes, targets)

	zap.L().Info("pipeline started",
		zap.String("run", result.RunID),
		zap.Int("athletes", len(athletes)),
		zap.Int("races", len(races)),
	)

	// one slot per athlete, no shared mutable state between tasks
	profiles := make([]*AthleteProfile, len(athletes))
	done := make(chan Progress, len(athletes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, id := range athletes {
		g.Go(func() error {
			prof := p.processAthlete(gctx, id, targets[id])
			profiles[i] = prof
			done <- Progress{AthleteID: id, Stage: prof.Stage, Err: prof.Err}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(done)
	}()

	completed := 0
	for pr := range done {
		completed++
		if progress != nil {
			pr.Completed, pr.Total = completed, len(athletes)
			select {
			case progress <- pr:
			case <-ctx.Done():
			}
		}
	}
	if err := <-waitErr; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline cancelled")
	}

	// barrier passed: validate the whole cohort at once
	var predictions []analysis.RacePrediction
	for _, prof := range profiles {
		predictions = append(predictions, prof.Predictions...)
	}
	report := p.validator.Validate(predictions, actuals)
	for _, prof := range profiles {
		if prof.Stage == StagePredicted {
			prof.advance(StageValidated)
		}
	}
	report.StageCoverage = StageCoverage(profiles)
	report.Failures = make(map[string]string)
	for _, prof := range profiles {
		if prof.Err != nil {
			report.Failures[prof.AthleteID] = prof.Err.Error()
		}
	}

	result.Profiles = profiles
	result.Report = report
	result.FinishedAt = time.Now()

	zap.L().Info("pipeline finished",
		zap.String("run", result.RunID),
		zap.Int("athletes", len(profiles)),
		zap.Int("predictions", len(predictions)),
		zap.Int("validated", report.Cohort.Count),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (p *Pipeline) processAthlete(ctx context.Context, athleteID string, targets []analysis.RaceTarget) *AthleteProfile {
	prof := &AthleteProfile{AthleteID: athleteID, Stage: StageIngested}

	raw, err := p.fetch(ctx, athleteID)
	if err != nil {
		return prof.fail(eris.Wrapf(ErrFetch, "athlete %s: %v", athleteID, err))
	}

	prof.Records, prof.Dropped = p.normalizer.Normalize(raw)
	prof.advance(StageNormalized)

	prof.Features = make([]analysis.Features, len(prof.Records))
	for i, rec := range prof.Records {
		prof.Features[i] = analysis.ExtractFeatures(rec, p.opts.Features)
	}
	prof.advance(StageFeaturesExtracted)

	curve, err := p.estimator.Estimate(athleteID, prof.Features)
	switch {
	case curve == nil:
		if err == nil {
			err = analysis.ErrInsufficientData
		}
		return prof.fail(err)
	case err != nil:
		prof.warn(err)
	}
	prof.Curve = curve
	prof.advance(StageCurveFit)

	if p.opts.DefaultTargets {
		targets = analysis.WithDefaultTargets(athleteID, targets)
	}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return prof.fail(err)
		}
		pred, err := p.predictor.Predict(curve, t)
		if errors.Is(err, analysis.ErrNoSolution) {
			prof.warn(err)
			continue
		}
		if err != nil && !errors.Is(err, analysis.ErrOutOfDomain) {
			return prof.fail(err)
		}
		if err != nil {
			prof.warn(err)
		}
		prof.Predictions = append(prof.Predictions, pred)
	}
	prof.advance(StagePredicted)

	return prof
}

func (p *Pipeline) fetch(ctx context.Context, athleteID string) ([]ingest.RawActivity, error) {
	if p.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()
	}
	return p.source.Fetch(ctx, athleteID)
}

// StageCoverage returns the fraction of athletes that reached each stage.
func StageCoverage(profiles []*AthleteProfile) map[string]float64 {
	coverage := make(map[string]float64, len(Stages))
	if len(profiles) == 0 {
		return coverage
	}
	for _, s := range Stages {
		n := 0
		for _, prof := range profiles {
			if prof.Stage >= s {
				n++
			}
		}
		coverage[s.String()] = float64(n) / float64(len(profiles))
	}
	return coverage
}

// RaceInputs splits race entries into prediction targets per athlete and
// ground-truth results.
func RaceInputs(races []ingest.RaceEntry) (map[string][]analysis.RaceTarget, []analysis.RaceResult, error) {
	targets := make(map[string][]analysis.RaceTarget)
	var results []analysis.RaceResult

	for _, e := range races {
		date, err := e.ParsedDate()
		if err != nil {
			return nil, nil, eris.Wrapf(err, "race %s for %s", e.Race, e.AthleteID)
		}
		if err := analysis.CheckRaceDistance(e.Race, e.DistanceM); err != nil {
			return nil, nil, eris.Wrapf(err, "athlete %s", e.AthleteID)
		}

		cov := make(map[string]float64)
		if e.ElevationGainM != nil {
			cov[analysis.CovElevationGain] = *e.ElevationGainM
		}
		if e.ElevationLossM != nil {
			cov[analysis.CovElevationLoss] = *e.ElevationLossM
		}
		if e.TemperatureC != nil {
			cov[analysis.CovTemperature] = *e.TemperatureC
		}

		targets[e.AthleteID] = append(targets[e.AthleteID], analysis.RaceTarget{
			AthleteID:  e.AthleteID,
			Race:       e.Race,
			Date:       date,
			DistanceM:  e.DistanceM,
			Covariates: cov,
		})
		if e.ActualSeconds != nil {
			results = append(results, analysis.RaceResult{
				AthleteID:     e.AthleteID,
				Race:          e.Race,
				Date:          date,
				DistanceM:     e.DistanceM,
				ActualSeconds: *e.ActualSeconds,
			})
		}
	}
	return targets, results, nil
}

func unionAthletes(athletes []string, targets map[string][]analysis.RaceTarget) []string {
	seen := make(map[string]bool, len(athletes))
	out := make([]string, 0, len(athletes))
	for _, id := range athletes {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for id := range targets {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
