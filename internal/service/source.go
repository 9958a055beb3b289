package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"racecurve/internal/ingest"
	"racecurve/internal/store"
	"racecurve/internal/strava"
)

// Source delivers raw activities per athlete.
type Source interface {
	Athletes(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, athleteID string) ([]ingest.RawActivity, error)
}

// MemorySource serves activities held in memory.
type MemorySource map[string][]ingest.RawActivity

// NewMemorySource groups activities by athlete.
func NewMemorySource(activities []ingest.RawActivity) MemorySource {
	m := make(MemorySource)
	for _, a := range activities {
		m[a.AthleteID] = append(m[a.AthleteID], a)
	}
	return m
}

func (m MemorySource) Athletes(context.Context) ([]string, error) {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m MemorySource) Fetch(ctx context.Context, athleteID string) ([]ingest.RawActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(m[athleteID]), nil
}

// NewCSVSource reads a samples CSV file into memory.
func NewCSVSource(path string) (MemorySource, error) {
	activities, err := ingest.ReadSamplesFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemorySource(activities), nil
}

// FITSource reads a <root>/<athlete>/*.fit tree.
type FITSource struct {
	Root string
}

func (s FITSource) Athletes(context.Context) ([]string, error) {
	return ingest.FITDirAthletes(s.Root)
}

func (s FITSource) Fetch(ctx context.Context, athleteID string) ([]ingest.RawActivity, error) {
	activities, failures, err := ingest.ReadFITDir(s.Root, athleteID)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		zap.L().Warn("skipping unreadable FIT file", zap.String("athlete", athleteID), zap.Error(f))
	}
	return activities, ctx.Err()
}

// StoreSource reads activities previously imported into the store.
type StoreSource struct {
	DB *store.DB
}

func (s StoreSource) Athletes(ctx context.Context) ([]string, error) {
	return s.DB.ListAthletes(ctx)
}

func (s StoreSource) Fetch(ctx context.Context, athleteID string) ([]ingest.RawActivity, error) {
	return s.DB.GetRawActivities(ctx, athleteID)
}

// StravaSource downloads the authenticated athlete's runs once, on first use.
type StravaSource struct {
	fetcher *strava.Fetcher
	after   time.Time

	once sync.Once
	data MemorySource
	err  error
}

// NewStravaSource creates a source backed by a one-shot Strava fetch.
func NewStravaSource(fetcher *strava.Fetcher, after time.Time) *StravaSource {
	return &StravaSource{fetcher: fetcher, after: after}
}

func (s *StravaSource) load(ctx context.Context) error {
	s.once.Do(func() {
		var activities []ingest.RawActivity
		activities, s.err = s.fetcher.Fetch(ctx, s.after)
		s.data = NewMemorySource(activities)
	})
	return s.err
}

func (s *StravaSource) Athletes(ctx context.Context) ([]string, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.data.Athletes(ctx)
}

func (s *StravaSource) Fetch(ctx context.Context, athleteID string) ([]ingest.RawActivity, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.data.Fetch(ctx, athleteID)
}
