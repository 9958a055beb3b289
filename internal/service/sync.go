package service

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"racecurve/internal/ingest"
	"racecurve/internal/store"
)

// ActivityFetcher downloads raw activities started after a point in time.
type ActivityFetcher interface {
	Fetch(ctx context.Context, after time.Time) ([]ingest.RawActivity, error)
}

// SyncService copies remote activities into the store incrementally.
type SyncService struct {
	fetcher ActivityFetcher
	store   *store.DB
	key     string
}

// NewSyncService creates a sync service that tracks its cursor under key.
func NewSyncService(fetcher ActivityFetcher, db *store.DB, key string) *SyncService {
	return &SyncService{fetcher: fetcher, store: db, key: key}
}

// SyncProgress reports progress during sync
type SyncProgress struct {
	Phase     string // "fetch", "store"
	Total     int
	Completed int
	Activity  string
}

// SyncResult contains the results of a sync operation
type SyncResult struct {
	After             time.Time
	ActivitiesFetched int
	ActivitiesStored  int
	Latest            time.Time
	Errors            []error
}

// Sync fetches everything newer than the stored cursor and saves it. The
// cursor only moves forward to the newest stored activity, so a failed or
// partial sync is retried from the same point.
func (s *SyncService) Sync(ctx context.Context, progress chan<- SyncProgress) (*SyncResult, error) {
	if progress != nil {
		defer close(progress)
	}

	after, err := s.store.GetSyncTime(ctx, s.key)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{After: after, Latest: after}

	send(ctx, progress, SyncProgress{Phase: "fetch"})
	activities, err := s.fetcher.Fetch(ctx, after)
	result.ActivitiesFetched = len(activities)
	if err != nil && len(activities) == 0 {
		return result, eris.Wrap(err, "fetching activities")
	}
	if err != nil {
		// keep what arrived before the failure
		result.Errors = append(result.Errors, err)
	}

	for i, a := range activities {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		send(ctx, progress, SyncProgress{Phase: "store", Total: len(activities), Completed: i, Activity: a.ActivityID})

		if err := s.store.SaveRawActivity(ctx, a); err != nil {
			result.Errors = append(result.Errors, eris.Wrapf(err, "storing activity %s", a.ActivityID))
			continue
		}
		result.ActivitiesStored++
		if a.StartTime.After(result.Latest) {
			result.Latest = a.StartTime
		}
	}
	send(ctx, progress, SyncProgress{Phase: "store", Total: len(activities), Completed: len(activities)})

	if result.Latest.After(after) {
		if err := s.store.SetSyncTime(ctx, s.key, result.Latest); err != nil {
			return result, err
		}
	}

	zap.L().Info("sync complete",
		zap.Time("after", after),
		zap.Int("fetched", result.ActivitiesFetched),
		zap.Int("stored", result.ActivitiesStored),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// ImportActivities saves activities read from local files and stamps the
// import time under store.KeyLastImport.
func ImportActivities(ctx context.Context, db *store.DB, activities []ingest.RawActivity) (int, error) {
	if err := db.SaveRawActivities(ctx, activities); err != nil {
		return 0, err
	}
	if err := db.SetSyncTime(ctx, store.KeyLastImport, time.Now()); err != nil {
		return len(activities), err
	}
	return len(activities), nil
}

func send[T any](ctx context.Context, ch chan<- T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}
