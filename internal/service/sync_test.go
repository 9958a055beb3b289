package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecurve/internal/ingest"
	"racecurve/internal/store"
)

type fakeFetcher struct {
	activities []ingest.RawActivity
	err        error
	calls      []time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, after time.Time) ([]ingest.RawActivity, error) {
	f.calls = append(f.calls, after)
	var out []ingest.RawActivity
	for _, a := range f.activities {
		if a.StartTime.After(after) {
			out = append(out, a)
		}
	}
	return out, f.err
}

func activityAt(id string, start time.Time) ingest.RawActivity {
	a := steady("me", 30, 30, 3)
	a.ActivityID = id
	a.StartTime = start
	return a
}

func TestSyncAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	db := store.NewTestDB(t)
	fetcher := &fakeFetcher{activities: []ingest.RawActivity{
		activityAt("r1", day0),
		activityAt("r2", day0.Add(48*time.Hour)),
	}}
	svc := NewSyncService(fetcher, db, store.KeyLastFetch)

	progress := make(chan SyncProgress, 16)
	res, err := svc.Sync(ctx, progress)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ActivitiesFetched)
	assert.Equal(t, 2, res.ActivitiesStored)
	assert.Empty(t, res.Errors)

	var phases []string
	for p := range progress {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, "fetch", phases[0])
	assert.Equal(t, "store", phases[len(phases)-1])

	cursor, err := db.GetSyncTime(ctx, store.KeyLastFetch)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(day0.Add(48*time.Hour)))

	fetcher.activities = append(fetcher.activities, activityAt("r3", day0.Add(96*time.Hour)))
	res, err = svc.Sync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ActivitiesStored)
	assert.True(t, fetcher.calls[1].Equal(cursor))

	n, err := db.CountActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSyncFailureKeepsCursor(t *testing.T) {
	ctx := context.Background()
	db := store.NewTestDB(t)
	fetcher := &fakeFetcher{err: errors.New("quota exhausted")}

	_, err := NewSyncService(fetcher, db, store.KeyLastFetch).Sync(ctx, nil)
	require.Error(t, err)

	cursor, err := db.GetSyncTime(ctx, store.KeyLastFetch)
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())
}

func TestImportActivities(t *testing.T) {
	ctx := context.Background()
	db := store.NewTestDB(t)

	n, err := ImportActivities(ctx, db, efforts("a1", 60, 300))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	athletes, err := db.ListAthletes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, athletes)

	stamp, err := db.GetSyncTime(ctx, store.KeyLastImport)
	require.NoError(t, err)
	assert.False(t, stamp.IsZero())
}
