package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, streamsFail map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Usage", "3,40")
		w.Header().Set("X-RateLimit-Limit", "100,1000")
		if r.URL.Query().Get("page") != "1" {
			json.NewEncoder(w).Encode([]Activity{})
			return
		}
		json.NewEncoder(w).Encode([]Activity{
			{ID: 11, Athlete: Athlete{ID: 7}, Type: "Run", SportType: "Run", StartDate: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
			{ID: 12, Athlete: Athlete{ID: 7}, Type: "Ride", SportType: "Ride"},
			{ID: 13, Athlete: Athlete{ID: 7}, Type: "Run", SportType: "TrailRun"},
		})
	})
	mux.HandleFunc("/activities/", func(w http.ResponseWriter, r *http.Request) {
		if streamsFail[r.URL.Path] {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		assert.Equal(t, "true", r.URL.Query().Get("key_by_type"))
		w.Write([]byte(`{
			"time": {"data": [0, 1, 2]},
			"distance": {"data": [0, 3.1, 6.3]},
			"heartrate": {"data": [120, 122, 125]},
			"temp": {"data": [18, 18]}
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherConvertsRuns(t *testing.T) {
	srv := newTestServer(t, map[string]bool{"/activities/13/streams": true})
	client := NewClientWithHTTP(srv.Client(), srv.URL, NewRateLimiter(1000, 10))

	raws, err := NewFetcher(client, "", 0).Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, raws, 1, "the ride is filtered and the trail run has no streams")

	a := raws[0]
	assert.Equal(t, "7", a.AthleteID)
	assert.Equal(t, "11", a.ActivityID)
	assert.Equal(t, SourceName, a.Source)
	require.Len(t, a.Samples, 3)
	assert.Equal(t, 6.3, *a.Samples[2].Distance)
	assert.Equal(t, 125.0, *a.Samples[2].Heartrate)
	assert.Nil(t, a.Samples[2].Temperature, "temp stream is shorter than time")
	assert.Nil(t, a.Samples[0].Elevation)

	short, daily := client.RateLimitStatus()
	assert.Equal(t, 97, short)
	assert.Equal(t, 960, daily)
}

func TestFetcherAthleteOverrideAndLimit(t *testing.T) {
	srv := newTestServer(t, nil)
	client := NewClientWithHTTP(srv.Client(), srv.URL, NewRateLimiter(1000, 10))

	raws, err := NewFetcher(client, "me", 1).Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "me", raws[0].AthleteID)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.Client(), srv.URL, nil)
	_, err := client.GetActivities(context.Background(), time.Time{}, 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRateLimiterExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Usage", "100,500")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.Client(), srv.URL, NewRateLimiter(1000, 10))
	_, err := client.GetActivities(context.Background(), time.Time{}, 1, 10)
	require.NoError(t, err)

	_, err = client.GetActivities(context.Background(), time.Time{}, 1, 10)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestParsePair(t *testing.T) {
	a, b, ok := parsePair("34, 512")
	assert.True(t, ok)
	assert.Equal(t, 34, a)
	assert.Equal(t, 512, b)

	_, _, ok = parsePair("34")
	assert.False(t, ok)
}
