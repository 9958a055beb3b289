package main

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"racecurve/internal/config"
	"racecurve/internal/store"
	"racecurve/internal/strava"
)

func openStore() (*store.DB, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "open store %s", cfg.Store.Path)
	}
	return db, nil
}

// newStravaFetcher prefers tokens from the config file and falls back to the
// tokens saved by the auth command. Refreshed stored tokens are written back.
func newStravaFetcher(ctx context.Context, c *config.Config, db *store.DB) (*strava.Fetcher, error) {
	oauthCfg := strava.NewOAuthConfig(c.Strava.ClientID, c.Strava.ClientSecret)

	var ts oauth2.TokenSource
	var athleteID string
	if c.Strava.AccessToken != "" || c.Strava.RefreshToken != "" {
		if err := c.ValidateStrava(); err != nil {
			return nil, err
		}
		ts = strava.NewTokenSource(oauthCfg, &oauth2.Token{
			AccessToken:  c.Strava.AccessToken,
			RefreshToken: c.Strava.RefreshToken,
		}, nil)
	} else {
		stored, err := db.GetAuth(ctx, store.ProviderStrava)
		if errors.Is(err, store.ErrNoAuth) {
			return nil, eris.New("no strava credentials: run `racecurve auth` or set strava.access_token")
		}
		if err != nil {
			return nil, err
		}
		if err := c.ValidateStravaClient(); err != nil {
			return nil, err
		}
		athleteID = stored.AthleteID
		ts = strava.NewTokenSource(oauthCfg, &oauth2.Token{
			AccessToken:  stored.AccessToken,
			RefreshToken: stored.RefreshToken,
			Expiry:       stored.ExpiresAt,
		}, func(t *oauth2.Token) error {
			zap.L().Debug("persisting refreshed strava token")
			return db.UpdateTokens(ctx, store.ProviderStrava, t.AccessToken, t.RefreshToken, t.Expiry)
		})
	}

	limiter := strava.NewRateLimiter(c.Strava.RatePerSecond, c.Strava.Burst)
	client := strava.NewClient(ts, c.Strava.BaseURL, limiter)
	return strava.NewFetcher(client, athleteID, c.Strava.MaxActivities), nil
}

// parseSince accepts YYYY-MM-DD; empty means no lower bound.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid --since %q", s)
	}
	return t, nil
}
