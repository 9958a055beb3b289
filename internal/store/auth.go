package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// ProviderStrava keys the Strava credentials.
const ProviderStrava = "strava"

// GetAuth returns the credentials stored for a provider, or ErrNoAuth.
func (db *DB) GetAuth(ctx context.Context, provider string) (*Auth, error) {
	var (
		a       = Auth{Provider: provider}
		expires int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT athlete_id, access_token, refresh_token, expires_at
		FROM auth WHERE provider = ?
	`, provider).Scan(&a.AthleteID, &a.AccessToken, &a.RefreshToken, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNoAuth
	case err != nil:
		return nil, eris.Wrapf(err, "reading %s auth", provider)
	}
	a.ExpiresAt = time.Unix(expires, 0)
	return &a, nil
}

// SaveAuth replaces the provider's credentials after an authorization.
func (db *DB) SaveAuth(ctx context.Context, a *Auth) error {
	if a.Provider == "" {
		return eris.New("saving auth: provider is required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO auth (provider, athlete_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, a.Provider, a.AthleteID, a.AccessToken, a.RefreshToken, a.ExpiresAt.Unix())
	return eris.Wrapf(err, "saving %s auth", a.Provider)
}

// UpdateTokens records a refreshed token pair. The athlete stays the same, so
// a provider without stored credentials is an error.
func (db *DB) UpdateTokens(ctx context.Context, provider, accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE auth
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE provider = ?
	`, accessToken, refreshToken, expiresAt.Unix(), provider)
	if err != nil {
		return eris.Wrapf(err, "updating %s tokens", provider)
	}
	if n, err := res.RowsAffected(); err != nil {
		return eris.Wrapf(err, "updating %s tokens", provider)
	} else if n == 0 {
		return ErrNoAuth
	}
	return nil
}
