package strava

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
)

const (
	// Strava OAuth endpoints
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// Scopes required to read activity streams (Strava uses comma-separated scopes)
var Scopes = []string{
	"read,activity:read_all",
}

// NewOAuthConfig creates an oauth2.Config for the Strava endpoints.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  AuthURL,
			TokenURL: TokenURL,
		},
		Scopes: Scopes,
	}
}

// TokenSource refreshes tokens as needed and calls onRefresh to persist
// every new token.
type TokenSource struct {
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(*oauth2.Token) error
	mu        sync.Mutex
}

// NewTokenSource creates a new TokenSource that will refresh tokens as needed
// and call onRefresh to persist new tokens
func NewTokenSource(cfg *oauth2.Config, token *oauth2.Token, onRefresh func(*oauth2.Token) error) *TokenSource {
	return &TokenSource{
		config:    cfg,
		token:     token,
		onRefresh: onRefresh,
	}
}

// Token returns a valid token, refreshing within 60s of expiry.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.token.Expiry.IsZero() && time.Until(ts.token.Expiry) > 60*time.Second {
		return ts.token, nil
	}
	if ts.token.RefreshToken == "" {
		// static access token
		return ts.token, nil
	}

	// oauth2 only refreshes a token it considers expired; dropping the access
	// token forces the refresh inside our wider window.
	stale := &oauth2.Token{RefreshToken: ts.token.RefreshToken}
	newToken, err := ts.config.TokenSource(context.Background(), stale).Token()
	if err != nil {
		return nil, eris.Wrap(err, "strava: refresh token")
	}

	if ts.onRefresh != nil {
		if err := ts.onRefresh(newToken); err != nil {
			return nil, eris.Wrap(err, "strava: persist token")
		}
	}

	ts.token = newToken
	return newToken, nil
}

// ExtractAthleteID returns the athlete id Strava includes in token responses.
func ExtractAthleteID(token *oauth2.Token) string {
	if athlete, ok := token.Extra("athlete").(map[string]interface{}); ok {
		if id, ok := athlete["id"].(float64); ok {
			return strconv.FormatInt(int64(id), 10)
		}
	}
	return ""
}
