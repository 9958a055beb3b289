package strava

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":21600,"athlete":{"id":42}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// redirectWith simulates the browser following the authorization redirect.
func redirectWith(t *testing.T, params func(state string) url.Values) func(string) {
	return func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		redirect := u.Query().Get("redirect_uri")
		q := params(u.Query().Get("state"))
		go func() {
			resp, err := http.Get(redirect + "?" + q.Encode())
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	cfg := NewOAuthConfig("id", "secret")
	cfg.Endpoint.TokenURL = tokenURL
	return cfg
}

func TestAuthorizeExchangesCode(t *testing.T) {
	srv := newTokenServer(t)
	a := &Authorizer{
		Config:  testOAuthConfig(srv.URL),
		Timeout: 5 * time.Second,
		Prompt: redirectWith(t, func(state string) url.Values {
			return url.Values{"state": {state}, "code": {"good-code"}}
		}),
	}

	res, err := a.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access", res.Token.AccessToken)
	assert.Equal(t, "refresh", res.Token.RefreshToken)
	assert.Equal(t, "42", res.AthleteID)
}

func TestAuthorizeRejectsStateMismatch(t *testing.T) {
	srv := newTokenServer(t)
	a := &Authorizer{
		Config:  testOAuthConfig(srv.URL),
		Timeout: 5 * time.Second,
		Prompt: redirectWith(t, func(string) url.Values {
			return url.Values{"state": {"forged"}, "code": {"good-code"}}
		}),
	}

	_, err := a.Authorize(context.Background())
	assert.ErrorContains(t, err, "state mismatch")
}

func TestAuthorizeDenied(t *testing.T) {
	srv := newTokenServer(t)
	a := &Authorizer{
		Config:  testOAuthConfig(srv.URL),
		Timeout: 5 * time.Second,
		Prompt: redirectWith(t, func(state string) url.Values {
			return url.Values{"state": {state}, "error": {"access_denied"}}
		}),
	}

	_, err := a.Authorize(context.Background())
	assert.ErrorContains(t, err, "access_denied")
}

func TestAuthorizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Authorizer{
		Config: testOAuthConfig("http://127.0.0.1:1/token"),
		Prompt: func(string) { cancel() },
	}
	_, err := a.Authorize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
