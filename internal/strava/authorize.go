package strava

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	DefaultCallbackPort = 8089
	DefaultAuthTimeout  = 5 * time.Minute
)

// Authorizer runs the authorization-code flow against a local callback
// server.
type Authorizer struct {
	Config  *oauth2.Config
	Port    int // 0 picks a free port
	Timeout time.Duration
	// Prompt shows the authorization URL to the user.
	Prompt func(authURL string)
}

// AuthResult is the token pair and the athlete it belongs to.
type AuthResult struct {
	Token     *oauth2.Token
	AthleteID string
}

// Authorize waits for the browser redirect and exchanges the code.
func (a *Authorizer) Authorize(ctx context.Context) (*AuthResult, error) {
	state, err := generateState()
	if err != nil {
		return nil, eris.Wrap(err, "strava: generate state")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", a.Port))
	if err != nil {
		return nil, eris.Wrap(err, "strava: start callback server")
	}
	port := listener.Addr().(*net.TCPAddr).Port

	cfg := *a.Config
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			sendErr(errChan, eris.New("strava: callback state mismatch"))
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			sendErr(errChan, eris.Errorf("strava: authorization denied: %s", msg))
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			sendErr(errChan, eris.New("strava: no code in callback"))
			http.Error(w, "No authorization code", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>racecurve</title></head>
<body style="font-family: system-ui; text-align: center; margin-top: 20vh;">
<h1>Authorized</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)
		select {
		case codeChan <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errChan, eris.Wrap(err, "strava: callback server"))
		}
	}()
	defer shutdownServer(server)

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if a.Prompt != nil {
		a.Prompt(authURL)
	}
	zap.L().Info("waiting for strava authorization", zap.Int("port", port))

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-timer.C:
		return nil, eris.Errorf("strava: authorization timed out after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, eris.Wrap(err, "strava: exchange code")
	}
	return &AuthResult{Token: token, AthleteID: ExtractAthleteID(token)}, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
