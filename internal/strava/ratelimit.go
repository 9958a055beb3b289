package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the API quota reported by Strava is used up.
var ErrRateLimited = eris.New("strava: rate limit exhausted")

// RateLimiter paces requests with a token bucket and tracks the 15 minute and
// daily quotas Strava reports in response headers. A one-shot fetch never
// sleeps through a quota window; it fails with ErrRateLimited instead.
type RateLimiter struct {
	pace *rate.Limiter

	mu         sync.Mutex
	shortLimit int
	shortUsage int
	dailyLimit int
	dailyUsage int
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given
// burst, starting from Strava's default quotas.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		pace:       rate.NewLimiter(rate.Limit(perSecond), burst),
		shortLimit: 100,
		dailyLimit: 1000,
	}
}

// Wait blocks until the next request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	exhausted := r.shortUsage >= r.shortLimit || r.dailyUsage >= r.dailyLimit
	r.mu.Unlock()
	if exhausted {
		return ErrRateLimited
	}
	return r.pace.Wait(ctx)
}

// UpdateFromHeaders updates rate limit state from Strava response headers
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strava returns: X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512"
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.shortUsage, r.dailyUsage = short, daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.shortLimit, r.dailyLimit = short, daily
	}
}

// Status returns current rate limit status
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shortLimit - r.shortUsage, r.dailyLimit - r.dailyUsage
}

func parsePair(v string) (int, int, bool) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}
