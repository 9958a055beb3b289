package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
)

const BaseURL = "https://www.strava.com/api/v3"

// Client is a Strava API client
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *RateLimiter
}

// NewClient creates a new Strava API client
func NewClient(tokenSource oauth2.TokenSource, baseURL string, limiter *RateLimiter) *Client {
	return NewClientWithHTTP(oauth2.NewClient(context.Background(), tokenSource), baseURL, limiter)
}

// NewClientWithHTTP creates a client on an already authenticated http.Client.
func NewClientWithHTTP(httpClient *http.Client, baseURL string, limiter *RateLimiter) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if limiter == nil {
		limiter = NewRateLimiter(1, 5)
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: limiter,
	}
}

// GetActivities fetches activities with pagination
// Returns activities after 'after' timestamp, up to 'perPage' results
func (c *Client) GetActivities(ctx context.Context, after time.Time, page, perPage int) ([]Activity, error) {
	params := url.Values{}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	var activities []Activity
	if err := c.getJSON(ctx, "/athlete/activities", params, &activities); err != nil {
		return nil, eris.Wrapf(err, "strava: activities page %d", page)
	}
	return activities, nil
}

// GetAllActivities fetches activities after a given time, up to limit when
// limit is positive. It handles pagination and respects rate limits.
func (c *Client) GetAllActivities(ctx context.Context, after time.Time, limit int, onProgress func(fetched int)) ([]Activity, error) {
	var allActivities []Activity
	page := 1
	perPage := 100 // Max allowed by Strava

	for {
		activities, err := c.GetActivities(ctx, after, page, perPage)
		if err != nil {
			return allActivities, err
		}

		if len(activities) == 0 {
			break
		}

		allActivities = append(allActivities, activities...)
		if limit > 0 && len(allActivities) >= limit {
			allActivities = allActivities[:limit]
			break
		}

		if onProgress != nil {
			onProgress(len(allActivities))
		}

		if len(activities) < perPage {
			break // Last page
		}

		page++
	}

	return allActivities, nil
}

// GetActivityStreams fetches detailed stream data for an activity
func (c *Client) GetActivityStreams(ctx context.Context, activityID int64) (*Streams, error) {
	params := url.Values{}
	params.Set("keys", "time,distance,altitude,velocity_smooth,heartrate,temp")
	params.Set("key_by_type", "true")

	var streams Streams
	path := fmt.Sprintf("/activities/%d/streams", activityID)
	if err := c.getJSON(ctx, path, params, &streams); err != nil {
		return nil, eris.Wrapf(err, "strava: streams for %d", activityID)
	}
	return &streams, nil
}

// RateLimitStatus returns the current rate limit status
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.rateLimiter.Status()
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "building request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	// Update rate limiter from response headers
	c.rateLimiter.UpdateFromHeaders(resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return eris.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return eris.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}
