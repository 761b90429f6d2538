// Package backend is the client for the leaderboard API. Calls are single
// attempts: any transport failure or non-2xx status is reported as
// ErrSyncFailed and left to the caller to log.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carboncounter/internal/factors"
)

// ErrSyncFailed wraps every failed backend call.
var ErrSyncFailed = errors.New("backend sync failed")

// DefaultBaseURL is where the leaderboard API listens by default.
const DefaultBaseURL = "http://127.0.0.1:5000"

const maxErrorBody = 512

// Entry is one row of the weekly leaderboard.
type Entry struct {
	Username        string  `json:"username"`
	WeeklyEmissions float64 `json:"weekly_emissions"`
}

// Client talks to the leaderboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The client is not
// modified; WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "backend").Logger() }
}

// NewClient creates a client for baseURL; an empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// CreateUser registers username.
func (c *Client) CreateUser(ctx context.Context, username string) error {
	body := map[string]any{"username": username}
	return c.post(ctx, "/api/user", body)
}

// UpdateCar stores the selected vehicle for username.
func (c *Client) UpdateCar(ctx context.Context, username string, v factors.VehicleProfile) error {
	body := map[string]any{
		"username":  username,
		"car_year":  v.Year,
		"car_make":  v.Make,
		"car_model": v.Model,
	}
	return c.post(ctx, "/api/user/"+url.PathEscape(username)+"/car", body)
}

// UpdateEmissions reports the user's emissions in grams.
func (c *Client) UpdateEmissions(ctx context.Context, username string, grams float64) error {
	body := map[string]any{
		"username":  username,
		"emissions": grams,
	}
	return c.post(ctx, "/api/user/"+url.PathEscape(username)+"/emissions", body)
}

// WeeklyEmissions fetches the leaderboard. Entries without a username are
// dropped.
func (c *Client) WeeklyEmissions(ctx context.Context) ([]Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/weekly_emissions", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw []Entry
	if decodeErr := json.NewDecoder(resp.Body).Decode(&raw); decodeErr != nil {
		return nil, fmt.Errorf("%w: decoding leaderboard: %w", ErrSyncFailed, decodeErr)
	}

	entries := raw[:0]
	for _, e := range raw {
		if e.Username != "" {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding %s: %w", ErrSyncFailed, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrSyncFailed, method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d: %s",
			ErrSyncFailed, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}
