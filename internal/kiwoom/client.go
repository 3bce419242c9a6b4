// Package kiwoom implements the REST client for the local broker bridge
// server. Every response arrives in a {Success, Message, Data} envelope;
// Data's shape varies per endpoint so typed accessors live in market.go.
package kiwoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Envelope is the bridge's uniform response wrapper.
type Envelope struct {
	Success bool            `json:"Success"`
	Message string          `json:"Message"`
	Data    json.RawMessage `json:"Data"`
}

// SessionLost reports whether the bridge rejected the call because the
// broker session expired. The bridge signals this only through the message
// text.
func (e *Envelope) SessionLost() bool {
	return strings.Contains(strings.ToLower(e.Message), "not logged in")
}

// Client talks to the broker bridge over HTTP with a shared request pacer.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	throttle   time.Duration
	logger     *slog.Logger
}

// NewClient creates a bridge client. throttle is the minimum spacing between
// requests; the bridge multiplexes a single broker session and bursts can
// get the session throttled server-side.
func NewClient(baseURL string, throttle time.Duration, logger *slog.Logger) *Client {
	if throttle <= 0 {
		throttle = 300 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(throttle), 1),
		throttle:   throttle,
		logger:     logger,
	}
}

// BaseURL returns the configured bridge address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WSURL derives the websocket address for the given path from the base URL.
func (c *Client) WSURL(path string) string {
	u := strings.Replace(c.baseURL, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + path
}

// Get performs a GET against the bridge with up to three attempts. Transport
// failures back off linearly on the throttle interval; an unwrappable body
// is an error, but Success=false is returned to the caller for inspection.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Envelope, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		env, err := c.doGet(ctx, path, params)
		if err == nil {
			return env, nil
		}
		lastErr = err

		if attempt < 2 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.throttle * time.Duration(attempt+2)):
			}
		}
	}
	return nil, fmt.Errorf("GET %s: %w", path, lastErr)
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) (*Envelope, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	env := &Envelope{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, env); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return env, nil
}

// decodeData unmarshals the envelope payload into out. A null or absent
// payload leaves out untouched and returns nil.
func decodeData(env *Envelope, out any) error {
	if env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
