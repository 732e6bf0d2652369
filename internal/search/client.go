package search

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

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const userAgent = "irdin-client/0.1"

// Client talks to the catalogue HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// ClientConfig holds client configuration
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls; 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           "http://localhost:8000/api",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             2,
	}
}

// NewClient creates a catalogue client.
func NewClient(cfg ClientConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Limiter:    rate.NewLimiter(limit, burst),
	}
}

// Search implements Service.
func (c *Client) Search(ctx context.Context, req Request) (*Page, error) {
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("page", strconv.Itoa(req.Page))
	for _, f := range req.Fields {
		params.Add("fields", string(f))
	}

	var page Page
	if err := c.getJSON(ctx, "/search?"+params.Encode(), &page); err != nil {
		return nil, err
	}
	page.normalize()
	return &page, nil
}

// Item implements Service.
func (c *Client) Item(ctx context.Context, slug string) (*Item, error) {
	var item Item
	if err := c.getJSON(ctx, "/items/"+url.PathEscape(slug), &item); err != nil {
		return nil, err
	}
	if item.Authors == nil {
		item.Authors = []string{}
	}
	return &item, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalogue request failed: %w", err)
	}
	defer resp.Body.Close()

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Catalogue request completed")

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding catalogue response: %w", err)
	}
	return nil
}

// StatusError reports a non-2xx catalogue response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalogue API error: status %d", e.Code)
	}
	return fmt.Sprintf("catalogue API error: status %d: %s", e.Code, e.Body)
}

var _ Service = (*Client)(nil)
