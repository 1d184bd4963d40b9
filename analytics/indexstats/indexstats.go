// Package indexstats reads index statistics from a running search server.
package indexstats

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/xerrors"

	"github.com/searchd/analytics/analytics"
)

// Client fetches statistics from the search server's stats endpoint.
type Client struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
}

type Option func(*Client)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func New(baseURL *url.URL, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type statsResponse struct {
	DatabaseSize uint64                   `json:"databaseSize"`
	Indexes      map[string]indexResponse `json:"indexes"`
}

type indexResponse struct {
	NumberOfDocuments uint64 `json:"numberOfDocuments"`
}

var _ analytics.StatsProvider = (*Client)(nil)

// AllStats returns the database size and the document count of every index.
func (c *Client) AllStats(ctx context.Context) (analytics.Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("stats").String(), nil)
	if err != nil {
		return analytics.Stats{}, xerrors.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return analytics.Stats{}, xerrors.Errorf("get stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return analytics.Stats{}, xerrors.Errorf("unexpected status from stats endpoint: %s", resp.Status)
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return analytics.Stats{}, xerrors.Errorf("decode stats: %w", err)
	}
	stats := analytics.Stats{
		DatabaseSize: body.DatabaseSize,
		Indexes:      make(map[string]analytics.IndexStats, len(body.Indexes)),
	}
	for uid, index := range body.Indexes {
		stats.Indexes[uid] = analytics.IndexStats{DocumentCount: index.NumberOfDocuments}
	}
	return stats, nil
}
