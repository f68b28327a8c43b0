package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client fetches the USGS real-time earthquake GeoJSON summary feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client with a bounded request timeout.
func NewClient(feedURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch retrieves the current feed document and returns its features in
// delivery order.
func (c *Client) Fetch(ctx context.Context) ([]Feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed error: status %d: %s", resp.StatusCode, body)
	}

	var doc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	return doc.Features, nil
}

// USGS GeoJSON summary format types. Only the fields the pipeline consumes
// are declared; the feed carries many more.

type featureCollection struct {
	Features []Feature `json:"features"`
}

// Feature is one earthquake entry in the feed.
type Feature struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// Properties carries the event's attributes. Mag and Time are pointers
// because the feed occasionally omits them; a missing Time makes the item
// malformed.
type Properties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  *int64   `json:"time"` // epoch milliseconds
}

// Geometry holds the [lon, lat, depth] coordinate triple.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}
