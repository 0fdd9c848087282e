// Package moenv fetches real-time station readings from the Ministry of
// Environment open-data API.
package moenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/air-quality-dashboard/internal/config"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

// maxBody caps the payload read from the API.
const maxBody = 8 << 20

// Client implements source.GroundProvider against the aqx_p_432 dataset.
type Client struct {
	apiKey     string
	baseURL    string
	dataset    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]domain.Observation]
	logger     *slog.Logger
}

// NewClient creates a MOENV client from the service configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.MOENVAPIKey,
		baseURL: strings.TrimRight(cfg.MOENVBaseURL, "/"),
		dataset: cfg.MOENVDataset,
		httpClient: &http.Client{
			Timeout: cfg.MOENVTimeout,
		},
		breaker: newBreaker("moenv"),
		logger:  logger,
	}
}

// newBreaker opens after three consecutive failures and allows a trial request after 30s.
func newBreaker(name string) *gobreaker.CircuitBreaker[[]domain.Observation] {
	return gobreaker.NewCircuitBreaker[[]domain.Observation](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// Stations returns every station in the current hourly release. Rows without
// AQI, site name or county are dropped; an empty result is an error.
func (c *Client) Stations(ctx context.Context) ([]domain.Observation, error) {
	stations, err := c.breaker.Execute(func() ([]domain.Observation, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("moenv stations: %w", err)
	}
	return stations, nil
}

func (c *Client) fetch(ctx context.Context) ([]domain.Observation, error) {
	params := url.Values{
		"api_key": {c.apiKey},
		"format":  {"json"},
		"limit":   {"1000"},
	}
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(c.dataset), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("moenv API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	stations, err := domain.ParseStationPayload(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("moenv stations fetched", "count", len(stations))
	return stations, nil
}
