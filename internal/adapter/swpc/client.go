// Package swpc fetches geomagnetic activity feeds from the NOAA Space Weather
// Prediction Center.
package swpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/stargazing-forecast/internal/adapter/upstream"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

// Client implements the geomagnetic feed provider.
type Client struct {
	kpURL       string
	forecastURL string
	fetcher     *upstream.Fetcher
}

// NewClient creates a SWPC client for the planetary Kp table and the 3-day
// forecast bulletin (3-day-forecast.txt, which carries the Kp breakdown).
func NewClient(kpURL, forecastURL, userAgent string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		kpURL:       kpURL,
		forecastURL: forecastURL,
		fetcher: upstream.New(upstream.Config{
			Name:       "swpc",
			UserAgent:  userAgent,
			Timeout:    timeout,
			MaxRetries: 2,
		}, nil, logger, metrics),
	}
}

// Observations returns the raw planetary Kp observation table.
func (c *Client) Observations(ctx context.Context) ([]byte, error) {
	body, err := c.fetcher.Get(ctx, c.kpURL)
	if err != nil {
		return nil, fmt.Errorf("fetch kp observations: %w", err)
	}
	return body, nil
}

// Predictions returns the raw 3-day forecast bulletin text.
func (c *Client) Predictions(ctx context.Context) (string, error) {
	body, err := c.fetcher.Get(ctx, c.forecastURL)
	if err != nil {
		return "", fmt.Errorf("fetch kp predictions: %w", err)
	}
	return string(body), nil
}
