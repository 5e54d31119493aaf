// Package nws provides point forecasts from the National Weather Service API
// (api.weather.gov).
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/stargazing-forecast/internal/adapter/upstream"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

// gridProperties maps gridpoint payload properties to forecast variables.
var gridProperties = map[string]string{
	"skyCover":                   domain.VarCloudCover,
	"temperature":                domain.VarTemperature,
	"dewpoint":                   domain.VarDewpoint,
	"probabilityOfPrecipitation": domain.VarPrecipProbability,
	"windSpeed":                  domain.VarWindSpeed,
	"windGust":                   domain.VarWindGust,
	"windDirection":              domain.VarWindDirection,
}

// Config controls the NWS client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	RPS       float64
	CacheSize int
}

// Client implements the point forecast provider on top of the NWS API.
type Client struct {
	baseURL string
	fetcher *upstream.Fetcher
	points  *lruCache[point]
	logger  *slog.Logger
	metrics *observability.Metrics
}

// point is the cached result of a /points lookup.
type point struct {
	GridDataURL string
	TimeZone    string
}

// NewClient creates an NWS client.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		fetcher: upstream.New(upstream.Config{
			Name:       "nws",
			UserAgent:  cfg.UserAgent,
			Accept:     "application/geo+json",
			Timeout:    cfg.Timeout,
			RPS:        cfg.RPS,
			MaxRetries: 3,
		}, nil, logger, metrics),
		points:  newLRUCache[point](cfg.CacheSize),
		logger:  logger.With("component", "nws"),
		metrics: metrics,
	}
}

// PointForecast returns the raw gridpoint series for p and the local timezone.
func (c *Client) PointForecast(ctx context.Context, p domain.GeoPoint) (domain.PointForecast, error) {
	pt, err := c.lookupPoint(ctx, p)
	if err != nil {
		return domain.PointForecast{}, err
	}

	body, err := c.fetcher.Get(ctx, pt.GridDataURL)
	if err != nil {
		return domain.PointForecast{}, fmt.Errorf("fetch gridpoint data: %w", err)
	}
	series, err := parseGridData(body)
	if err != nil {
		return domain.PointForecast{}, err
	}

	c.logger.Debug("point forecast fetched", "grid_data_url", pt.GridDataURL, "variables", len(series))
	return domain.PointForecast{TimeZone: pt.TimeZone, Series: series}, nil
}

func (c *Client) lookupPoint(ctx context.Context, p domain.GeoPoint) (point, error) {
	key := fmt.Sprintf("%.4f,%.4f", p.Latitude(), p.Longitude())
	if pt, ok := c.points.get(key); ok {
		c.metrics.PointCache.WithLabelValues("hit").Inc()
		return pt, nil
	}
	c.metrics.PointCache.WithLabelValues("miss").Inc()

	body, err := c.fetcher.Get(ctx, fmt.Sprintf("%s/points/%s", c.baseURL, key))
	if err != nil {
		return point{}, fmt.Errorf("lookup point %s: %w", key, err)
	}

	var resp pointsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return point{}, fmt.Errorf("%w: points response: %v", domain.ErrMalformedFeed, err)
	}
	pt := point{GridDataURL: resp.Properties.ForecastGridData, TimeZone: resp.Properties.TimeZone}
	if pt.GridDataURL == "" || pt.TimeZone == "" {
		return point{}, fmt.Errorf("%w: points response lacks forecastGridData or timeZone", domain.ErrMalformedFeed)
	}

	c.points.put(key, pt)
	return pt, nil
}

func parseGridData(body []byte) (map[string]domain.RawSeries, error) {
	var resp gridDataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: gridpoint response: %v", domain.ErrMalformedFeed, err)
	}

	out := make(map[string]domain.RawSeries, len(gridProperties))
	for prop, variable := range gridProperties {
		raw, ok := resp.Properties[prop]
		if !ok {
			return nil, fmt.Errorf("%w: gridpoint response lacks %s", domain.ErrMalformedFeed, prop)
		}
		var layer gridLayer
		if err := json.Unmarshal(raw, &layer); err != nil {
			return nil, fmt.Errorf("%w: gridpoint %s: %v", domain.ErrMalformedFeed, prop, err)
		}
		unit, err := domain.ParseWMOUnit(layer.UOM)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prop, err)
		}

		rs := domain.RawSeries{Unit: unit, Intervals: make([]domain.RawInterval, 0, len(layer.Values))}
		for _, v := range layer.Values {
			if v.Value == nil {
				continue
			}
			rs.Intervals = append(rs.Intervals, domain.RawInterval{ValidTime: v.ValidTime, Value: *v.Value})
		}
		out[variable] = rs
	}
	return out, nil
}

// NWS API response types.

type pointsResponse struct {
	Properties struct {
		ForecastGridData string `json:"forecastGridData"`
		TimeZone         string `json:"timeZone"`
	} `json:"properties"`
}

type gridDataResponse struct {
	Properties map[string]json.RawMessage `json:"properties"`
}

type gridLayer struct {
	UOM    string      `json:"uom"`
	Values []gridValue `json:"values"`
}

type gridValue struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}
