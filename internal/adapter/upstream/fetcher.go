// Package upstream fetches remote feeds with rate limiting, retries and a
// circuit breaker. Every remote collaborator goes through a Fetcher.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

var (
	errRetryable   = errors.New("retryable upstream failure")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Config controls one Fetcher.
type Config struct {
	Name           string // metrics/source label and breaker name
	UserAgent      string
	Accept         string
	Timeout        time.Duration
	RPS            float64 // <= 0 disables rate limiting
	Burst          int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxBodyBytes   int64
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 32 << 20
	}
}

// Fetcher performs GET requests against one upstream service.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Fetcher. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger:  logger.With("component", "upstream", "source", cfg.Name),
		metrics: metrics,
	}
}

// Get fetches url and returns the response body. 429 and 5xx responses and
// transport errors are retried with exponential backoff; other non-2xx
// responses fail immediately with a *StatusError.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		f.metrics.UpstreamDuration.WithLabelValues(f.cfg.Name).Observe(time.Since(start).Seconds())
	}()

	backoff := f.cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: rate limit wait: %w", f.cfg.Name, err)
			}
		}

		result, err := f.breaker.Execute(func() (interface{}, error) {
			return f.do(ctx, url)
		})
		if err == nil {
			f.metrics.UpstreamRequests.WithLabelValues(f.cfg.Name, "success").Inc()
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			f.metrics.UpstreamRequests.WithLabelValues(f.cfg.Name, "rejected").Inc()
			return nil, fmt.Errorf("%s: %w: %v", f.cfg.Name, ErrCircuitOpen, err)
		}
		if ctx.Err() != nil || !errors.Is(err, errRetryable) || attempt >= f.cfg.MaxRetries {
			f.metrics.UpstreamRequests.WithLabelValues(f.cfg.Name, "error").Inc()
			return nil, fmt.Errorf("%s: %w", f.cfg.Name, err)
		}

		f.metrics.UpstreamRequests.WithLabelValues(f.cfg.Name, "retry").Inc()
		f.logger.Warn("upstream request failed, retrying", "error", err, "attempt", attempt+1, "backoff", backoff)
		if !sleepWithContext(ctx, backoff) {
			return nil, fmt.Errorf("%s: %w", f.cfg.Name, ctx.Err())
		}
		backoff = nextBackoff(backoff, f.cfg.MaxBackoff)
	}
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Accept != "" {
		req.Header.Set("Accept", f.cfg.Accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %w", errRetryable, &StatusError{URL: url, StatusCode: resp.StatusCode})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errRetryable, err)
	}
	return body, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
