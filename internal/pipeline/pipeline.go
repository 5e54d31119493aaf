package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

// BundleAssembler produces one forecast bundle for a location.
type BundleAssembler interface {
	Assemble(ctx context.Context, loc domain.GeoPoint, window domain.Window) (domain.ForecastBundle, error)
}

// Publisher forwards a freshly assembled bundle downstream.
type Publisher interface {
	Publish(ctx context.Context, b domain.ForecastBundle) error
}

// Pipeline refreshes the forecast for a fixed location on a schedule and
// keeps the most recent complete bundle.
type Pipeline struct {
	assembler BundleAssembler
	publisher Publisher
	location  domain.GeoPoint
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	latest    atomic.Pointer[domain.ForecastBundle]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPublisher sends each new bundle to pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithRefreshTimeout bounds a single refresh. The default is half the interval.
func WithRefreshTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// New creates a Pipeline that refreshes loc every interval.
func New(a BundleAssembler, loc domain.GeoPoint, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		assembler: a,
		location:  loc,
		interval:  interval,
		timeout:   interval / 2,
		logger:    logger.With("component", "pipeline"),
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Latest returns the most recent complete bundle, or false if none has been
// assembled yet.
func (p *Pipeline) Latest() (domain.ForecastBundle, bool) {
	b := p.latest.Load()
	if b == nil {
		return domain.ForecastBundle{}, false
	}
	return *b, true
}

// CheckReadiness returns nil once a bundle has been assembled.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.latest.Load() == nil {
		return errors.New("no forecast has been assembled yet")
	}
	return nil
}

// RefreshNow assembles a bundle for the configured location over the default
// window. On success it replaces the latest bundle and publishes it; on
// failure the previous bundle is kept.
func (p *Pipeline) RefreshNow(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	b, err := p.assembler.Assemble(ctx, p.location, domain.Window{})
	if err != nil {
		return fmt.Errorf("refresh forecast: %w", err)
	}
	p.latest.Store(&b)

	if p.publisher == nil {
		return nil
	}
	if err := p.publisher.Publish(ctx, b); err != nil {
		return fmt.Errorf("publish bundle %s: %w", b.ID, err)
	}
	p.metrics.BundlesPublished.Inc()
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// Runs never overlap; a tick that fires while a refresh is in progress is
// skipped.
func (p *Pipeline) Run(ctx context.Context) error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(p.interval).Do(func() {
		if err := p.RefreshNow(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("scheduled refresh failed", "error", err)
			return
		}
		p.logger.Info("forecast refreshed")
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	p.logger.Info("pipeline started", "interval", p.interval, "location", p.location.String())
	p.metrics.SchedulerRunning.Set(1)
	defer p.metrics.SchedulerRunning.Set(0)

	s.StartAsync()
	<-ctx.Done()
	s.Stop()
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}
