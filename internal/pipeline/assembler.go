package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/ephemeris"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

// Failure sources reported through domain.IncompleteForecastError.
const (
	SourceGrid          = "grid"
	SourcePointForecast = "point_forecast"
	SourceGeomagnetic   = "geomagnetic"
	SourceEphemeris     = "ephemeris"
	SourceAssembly      = "assembly"
)

// GridProvider supplies the seeing and transparency fields of the latest model run.
type GridProvider interface {
	Fields(ctx context.Context) (seeing, transparency *domain.GriddedField, err error)
}

// PointForecastProvider supplies raw point forecast series for a location.
type PointForecastProvider interface {
	PointForecast(ctx context.Context, p domain.GeoPoint) (domain.PointForecast, error)
}

// GeomagneticFeed supplies the raw Kp observation table and prediction bulletin.
type GeomagneticFeed interface {
	Observations(ctx context.Context) ([]byte, error)
	Predictions(ctx context.Context) (string, error)
}

// Options tunes assembly.
type Options struct {
	TempUnit            domain.Unit
	WindUnit            domain.Unit
	TimeZone            *time.Location // bundle timezone; nil uses the point forecast's
	ObservationWindow   time.Duration
	PredictionTolerance time.Duration
	EphemerisStep       time.Duration
}

func (o *Options) applyDefaults() {
	if o.TempUnit == "" {
		o.TempUnit = domain.UnitFahrenheit
	}
	if o.WindUnit == "" {
		o.WindUnit = domain.UnitMPH
	}
	if o.ObservationWindow <= 0 {
		o.ObservationWindow = domain.DefaultObservationWindow
	}
	if o.PredictionTolerance <= 0 {
		o.PredictionTolerance = domain.DefaultPredictionTolerance
	}
	if o.EphemerisStep <= 0 {
		o.EphemerisStep = 10 * time.Minute
	}
}

// Assembler fuses the grid, point forecast, geomagnetic and ephemeris sources
// into a ForecastBundle. It holds no per-request state and is safe for
// concurrent use.
type Assembler struct {
	grids   GridProvider
	points  PointForecastProvider
	geomag  GeomagneticFeed
	clock   clockwork.Clock
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAssembler creates an Assembler. A nil clock uses the real clock.
func NewAssembler(g GridProvider, p PointForecastProvider, f GeomagneticFeed, clock clockwork.Clock,
	opts Options, logger *slog.Logger, metrics *observability.Metrics) *Assembler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts.applyDefaults()
	return &Assembler{
		grids:   g,
		points:  p,
		geomag:  f,
		clock:   clock,
		opts:    opts,
		logger:  logger.With("component", "assembler"),
		metrics: metrics,
	}
}

// fetched holds the raw collaborator outputs gathered concurrently.
type fetched struct {
	seeing, transparency *domain.GriddedField
	point                domain.PointForecast
	observed, predicted  []domain.KpSample
}

// Assemble builds a bundle for loc. A zero window spans the seeing forecast;
// a window with only one bound fails with domain.ErrValidation.
// Any collaborator failure aborts the whole assembly with a
// *domain.IncompleteForecastError naming the source; no partial bundle is
// returned.
func (a *Assembler) Assemble(ctx context.Context, loc domain.GeoPoint, window domain.Window) (domain.ForecastBundle, error) {
	start := a.clock.Now()
	b, err := a.assemble(ctx, loc, window)
	if err != nil {
		var ife *domain.IncompleteForecastError
		source := SourceAssembly
		if errors.As(err, &ife) {
			source = ife.Source
		}
		a.metrics.ForecastFailures.WithLabelValues(source).Inc()
		a.logger.Error("forecast assembly failed", "source", source, "error", err)
		return domain.ForecastBundle{}, err
	}
	a.metrics.ForecastsAssembled.Inc()
	a.metrics.AssemblyDuration.Observe(a.clock.Since(start).Seconds())
	return b, nil
}

func (a *Assembler) assemble(ctx context.Context, loc domain.GeoPoint, window domain.Window) (domain.ForecastBundle, error) {
	if err := window.Check(); err != nil {
		return domain.ForecastBundle{}, err
	}
	in, err := a.fetch(ctx, loc)
	if err != nil {
		return domain.ForecastBundle{}, err
	}

	tz := a.opts.TimeZone
	if tz == nil {
		if tz, err = time.LoadLocation(in.point.TimeZone); err != nil {
			return domain.ForecastBundle{}, domain.NewIncompleteForecastError(SourcePointForecast,
				fmt.Errorf("%w: timezone %q: %v", domain.ErrMalformedFeed, in.point.TimeZone, err))
		}
	}

	now := a.clock.Now()
	b := domain.ForecastBundle{
		ID:          uuid.NewString(),
		GeneratedAt: now.In(tz),
		Location:    loc,
		TimeZone:    tz.String(),
		TempUnit:    a.opts.TempUnit,
		WindUnit:    a.opts.WindUnit,
		Point:       make(map[string]domain.TimeSeries, len(domain.PointVariables)),
		Geomagnetic: domain.GeomagneticReport{Observed: in.observed, Predicted: in.predicted},
	}

	if b.Seeing, err = a.resolve(in.seeing, loc, tz); err != nil {
		return domain.ForecastBundle{}, err
	}
	if b.Transparency, err = a.resolve(in.transparency, loc, tz); err != nil {
		return domain.ForecastBundle{}, err
	}

	b.Window = window
	if b.Window.IsZero() {
		s, e, ok := b.Seeing.Series.Span()
		if !ok {
			return domain.ForecastBundle{}, domain.NewIncompleteForecastError(SourceGrid,
				fmt.Errorf("%w: seeing field has no steps", domain.ErrMalformedFeed))
		}
		b.Window = domain.Window{Start: s, End: e}
	}
	b.Window = domain.Window{Start: b.Window.Start.In(tz), End: b.Window.End.In(tz)}

	for _, name := range domain.PointVariables {
		raw, ok := in.point.Series[name]
		if !ok {
			return domain.ForecastBundle{}, domain.NewIncompleteForecastError(SourcePointForecast,
				fmt.Errorf("%w: missing %s series", domain.ErrMalformedFeed, name))
		}
		ts, err := domain.Normalize(name, raw.Intervals, raw.Unit, a.targetUnit(name, raw.Unit), tz)
		if err != nil {
			return domain.ForecastBundle{}, domain.NewIncompleteForecastError(SourcePointForecast, err)
		}
		b.Point[name] = ts.Clip(b.Window)
	}
	b.TemperatureHighs, b.TemperatureLows = domain.Extrema(b.Point[domain.VarTemperature], now)

	if err := a.addEphemeris(&b, loc, now); err != nil {
		return domain.ForecastBundle{}, domain.NewIncompleteForecastError(SourceEphemeris, err)
	}

	if err := b.Validate(); err != nil {
		return domain.ForecastBundle{}, domain.NewIncompleteForecastError(SourceAssembly, err)
	}

	if n := len(in.observed); n > 0 {
		a.metrics.CurrentKp.Set(in.observed[n-1].Kp)
	}
	a.logger.Info("forecast assembled", "id", b.ID, "window_start", b.Window.Start, "window_end", b.Window.End)
	return b, nil
}

// fetch gathers every collaborator concurrently. The first failure cancels
// the rest.
func (a *Assembler) fetch(ctx context.Context, loc domain.GeoPoint) (fetched, error) {
	var in fetched
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s, t, err := a.grids.Fields(gctx)
		if err != nil {
			return domain.NewIncompleteForecastError(SourceGrid, err)
		}
		in.seeing, in.transparency = s, t
		return nil
	})
	g.Go(func() error {
		pf, err := a.points.PointForecast(gctx, loc)
		if err != nil {
			return domain.NewIncompleteForecastError(SourcePointForecast, err)
		}
		in.point = pf
		return nil
	})
	g.Go(func() error {
		raw, err := a.geomag.Observations(gctx)
		if err != nil {
			return domain.NewIncompleteForecastError(SourceGeomagnetic, err)
		}
		obs, err := domain.ParseObservations(raw, a.opts.ObservationWindow)
		if err != nil {
			return domain.NewIncompleteForecastError(SourceGeomagnetic, err)
		}
		in.observed = obs
		return nil
	})
	g.Go(func() error {
		text, err := a.geomag.Predictions(gctx)
		if err != nil {
			return domain.NewIncompleteForecastError(SourceGeomagnetic, err)
		}
		pred, err := domain.ParsePredictions(text, a.clock.Now(), a.opts.PredictionTolerance)
		if err != nil {
			return domain.NewIncompleteForecastError(SourceGeomagnetic, err)
		}
		in.predicted = pred
		return nil
	})

	if err := g.Wait(); err != nil {
		return fetched{}, err
	}
	return in, nil
}

// resolve finds the observer's cell and extracts its series.
func (a *Assembler) resolve(f *domain.GriddedField, loc domain.GeoPoint, tz *time.Location) (domain.GridForecast, error) {
	if f == nil {
		return domain.GridForecast{}, domain.NewIncompleteForecastError(SourceGrid, domain.ErrEmptyGrid)
	}
	cell, dist, err := domain.NearestCell(f, loc)
	if err != nil {
		return domain.GridForecast{}, domain.NewIncompleteForecastError(SourceGrid, fmt.Errorf("%s: %w", f.Name(), err))
	}
	a.metrics.NearestCellDistance.WithLabelValues(f.Name()).Set(dist)
	a.logger.Info("closest grid point",
		"field", f.Name(), "lat", cell.Latitude, "lon", cell.Longitude, "distance_m", dist)

	return domain.GridForecast{Cell: cell.CellCoord, DistanceM: dist, Series: f.Series(cell.Index, tz)}, nil
}

func (a *Assembler) targetUnit(variable string, source domain.Unit) domain.Unit {
	switch variable {
	case domain.VarTemperature, domain.VarDewpoint:
		return a.opts.TempUnit
	case domain.VarWindSpeed, domain.VarWindGust:
		return a.opts.WindUnit
	}
	return source
}

func (a *Assembler) addEphemeris(b *domain.ForecastBundle, loc domain.GeoPoint, now time.Time) error {
	times := ephemeris.Samples(b.Window.Start, b.Window.End, a.opts.EphemerisStep)
	sun, err := ephemeris.Altitudes(times, loc, domain.Sun)
	if err != nil {
		return err
	}
	moon, err := ephemeris.Altitudes(times, loc, domain.Moon)
	if err != nil {
		return err
	}
	phase, err := ephemeris.MoonPhaseAt(now)
	if err != nil {
		return err
	}
	phase.Time = phase.Time.In(b.Window.Start.Location())

	b.Sun, b.Moon, b.MoonPhase = sun, moon, phase
	b.Darkness = domain.DarknessIntervals(sun)
	return nil
}
