// Command forecast assembles the stargazing forecast for the configured
// location. By default it runs as a service that refreshes on
// REFRESH_INTERVAL, serves the newest bundle over HTTP, and optionally
// publishes it to Kafka. With -once it assembles a single bundle, prints it
// as JSON, and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/stargazing-forecast/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/stargazing-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/stargazing-forecast/internal/adapter/nws"
	"github.com/couchcryptid/stargazing-forecast/internal/adapter/rdps"
	"github.com/couchcryptid/stargazing-forecast/internal/adapter/swpc"
	"github.com/couchcryptid/stargazing-forecast/internal/config"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
	"github.com/couchcryptid/stargazing-forecast/internal/pipeline"
)

func main() {
	once := flag.Bool("once", false, "assemble one forecast, print it as JSON, and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	loc, err := domain.NewGeoPoint(cfg.Latitude, cfg.Longitude, cfg.ElevationM)
	if err != nil {
		logger.Error("invalid forecast location", "error", err)
		os.Exit(1)
	}
	assembler, err := newAssembler(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build assembler", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := printOnce(ctx, assembler, loc); err != nil {
			logger.Error("forecast failed", "error", err)
			stop()
			os.Exit(1)
		}
		return
	}

	var opts []pipeline.Option
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(assembler, loc, cfg.RefreshInterval, logger, metrics, opts...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger, httpadapter.WithPhaseSearchDays(cfg.PhaseSearchDays))

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh loop.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newAssembler(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Assembler, error) {
	tempUnit, err := domain.ParseTemperatureUnit(cfg.TempUnit)
	if err != nil {
		return nil, err
	}
	windUnit, err := domain.ParseWindUnit(cfg.WindUnit)
	if err != nil {
		return nil, err
	}

	grids := rdps.NewProvider(cfg.GridDir, logger)
	points := nws.NewClient(nws.Config{
		BaseURL:   cfg.NWSBaseURL,
		UserAgent: cfg.NWSUserAgent,
		Timeout:   cfg.HTTPTimeout,
		RPS:       cfg.NWSRPS,
		CacheSize: cfg.NWSCacheSize,
	}, logger, metrics)
	geomag := swpc.NewClient(cfg.SWPCKpURL, cfg.SWPCForecastURL, cfg.NWSUserAgent, cfg.HTTPTimeout, logger, metrics)

	return pipeline.NewAssembler(grids, points, geomag, clockwork.NewRealClock(), pipeline.Options{
		TempUnit:            tempUnit,
		WindUnit:            windUnit,
		TimeZone:            cfg.Location,
		ObservationWindow:   cfg.KpObservationWindow,
		PredictionTolerance: cfg.KpPredictionWindow,
		EphemerisStep:       cfg.EphemerisStep,
	}, logger, metrics), nil
}

func printOnce(ctx context.Context, a *pipeline.Assembler, loc domain.GeoPoint) error {
	b, err := a.Assemble(ctx, loc, domain.Window{})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}
