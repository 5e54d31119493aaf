// Command kpalert fetches the planetary Kp observations and prints a
// geomagnetic activity summary suitable for an alert message.
//
// Usage:
//
//	go run ./cmd/kpalert [-storms-only]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/stargazing-forecast/internal/adapter/swpc"
	"github.com/couchcryptid/stargazing-forecast/internal/config"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

func main() {
	stormsOnly := flag.Bool("storms-only", false, "print nothing unless the latest Kp is at storm level")
	flag.Parse()

	if err := run(*stormsOnly); err != nil {
		log.Fatal(err)
	}
}

func run(stormsOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := swpc.NewClient(cfg.SWPCKpURL, cfg.SWPCForecastURL, cfg.NWSUserAgent, cfg.HTTPTimeout,
		logger, observability.NewMetrics())
	raw, err := client.Observations(ctx)
	if err != nil {
		return fmt.Errorf("fetch kp observations: %w", err)
	}
	obs, err := domain.ParseObservations(raw, cfg.KpObservationWindow)
	if err != nil {
		return err
	}
	summary, err := domain.SummarizeKp(obs)
	if err != nil {
		return err
	}

	logger.Info("kp summary", "is_storm", summary.IsStorm, "current_kp", summary.Current.Kp, "max_kp", summary.Maximum.Kp)
	if stormsOnly && !summary.IsStorm {
		return nil
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n\n%s\n", summary.Header, summary.Message)
	return err
}
