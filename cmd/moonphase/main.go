// Command moonphase prints the current Moon phase and, with -phase, the next
// date that phase occurs.
//
// Usage:
//
//	go run ./cmd/moonphase -phase "full moon" [-days 30] [-at 2024-01-20T12:00:00Z]
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/couchcryptid/stargazing-forecast/internal/config"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/ephemeris"
)

func main() {
	phase := flag.String("phase", "", "phase to search for, e.g. \"Full Moon\" or \"last quarter\"")
	days := flag.Int("days", 0, "search bound in days (default PHASE_SEARCH_DAYS)")
	at := flag.String("at", "", "RFC 3339 instant to evaluate instead of now")
	flag.Parse()

	if err := run(*phase, *days, *at); err != nil {
		log.Fatal(err)
	}
}

func run(phase string, days int, at string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tz := cfg.Location
	if days <= 0 {
		days = cfg.PhaseSearchDays
	}

	now := time.Now().In(tz)
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("-at: %w", err)
		}
		now = t.In(tz)
	}

	current, err := ephemeris.MoonPhaseAt(now)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s (%.1f%% illuminated)\n", now.Format("2006-01-02 15:04 MST"), current.Label, current.IlluminationPct)

	if phase == "" {
		return nil
	}
	target, err := domain.ParsePhaseLabel(phase)
	if err != nil {
		return err
	}
	date, err := ephemeris.NextOccurrence(target, now, days)
	if err != nil {
		return err
	}
	fmt.Printf("Next %s: %s\n", target, date.Format("Mon Jan 2, 2006"))
	return nil
}
