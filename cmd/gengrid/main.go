// Command gengrid writes a synthetic seeing and transparency model run into a
// grid cache directory, for local development and demos without access to the
// model's decoded layers.
//
// Usage:
//
//	go run ./cmd/gengrid -out ./forecast_maps -lat 39.236 -lon -120.026 [-steps 48] [-format parquet]
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/stargazing-forecast/internal/adapter/rdps"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

// Grid spacing of the regional model, roughly 10 km.
const (
	spacingM   = 10000.0
	spacingDeg = 0.09
)

func main() {
	out := flag.String("out", "./forecast_maps", "grid cache directory")
	lat := flag.Float64("lat", 39.236, "grid centre latitude")
	lon := flag.Float64("lon", -120.026, "grid centre longitude")
	size := flag.Int("size", 5, "cells per side")
	steps := flag.Int("steps", 24, "hourly forecast steps")
	format := flag.String("format", rdps.FormatCSVGz, "layer format: csv.gz or parquet")
	flag.Parse()

	if err := run(*out, *lat, *lon, *size, *steps, *format); err != nil {
		log.Fatal(err)
	}
}

func run(out string, lat, lon float64, size, steps int, format string) error {
	if _, err := domain.NewGeoPoint(lat, lon, 0); err != nil {
		return err
	}
	if size < 1 || steps < 1 {
		return fmt.Errorf("size and steps must be positive")
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	modelRun := time.Now().UTC().Truncate(12 * time.Hour)
	var files int
	for _, variable := range []string{domain.VarSeeing, domain.VarTransparency} {
		for step := 1; step <= steps; step++ {
			d := time.Duration(step) * time.Hour
			name, err := rdps.LayerName(modelRun, variable, d, format)
			if err != nil {
				return err
			}
			rows := layer(lat, lon, size, step, variable == domain.VarSeeing)
			if err := rdps.WriteLayer(filepath.Join(out, name), format, rows); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			files++
		}
	}
	log.Printf("run %s: wrote %d layers to %s", modelRun.Format(time.RFC3339), files, out)
	return nil
}

// layer fills a size x size grid with index values on the 1..5 scale that
// drift smoothly through the run.
func layer(lat, lon float64, size, step int, seeing bool) []rdps.Row {
	phase := 0.0
	if seeing {
		phase = math.Pi / 3
	}
	half := float64(size-1) / 2
	rows := make([]rdps.Row, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := 3 + 2*math.Sin(float64(step)/6+float64(x+y)/4+phase)
			rows = append(rows, rdps.Row{
				X:         float64(x) * spacingM,
				Y:         float64(y) * spacingM,
				Latitude:  lat + (float64(y)-half)*spacingDeg,
				Longitude: domain.NormalizeLongitude(lon + (float64(x)-half)*spacingDeg),
				Value:     math.Round(v),
			})
		}
	}
	return rows
}
