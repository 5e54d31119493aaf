// Package rdps reads decoded Regional Deterministic Prediction System
// astronomy layers (seeing and transparency) from a local cache directory.
//
// Each file holds one variable at one forecast step of one model run:
//
//	<RUN:YYYYMMDDHH>_<SEEI|TRSP>_P<HHH>.<csv.gz|parquet>
//
// with columns x, y, latitude, longitude, value. Only the most recent run
// present in the directory is used.
package rdps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

var layerNameRe = regexp.MustCompile(`^(\d{10})_(SEEI|TRSP)_P(\d{3})\.(csv\.gz|parquet)$`)

// Model variable codes and the forecast variables they carry.
var variables = map[string]string{
	"SEEI": domain.VarSeeing,
	"TRSP": domain.VarTransparency,
}

type layerFile struct {
	path   string
	run    string
	code   string
	step   time.Duration
	format string
}

// Provider implements the grid provider over a directory of layer files.
type Provider struct {
	dir    string
	logger *slog.Logger
}

// NewProvider creates a Provider reading from dir.
func NewProvider(dir string, logger *slog.Logger) *Provider {
	return &Provider{dir: dir, logger: logger.With("component", "rdps")}
}

// Fields loads the seeing and transparency fields of the latest run.
func (p *Provider) Fields(ctx context.Context) (seeing, transparency *domain.GriddedField, err error) {
	files, err := p.scan()
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%w: no grid layers in %s", domain.ErrMalformedFeed, p.dir)
	}

	run := files[0].run
	for _, f := range files[1:] {
		if f.run > run {
			run = f.run
		}
	}
	runStart, err := time.Parse("2006010215", run)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: run %q: %v", domain.ErrMalformedFeed, run, err)
	}

	seeing, err = p.loadField(ctx, files, run, runStart, "SEEI")
	if err != nil {
		return nil, nil, err
	}
	transparency, err = p.loadField(ctx, files, run, runStart, "TRSP")
	if err != nil {
		return nil, nil, err
	}

	p.logger.Info("grid fields loaded", "run", run, "steps", len(seeing.Times()), "cells", seeing.Len())
	return seeing, transparency, nil
}

func (p *Provider) scan() ([]layerFile, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read grid dir: %w", err)
	}
	var files []layerFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := layerNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		hours, _ := strconv.Atoi(m[3])
		files = append(files, layerFile{
			path:   filepath.Join(p.dir, e.Name()),
			run:    m[1],
			code:   m[2],
			step:   time.Duration(hours) * time.Hour,
			format: m[4],
		})
	}
	return files, nil
}

func (p *Provider) loadField(ctx context.Context, files []layerFile, run string, runStart time.Time, code string) (*domain.GriddedField, error) {
	var layers []layerFile
	for _, f := range files {
		if f.run == run && f.code == code {
			layers = append(layers, f)
		}
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: run %s has no %s layers", domain.ErrMalformedFeed, run, code)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i].step < layers[j].step })

	var (
		g      *gridIndex
		steps  []time.Duration
		values [][]float64
	)
	for i, lf := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && lf.step == layers[i-1].step {
			return nil, fmt.Errorf("%w: %s step %s present twice", domain.ErrMalformedFeed, code, lf.step)
		}

		rows, err := readLayer(lf.path, lf.format)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedFeed, filepath.Base(lf.path), err)
		}
		if g == nil {
			if g, err = newGridIndex(rows); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedFeed, filepath.Base(lf.path), err)
			}
		}
		layer, err := g.layer(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedFeed, filepath.Base(lf.path), err)
		}
		steps = append(steps, lf.step)
		values = append(values, layer)
	}

	return domain.NewGriddedField(variables[code], domain.UnitIndex, runStart, g.rows, g.cols, g.coords, steps, values)
}

// gridIndex fixes the row-major layout of a grid from its first layer.
type gridIndex struct {
	rows, cols int
	coords     []domain.CellCoord
	pos        map[[2]float64]int
}

func newGridIndex(rows []Row) (*gridIndex, error) {
	var xs, ys []float64
	for _, r := range rows {
		xs = append(xs, r.X)
		ys = append(ys, r.Y)
	}
	slices.Sort(xs)
	slices.Sort(ys)
	xs = slices.Compact(xs)
	ys = slices.Compact(ys)
	if len(xs)*len(ys) != len(rows) {
		return nil, fmt.Errorf("%d cells do not form a %dx%d grid", len(rows), len(ys), len(xs))
	}

	g := &gridIndex{
		rows:   len(ys),
		cols:   len(xs),
		coords: make([]domain.CellCoord, len(rows)),
		pos:    make(map[[2]float64]int, len(rows)),
	}
	for _, r := range rows {
		row, _ := slices.BinarySearch(ys, r.Y)
		col, _ := slices.BinarySearch(xs, r.X)
		i := row*g.cols + col
		if _, dup := g.pos[[2]float64{r.X, r.Y}]; dup {
			return nil, fmt.Errorf("duplicate cell (%v, %v)", r.X, r.Y)
		}
		g.pos[[2]float64{r.X, r.Y}] = i
		g.coords[i] = domain.CellCoord{
			Row:       row,
			Col:       col,
			X:         r.X,
			Y:         r.Y,
			Latitude:  r.Latitude,
			Longitude: domain.NormalizeLongitude(r.Longitude),
		}
	}
	return g, nil
}

func (g *gridIndex) layer(rows []Row) ([]float64, error) {
	if len(rows) != len(g.coords) {
		return nil, fmt.Errorf("%d cells, want %d", len(rows), len(g.coords))
	}
	out := make([]float64, len(g.coords))
	seen := make([]bool, len(g.coords))
	for _, r := range rows {
		i, ok := g.pos[[2]float64{r.X, r.Y}]
		if !ok || seen[i] {
			return nil, fmt.Errorf("unexpected cell (%v, %v)", r.X, r.Y)
		}
		seen[i] = true
		out[i] = r.Value
	}
	return out, nil
}
