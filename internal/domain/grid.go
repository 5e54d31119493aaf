package domain

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// maxMercatorLat is the latitude at which web-Mercator is clipped.
const maxMercatorLat = 85.05112878

// CellCoord locates one cell of a gridded field.
type CellCoord struct {
	Index     int     `json:"index"` // row-major position, set by NewGriddedField
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GridCell is a cell together with its value at one forecast step.
type GridCell struct {
	CellCoord
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// GriddedField is one model variable over a 2-D grid and several forecast
// steps. It is immutable once built.
type GriddedField struct {
	name   string
	unit   Unit
	run    time.Time
	rows   int
	cols   int
	coords []CellCoord
	steps  []time.Duration
	layers [][]float64
	merc   []orb.Point
}

// NewGriddedField validates and builds a field. coords are in row-major order
// and every layer holds one value per coord, aligned with steps.
func NewGriddedField(name string, unit Unit, run time.Time, rows, cols int,
	coords []CellCoord, steps []time.Duration, layers [][]float64) (*GriddedField, error) {
	if rows < 0 || cols < 0 || len(coords) != rows*cols {
		return nil, fmt.Errorf("%w: %s: %d coords for a %dx%d grid", ErrValidation, name, len(coords), rows, cols)
	}
	if len(layers) != len(steps) {
		return nil, fmt.Errorf("%w: %s: %d layers for %d steps", ErrValidation, name, len(layers), len(steps))
	}
	if len(coords) > 0 && len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s: no forecast steps", ErrValidation, name)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] <= steps[i-1] {
			return nil, fmt.Errorf("%w: %s: steps not strictly increasing", ErrValidation, name)
		}
	}
	for i, l := range layers {
		if len(l) != len(coords) {
			return nil, fmt.Errorf("%w: %s: layer %d has %d values, want %d", ErrValidation, name, i, len(l), len(coords))
		}
	}

	f := &GriddedField{
		name:   name,
		unit:   unit,
		run:    run,
		rows:   rows,
		cols:   cols,
		coords: make([]CellCoord, len(coords)),
		steps:  append([]time.Duration(nil), steps...),
		layers: make([][]float64, len(layers)),
		merc:   make([]orb.Point, len(coords)),
	}
	for i, c := range coords {
		if !(c.Latitude >= -90 && c.Latitude <= 90) || !(c.Longitude >= -180 && c.Longitude <= 180) {
			return nil, fmt.Errorf("%w: %s: cell %d at (%v, %v) out of range", ErrValidation, name, i, c.Latitude, c.Longitude)
		}
		c.Index = i
		f.coords[i] = c
		f.merc[i] = toMercator(c.Latitude, c.Longitude)
	}
	for i, l := range layers {
		f.layers[i] = append([]float64(nil), l...)
	}
	return f, nil
}

func (f *GriddedField) Name() string        { return f.name }
func (f *GriddedField) Unit() Unit          { return f.unit }
func (f *GriddedField) RunStart() time.Time { return f.run }
func (f *GriddedField) Len() int            { return len(f.coords) }
func (f *GriddedField) Shape() (rows, cols int) {
	return f.rows, f.cols
}

// Times returns the valid time of every forecast step.
func (f *GriddedField) Times() []time.Time {
	out := make([]time.Time, len(f.steps))
	for i, s := range f.steps {
		out[i] = f.run.Add(s)
	}
	return out
}

// Cell returns cell idx (row-major) at the given step.
func (f *GriddedField) Cell(step, idx int) GridCell {
	return GridCell{
		CellCoord: f.coords[idx],
		Value:     f.layers[step][idx],
		Time:      f.run.Add(f.steps[step]),
	}
}

// Series extracts the value of cell idx at every step. Each record lasts until
// the next step; the last one uses the median step spacing (one hour for a
// single-step field).
func (f *GriddedField) Series(idx int, tz *time.Location) TimeSeries {
	if tz == nil {
		tz = time.UTC
	}
	last := f.medianSpacing()
	ts := TimeSeries{Variable: f.name, Unit: f.unit, TimeZone: tz.String()}
	for i := range f.steps {
		dur := last
		if i+1 < len(f.steps) {
			dur = f.steps[i+1] - f.steps[i]
		}
		ts.Records = append(ts.Records, Record{
			Start:    f.run.Add(f.steps[i]).In(tz),
			Duration: dur,
			Value:    f.layers[i][idx],
		})
	}
	return ts
}

func (f *GriddedField) medianSpacing() time.Duration {
	if len(f.steps) < 2 {
		return time.Hour
	}
	gaps := make([]time.Duration, 0, len(f.steps)-1)
	for i := 1; i < len(f.steps); i++ {
		gaps = append(gaps, f.steps[i]-f.steps[i-1])
	}
	slices.Sort(gaps)
	return gaps[len(gaps)/2]
}

// NearestCell returns the cell closest to p, valued at the first forecast
// step, and its distance in projected metres. Ties keep the first cell in
// row-major order.
func NearestCell(f *GriddedField, p GeoPoint) (GridCell, float64, error) {
	if f == nil || len(f.coords) == 0 {
		return GridCell{}, 0, ErrEmptyGrid
	}
	q := toMercator(p.Latitude(), p.Longitude())
	best, bestDist := 0, math.Inf(1)
	for i, c := range f.merc {
		if d := planar.Distance(q, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return f.Cell(0, best), bestDist, nil
}

func toMercator(lat, lon float64) orb.Point {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	return project.WGS84.ToMercator(orb.Point{lon, lat})
}

// NormalizeLongitude maps a longitude in [0, 360) or any other wrap onto [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}
