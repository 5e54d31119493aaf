package domain

import (
	"fmt"
	"strings"
	"time"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether neither bound is set.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Check rejects a window with a single bound or with End not after Start.
// The zero window is accepted.
func (w Window) Check() error {
	if w.IsZero() {
		return nil
	}
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: window needs both start and end", ErrValidation)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: window end %s not after start %s", ErrValidation, w.End, w.Start)
	}
	return nil
}

// Contains reports whether t lies within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Body is a celestial body tracked by the ephemeris.
type Body string

const (
	Sun  Body = "sun"
	Moon Body = "moon"
)

// CelestialAltitude is a body's topocentric altitude above the horizon.
type CelestialAltitude struct {
	Time        time.Time `json:"time"`
	Body        Body      `json:"body"`
	AltitudeDeg float64   `json:"altitude_deg"`
}

// PhaseLabel names one of the eight lunar phases.
type PhaseLabel string

const (
	NewMoon        PhaseLabel = "New Moon"
	WaxingCrescent PhaseLabel = "Waxing Crescent"
	FirstQuarter   PhaseLabel = "First Quarter"
	WaxingGibbous  PhaseLabel = "Waxing Gibbous"
	FullMoon       PhaseLabel = "Full Moon"
	WaningGibbous  PhaseLabel = "Waning Gibbous"
	ThirdQuarter   PhaseLabel = "Third Quarter"
	WaningCrescent PhaseLabel = "Waning Crescent"
)

// PhaseLabels lists the phases in lunation order.
var PhaseLabels = []PhaseLabel{
	NewMoon, WaxingCrescent, FirstQuarter, WaxingGibbous,
	FullMoon, WaningGibbous, ThirdQuarter, WaningCrescent,
}

// ParsePhaseLabel matches a phase name case-insensitively. "Last Quarter" is
// accepted for Third Quarter.
func ParsePhaseLabel(s string) (PhaseLabel, error) {
	name := strings.Join(strings.Fields(s), " ")
	if strings.EqualFold(name, "Last Quarter") {
		return ThirdQuarter, nil
	}
	for _, l := range PhaseLabels {
		if strings.EqualFold(name, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: unknown moon phase %q", ErrValidation, s)
}

// MoonPhase is the lunar phase at an instant.
type MoonPhase struct {
	Time            time.Time  `json:"time"`
	Label           PhaseLabel `json:"label"`
	IlluminationPct float64    `json:"illumination_pct"`
	PhaseAngleRad   float64    `json:"phase_angle_rad"`
}

// Darkness classifies the sky by the Sun's altitude.
type Darkness string

const (
	Daylight          Darkness = "day"
	Twilight          Darkness = "twilight"
	AstronomicalNight Darkness = "night"
)

// ClassifyDarkness returns Daylight above the horizon, Twilight down to -18
// degrees and AstronomicalNight below that.
func ClassifyDarkness(sunAltitudeDeg float64) Darkness {
	switch {
	case sunAltitudeDeg >= 0:
		return Daylight
	case sunAltitudeDeg >= -18:
		return Twilight
	default:
		return AstronomicalNight
	}
}

// DarknessInterval is a maximal run of sun samples with the same Darkness.
type DarknessInterval struct {
	Window
	Darkness Darkness `json:"darkness"`
}

// DarknessIntervals groups a sun altitude track into contiguous intervals.
// Each interval ends at the first sample of the next one, or at the last
// sample for the final interval.
func DarknessIntervals(sun []CelestialAltitude) []DarknessInterval {
	var out []DarknessInterval
	for _, s := range sun {
		d := ClassifyDarkness(s.AltitudeDeg)
		n := len(out)
		if n > 0 {
			out[n-1].End = s.Time
			if out[n-1].Darkness == d {
				continue
			}
		}
		out = append(out, DarknessInterval{Window: Window{Start: s.Time, End: s.Time}, Darkness: d})
	}
	return out
}

// QualityLabel names a point on the 1..5 seeing and transparency scale.
func QualityLabel(index float64) string {
	switch {
	case index < 1.5:
		return "Poor"
	case index < 2.5:
		return "Below Average"
	case index < 3.5:
		return "Average"
	case index < 4.5:
		return "Above Average"
	default:
		return "Excellent"
	}
}

// GridForecast is a gridded field resolved at the observer's nearest cell.
type GridForecast struct {
	Cell      CellCoord  `json:"cell"`
	DistanceM float64    `json:"distance_m"`
	Series    TimeSeries `json:"series"`
}

// GeomagneticReport holds the observed and predicted Kp samples.
type GeomagneticReport struct {
	Observed  []KpSample `json:"observed"`
	Predicted []KpSample `json:"predicted"`
}

// PointForecast is what a point forecast provider returns: raw series keyed
// by variable plus the location's IANA timezone.
type PointForecast struct {
	TimeZone string
	Series   map[string]RawSeries
}

// ForecastBundle is the fused stargazing forecast for one location.
type ForecastBundle struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Location    GeoPoint  `json:"location"`
	TimeZone    string    `json:"timezone"`
	Window      Window    `json:"window"`
	TempUnit    Unit      `json:"temp_unit"`
	WindUnit    Unit      `json:"wind_unit"`

	Seeing       GridForecast `json:"seeing"`
	Transparency GridForecast `json:"transparency"`

	// Point forecast series keyed by variable name (see PointVariables).
	Point map[string]TimeSeries `json:"point"`

	TemperatureHighs []Record `json:"temperature_highs,omitempty"`
	TemperatureLows  []Record `json:"temperature_lows,omitempty"`

	Geomagnetic GeomagneticReport `json:"geomagnetic"`

	Sun       []CelestialAltitude `json:"sun"`
	Moon      []CelestialAltitude `json:"moon"`
	Darkness  []DarknessInterval  `json:"darkness"`
	MoonPhase MoonPhase           `json:"moon_phase"`
}

// Validate checks that every series shares the bundle's timezone and that
// temperature and wind series carry the requested units.
func (b ForecastBundle) Validate() error {
	series := []TimeSeries{b.Seeing.Series, b.Transparency.Series}
	for _, name := range PointVariables {
		ts, ok := b.Point[name]
		if !ok {
			return fmt.Errorf("%w: missing %s series", ErrValidation, name)
		}
		series = append(series, ts)
	}
	for _, ts := range series {
		if ts.TimeZone != b.TimeZone {
			return fmt.Errorf("%w: %s series in %s, bundle in %s", ErrValidation, ts.Variable, ts.TimeZone, b.TimeZone)
		}
	}

	want := map[string]Unit{
		VarTemperature: b.TempUnit,
		VarDewpoint:    b.TempUnit,
		VarWindSpeed:   b.WindUnit,
		VarWindGust:    b.WindUnit,
	}
	for name, u := range want {
		if got := b.Point[name].Unit; got != u {
			return fmt.Errorf("%w: %s in %s, want %s", ErrValidation, name, got, u)
		}
	}
	return nil
}
