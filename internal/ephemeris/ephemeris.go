package ephemeris

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

// DefaultSearchDays bounds NextOccurrence when no limit is given.
const DefaultSearchDays = 30

// Altitudes returns the topocentric altitude of body at each instant, in the
// same order as times.
func Altitudes(times []time.Time, loc domain.GeoPoint, body domain.Body) ([]domain.CelestialAltitude, error) {
	var position func(T float64, n nutation) ecliptic
	switch body {
	case domain.Sun:
		position = sunPosition
	case domain.Moon:
		position = moonPosition
	default:
		return nil, fmt.Errorf("%w: unknown body %q", domain.ErrValidation, body)
	}

	obs := newObserver(loc.Latitude(), loc.Longitude(), loc.ElevationM())
	out := make([]domain.CelestialAltitude, len(times))
	for i, t := range times {
		jd := julianDay(t)
		T := centuries(jd)
		n := nutationAt(T)
		p := position(T, n)
		ra, dec := equatorial(p, n.epsilon)
		out[i] = domain.CelestialAltitude{
			Time:        t,
			Body:        body,
			AltitudeDeg: obs.altitude(ra, dec, p.distKM, apparentSidereal(jd, n)),
		}
	}
	return out, nil
}

// Samples returns instants from start to end inclusive, step apart.
func Samples(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 || end.Before(start) {
		return nil
	}
	var out []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// PhaseAngle returns the Moon's phase angle in radians, in (-pi, pi]. Zero is
// full, +-pi is new, negative while waxing.
func PhaseAngle(t time.Time) float64 {
	T := centuries(julianDay(t))
	n := nutationAt(T)
	sun := sunPosition(T, n)
	moon := moonPosition(T, n)

	elong := math.Mod((sun.lon-moon.lon)*deg, 2*math.Pi)
	if elong < 0 {
		elong += 2 * math.Pi
	}
	return math.Atan2(sun.distKM*math.Sin(elong), moon.distKM-sun.distKM*math.Cos(elong))
}

// Illumination returns the illuminated fraction of the disc, in percent.
func Illumination(phaseAngle float64) float64 {
	return 100 * (1 + math.Cos(phaseAngle)) / 2
}

// phaseWindow is the half-width of the quarter and syzygy windows.
const phaseWindow = math.Pi / 28

// ClassifyPhase labels a phase angle. The four principal phases win within
// phaseWindow of their exact angle; otherwise the angle falls into one of the
// four intermediate phases.
func ClassifyPhase(pa float64) (domain.PhaseLabel, error) {
	switch {
	case math.Abs(pa) <= phaseWindow:
		return domain.FullMoon, nil
	case math.Abs(math.Abs(pa)-math.Pi) <= phaseWindow:
		return domain.NewMoon, nil
	case math.Abs(pa-math.Pi/2) <= phaseWindow:
		return domain.ThirdQuarter, nil
	case math.Abs(pa+math.Pi/2) <= phaseWindow:
		return domain.FirstQuarter, nil
	case pa >= 0 && pa <= math.Pi/2:
		return domain.WaningGibbous, nil
	case pa >= math.Pi/2:
		return domain.WaningCrescent, nil
	case pa <= -math.Pi/2:
		return domain.WaxingCrescent, nil
	case pa <= 0:
		return domain.WaxingGibbous, nil
	}
	return "", fmt.Errorf("%w: phase angle %v", domain.ErrUnclassifiablePhase, pa)
}

// MoonPhaseAt returns the phase at t.
func MoonPhaseAt(t time.Time) (domain.MoonPhase, error) {
	pa := PhaseAngle(t)
	label, err := ClassifyPhase(pa)
	if err != nil {
		return domain.MoonPhase{}, err
	}
	return domain.MoonPhase{
		Time:            t,
		Label:           label,
		IlluminationPct: Illumination(pa),
		PhaseAngleRad:   pa,
	}, nil
}

// NextOccurrence steps one day at a time from from, checking the phase at the
// same time of day, and returns the civil date (in from's location) of the
// first day whose phase is target. Offsets 0 through maxDays are checked; a
// non-positive maxDays uses DefaultSearchDays.
func NextOccurrence(target domain.PhaseLabel, from time.Time, maxDays int) (time.Time, error) {
	target, err := domain.ParsePhaseLabel(string(target))
	if err != nil {
		return time.Time{}, err
	}
	if maxDays <= 0 {
		maxDays = DefaultSearchDays
	}

	for i := 0; i <= maxDays; i++ {
		t := from.AddDate(0, 0, i)
		phase, err := MoonPhaseAt(t)
		if err != nil {
			return time.Time{}, err
		}
		if phase.Label == target {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, from.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s within %d days of %s",
		domain.ErrPhaseNotFound, target, maxDays, from.Format("2006-01-02"))
}
