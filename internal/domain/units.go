package domain

import (
	"fmt"
	"strings"
)

// Unit tags the physical unit of a value.
type Unit string

const (
	UnitCelsius    Unit = "C"
	UnitFahrenheit Unit = "F"
	UnitKMH        Unit = "km/hr"
	UnitMPH        Unit = "mph"
	UnitPercent    Unit = "%"
	UnitDegrees    Unit = "deg"
	UnitIndex      Unit = "index" // 1..5 seeing / transparency scale
	UnitKp         Unit = "Kp"
)

// CelsiusToFahrenheit converts degrees Celsius to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 { return 9.0/5.0*c + 32 }

// FahrenheitToCelsius converts degrees Fahrenheit to Celsius.
func FahrenheitToCelsius(f float64) float64 { return (f - 32) * 5.0 / 9.0 }

const mphPerKMH = 0.6213712

// KMHToMPH converts km/h to mph.
func KMHToMPH(kmh float64) float64 { return mphPerKMH * kmh }

// MPHToKMH converts mph to km/h.
func MPHToKMH(mph float64) float64 { return mph / mphPerKMH }

type unitPair struct{ from, to Unit }

var conversions = map[unitPair]func(float64) float64{
	{UnitCelsius, UnitFahrenheit}: CelsiusToFahrenheit,
	{UnitFahrenheit, UnitCelsius}: FahrenheitToCelsius,
	{UnitKMH, UnitMPH}:            KMHToMPH,
	{UnitMPH, UnitKMH}:            MPHToKMH,
}

// Convert converts v from one unit to another. Matching units pass through
// unchanged; any other pair without a table entry fails with ErrUnsupportedUnit.
func Convert(v float64, from, to Unit) (float64, error) {
	if from == to {
		return v, nil
	}
	fn, ok := conversions[unitPair{from, to}]
	if !ok {
		return 0, fmt.Errorf("%w: %s to %s", ErrUnsupportedUnit, from, to)
	}
	return fn(v), nil
}

// ParseTemperatureUnit accepts "F" or "C".
func ParseTemperatureUnit(s string) (Unit, error) {
	switch u := Unit(strings.TrimSpace(s)); u {
	case UnitFahrenheit, UnitCelsius:
		return u, nil
	}
	return "", fmt.Errorf("%w: invalid temperature unit %q, must be \"C\" or \"F\"", ErrValidation, s)
}

// ParseWindUnit accepts "mph" or "km/hr".
func ParseWindUnit(s string) (Unit, error) {
	switch u := Unit(strings.TrimSpace(s)); u {
	case UnitMPH, UnitKMH:
		return u, nil
	}
	return "", fmt.Errorf("%w: invalid wind unit %q, must be \"km/hr\" or \"mph\"", ErrValidation, s)
}

// wmoUnits maps the unit-of-measure codes used by point forecast payloads.
var wmoUnits = map[string]Unit{
	"wmoUnit:degC":           UnitCelsius,
	"wmoUnit:degF":           UnitFahrenheit,
	"wmoUnit:percent":        UnitPercent,
	"wmoUnit:km_h-1":         UnitKMH,
	"wmoUnit:degree_(angle)": UnitDegrees,
}

// ParseWMOUnit resolves a "wmoUnit:..." code.
func ParseWMOUnit(uom string) (Unit, error) {
	u, ok := wmoUnits[strings.TrimSpace(uom)]
	if !ok {
		return "", fmt.Errorf("%w: unit of measure %q", ErrUnsupportedUnit, uom)
	}
	return u, nil
}
