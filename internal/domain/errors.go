package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every failure raised by the core wraps exactly one of these
// so callers can branch with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrEmptyGrid           = errors.New("grid has no cells")
	ErrUnsupportedUnit     = errors.New("unsupported unit")
	ErrMalformedFeed       = errors.New("malformed feed")
	ErrUnclassifiablePhase = errors.New("unclassifiable moon phase")
	ErrPhaseNotFound       = errors.New("moon phase not found")
	ErrIncompleteForecast  = errors.New("incomplete forecast")
)

// IncompleteForecastError reports which sub-source stopped a forecast from
// being assembled. It matches both ErrIncompleteForecast and the cause.
type IncompleteForecastError struct {
	Source string
	Err    error
}

func (e *IncompleteForecastError) Error() string {
	return fmt.Sprintf("incomplete forecast: %s: %v", e.Source, e.Err)
}

func (e *IncompleteForecastError) Unwrap() []error {
	return []error{ErrIncompleteForecast, e.Err}
}

// NewIncompleteForecastError wraps err with the failing source name.
func NewIncompleteForecastError(source string, err error) error {
	return &IncompleteForecastError{Source: source, Err: err}
}
