package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhaseLabel(t *testing.T) {
	tests := []struct {
		in       string
		expected PhaseLabel
	}{
		{"Full Moon", FullMoon},
		{"full  moon", FullMoon},
		{"NEW MOON", NewMoon},
		{"Last Quarter", ThirdQuarter},
		{"waxing gibbous", WaxingGibbous},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePhaseLabel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := ParsePhaseLabel("Blue Moon")
	require.ErrorIs(t, err, ErrValidation)
}

func TestClassifyDarkness(t *testing.T) {
	assert.Equal(t, Daylight, ClassifyDarkness(0))
	assert.Equal(t, Twilight, ClassifyDarkness(-0.1))
	assert.Equal(t, Twilight, ClassifyDarkness(-18))
	assert.Equal(t, AstronomicalNight, ClassifyDarkness(-18.01))
}

func TestDarknessIntervals(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	alts := []float64{5, 1, -3, -10, -20, -25, -12}
	var sun []CelestialAltitude
	for i, a := range alts {
		sun = append(sun, CelestialAltitude{Time: base.Add(time.Duration(i) * time.Hour), Body: Sun, AltitudeDeg: a})
	}

	got := DarknessIntervals(sun)

	require.Len(t, got, 4)
	assert.Equal(t, Daylight, got[0].Darkness)
	assert.Equal(t, base.Add(2*time.Hour), got[0].End)
	assert.Equal(t, Twilight, got[1].Darkness)
	assert.Equal(t, AstronomicalNight, got[2].Darkness)
	assert.Equal(t, base.Add(4*time.Hour), got[2].Start)
	assert.Equal(t, base.Add(6*time.Hour), got[2].End)
	assert.Equal(t, base.Add(6*time.Hour), got[3].Start)
	assert.Equal(t, base.Add(6*time.Hour), got[3].End)

	assert.Empty(t, DarknessIntervals(nil))
}

func TestQualityLabel(t *testing.T) {
	assert.Equal(t, "Poor", QualityLabel(1))
	assert.Equal(t, "Below Average", QualityLabel(2))
	assert.Equal(t, "Average", QualityLabel(3))
	assert.Equal(t, "Above Average", QualityLabel(4))
	assert.Equal(t, "Excellent", QualityLabel(5))
}

func validBundle() ForecastBundle {
	b := ForecastBundle{
		TimeZone:     "UTC",
		TempUnit:     UnitFahrenheit,
		WindUnit:     UnitMPH,
		Seeing:       GridForecast{Series: TimeSeries{Variable: VarSeeing, TimeZone: "UTC"}},
		Transparency: GridForecast{Series: TimeSeries{Variable: VarTransparency, TimeZone: "UTC"}},
		Point:        map[string]TimeSeries{},
	}
	units := map[string]Unit{
		VarCloudCover:        UnitPercent,
		VarTemperature:       UnitFahrenheit,
		VarDewpoint:          UnitFahrenheit,
		VarPrecipProbability: UnitPercent,
		VarWindSpeed:         UnitMPH,
		VarWindGust:          UnitMPH,
		VarWindDirection:     UnitDegrees,
	}
	for name, u := range units {
		b.Point[name] = TimeSeries{Variable: name, Unit: u, TimeZone: "UTC"}
	}
	return b
}

func TestForecastBundle_Validate(t *testing.T) {
	require.NoError(t, validBundle().Validate())

	t.Run("timezone mismatch", func(t *testing.T) {
		b := validBundle()
		b.Seeing.Series.TimeZone = "America/Denver"
		require.ErrorIs(t, b.Validate(), ErrValidation)
	})

	t.Run("unit mismatch", func(t *testing.T) {
		b := validBundle()
		ts := b.Point[VarWindGust]
		ts.Unit = UnitKMH
		b.Point[VarWindGust] = ts
		require.ErrorIs(t, b.Validate(), ErrValidation)
	})

	t.Run("missing series", func(t *testing.T) {
		b := validBundle()
		delete(b.Point, VarDewpoint)
		require.ErrorIs(t, b.Validate(), ErrValidation)
	})
}

func TestIncompleteForecastError(t *testing.T) {
	cause := fmt.Errorf("%w: bad row", ErrMalformedFeed)
	err := fmt.Errorf("assemble: %w", NewIncompleteForecastError("geomagnetic", cause))

	assert.ErrorIs(t, err, ErrIncompleteForecast)
	assert.ErrorIs(t, err, ErrMalformedFeed)

	var ife *IncompleteForecastError
	require.True(t, errors.As(err, &ife))
	assert.Equal(t, "geomagnetic", ife.Source)
	assert.Contains(t, err.Error(), "geomagnetic")
}

func TestWindow_Check(t *testing.T) {
	start := time.Date(2024, 12, 29, 18, 0, 0, 0, time.UTC)

	require.NoError(t, Window{}.Check())
	require.NoError(t, Window{Start: start, End: start.Add(time.Hour)}.Check())

	for name, w := range map[string]Window{
		"start only": {Start: start},
		"end only":   {End: start},
		"empty":      {Start: start, End: start},
		"reversed":   {Start: start.Add(time.Hour), End: start},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, w.Check(), ErrValidation)
		})
	}
}
