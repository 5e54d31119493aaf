package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeoPoint(t *testing.T) {
	tests := []struct {
		name          string
		lat, lon, elv float64
		wantErr       bool
	}{
		{"lake tahoe", 39.236, -120.026, 1900, false},
		{"north pole", 90, 0, 0, false},
		{"antimeridian", 0, -180, 0, false},
		{"lat too high", 90.0001, 0, 0, true},
		{"lon too low", 0, -180.5, 0, true},
		{"negative elevation", 0, 0, -1, true},
		{"nan latitude", math.NaN(), 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewGeoPoint(tt.lat, tt.lon, tt.elv)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, p.Latitude())
			assert.Equal(t, tt.lon, p.Longitude())
			assert.Equal(t, tt.elv, p.ElevationM())
		})
	}
}

func TestGeoPoint_JSON(t *testing.T) {
	data, err := json.Marshal(MustGeoPoint(39.236, -120.026, 10))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":39.236,"lon":-120.026,"elevation_m":10}`, string(data))

	var p GeoPoint
	err = json.Unmarshal([]byte(`{"lat":123,"lon":0}`), &p)
	require.ErrorIs(t, err, ErrValidation)
}
