package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// GeoPoint is an observer location on the WGS-84 ellipsoid. The zero value is
// the origin at sea level; any other value must come from NewGeoPoint.
type GeoPoint struct {
	lat  float64
	lon  float64
	elev float64
}

// NewGeoPoint validates and builds a GeoPoint.
func NewGeoPoint(lat, lon, elevationM float64) (GeoPoint, error) {
	switch {
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return GeoPoint{}, fmt.Errorf("%w: invalid latitude %v", ErrValidation, lat)
	case math.IsNaN(lon) || lon < -180 || lon > 180:
		return GeoPoint{}, fmt.Errorf("%w: invalid longitude %v", ErrValidation, lon)
	case math.IsNaN(elevationM) || elevationM < 0:
		return GeoPoint{}, fmt.Errorf("%w: invalid elevation %v", ErrValidation, elevationM)
	}
	return GeoPoint{lat: lat, lon: lon, elev: elevationM}, nil
}

// MustGeoPoint is NewGeoPoint for constants known to be valid.
func MustGeoPoint(lat, lon, elevationM float64) GeoPoint {
	p, err := NewGeoPoint(lat, lon, elevationM)
	if err != nil {
		panic(err)
	}
	return p
}

func (p GeoPoint) Latitude() float64   { return p.lat }
func (p GeoPoint) Longitude() float64  { return p.lon }
func (p GeoPoint) ElevationM() float64 { return p.elev }

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.lat, p.lon)
}

type geoPointJSON struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ElevationM float64 `json:"elevation_m"`
}

func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoPointJSON{Lat: p.lat, Lon: p.lon, ElevationM: p.elev})
}

// UnmarshalJSON applies the same validation as NewGeoPoint.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var v geoPointJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	gp, err := NewGeoPoint(v.Lat, v.Lon, v.ElevationM)
	if err != nil {
		return err
	}
	*p = gp
	return nil
}
