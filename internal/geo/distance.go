// Package geo provides great-circle helpers over WGS-84 coordinates.
package geo

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for surface distances.
const EarthRadiusKm = 6371.0

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within the WGS-84 ranges.
// NaN components are never valid.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

// DistanceKm returns the haversine great-circle distance between a and b.
// s2.LatLng.Distance evaluates the haversine formula on the unit sphere, so the
// angle in radians scales directly by the Earth radius.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusKm
}

// WithinRadius reports whether p is no farther than radiusKm from center.
func WithinRadius(center, p Coordinate, radiusKm float64) bool {
	return DistanceKm(center, p) <= radiusKm
}
