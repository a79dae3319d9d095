package domain

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// Field constraints.
const (
	MaxTitleLen      = 300
	MaxMagnitude     = 10.0
	MinLatitude      = -90.0
	MaxLatitude      = 90.0
	MinLongitude     = -180.0
	MaxLongitude     = 180.0
	titleFieldName   = "title"
	requiredFieldMsg = "required"
)

// Validate checks every field constraint and returns a *ValidationError
// listing all violations, or nil.
func (a Alert) Validate() error {
	var errs []FieldError

	if a.ID == "" {
		errs = append(errs, FieldError{"id", requiredFieldMsg})
	}
	if !a.Type.Valid() {
		errs = append(errs, FieldError{"type", fmt.Sprintf("unknown alert type %q", a.Type)})
	}
	if !a.Severity.Valid() {
		errs = append(errs, FieldError{"severity", fmt.Sprintf("unknown severity %q", a.Severity)})
	}

	switch n := utf8.RuneCountInString(a.Title); {
	case n == 0:
		errs = append(errs, FieldError{titleFieldName, requiredFieldMsg})
	case n > MaxTitleLen:
		errs = append(errs, FieldError{titleFieldName, fmt.Sprintf("max length %d", MaxTitleLen)})
	}

	if a.Source.Name == "" {
		errs = append(errs, FieldError{"source.name", requiredFieldMsg})
	}

	errs = append(errs, validateLocation(a.Location)...)

	if a.Type == AlertTypeEarthquake && a.Earthquake == nil {
		errs = append(errs, FieldError{"earthquake", "required for earthquake alerts"})
	}
	if a.Earthquake != nil {
		if a.Type != AlertTypeEarthquake {
			errs = append(errs, FieldError{"earthquake", fmt.Sprintf("not allowed for %q alerts", a.Type)})
		}
		errs = append(errs, validateEarthquake(*a.Earthquake)...)
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

func validateLocation(l Location) []FieldError {
	var errs []FieldError
	if !inRange(l.Lat, MinLatitude, MaxLatitude) {
		errs = append(errs, FieldError{"location.latitude", fmt.Sprintf("must be within [%g, %g]", MinLatitude, MaxLatitude)})
	}
	if !inRange(l.Lon, MinLongitude, MaxLongitude) {
		errs = append(errs, FieldError{"location.longitude", fmt.Sprintf("must be within [%g, %g]", MinLongitude, MaxLongitude)})
	}
	if !nonNegative(l.RadiusKm) {
		errs = append(errs, FieldError{"location.radius_km", "must be >= 0"})
	}
	return errs
}

func validateEarthquake(eq Earthquake) []FieldError {
	var errs []FieldError
	if !inRange(eq.Magnitude, 0, MaxMagnitude) {
		errs = append(errs, FieldError{"earthquake.magnitude", fmt.Sprintf("must be within [0, %g]", MaxMagnitude)})
	}
	if !nonNegative(eq.DepthKm) {
		errs = append(errs, FieldError{"earthquake.depth_km", "must be >= 0"})
	}
	if eq.FeltReports < 0 {
		errs = append(errs, FieldError{"earthquake.felt_reports", "must be >= 0"})
	}
	if !nonNegative(eq.DistanceKm) {
		errs = append(errs, FieldError{"earthquake.distance_km", "must be >= 0"})
	}
	return errs
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}
