package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/karukera-alerts/internal/geo"
	"github.com/google/uuid"
)

// USGS feed constants.
const (
	USGSSourceName  = "USGS"
	USGSDefaultURL  = "https://earthquake.usgs.gov"
	usgsEventPage   = "https://earthquake.usgs.gov/earthquakes/eventpage/"
	MetadataUSGSID  = "usgs_id"
	DefaultRegion   = "Caraïbes"
	earthquakeTitle = "Séisme M%.1f - %s"
)

// FeatureCollection is the envelope of a USGS GeoJSON response. Features are
// kept raw so one malformed feature cannot fail decoding of the others.
type FeatureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// RawFeature is one GeoJSON feature as published by the USGS feed. Pointer
// fields distinguish absent or null values from zeros.
type RawFeature struct {
	ID         string        `json:"id"`
	Properties RawProperties `json:"properties"`
	Geometry   *RawGeometry  `json:"geometry"`
}

// RawProperties holds the feature properties the mapping reads.
type RawProperties struct {
	Mag     *float64 `json:"mag"`
	Place   *string  `json:"place"`
	Time    *float64 `json:"time"` // milliseconds since the Unix epoch
	MagType *string  `json:"magType"`
	Felt    *float64 `json:"felt"`
	Tsunami *float64 `json:"tsunami"`
	URL     *string  `json:"url"`
	Title   *string  `json:"title"`
}

// RawGeometry holds [longitude, latitude, depth_km].
type RawGeometry struct {
	Coordinates []*float64 `json:"coordinates"`
}

// FeatureMapping carries the configuration FromFeature needs.
type FeatureMapping struct {
	// Reference is the monitoring point distances are measured from.
	Reference Coordinate
	// Region labels the alert location and stands in for a missing place.
	Region string
}

// FromFeature maps one raw feed feature into an earthquake alert. Every failure,
// including validation of the resulting alert, is returned as *FeedMappingError.
func FromFeature(raw json.RawMessage, m FeatureMapping) (Alert, error) {
	var f RawFeature
	if err := json.Unmarshal(raw, &f); err != nil {
		return Alert{}, &FeedMappingError{Err: fmt.Errorf("decode feature: %w", err)}
	}

	alert, err := mapFeature(f, m)
	if err != nil {
		return Alert{}, &FeedMappingError{FeatureID: f.ID, Err: err}
	}
	return alert, nil
}

func mapFeature(f RawFeature, m FeatureMapping) (Alert, error) {
	props := f.Properties

	if props.Mag == nil {
		return Alert{}, errors.New("missing properties.mag")
	}
	lon, lat, depth, err := parseCoordinates(f.Geometry)
	if err != nil {
		return Alert{}, err
	}
	if props.Time == nil {
		return Alert{}, errors.New("missing properties.time")
	}

	region := m.Region
	if region == "" {
		region = DefaultRegion
	}
	place := deref(props.Place)
	titlePlace := place
	if titlePlace == "" {
		titlePlace = region
	}

	epicenter := Coordinate{Lat: lat, Lon: lon}
	distance := roundTenth(geo.DistanceKm(epicenter, m.Reference))

	sourceURL := deref(props.URL)
	if sourceURL == "" {
		sourceURL = USGSDefaultURL
	}

	var metadata map[string]any
	if f.ID != "" {
		metadata = map[string]any{MetadataUSGSID: f.ID}
	}

	return NewEarthquakeAlert(AlertParams{
		ID:          featureAlertID(f.ID),
		Title:       fmt.Sprintf(earthquakeTitle, *props.Mag, titlePlace),
		Description: deref(props.Title),
		Source:      AlertSource{Name: USGSSourceName, URL: sourceURL},
		Location:    Location{Coordinate: epicenter, Region: region},
		CreatedAt:   millisToTime(*props.Time),
		Metadata:    metadata,
	}, Earthquake{
		Magnitude:            *props.Mag,
		MagnitudeType:        deref(props.MagType),
		DepthKm:              depth,
		EpicenterDescription: place,
		FeltReports:          feltReports(props.Felt),
		TsunamiWarning:       props.Tsunami != nil && *props.Tsunami != 0,
		DistanceKm:           distance,
	})
}

func parseCoordinates(g *RawGeometry) (lon, lat, depth float64, err error) {
	if g == nil {
		return 0, 0, 0, errors.New("missing geometry")
	}
	if len(g.Coordinates) < 3 {
		return 0, 0, 0, fmt.Errorf("geometry.coordinates: expected [lon, lat, depth], got %d values", len(g.Coordinates))
	}
	for i, v := range g.Coordinates[:3] {
		if v == nil {
			return 0, 0, 0, fmt.Errorf("geometry.coordinates[%d] is null", i)
		}
	}
	return *g.Coordinates[0], *g.Coordinates[1], *g.Coordinates[2], nil
}

// featureAlertID derives a stable ID from the feed event id so polling the same
// event again upserts rather than duplicates.
func featureAlertID(featureID string) string {
	if featureID == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(usgsEventPage+featureID)).String()
}

// millisToTime converts feed milliseconds to a UTC instant. The split into
// seconds and remainder is done on integers to avoid float drift.
func millisToTime(ms float64) time.Time {
	whole := int64(math.Round(ms))
	return time.Unix(whole/1000, (whole%1000)*int64(time.Millisecond)).UTC()
}

func feltReports(v *float64) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
