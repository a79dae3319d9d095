package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMapping = FeatureMapping{
	Reference: Coordinate{Lat: 16.25, Lon: -61.55},
	Region:    "Caraïbes",
}

const fullFeature = `{
  "type": "Feature",
  "id": "us7000abcd",
  "properties": {
    "mag": 5.1,
    "place": "12 km E of Le Moule, Guadeloupe",
    "time": 1741012200123,
    "magType": "mww",
    "felt": 3,
    "tsunami": 1,
    "url": "https://earthquake.usgs.gov/earthquakes/eventpage/us7000abcd",
    "title": "M 5.1 - 12 km E of Le Moule, Guadeloupe"
  },
  "geometry": {"type": "Point", "coordinates": [-61.55, 17.25, 10.5]}
}`

func TestFromFeature_FullFeature(t *testing.T) {
	freezeClock(t)

	alert, err := FromFeature(json.RawMessage(fullFeature), testMapping)
	require.NoError(t, err)

	assert.Equal(t, AlertTypeEarthquake, alert.Type)
	assert.Equal(t, "Séisme M5.1 - 12 km E of Le Moule, Guadeloupe", alert.Title)
	assert.Equal(t, "M 5.1 - 12 km E of Le Moule, Guadeloupe", alert.Description)
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.True(t, alert.IsActive)
	assert.Equal(t, time.UnixMilli(1741012200123).UTC(), alert.CreatedAt)
	assert.Equal(t, testNow, alert.UpdatedAt)
	assert.Equal(t, testNow, alert.Source.CollectedAt)

	assert.Equal(t, USGSSourceName, alert.Source.Name)
	assert.Equal(t, "https://earthquake.usgs.gov/earthquakes/eventpage/us7000abcd", alert.Source.URL)
	assert.Equal(t, 17.25, alert.Location.Lat)
	assert.Equal(t, -61.55, alert.Location.Lon)
	assert.Equal(t, "Caraïbes", alert.Location.Region)
	assert.Equal(t, "us7000abcd", alert.Metadata[MetadataUSGSID])

	require.NotNil(t, alert.Earthquake)
	eq := alert.Earthquake
	assert.Equal(t, 5.1, eq.Magnitude)
	assert.Equal(t, "mww", eq.MagnitudeType)
	assert.Equal(t, 10.5, eq.DepthKm)
	assert.Equal(t, "12 km E of Le Moule, Guadeloupe", eq.EpicenterDescription)
	assert.Equal(t, 3, eq.FeltReports)
	assert.True(t, eq.TsunamiWarning)
	// one degree of latitude from the reference point, rounded to a tenth
	assert.Equal(t, 111.2, eq.DistanceKm)
}

func TestFromFeature_StableIDAcrossPolls(t *testing.T) {
	first, err := FromFeature(json.RawMessage(fullFeature), testMapping)
	require.NoError(t, err)
	second, err := FromFeature(json.RawMessage(fullFeature), testMapping)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, first.ID, 36)
}

func TestFromFeature_OptionalFieldsAbsent(t *testing.T) {
	raw := `{
	  "properties": {"mag": 3.2, "place": null, "time": 1741012200000, "magType": null, "felt": null, "tsunami": 0},
	  "geometry": {"coordinates": [-61.55, 16.25, 0]}
	}`

	alert, err := FromFeature(json.RawMessage(raw), testMapping)
	require.NoError(t, err)

	assert.Equal(t, "Séisme M3.2 - Caraïbes", alert.Title)
	assert.Equal(t, SeverityInfo, alert.Severity)
	assert.Equal(t, USGSDefaultURL, alert.Source.URL)
	assert.NotEmpty(t, alert.ID)
	assert.NotContains(t, alert.Metadata, MetadataUSGSID)

	eq := alert.Earthquake
	assert.Equal(t, DefaultMagnitudeType, eq.MagnitudeType)
	assert.Zero(t, eq.FeltReports)
	assert.False(t, eq.TsunamiWarning)
	assert.Empty(t, eq.EpicenterDescription)
	assert.Zero(t, eq.DistanceKm)
}

func TestFromFeature_DefaultRegion(t *testing.T) {
	raw := `{"properties": {"mag": 4.3, "time": 1741012200000}, "geometry": {"coordinates": [-61.5, 16.2, 8]}}`

	alert, err := FromFeature(json.RawMessage(raw), FeatureMapping{Reference: testMapping.Reference})
	require.NoError(t, err)

	assert.Equal(t, DefaultRegion, alert.Location.Region)
	assert.Equal(t, "Séisme M4.3 - "+DefaultRegion, alert.Title)
	assert.Equal(t, SeverityWarning, alert.Severity)
}

func TestFromFeature_MappingErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"properties":`},
		{"missing mag", `{"id":"x1","properties":{"time":1},"geometry":{"coordinates":[-61,16,5]}}`},
		{"null mag", `{"id":"x1","properties":{"mag":null,"time":1},"geometry":{"coordinates":[-61,16,5]}}`},
		{"missing geometry", `{"id":"x1","properties":{"mag":3,"time":1}}`},
		{"short coordinates", `{"id":"x1","properties":{"mag":3,"time":1},"geometry":{"coordinates":[-61,16]}}`},
		{"null coordinate", `{"id":"x1","properties":{"mag":3,"time":1},"geometry":{"coordinates":[-61,null,5]}}`},
		{"missing time", `{"id":"x1","properties":{"mag":3},"geometry":{"coordinates":[-61,16,5]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromFeature(json.RawMessage(tt.raw), testMapping)
			require.Error(t, err)

			var mapErr *FeedMappingError
			require.ErrorAs(t, err, &mapErr)
		})
	}
}

func TestFromFeature_MappingErrorCarriesFeatureID(t *testing.T) {
	raw := `{"id":"pr2025062001","properties":{"time":1},"geometry":{"coordinates":[-61,16,5]}}`

	_, err := FromFeature(json.RawMessage(raw), testMapping)

	var mapErr *FeedMappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "pr2025062001", mapErr.FeatureID)
	assert.Contains(t, err.Error(), "pr2025062001")
	assert.Contains(t, err.Error(), "properties.mag")
}

func TestFromFeature_ValidationFailureIsMappingError(t *testing.T) {
	raw := `{"id":"bad1","properties":{"mag":11.2,"time":1741012200000},"geometry":{"coordinates":[-61.5,16.2,-2]}}`

	_, err := FromFeature(json.RawMessage(raw), testMapping)

	var mapErr *FeedMappingError
	require.ErrorAs(t, err, &mapErr)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("earthquake.magnitude"))
	assert.True(t, verr.Has("earthquake.depth_km"))
}

func TestMillisToTime(t *testing.T) {
	assert.Equal(t, time.Date(2025, time.March, 3, 14, 30, 0, 123_000_000, time.UTC), millisToTime(1741012200123))
	assert.Equal(t, time.Unix(0, 0).UTC(), millisToTime(0))
}
