package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 3, 14, 30, 0, 0, time.UTC)

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(testNow)
	SetClock(fc)
	t.Cleanup(func() { SetClock(nil) })
	return fc
}

func validParams() AlertParams {
	return AlertParams{
		Type:     AlertTypeCyclone,
		Title:    "Vigilance cyclonique jaune",
		Source:   AlertSource{Name: "Météo-France", URL: "https://vigilance.meteofrance.fr"},
		Location: Location{Coordinate: Coordinate{Lat: 16.25, Lon: -61.55}, Region: "Guadeloupe"},
	}
}

func TestNewAlert_Defaults(t *testing.T) {
	freezeClock(t)

	alert, err := NewAlert(validParams())
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, AlertTypeCyclone, alert.Type)
	assert.Equal(t, SeverityInfo, alert.Severity)
	assert.True(t, alert.IsActive)
	assert.Equal(t, testNow, alert.CreatedAt)
	assert.Equal(t, testNow, alert.UpdatedAt)
	assert.Equal(t, testNow, alert.Source.CollectedAt)
	assert.Nil(t, alert.ExpiresAt)
	assert.NotNil(t, alert.Location.Communes)
	assert.Empty(t, alert.Location.Communes)
	assert.NotNil(t, alert.Metadata)
	assert.Nil(t, alert.Earthquake)
}

func TestNewAlert_UniqueIDs(t *testing.T) {
	a, err := NewAlert(validParams())
	require.NoError(t, err)
	b, err := NewAlert(validParams())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewAlert_KeepsSuppliedSeverityForKindsWithoutRule(t *testing.T) {
	p := validParams()
	p.Severity = SeverityCritical

	alert, err := NewAlert(p)
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, alert.Severity)
}

func TestNewAlert_ReportsEveryViolation(t *testing.T) {
	p := AlertParams{
		Type:     "meteor",
		Severity: "apocalyptic",
		Title:    "",
		Location: Location{Coordinate: Coordinate{Lat: 95, Lon: -200}, RadiusKm: -1},
	}

	_, err := NewAlert(p)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{
		"type", "severity", "title", "source.name",
		"location.latitude", "location.longitude", "location.radius_km",
	} {
		assert.True(t, verr.Has(field), "missing violation for %s", field)
	}
	assert.Len(t, verr.Fields, 7)
	assert.Contains(t, err.Error(), "location.latitude")
}

func TestNewAlert_TitleLength(t *testing.T) {
	p := validParams()
	p.Title = strings.Repeat("é", MaxTitleLen)
	_, err := NewAlert(p)
	require.NoError(t, err, "length is counted in characters, not bytes")

	p.Title = strings.Repeat("a", MaxTitleLen+1)
	_, err = NewAlert(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("title"))
}

func TestNewAlert_CopiesCallerCollections(t *testing.T) {
	p := validParams()
	p.Location.Communes = AreaList{"Les Abymes"}
	p.Metadata = map[string]any{"bulletin": "12"}

	alert, err := NewAlert(p)
	require.NoError(t, err)

	p.Location.Communes[0] = "Sainte-Anne"
	p.Metadata["bulletin"] = "13"
	assert.Equal(t, AreaList{"Les Abymes"}, alert.Location.Communes)
	assert.Equal(t, "12", alert.Metadata["bulletin"])
}

func TestNewEarthquakeAlert_SeverityFromMagnitudeOverridesSupplied(t *testing.T) {
	for _, supplied := range []Severity{"", SeverityInfo, SeverityEmergency} {
		p := validParams()
		p.Severity = supplied

		alert, err := NewEarthquakeAlert(p, Earthquake{Magnitude: 5.1, DepthKm: 12})
		require.NoError(t, err)
		assert.Equal(t, SeverityCritical, alert.Severity, "supplied %q", supplied)
		assert.Equal(t, AlertTypeEarthquake, alert.Type)
		assert.Equal(t, DefaultMagnitudeType, alert.Earthquake.MagnitudeType)
	}
}

func TestNewEarthquakeAlert_PayloadViolations(t *testing.T) {
	_, err := NewEarthquakeAlert(validParams(), Earthquake{
		Magnitude:   10.5,
		DepthKm:     -3,
		FeltReports: -1,
		DistanceKm:  -0.1,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("earthquake.magnitude"))
	assert.True(t, verr.Has("earthquake.depth_km"))
	assert.True(t, verr.Has("earthquake.felt_reports"))
	assert.True(t, verr.Has("earthquake.distance_km"))
}

func TestNewAlert_KindPayloadMustMatchType(t *testing.T) {
	p := validParams()
	p.Earthquake = &Earthquake{Magnitude: 3}
	_, err := NewAlert(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("earthquake"))

	p = validParams()
	p.Type = AlertTypeEarthquake
	_, err = NewAlert(p)
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("earthquake"))
}

func TestNewAlert_ExpiredIsInactive(t *testing.T) {
	freezeClock(t)
	past := testNow.Add(-time.Minute)

	p := validParams()
	p.ExpiresAt = &past

	alert, err := NewAlert(p)
	require.NoError(t, err)
	assert.True(t, alert.IsExpired())
	assert.False(t, alert.IsActive)
}

func TestNewAlert_ExpiryBoundaryIsStrict(t *testing.T) {
	freezeClock(t)
	now := testNow

	p := validParams()
	p.ExpiresAt = &now

	alert, err := NewAlert(p)
	require.NoError(t, err)
	assert.False(t, alert.IsExpired())
	assert.True(t, alert.IsActive)
}

func TestAlert_RevalidateAfterExpiry(t *testing.T) {
	fc := freezeClock(t)
	expires := testNow.Add(time.Hour)

	p := validParams()
	p.ExpiresAt = &expires
	alert, err := NewAlert(p)
	require.NoError(t, err)
	assert.True(t, alert.IsActive)

	fc.Advance(2 * time.Hour)
	assert.True(t, alert.IsExpired())
	assert.True(t, alert.IsActive, "active flag only changes on revalidation")

	require.NoError(t, alert.Revalidate())
	assert.False(t, alert.IsActive)
}

func TestAlert_RevalidateRecomputesSeverity(t *testing.T) {
	alert, err := NewEarthquakeAlert(validParams(), Earthquake{Magnitude: 3.2})
	require.NoError(t, err)
	assert.Equal(t, SeverityInfo, alert.Severity)

	alert.Earthquake.Magnitude = 6.3
	alert.Severity = SeverityWarning
	require.NoError(t, alert.Revalidate())
	assert.Equal(t, SeverityEmergency, alert.Severity)
}

func TestAlert_RevalidateRejectsInvalidState(t *testing.T) {
	alert, err := NewAlert(validParams())
	require.NoError(t, err)

	alert.Title = ""
	err = alert.Revalidate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("title"))
}

func TestAlert_Deactivate(t *testing.T) {
	fc := freezeClock(t)
	alert, err := NewAlert(validParams())
	require.NoError(t, err)

	fc.Advance(time.Minute)
	alert.Deactivate()
	assert.False(t, alert.IsActive)
	assert.Equal(t, testNow.Add(time.Minute), alert.UpdatedAt)

	fc.Advance(time.Minute)
	alert.Deactivate()
	assert.False(t, alert.IsActive)
	assert.Equal(t, testNow.Add(2*time.Minute), alert.UpdatedAt)
}

func TestAlert_AffectsArea(t *testing.T) {
	p := validParams()
	p.Location.Communes = AreaList{"Pointe-à-Pitre", "Les Abymes"}
	alert, err := NewAlert(p)
	require.NoError(t, err)

	assert.True(t, alert.AffectsArea("pointe-à-pitre"))
	assert.True(t, alert.AffectsArea("LES ABYMES"))
	assert.False(t, alert.AffectsArea("Basse-Terre"))
	assert.False(t, alert.AffectsArea(""))
}

func TestAreaList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected AreaList
	}{
		{"single string", `{"communes":"Le Gosier"}`, AreaList{"Le Gosier"}},
		{"list", `{"communes":["Le Gosier","Sainte-Anne"]}`, AreaList{"Le Gosier", "Sainte-Anne"}},
		{"null", `{"communes":null}`, AreaList{}},
		{"empty list", `{"communes":[]}`, AreaList{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loc Location
			require.NoError(t, json.Unmarshal([]byte(tt.input), &loc))
			assert.Equal(t, tt.expected, loc.Communes)
		})
	}

	var loc Location
	require.Error(t, json.Unmarshal([]byte(`{"communes":42}`), &loc))
}
