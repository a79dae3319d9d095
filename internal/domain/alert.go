package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/couchcryptid/karukera-alerts/internal/geo"
	"github.com/google/uuid"
)

// AlertType tags the kind of hazard an alert describes.
type AlertType string

const (
	AlertTypeCyclone     AlertType = "cyclone"
	AlertTypeEarthquake  AlertType = "earthquake"
	AlertTypeWaterOutage AlertType = "water"
	AlertTypePowerOutage AlertType = "power"
	AlertTypeRoadClosure AlertType = "road"
	AlertTypePrefecture  AlertType = "prefecture"
	AlertTypeTransit     AlertType = "transit"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeCyclone, AlertTypeEarthquake, AlertTypeWaterOutage, AlertTypePowerOutage,
		AlertTypeRoadClosure, AlertTypePrefecture, AlertTypeTransit:
		return true
	default:
		return false
	}
}

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate = geo.Coordinate

// AreaList is the ordered list of administrative areas (communes) an alert
// affects. JSON input may be a single string or an array.
type AreaList []string

func (l *AreaList) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*l = AreaList{}
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = AreaList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("communes: expected string or list of strings: %w", err)
	}
	if many == nil {
		many = []string{}
	}
	*l = many
	return nil
}

// Location is where an alert applies.
type Location struct {
	Coordinate
	Communes AreaList `json:"communes"`
	Region   string   `json:"region"`
	RadiusKm float64  `json:"radius_km"`
}

// AlertSource records where an alert was collected from.
type AlertSource struct {
	Name        string    `json:"name"`
	URL         string    `json:"url,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// Earthquake is the payload of an earthquake alert.
type Earthquake struct {
	Magnitude            float64 `json:"magnitude"`
	MagnitudeType        string  `json:"magnitude_type"`
	DepthKm              float64 `json:"depth_km"`
	EpicenterDescription string  `json:"epicenter_description"`
	FeltReports          int     `json:"felt_reports"`
	TsunamiWarning       bool    `json:"tsunami_warning"`
	Intensity            string  `json:"intensity"`
	DistanceKm           float64 `json:"distance_km"`
}

// DefaultMagnitudeType is used when a feed or caller does not name the scale.
const DefaultMagnitudeType = "ml"

// Alert is a normalized hazard record. Earthquake is set iff Type is
// AlertTypeEarthquake.
type Alert struct {
	ID          string         `json:"id"`
	Type        AlertType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Source      AlertSource    `json:"source"`
	Location    Location       `json:"location"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	IsActive    bool           `json:"is_active"`
	Metadata    map[string]any `json:"metadata"`

	Earthquake *Earthquake `json:"earthquake,omitempty"`
}

// AlertParams holds caller-supplied fields for NewAlert. Zero values select the
// defaults: random ID, info severity, now for timestamps, active.
type AlertParams struct {
	ID          string
	Type        AlertType
	Severity    Severity
	Title       string
	Description string
	Source      AlertSource
	Location    Location
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   *time.Time
	Inactive    bool
	Metadata    map[string]any
	Earthquake  *Earthquake
}

// NewAlert applies defaults, validates every field and runs the derivation
// sequence. It returns a *ValidationError listing all violations.
func NewAlert(p AlertParams) (Alert, error) {
	now := Now()

	a := Alert{
		ID:          p.ID,
		Type:        p.Type,
		Severity:    p.Severity,
		Title:       p.Title,
		Description: p.Description,
		Source:      p.Source,
		Location:    p.Location,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		ExpiresAt:   p.ExpiresAt,
		IsActive:    !p.Inactive,
		Metadata:    maps.Clone(p.Metadata),
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	if a.Source.CollectedAt.IsZero() {
		a.Source.CollectedAt = now
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	a.Location.Communes = append(AreaList{}, a.Location.Communes...)
	if p.Earthquake != nil {
		eq := *p.Earthquake
		if eq.MagnitudeType == "" {
			eq.MagnitudeType = DefaultMagnitudeType
		}
		a.Earthquake = &eq
	}

	if err := a.Validate(); err != nil {
		return Alert{}, err
	}
	a.derive(now)
	return a, nil
}

// NewEarthquakeAlert builds an earthquake alert. Any severity in p is replaced
// by the magnitude band.
func NewEarthquakeAlert(p AlertParams, eq Earthquake) (Alert, error) {
	p.Type = AlertTypeEarthquake
	p.Earthquake = &eq
	return NewAlert(p)
}

// Revalidate checks the alert again and re-derives severity and active status.
func (a *Alert) Revalidate() error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.derive(Now())
	return nil
}

// derive applies the derivation steps in order: severity, then active status.
func (a *Alert) derive(now time.Time) {
	a.Severity = DeriveSeverity(*a)
	a.IsActive = DeriveActive(*a, now)
}

// DeriveSeverity returns the severity the alert's kind dictates. Kinds without
// a severity rule keep the stored value.
func DeriveSeverity(a Alert) Severity {
	switch a.Type {
	case AlertTypeEarthquake:
		if a.Earthquake != nil {
			return SeverityFromMagnitude(a.Earthquake.Magnitude)
		}
	}
	return a.Severity
}

// DeriveActive returns the active flag after applying expiry: an expired alert
// is never active.
func DeriveActive(a Alert, now time.Time) bool {
	if a.expiredAt(now) {
		return false
	}
	return a.IsActive
}

// IsExpired reports whether ExpiresAt is set and strictly before now.
func (a Alert) IsExpired() bool {
	return a.expiredAt(Now())
}

func (a Alert) expiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// Deactivate clears the active flag and bumps UpdatedAt.
func (a *Alert) Deactivate() {
	a.IsActive = false
	a.UpdatedAt = Now()
}

// AffectsArea reports whether name is one of the alert's communes, ignoring case.
func (a Alert) AffectsArea(name string) bool {
	for _, c := range a.Location.Communes {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
