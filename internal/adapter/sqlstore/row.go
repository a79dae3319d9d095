package sqlstore

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
)

// TimeLayout is the text form of every stored timestamp. Values are UTC with a
// fixed fractional width so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Keys under which kind payloads and affected areas are folded into the
// metadata blob.
const (
	MetadataEarthquake = "earthquake"
	MetadataCommunes   = "communes"
)

// Row is one denormalized alerts table row, as returned by read operations.
type Row struct {
	ID          string  `db:"id" json:"id"`
	Type        string  `db:"type" json:"type"`
	Severity    string  `db:"severity" json:"severity"`
	Title       string  `db:"title" json:"title"`
	Description string  `db:"description" json:"description"`
	SourceName  string  `db:"source_name" json:"source_name"`
	SourceURL   string  `db:"source_url" json:"source_url"`
	CreatedAt   string  `db:"created_at" json:"created_at"`
	UpdatedAt   string  `db:"updated_at" json:"updated_at"`
	ExpiresAt   *string `db:"expires_at" json:"expires_at"`
	IsActive    int     `db:"is_active" json:"is_active"`
	Latitude    float64 `db:"latitude" json:"latitude"`
	Longitude   float64 `db:"longitude" json:"longitude"`
	Region      string  `db:"region" json:"region"`
	Metadata    string  `db:"metadata" json:"metadata"`
}

// Active reports the is_active flag as a bool.
func (r Row) Active() bool { return r.IsActive != 0 }

// DecodeMetadata parses the metadata blob.
func (r Row) DecodeMetadata() (map[string]any, error) {
	meta := map[string]any{}
	if r.Metadata == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata of alert %s: %w", r.ID, err)
	}
	return meta, nil
}

// RowFromAlert serializes an alert into its stored row form. The alert's own
// metadata is kept as is; the earthquake payload and non-empty communes are
// added under their reserved keys.
func RowFromAlert(a domain.Alert) (Row, error) {
	meta := maps.Clone(a.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	if a.Earthquake != nil {
		meta[MetadataEarthquake] = a.Earthquake
	}
	if len(a.Location.Communes) > 0 {
		meta[MetadataCommunes] = []string(a.Location.Communes)
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return Row{}, fmt.Errorf("encode metadata of alert %s: %w", a.ID, err)
	}

	row := Row{
		ID:          a.ID,
		Type:        string(a.Type),
		Severity:    string(a.Severity),
		Title:       a.Title,
		Description: a.Description,
		SourceName:  a.Source.Name,
		SourceURL:   a.Source.URL,
		CreatedAt:   FormatTime(a.CreatedAt),
		UpdatedAt:   FormatTime(a.UpdatedAt),
		Latitude:    a.Location.Lat,
		Longitude:   a.Location.Lon,
		Region:      a.Location.Region,
		Metadata:    string(blob),
	}
	if a.ExpiresAt != nil {
		s := FormatTime(*a.ExpiresAt)
		row.ExpiresAt = &s
	}
	if a.IsActive {
		row.IsActive = 1
	}
	return row, nil
}

// FormatTime renders t in the stored timestamp form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
