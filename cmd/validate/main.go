// Command validate performs data integrity checks on a captured USGS feed and
// the alert fixture generated from it. It verifies feature mapping, fixture
// parity, severity derivation and distance recomputation.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -feed internal/adapter/usgs/testdata/feed.geojson \
//	  -alerts data/mock/usgs_alerts.json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
	"github.com/couchcryptid/karukera-alerts/internal/geo"
)

// Matches genmock so derived timestamps and activity agree.
var collectedAt = time.Date(2025, time.March, 3, 15, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	feedPath   string
	alertsPath string
	reference  geo.Coordinate
	radiusKm   float64
}

func main() {
	feedPath := flag.String("feed", "", "path to a captured USGS GeoJSON response")
	alertsPath := flag.String("alerts", "", "path to the alert JSON fixture")
	refLat := flag.Float64("ref-lat", 16.25, "reference latitude distances are measured from")
	refLon := flag.Float64("ref-lon", -61.55, "reference longitude distances are measured from")
	radius := flag.Float64("radius-km", 500, "search radius the feed was queried with")
	flag.Parse()

	if *feedPath == "" || *alertsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(options{
		feedPath:   *feedPath,
		alertsPath: *alertsPath,
		reference:  geo.Coordinate{Lat: *refLat, Lon: *refLon},
		radiusKm:   *radius,
	}))
}

func run(opts options) int {
	domain.SetClock(clockwork.NewFakeClockAt(collectedAt))
	defer domain.SetClock(nil)

	fmt.Println("=== USGS Alert Integrity Validation ===")
	fmt.Println()

	features, err := loadFeatures(opts.feedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load feed: %v\n", err)
		return 1
	}

	var fixture []domain.Alert
	data, err := os.ReadFile(opts.alertsPath)
	if err == nil {
		err = json.Unmarshal(data, &fixture)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load alert fixture: %v\n", err)
		return 1
	}

	mapping := domain.FeatureMapping{Reference: opts.reference}
	mapped, mapPhase := validateMapping(features, mapping)

	phases := []*phase{
		mapPhase,
		validateFixtureParity(fixture, mapped),
		validateSeverity(fixture),
		validateGeography(fixture, features, opts),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d feed features, %d mapped, %d fixture alerts\n",
		len(features), len(mapped), len(fixture))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// feature pairs a raw feature with its decoded form, when decodable.
type feature struct {
	raw     json.RawMessage
	decoded domain.RawFeature
	err     error
}

func loadFeatures(path string) ([]feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc domain.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("no features in %s", path)
	}
	out := make([]feature, len(fc.Features))
	for i, raw := range fc.Features {
		out[i].raw = raw
		out[i].err = json.Unmarshal(raw, &out[i].decoded)
	}
	return out, nil
}

// ── Phase 1: Feature Mapping ──
// Every feature either maps to a valid alert or fails with a typed mapping
// error that names it. Feature ids are unique.

func validateMapping(features []feature, m domain.FeatureMapping) (map[string]domain.Alert, *phase) {
	p := &phase{name: "Phase 1: Feature Mapping"}
	mapped := make(map[string]domain.Alert, len(features))
	seenIDs := map[string]int{}

	for i, f := range features {
		if f.err != nil {
			p.errorf("feature %d: undecodable: %v", i, f.err)
			continue
		}
		if f.decoded.ID == "" {
			p.errorf("feature %d: missing id", i)
		} else if prev, dup := seenIDs[f.decoded.ID]; dup {
			p.errorf("feature %d: duplicate id %q (first at %d)", i, f.decoded.ID, prev)
		}
		seenIDs[f.decoded.ID] = i

		alert, err := domain.FromFeature(f.raw, m)
		if err != nil {
			fmt.Printf("  skipped feature %d: %v\n", i, err)
			var mapErr *domain.FeedMappingError
			if !errors.As(err, &mapErr) || mapErr.FeatureID != f.decoded.ID {
				p.errorf("feature %d: mapping error does not name the feature: %v", i, err)
			}
			continue
		}
		if err := alert.Validate(); err != nil {
			p.errorf("feature %q: mapped alert invalid: %v", f.decoded.ID, err)
		}
		mapped[alert.ID] = alert
	}
	return mapped, p
}

// ── Phase 2: Fixture Parity ──
// The fixture holds exactly the alerts the mapping produces.

func validateFixtureParity(fixture []domain.Alert, mapped map[string]domain.Alert) *phase {
	p := &phase{name: "Phase 2: Fixture Parity"}

	if len(fixture) != len(mapped) {
		p.errorf("count: fixture has %d alerts, mapping produced %d", len(fixture), len(mapped))
	}

	inFixture := make(map[string]bool, len(fixture))
	for i := range fixture {
		a := &fixture[i]
		if inFixture[a.ID] {
			p.errorf("fixture alert %q: duplicate id", a.ID)
		}
		inFixture[a.ID] = true

		want, ok := mapped[a.ID]
		if !ok {
			p.errorf("fixture alert %q: not produced by feed mapping", a.ID)
			continue
		}
		if a.Title != want.Title {
			p.errorf("fixture alert %q: title %q, mapping gives %q", a.ID, a.Title, want.Title)
		}
		if !a.CreatedAt.Equal(want.CreatedAt) {
			p.errorf("fixture alert %q: created_at %s, mapping gives %s", a.ID,
				a.CreatedAt.Format(time.RFC3339), want.CreatedAt.Format(time.RFC3339))
		}
		if a.Location.Coordinate != want.Location.Coordinate {
			p.errorf("fixture alert %q: location %+v, mapping gives %+v", a.ID, a.Location.Coordinate, want.Location.Coordinate)
		}
	}
	for id := range mapped {
		if !inFixture[id] {
			p.errorf("mapped alert %q missing from fixture", id)
		}
	}
	return p
}

// ── Phase 3: Severity Derivation ──
// Severity always follows the magnitude band, and every alert is a valid
// earthquake alert.

func validateSeverity(fixture []domain.Alert) *phase {
	p := &phase{name: "Phase 3: Severity Derivation"}

	for i := range fixture {
		a := fixture[i]
		if a.Type != domain.AlertTypeEarthquake {
			p.errorf("alert %q: type %q, want earthquake", a.ID, a.Type)
			continue
		}
		if a.Earthquake == nil {
			p.errorf("alert %q: missing earthquake payload", a.ID)
			continue
		}
		if want := domain.SeverityFromMagnitude(a.Earthquake.Magnitude); a.Severity != want {
			p.errorf("alert %q: M%.1f has severity %q, want %q", a.ID, a.Earthquake.Magnitude, a.Severity, want)
		}
		if err := a.Revalidate(); err != nil {
			p.errorf("alert %q: %v", a.ID, err)
		}
		if !strings.Contains(a.Title, fmt.Sprintf("M%.1f", a.Earthquake.Magnitude)) {
			p.errorf("alert %q: title %q does not carry the magnitude", a.ID, a.Title)
		}
	}
	return p
}

// ── Phase 4: Geography ──
// Stored distances match a recomputation from the raw coordinates, and every
// epicenter lies within the queried radius.

func validateGeography(fixture []domain.Alert, features []feature, opts options) *phase {
	p := &phase{name: "Phase 4: Geography"}

	raw := make(map[string]domain.RawFeature, len(features))
	for _, f := range features {
		if f.err == nil {
			raw[f.decoded.ID] = f.decoded
		}
	}

	for i := range fixture {
		a := &fixture[i]
		if a.Earthquake == nil {
			continue
		}
		if !a.Location.Valid() {
			p.errorf("alert %q: coordinates out of range: %+v", a.ID, a.Location.Coordinate)
			continue
		}

		got := geo.DistanceKm(a.Location.Coordinate, opts.reference)
		if math.Abs(got-a.Earthquake.DistanceKm) > 0.051 {
			p.errorf("alert %q: distance_km %.1f, recomputed %.3f", a.ID, a.Earthquake.DistanceKm, got)
		}
		if !geo.WithinRadius(opts.reference, a.Location.Coordinate, opts.radiusKm) {
			p.errorf("alert %q: epicenter %.1f km away, outside the %.0f km search radius", a.ID, got, opts.radiusKm)
		}

		usgsID, _ := a.Metadata[domain.MetadataUSGSID].(string)
		f, ok := raw[usgsID]
		if !ok || f.Geometry == nil || len(f.Geometry.Coordinates) < 3 {
			p.errorf("alert %q: no raw feature with coordinates for usgs id %q", a.ID, usgsID)
			continue
		}
		c := f.Geometry.Coordinates
		if c[0] == nil || c[1] == nil || c[2] == nil {
			p.errorf("alert %q: feed coordinates contain null for usgs id %q", a.ID, usgsID)
			continue
		}
		if *c[0] != a.Location.Lon || *c[1] != a.Location.Lat {
			p.errorf("alert %q: location (%g, %g), feed has (%g, %g)", a.ID, a.Location.Lat, a.Location.Lon, *c[1], *c[0])
		}
		if *c[2] != a.Earthquake.DepthKm {
			p.errorf("alert %q: depth %g km, feed has %g", a.ID, a.Earthquake.DepthKm, *c[2])
		}
	}
	return p
}
