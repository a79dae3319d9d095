// Command genmock reads a captured USGS GeoJSON response and generates the
// alert fixture used by downstream test suites. It uses the actual domain
// mapping so the fixture matches real collector behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -feed internal/adapter/usgs/testdata/feed.geojson \
//	  -out data/mock/usgs_alerts.json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
	"github.com/couchcryptid/karukera-alerts/internal/geo"
)

// collectedAt freezes the domain clock so UpdatedAt and CollectedAt are
// reproducible.
var collectedAt = time.Date(2025, time.March, 3, 15, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	feedPath := flag.String("feed", "", "path to a captured USGS GeoJSON response")
	out := flag.String("out", "", "output path for the alert JSON fixture")
	refLat := flag.Float64("ref-lat", 16.25, "reference latitude distances are measured from")
	refLon := flag.Float64("ref-lon", -61.55, "reference longitude distances are measured from")
	region := flag.String("region", domain.DefaultRegion, "region label for mapped alerts")
	flag.Parse()

	if *feedPath == "" || *out == "" {
		flag.Usage()
		return errors.New("missing required flags: -feed, -out")
	}

	domain.SetClock(clockwork.NewFakeClockAt(collectedAt))
	defer domain.SetClock(nil)

	mapping := domain.FeatureMapping{
		Reference: geo.Coordinate{Lat: *refLat, Lon: *refLon},
		Region:    *region,
	}
	alerts, skipped, err := mapFeed(*feedPath, mapping)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *feedPath, err)
	}
	for _, e := range skipped {
		log.Printf("skipped: %v", e)
	}
	log.Printf("mapped %d alerts, skipped %d features", len(alerts), len(skipped))

	if err := writeJSON(*out, alerts); err != nil {
		return fmt.Errorf("writing alert fixture: %w", err)
	}
	log.Printf("wrote alert fixture: %s", *out)

	printStats(alerts)
	return nil
}

// mapFeed maps every feature of the captured response. Mapping failures are
// returned separately, as the collector would log them.
func mapFeed(path string, m domain.FeatureMapping) ([]domain.Alert, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read: %w", err)
	}
	var fc domain.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, nil, fmt.Errorf("decode feed: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, nil, errors.New("no features")
	}

	alerts := make([]domain.Alert, 0, len(fc.Features))
	var skipped []error
	for _, raw := range fc.Features {
		alert, err := domain.FromFeature(raw, m)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, skipped, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(alerts []domain.Alert) {
	bySeverity := map[domain.Severity]int{}
	var tsunami int
	for i := range alerts {
		bySeverity[alerts[i].Severity]++
		if eq := alerts[i].Earthquake; eq != nil && eq.TsunamiWarning {
			tsunami++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(alerts))
	fmt.Printf("By severity: info=%d, warning=%d, critical=%d, emergency=%d\n",
		bySeverity[domain.SeverityInfo], bySeverity[domain.SeverityWarning],
		bySeverity[domain.SeverityCritical], bySeverity[domain.SeverityEmergency])
	fmt.Printf("Tsunami flagged: %d\n", tsunami)

	if len(alerts) == 0 {
		return
	}

	byDistance := make([]domain.Alert, len(alerts))
	copy(byDistance, alerts)
	sort.Slice(byDistance, func(i, j int) bool {
		return byDistance[i].Earthquake.DistanceKm < byDistance[j].Earthquake.DistanceKm
	})
	fmt.Println("\nBy distance from reference:")
	for _, a := range byDistance {
		fmt.Printf("  %-28s M%.1f %-9s %6.1f km  %s\n",
			a.ID, a.Earthquake.Magnitude, a.Severity, a.Earthquake.DistanceKm, a.Title)
	}
}
