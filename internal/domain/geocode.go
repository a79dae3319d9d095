package domain

import (
	"context"
	"log/slog"
	"maps"
)

// Metadata keys written by geocoding enrichment.
const (
	MetadataFormattedAddress = "formatted_address"
	MetadataGeoConfidence    = "geo_confidence"
	MetadataGeoSource        = "geo_source" // "reverse", "original", "failed"
)

// EnrichWithGeocoding resolves the alert's epicenter to a commune and records
// it in Location.Communes. If geocoder is nil the alert is returned untouched;
// if geocoding fails the alert keeps its original location and metadata
// geo_source is set to "failed" (graceful degradation).
func EnrichWithGeocoding(ctx context.Context, alert Alert, geocoder Geocoder, logger *slog.Logger) Alert {
	if geocoder == nil {
		return alert
	}

	metadata := maps.Clone(alert.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	alert.Metadata = metadata

	result, err := geocoder.ReverseGeocode(ctx, alert.Location.Lat, alert.Location.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"alert_id", alert.ID,
			"lat", alert.Location.Lat,
			"lon", alert.Location.Lon,
			"error", err,
		)
		metadata[MetadataGeoSource] = "failed"
		return alert
	}

	if result.PlaceName == "" {
		metadata[MetadataGeoSource] = "original"
		return alert
	}

	if !alert.AffectsArea(result.PlaceName) {
		communes := make(AreaList, 0, len(alert.Location.Communes)+1)
		communes = append(communes, alert.Location.Communes...)
		alert.Location.Communes = append(communes, result.PlaceName)
	}
	metadata[MetadataFormattedAddress] = result.FormattedAddress
	metadata[MetadataGeoConfidence] = result.Confidence
	metadata[MetadataGeoSource] = "reverse"
	return alert
}
