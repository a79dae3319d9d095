package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
)

// GeoEnricher implements Enricher with optional reverse geocoding of the
// alert's epicenter.
type GeoEnricher struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewEnricher creates a GeoEnricher. Pass a nil geocoder to disable geocoding
// enrichment.
func NewEnricher(geocoder domain.Geocoder, logger *slog.Logger) *GeoEnricher {
	return &GeoEnricher{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (e *GeoEnricher) Enrich(ctx context.Context, alert domain.Alert) domain.Alert {
	return domain.EnrichWithGeocoding(ctx, alert, e.geocoder, e.logger)
}
