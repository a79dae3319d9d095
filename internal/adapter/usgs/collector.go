// Package usgs collects earthquake alerts from the USGS FDSN event web service.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
	"github.com/couchcryptid/karukera-alerts/internal/geo"
	"github.com/couchcryptid/karukera-alerts/internal/observability"
)

const (
	collectorName       = "USGS Earthquake"
	availabilityTimeout = 10 * time.Second
	startTimeLayout     = "2006-01-02"
)

// Config parameterizes the feed query and the mapping of its features.
type Config struct {
	APIURL         string
	MinMagnitude   float64
	SearchRadiusKm float64
	LookbackDays   int
	Reference      geo.Coordinate
	Region         string
	Timeout        time.Duration
}

// Collector fetches the feed once per Collect call. It never retries; callers
// decide whether a failed collection is worth another attempt.
type Collector struct {
	cfg     Config
	client  *resty.Client
	mapping domain.FeatureMapping
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	mu             sync.RWMutex
	lastCollection time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces the collector's time source.
func WithClock(c clockwork.Clock) Option {
	return func(col *Collector) { col.clock = c }
}

// NewCollector creates a collector for the configured feed URL.
func NewCollector(cfg Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Collector {
	c := &Collector{
		cfg: cfg,
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		mapping: domain.FeatureMapping{Reference: cfg.Reference, Region: cfg.Region},
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the collector in logs and errors.
func (c *Collector) Name() string { return collectorName }

// SourceURL is the feed endpoint queried by Collect.
func (c *Collector) SourceURL() string { return c.cfg.APIURL }

// AlertType is the kind of alert this collector produces.
func (c *Collector) AlertType() domain.AlertType { return domain.AlertTypeEarthquake }

// LastCollection returns the completion time of the last successful Collect.
func (c *Collector) LastCollection() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastCollection, !c.lastCollection.IsZero()
}

// Collect performs one feed request and maps every feature. Features that fail
// to map are logged and skipped. A transport failure, timeout, non-2xx status or
// undecodable body yields a *domain.CollectionError and no alerts.
func (c *Collector) Collect(ctx context.Context) ([]domain.Alert, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(c.queryParams()).
		Get(c.cfg.APIURL)
	if err != nil {
		return nil, c.fail(fmt.Errorf("request: %w", err))
	}
	if !resp.IsSuccess() {
		return nil, c.fail(fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}

	var fc domain.FeatureCollection
	if err := json.Unmarshal(resp.Body(), &fc); err != nil {
		return nil, c.fail(fmt.Errorf("decode feed: %w", err))
	}

	alerts := make([]domain.Alert, 0, len(fc.Features))
	for _, raw := range fc.Features {
		alert, err := domain.FromFeature(raw, c.mapping)
		if err != nil {
			c.logger.Warn("skipping unmappable feature", "source", collectorName, "error", err)
			c.metrics.FeedMappingErrors.Inc()
			continue
		}
		alerts = append(alerts, alert)
	}

	now := c.clock.Now().UTC()
	c.mu.Lock()
	c.lastCollection = now
	c.mu.Unlock()

	c.metrics.AlertsCollected.Add(float64(len(alerts)))
	c.logger.Info("collected alerts",
		"source", collectorName,
		"alerts", len(alerts),
		"skipped", len(fc.Features)-len(alerts),
	)
	return alerts, nil
}

// IsAvailable probes the feed with a HEAD request. Any response below 500
// counts as available; errors count as unavailable.
func (c *Collector) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	resp, err := c.client.R().SetContext(ctx).Head(c.cfg.APIURL)
	available := err == nil && resp.StatusCode() < 500
	if available {
		c.metrics.SourceAvailable.Set(1)
	} else {
		c.metrics.SourceAvailable.Set(0)
	}
	return available
}

func (c *Collector) queryParams() map[string]string {
	start := c.clock.Now().UTC().AddDate(0, 0, -c.cfg.LookbackDays)
	return map[string]string{
		"format":       "geojson",
		"latitude":     formatFloat(c.cfg.Reference.Lat),
		"longitude":    formatFloat(c.cfg.Reference.Lon),
		"maxradiuskm":  formatFloat(c.cfg.SearchRadiusKm),
		"minmagnitude": formatFloat(c.cfg.MinMagnitude),
		"starttime":    start.Format(startTimeLayout),
		"orderby":      "time",
	}
}

func (c *Collector) fail(err error) error {
	c.metrics.CollectionFailures.Inc()
	c.logger.Error("collection failed", "source", collectorName, "error", err)
	return &domain.CollectionError{Source: collectorName, Err: err}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
