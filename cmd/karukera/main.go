package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	httpadapter "github.com/couchcryptid/karukera-alerts/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/karukera-alerts/internal/adapter/kafka"
	"github.com/couchcryptid/karukera-alerts/internal/adapter/mapbox"
	redisadapter "github.com/couchcryptid/karukera-alerts/internal/adapter/redis"
	"github.com/couchcryptid/karukera-alerts/internal/adapter/sqlstore"
	"github.com/couchcryptid/karukera-alerts/internal/adapter/usgs"
	"github.com/couchcryptid/karukera-alerts/internal/config"
	"github.com/couchcryptid/karukera-alerts/internal/domain"
	"github.com/couchcryptid/karukera-alerts/internal/geo"
	"github.com/couchcryptid/karukera-alerts/internal/observability"
	"github.com/couchcryptid/karukera-alerts/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to open alert store", "error", err)
		os.Exit(1)
	}

	collector := usgs.NewCollector(usgs.Config{
		APIURL:         cfg.USGSAPIURL,
		MinMagnitude:   cfg.USGSMinMagnitude,
		SearchRadiusKm: cfg.USGSSearchRadiusKm,
		LookbackDays:   cfg.USGSLookbackDays,
		Reference:      geo.Coordinate{Lat: cfg.ReferenceLatitude, Lon: cfg.ReferenceLongitude},
		Region:         cfg.RegionLabel,
		Timeout:        cfg.CollectorTimeout,
	}, logger, metrics)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	ready := readiness{}
	ready.add("store", store.Ready)

	var opts []pipeline.Option
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	}

	var seen *redisadapter.SeenCache
	if cfg.RedisURL != "" {
		seen, err = redisadapter.NewSeenCache(cfg.RedisURL, cfg.DedupTTL)
		if err != nil {
			logger.Error("failed to configure redis", "error", err)
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithSeenCache(seen))
		ready.add("redis", seen.Ready)
		logger.Info("publish deduplication enabled", "ttl", cfg.DedupTTL)
	}

	p := pipeline.New(collector, pipeline.NewEnricher(geocoder, logger), store, pipeline.Settings{
		Interval:   cfg.CollectInterval,
		RetryCount: cfg.CollectorRetryCount,
		RetryDelay: cfg.CollectorRetryDelay,
	}, logger, metrics, opts...)
	ready.add("pipeline", p.CheckReadiness)

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start collection pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	var closers []closer
	if writer != nil {
		closers = append(closers, closer{"kafka writer", writer.Close})
	}
	if seen != nil {
		closers = append(closers, closer{"redis", seen.Close})
	}
	closers = append(closers, closer{"alert store", store.Close})
	if !drain(shutdownCtx, done, logger, closers) {
		return
	}

	logger.Info("shutdown complete")
}

type closer struct {
	name  string
	close func() error
}

// drain waits for the pipeline to stop, then closes its resources in order.
// If ctx expires first the pass is abandoned and nothing is closed, since it
// may still be writing.
func drain(ctx context.Context, done <-chan struct{}, logger *slog.Logger, closers []closer) bool {
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout, abandoning in-flight pass")
		return false
	}
	for _, c := range closers {
		if err := c.close(); err != nil {
			logger.Error(c.name+" close error", "error", err)
		}
	}
	return true
}

type check struct {
	name string
	fn   func(context.Context) error
}

// readiness reports ready only when every registered check passes.
type readiness []check

func (r *readiness) add(name string, fn func(context.Context) error) {
	*r = append(*r, check{name: name, fn: fn})
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
