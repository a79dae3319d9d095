package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabaseURL string

	// USGS feed query.
	USGSAPIURL         string
	USGSMinMagnitude   float64
	USGSSearchRadiusKm float64
	USGSLookbackDays   int

	// Monitoring point distances are measured from.
	ReferenceLatitude  float64
	ReferenceLongitude float64
	RegionLabel        string

	CollectorTimeout    time.Duration
	CollectorRetryCount int
	CollectorRetryDelay time.Duration
	CollectInterval     time.Duration

	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Publish deduplication; disabled when RedisURL is empty.
	RedisURL string
	DedupTTL time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL: sharedcfg.EnvOrDefault("DATABASE_URL", "sqlite:///data/karukera.db"),

		USGSAPIURL:         sharedcfg.EnvOrDefault("USGS_API_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
		USGSMinMagnitude:   p.floatEnv("USGS_MIN_MAGNITUDE", 2.0),
		USGSSearchRadiusKm: p.floatEnv("USGS_SEARCH_RADIUS_KM", 500),
		USGSLookbackDays:   p.intEnv("USGS_LOOKBACK_DAYS", 7),

		ReferenceLatitude:  p.floatEnv("REFERENCE_LATITUDE", 16.25),
		ReferenceLongitude: p.floatEnv("REFERENCE_LONGITUDE", -61.55),
		RegionLabel:        sharedcfg.EnvOrDefault("REGION_LABEL", "Caraïbes"),

		CollectorTimeout:    p.durationEnv("COLLECTOR_TIMEOUT", "30s"),
		CollectorRetryCount: p.intEnv("COLLECTOR_RETRY_COUNT", 3),
		CollectorRetryDelay: p.durationEnv("COLLECTOR_RETRY_DELAY", "1s"),
		CollectInterval:     p.durationEnv("COLLECT_INTERVAL", "5m"),

		KafkaEnabled:    p.boolEnv("KAFKA_ENABLED", false),
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "karukera-alerts"),

		RedisURL: os.Getenv("REDIS_URL"),
		DedupTTL: p.durationEnv("DEDUP_TTL", "48h"),

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:   p.durationEnv("MAPBOX_TIMEOUT", "5s"),
		MapboxCacheSize: p.intEnv("MAPBOX_CACHE_SIZE", 1000),
	}
	cfg.MapboxEnabled = p.boolEnv("MAPBOX_ENABLED", cfg.MapboxToken != "")

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.USGSAPIURL == "" {
		return errors.New("USGS_API_URL is required")
	}
	if c.USGSMinMagnitude < 0 || c.USGSMinMagnitude > 10 {
		return errors.New("invalid USGS_MIN_MAGNITUDE: must be 0-10")
	}
	if c.USGSSearchRadiusKm <= 0 {
		return errors.New("invalid USGS_SEARCH_RADIUS_KM: must be positive")
	}
	if c.USGSLookbackDays < 1 {
		return errors.New("invalid USGS_LOOKBACK_DAYS: must be at least 1")
	}
	if c.ReferenceLatitude < -90 || c.ReferenceLatitude > 90 {
		return errors.New("invalid REFERENCE_LATITUDE: must be -90..90")
	}
	if c.ReferenceLongitude < -180 || c.ReferenceLongitude > 180 {
		return errors.New("invalid REFERENCE_LONGITUDE: must be -180..180")
	}
	if c.CollectorRetryCount < 0 {
		return errors.New("invalid COLLECTOR_RETRY_COUNT: must not be negative")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.KafkaEnabled && c.KafkaAlertTopic == "" {
		return errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_ENABLED is true")
	}
	if c.MapboxCacheSize < 1 {
		return errors.New("invalid MAPBOX_CACHE_SIZE: must be at least 1")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// parser reads typed values and keeps the first failure, so Load can report it
// after building the whole struct.
type parser struct {
	err error
}

func (p *parser) fail(key, detail string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %s", key, detail)
	}
}

func (p *parser) floatEnv(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.fail(key, "must be a number")
		return 0
	}
	return v
}

func (p *parser) intEnv(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, "must be an integer")
		return 0
	}
	return v
}

func (p *parser) boolEnv(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, "must be true or false")
		return false
	}
	return v
}

func (p *parser) durationEnv(key, fallback string) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		p.fail(key, "must be a positive duration")
		return 0
	}
	return d
}
