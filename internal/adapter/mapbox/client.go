package mapbox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/karukera-alerts/internal/domain"
	"github.com/couchcryptid/karukera-alerts/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token   string
	http    *resty.Client
	baseURL string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return newClient(defaultBaseURL, token, timeout, logger, metrics)
}

func newClient(baseURL, token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token:   token,
		http:    resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode resolves coordinates to the commune containing them. An empty
// result with no error means Mapbox knows no place there (offshore epicenters).
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := strconv.FormatFloat(lon, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)

	var body response
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetRawPathParam("coord", coord).
		SetQueryParams(map[string]string{
			"access_token": c.token,
			"limit":        "1",
			"types":        "place,locality",
			"language":     "fr",
		}).
		SetResult(&body).
		Get(c.baseURL + "/{coord}.json")
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	if resp.StatusCode() != 200 {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode(), resp.Body())
	}

	if len(body.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("no place for coordinates", "lat", lat, "lon", lon)
		return domain.GeocodingResult{}, nil
	}
	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()

	f := body.Features[0]
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
