// Package nominatim resolves place names with the OpenStreetMap Nominatim
// search API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobrunner/geosight/internal/domain"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Config holds Nominatim client configuration.
type Config struct {
	BaseURL   string
	UserAgent string  // required by the usage policy
	Rate      float64 // requests per second
	Timeout   time.Duration
}

// Client implements output.Geocoder.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Nominatim client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "geosight"
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		logger:     logger,
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the location of the best match for name.
func (c *Client) Resolve(ctx context.Context, name string) (domain.GeoPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeoPoint{}, err
	}

	params := url.Values{
		"q":      {name},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("nominatim request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.GeoPoint{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		return domain.GeoPoint{}, fmt.Errorf("%q: %w", name, domain.ErrLocationNotFound)
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.GeoPoint{}, fmt.Errorf("invalid coordinates %q,%q for %q", places[0].Lat, places[0].Lon, name)
	}

	c.logger.Debug("place resolved", "place", name, "match", places[0].DisplayName, "lat", lat, "lon", lon)
	return domain.NewGeoPoint(lat, lon)
}
