// Package overpass implements the POI source on the OpenStreetMap
// Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"

	"github.com/jobrunner/geosight/internal/domain"
)

const defaultBaseURL = "https://overpass-api.de/api/interpreter"

// Config holds Overpass client configuration.
type Config struct {
	BaseURL string
	Rate    float64 // requests per second
	Burst   int
	Timeout time.Duration
}

// Client implements output.POISource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates an Overpass client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// Overpass API response types.

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *latLon           `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// QueryNear returns nodes, ways and relations carrying all tags within
// radius metres of p, in the order Overpass returns them.
func (c *Client) QueryNear(ctx context.Context, p domain.GeoPoint, tags map[string]string, radius float64) ([]domain.Feature, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := BuildQuery(p, tags, radius, c.timeout)
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("overpass API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	features := make([]domain.Feature, 0, len(r.Elements))
	for _, e := range r.Elements {
		features = append(features, toFeature(e))
	}
	c.logger.Debug("overpass query", "point", p.String(), "radius", radius, "features", len(features))
	return features, nil
}

func toFeature(e element) domain.Feature {
	lat, lon := e.Lat, e.Lon
	if e.Center != nil {
		lat, lon = e.Center.Lat, e.Center.Lon
	}
	return domain.Feature{
		ID:         e.Type + "/" + strconv.FormatInt(e.ID, 10),
		Geometry:   geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(domain.SRIDWGS84),
		Attributes: e.Tags,
	}
}

// querySeconds rounds the server-side timeout up to whole seconds. Overpass
// treats 0 as an invalid timeout.
func querySeconds(timeout time.Duration) int {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// BuildQuery renders the Overpass QL around-query. Tags are sorted so the
// query text is stable.
func BuildQuery(p domain.GeoPoint, tags map[string]string, radius float64, timeout time.Duration) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filter strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&filter, `[%s=%s]`, quote(k), quote(tags[k]))
	}
	around := fmt.Sprintf("(around:%s,%s,%s)",
		strconv.FormatFloat(radius, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Lon, 'f', -1, 64),
	)

	var q strings.Builder
	fmt.Fprintf(&q, "[out:json][timeout:%d];(", querySeconds(timeout))
	for _, typ := range []string{"node", "way", "relation"} {
		q.WriteString(typ)
		q.WriteString(filter.String())
		q.WriteString(around)
		q.WriteString(";")
	}
	q.WriteString(");out center tags;")
	return q.String()
}

func quote(s string) string {
	return strconv.Quote(s)
}
