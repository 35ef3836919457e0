// Package earthengine implements the raster backend on the Earth Engine
// REST API.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jobrunner/geosight/internal/domain"
)

const (
	defaultBaseURL = "https://earthengine.googleapis.com/v1"
	// Public datasets live in this project.
	publicProject = "earthengine-public"
	pageSize      = 100
	maxPages      = 10
	pointScale    = 10.0
)

// Config holds Earth Engine client configuration.
type Config struct {
	BaseURL string
	Project string
	Timeout time.Duration
}

// Client implements output.RasterBackend.
type Client struct {
	baseURL    string
	project    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an Earth Engine client.
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		project:    cfg.Project,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// API response types.

type listImagesResponse struct {
	Images        []image `json:"images"`
	NextPageToken string  `json:"nextPageToken"`
}

type image struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	StartTime  time.Time      `json:"startTime"`
	Properties map[string]any `json:"properties"`
}

type computeResponse struct {
	Result json.RawMessage `json:"result"`
}

type mapResponse struct {
	Name string `json:"name"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ListScenes lists the images of the collection intersecting the point
// within the time window. Scenes without a cloud cover property are skipped.
func (c *Client) ListScenes(ctx context.Context, q domain.SceneQuery) ([]domain.Scene, error) {
	region, err := json.Marshal(map[string]any{
		"type":        "Point",
		"coordinates": []float64{q.Point.Lon, q.Point.Lat},
	})
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"startTime": {q.Start.UTC().Format(time.RFC3339)},
		"endTime":   {q.End.UTC().Format(time.RFC3339)},
		"region":    {string(region)},
		"pageSize":  {strconv.Itoa(pageSize)},
	}
	endpoint := fmt.Sprintf("%s/projects/%s/assets/%s:listImages", c.baseURL, publicProject, q.Collection)

	var scenes []domain.Scene
	for page := 0; page < maxPages; page++ {
		var resp listImagesResponse
		if err := c.do(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, img := range resp.Images {
			if s, ok := toScene(img); ok {
				scenes = append(scenes, s)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		params.Set("pageToken", resp.NextPageToken)
	}
	return scenes, nil
}

func toScene(img image) (domain.Scene, bool) {
	cloud, ok := img.Properties["CLOUDY_PIXEL_PERCENTAGE"].(float64)
	if !ok || img.ID == "" {
		return domain.Scene{}, false
	}
	return domain.Scene{ID: img.ID, AcquiredAt: img.StartTime, CloudCover: cloud}, true
}

// SampleBands reads the scene's band values at the point.
func (c *Client) SampleBands(ctx context.Context, sceneID string, p domain.GeoPoint, bands []domain.Band) (domain.SpectralBands, error) {
	names := bandNames(bands)
	expr := reduceRegion(
		selectBands(loadImage(sceneID), names...),
		call("Reducer.first", nil),
		pointGeometry(p),
		pointScale,
	)

	values, err := c.computeDictionary(ctx, expr)
	if err != nil {
		return nil, err
	}

	out := make(domain.SpectralBands, len(bands))
	for _, b := range bands {
		if v, ok := values[string(b)]; ok && v != nil {
			out[b] = *v
		}
	}
	return out, nil
}

// SampleGrid reads a rectangle of pixels around the region centre.
func (c *Client) SampleGrid(ctx context.Context, sceneID string, region domain.Region, scale float64, bands []domain.Band) (domain.BandGrid, error) {
	names := bandNames(bands)
	expr := sampleRectangle(
		reproject(selectBands(loadImage(sceneID), names...), scale),
		bounds(regionGeometry(region)),
	)

	var feature struct {
		Properties map[string][][]*float64 `json:"properties"`
	}
	if err := c.compute(ctx, expr, &feature); err != nil {
		return domain.BandGrid{}, err
	}

	grid := domain.BandGrid{Scale: scale}
	for _, b := range bands {
		rows, ok := feature.Properties[string(b)]
		if !ok {
			continue
		}
		if grid.Pixels == nil {
			grid.Height = len(rows)
			if grid.Height > 0 {
				grid.Width = len(rows[0])
			}
			grid.Pixels = make([]domain.SpectralBands, grid.Width*grid.Height)
			for i := range grid.Pixels {
				grid.Pixels[i] = make(domain.SpectralBands, len(bands))
			}
		}
		for y, row := range rows {
			for x, v := range row {
				if y >= grid.Height || x >= grid.Width || v == nil {
					continue
				}
				grid.Pixels[y*grid.Width+x][b] = *v
			}
		}
	}
	return grid, nil
}

// ReduceRegion implements output.RasterBackend. A null band value means
// the region holds no unmasked pixels.
func (c *Client) ReduceRegion(ctx context.Context, req domain.ReduceRequest) (domain.AggregateResult, error) {
	expr := reduceRegion(
		selectBands(loadSource(req.Source), req.Source.Band),
		reducer(req.Reducer),
		regionGeometry(req.Region),
		req.Scale,
	)

	values, err := c.computeDictionary(ctx, expr)
	if err != nil {
		return domain.AggregateResult{}, err
	}

	v, ok := values[req.Source.Band]
	if !ok || v == nil || math.IsNaN(*v) {
		return domain.Unavailable("no pixels in region"), nil
	}
	return domain.Available(*v), nil
}

// TileURL registers a map for the request and returns its XYZ template.
func (c *Client) TileURL(ctx context.Context, req domain.TileRequest) (string, error) {
	img, bandIDs, err := tileImage(req)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"expression":           newExpression(img),
		"fileFormat":           "PNG",
		"visualizationOptions": visualization(req.Vis),
	}
	if len(bandIDs) > 0 {
		body["bandIds"] = bandIDs
	}

	var resp mapResponse
	endpoint := fmt.Sprintf("%s/projects/%s/maps", c.baseURL, c.project)
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", fmt.Errorf("map response without name: %w", domain.ErrDataUnavailable)
	}
	return fmt.Sprintf("%s/%s/tiles/{z}/{x}/{y}", c.baseURL, resp.Name), nil
}

func tileImage(req domain.TileRequest) (*value, []string, error) {
	var img *value
	switch {
	case req.SceneID != "":
		img = loadImage(req.SceneID)
	case req.Source.Dataset != "":
		img = loadSource(req.Source)
	default:
		return nil, nil, &domain.ValidationError{Field: "tile", Value: req, Constraint: "scene or source", Message: "nothing to render"}
	}

	var bandIDs []string
	switch {
	case req.Thresholds != nil:
		img = classified(img, *req.Thresholds)
	case len(req.Vis.Bands) > 0:
		img = selectBands(img, req.Vis.Bands...)
		bandIDs = req.Vis.Bands
	case req.Source.Band != "":
		img = selectBands(img, req.Source.Band)
	}

	if req.Clip != nil {
		img = clip(img, regionGeometry(*req.Clip))
	}
	return img, bandIDs, nil
}

func visualization(v domain.VisParams) map[string]any {
	out := map[string]any{
		"ranges": []map[string]float64{{"min": v.Min, "max": v.Max}},
	}
	if len(v.Palette) > 0 {
		out["paletteColors"] = v.Palette
	}
	if v.Gamma > 0 {
		out["gamma"] = map[string]float64{"value": v.Gamma}
	}
	return out
}

func bandNames(bands []domain.Band) []string {
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = string(b)
	}
	return names
}

func (c *Client) computeDictionary(ctx context.Context, root *value) (map[string]*float64, error) {
	var values map[string]*float64
	if err := c.compute(ctx, root, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *Client) compute(ctx context.Context, root *value, result any) error {
	endpoint := fmt.Sprintf("%s/projects/%s/value:compute", c.baseURL, c.project)

	var resp computeResponse
	if err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"expression": newExpression(root)}, &resp); err != nil {
		return err
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode compute result: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("earthengine request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("earthengine request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var apiErr apiError
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	err := fmt.Errorf("earthengine API error: status %d: %s", resp.StatusCode, msg)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", err, domain.ErrDataUnavailable)
	}
	return err
}
