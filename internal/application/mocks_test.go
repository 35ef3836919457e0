package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockBackend implements output.RasterBackend for testing.
type mockBackend struct {
	mu sync.Mutex

	scenes   []domain.Scene
	listErr  error
	bands    domain.SpectralBands
	bandsErr error
	grid     domain.BandGrid
	gridErr  error
	tileErr  error

	// reduce results keyed by dataset; missing datasets reduce to an
	// empty region.
	reduce    map[string]domain.AggregateResult
	reduceErr map[string]error
	// block makes reductions of a dataset wait for the context.
	block map[string]bool

	reduceCalls []domain.ReduceRequest
	tileCalls   []domain.TileRequest
	listCalls   []domain.SceneQuery
}

func (m *mockBackend) ListScenes(_ context.Context, q domain.SceneQuery) ([]domain.Scene, error) {
	m.mu.Lock()
	m.listCalls = append(m.listCalls, q)
	m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.scenes, nil
}

func (m *mockBackend) SampleBands(_ context.Context, _ string, _ domain.GeoPoint, _ []domain.Band) (domain.SpectralBands, error) {
	if m.bandsErr != nil {
		return nil, m.bandsErr
	}
	return m.bands, nil
}

func (m *mockBackend) SampleGrid(_ context.Context, _ string, _ domain.Region, _ float64, _ []domain.Band) (domain.BandGrid, error) {
	if m.gridErr != nil {
		return domain.BandGrid{}, m.gridErr
	}
	return m.grid, nil
}

func (m *mockBackend) ReduceRegion(ctx context.Context, req domain.ReduceRequest) (domain.AggregateResult, error) {
	m.mu.Lock()
	m.reduceCalls = append(m.reduceCalls, req)
	m.mu.Unlock()

	dataset := req.Source.Dataset
	if m.block[dataset] {
		<-ctx.Done()
		return domain.AggregateResult{}, ctx.Err()
	}
	if err := m.reduceErr[dataset]; err != nil {
		return domain.AggregateResult{}, err
	}
	if r, ok := m.reduce[dataset]; ok {
		return r, nil
	}
	return domain.Unavailable("no pixels in region"), nil
}

func (m *mockBackend) TileURL(_ context.Context, req domain.TileRequest) (string, error) {
	m.mu.Lock()
	m.tileCalls = append(m.tileCalls, req)
	n := len(m.tileCalls)
	m.mu.Unlock()
	if m.tileErr != nil {
		return "", m.tileErr
	}
	return fmt.Sprintf("https://tiles.example/%d/{z}/{x}/{y}", n), nil
}

func (m *mockBackend) reduceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reduceCalls)
}

// mockPOI implements output.POISource for testing.
type mockPOI struct {
	mu       sync.Mutex
	features []domain.Feature
	err      error
	calls    int
	tags     map[string]string
}

func (m *mockPOI) QueryNear(_ context.Context, _ domain.GeoPoint, tags map[string]string, _ float64) ([]domain.Feature, error) {
	m.mu.Lock()
	m.calls++
	m.tags = tags
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.features, nil
}

// mockReference implements referenceSource for testing.
type mockReference struct {
	mu       sync.Mutex
	datasets []*domain.ReferenceDataset
	err      error
	calls    int
}

func (m *mockReference) Datasets(_ context.Context) ([]*domain.ReferenceDataset, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.datasets, m.err
}

func (m *mockReference) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockTransformer implements output.CoordinateTransformer for testing.
// Coordinates pass through unchanged; only the SRID is replaced.
type mockTransformer struct {
	shouldFail  bool
	unsupported map[int]bool
}

func (m *mockTransformer) Transform(_ context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	if m.shouldFail {
		return domain.Coordinate{}, domain.ErrUnsupportedProjection
	}
	coord.SRID = targetSRID
	return coord, nil
}

func (m *mockTransformer) TransformGeometry(_ context.Context, g geom.T, _, _ int) (geom.T, error) {
	if m.shouldFail {
		return nil, domain.ErrUnsupportedProjection
	}
	return g, nil
}

func (m *mockTransformer) IsSupported(sourceSRID, _ int) bool {
	return !m.unsupported[sourceSRID]
}

// mockGeocoder implements output.Geocoder for testing.
type mockGeocoder struct {
	places map[string]domain.GeoPoint
	err    error
}

func (m *mockGeocoder) Resolve(_ context.Context, name string) (domain.GeoPoint, error) {
	if m.err != nil {
		return domain.GeoPoint{}, m.err
	}
	p, ok := m.places[name]
	if !ok {
		return domain.GeoPoint{}, domain.ErrLocationNotFound
	}
	return p, nil
}

// mockPublisher implements output.ReportPublisher for testing.
type mockPublisher struct {
	mu        sync.Mutex
	published []domain.SiteReport
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, report domain.SiteReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, report)
	return m.err
}

func (m *mockPublisher) Close() error {
	return nil
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	mu          sync.Mutex
	objects     []output.StorageObject
	downloadErr error
	listErr     error
	downloads   []string
	listCalls   int
	listDelay   time.Duration
}

func (m *mockStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.listDelay > 0 {
		select {
		case <-time.After(m.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects, nil
}

func (m *mockStorage) Download(_ context.Context, key, _ string) error {
	m.mu.Lock()
	m.downloads = append(m.downloads, key)
	m.mu.Unlock()
	return m.downloadErr
}

func (m *mockStorage) GetReader(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	for _, obj := range m.objects {
		if obj.Key == key {
			return true, nil
		}
	}
	return false, nil
}

// mockLoader implements output.ReferenceLoader for testing.
type mockLoader struct {
	ext      string
	datasets map[string]*domain.ReferenceDataset // keyed by base name
	err      error
}

func (m *mockLoader) Supports(path string) bool {
	return filepath.Ext(path) == m.ext
}

func (m *mockLoader) Load(_ context.Context, path string) (*domain.ReferenceDataset, error) {
	if m.err != nil {
		return nil, m.err
	}
	if ds, ok := m.datasets[filepath.Base(path)]; ok {
		return ds, nil
	}
	return &domain.ReferenceDataset{Path: path, SRID: domain.SRIDWGS84}, nil
}

// square returns a closed square polygon with its lower-left corner at
// (minX, minY).
func square(minX, minY, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		minX + size, minY,
		minX + size, minY + size,
		minX, minY + size,
		minX, minY,
	}, []int{10})
}

func referenceFeature(id, name string, g geom.T) domain.ReferenceFeature {
	return domain.ReferenceFeature{
		ID:       id,
		Name:     name,
		Geometry: g,
		Envelope: domain.Envelope(g, 0),
	}
}
