package output

import (
	"context"

	"github.com/jobrunner/geosight/internal/domain"
)

// RasterBackend defines the secondary port for the earth-observation backend.
type RasterBackend interface {
	// ListScenes returns candidate scenes covering the query point.
	ListScenes(ctx context.Context, q domain.SceneQuery) ([]domain.Scene, error)

	// SampleBands returns band reflectances of a scene at a point.
	SampleBands(ctx context.Context, sceneID string, p domain.GeoPoint, bands []domain.Band) (domain.SpectralBands, error)

	// SampleGrid returns per-pixel band reflectances over a region.
	SampleGrid(ctx context.Context, sceneID string, region domain.Region, scale float64, bands []domain.Band) (domain.BandGrid, error)

	// ReduceRegion reduces a band over a region. A region without pixels
	// yields an Unavailable result, not an error.
	ReduceRegion(ctx context.Context, req domain.ReduceRequest) (domain.AggregateResult, error)

	// TileURL returns an XYZ tile URL template for rendering.
	TileURL(ctx context.Context, req domain.TileRequest) (string, error)
}
