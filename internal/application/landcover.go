package application

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

// SceneOptions controls satellite scene selection.
type SceneOptions struct {
	Collection string
	Lookback   time.Duration
	Scale      float64
}

// SourceOptions is a data source reduced over a buffer at a scale.
type SourceOptions struct {
	Source domain.DataSource
	Radius float64
	Scale  float64
}

// LandCoverAnalyzer classifies the land cover at a point from the least
// cloudy scene in the lookback window.
type LandCoverAnalyzer struct {
	backend    output.RasterBackend
	aggregator *RegionAggregator
	caller     *remoteCaller
	clock      clockwork.Clock
	logger     *slog.Logger
	thresholds domain.Thresholds
	scene      SceneOptions
	gridRadius float64
	worldCover SourceOptions
}

// NewLandCoverAnalyzer creates a new land cover analyzer. A gridRadius of
// 0 skips the per-pixel grid; an empty worldCover dataset skips the
// reference class.
func NewLandCoverAnalyzer(
	backend output.RasterBackend,
	aggregator *RegionAggregator,
	metrics output.MetricsCollector,
	clock clockwork.Clock,
	logger *slog.Logger,
	callTimeout time.Duration,
	thresholds domain.Thresholds,
	scene SceneOptions,
	gridRadius float64,
	worldCover SourceOptions,
) *LandCoverAnalyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LandCoverAnalyzer{
		backend:    backend,
		aggregator: aggregator,
		caller:     newRemoteCaller(callTimeout, metrics, logger),
		clock:      clock,
		logger:     logger,
		thresholds: thresholds,
		scene:      scene,
		gridRadius: gridRadius,
		worldCover: worldCover,
	}
}

// Analyze builds the land cover section. It never fails; problems are
// reported through the section's availability.
func (a *LandCoverAnalyzer) Analyze(ctx context.Context, p domain.GeoPoint) domain.LandCoverSection {
	section := domain.LandCoverSection{
		WorldCover: domain.Unavailable("not requested"),
	}

	if a.worldCover.Source.Dataset != "" {
		section.WorldCover = a.aggregator.Aggregate(ctx,
			domain.Region{Center: p, Radius: a.worldCover.Radius},
			a.worldCover.Source,
			domain.ReducerMode,
			a.worldCover.Scale,
		)
		if v, ok := section.WorldCover.Value(); ok {
			section.WorldCoverName, _ = domain.WorldCoverName(int(math.Round(v)))
		}
	}

	scene, err := a.SelectScene(ctx, p)
	if err != nil {
		section.Reason = reason(err)
		return section
	}
	section.Scene = &scene

	var bands domain.SpectralBands
	err = a.caller.do(ctx, sourceRaster, "sample_bands", func(ctx context.Context) error {
		var err error
		bands, err = a.backend.SampleBands(ctx, scene.ID, p, domain.SentinelBands)
		return err
	})
	if err != nil {
		section.Reason = reason(err)
		return section
	}

	indices, err := domain.ComputeIndices(bands)
	if err != nil {
		a.logger.Warn("incomplete band sample", "scene", scene.ID, "error", err)
		section.Reason = err.Error()
		return section
	}
	section.Available = true
	section.Indices = &indices
	section.Class = a.thresholds.Classify(indices)

	if a.gridRadius > 0 {
		if grid, ok := a.classifyGrid(ctx, scene.ID, p); ok {
			section.Grid = &grid
		}
	}

	return section
}

// SelectScene picks the least cloudy scene covering p in the lookback
// window ending now.
func (a *LandCoverAnalyzer) SelectScene(ctx context.Context, p domain.GeoPoint) (domain.Scene, error) {
	start, end := domain.SceneWindow(a.clock.Now(), a.scene.Lookback)
	query := domain.SceneQuery{
		Collection: a.scene.Collection,
		Point:      p,
		Start:      start,
		End:        end,
	}

	var scenes []domain.Scene
	err := a.caller.do(ctx, sourceRaster, "list_scenes", func(ctx context.Context) error {
		var err error
		scenes, err = a.backend.ListScenes(ctx, query)
		return err
	})
	if err != nil {
		return domain.Scene{}, err
	}

	scene, ok := domain.SelectScene(scenes)
	if !ok {
		a.logger.Info("no scene in window",
			"collection", a.scene.Collection,
			"start", start,
			"end", end,
		)
		return domain.Scene{}, domain.ErrNoScene
	}
	a.logger.Debug("scene selected", "id", scene.ID, "cloud_cover", scene.CloudCover, "candidates", len(scenes))
	return scene, nil
}

func (a *LandCoverAnalyzer) classifyGrid(ctx context.Context, sceneID string, p domain.GeoPoint) (domain.LandCoverGrid, bool) {
	var grid domain.BandGrid
	err := a.caller.do(ctx, sourceRaster, "sample_grid", func(ctx context.Context) error {
		var err error
		grid, err = a.backend.SampleGrid(ctx, sceneID,
			domain.Region{Center: p, Radius: a.gridRadius},
			a.scene.Scale,
			domain.IndexBands,
		)
		return err
	})
	if err != nil {
		return domain.LandCoverGrid{}, false
	}
	return a.thresholds.ClassifyGrid(grid), true
}
