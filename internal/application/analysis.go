package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

const sourceGeocoder = "geocoder"

// Report outcomes.
const (
	reportComplete = "complete"
	reportPartial  = "partial"
	reportInvalid  = "invalid"
)

// AnalysisServiceConfig holds configuration for the analysis service.
type AnalysisServiceConfig struct {
	Soil                 SourceOptions
	Occurrence           SourceOptions
	WaterMask            SourceOptions
	PresenceThresholdPct float64
	SearchRadius         float64
	Rainfall             SourceOptions
	SoilMoisture         SourceOptions
	WorldCover           SourceOptions
	Thresholds           domain.Thresholds
	MapZoom              int
	MapRadius            float64
	CallTimeout          time.Duration
}

// AnalysisService fans out the four sub-analyses of a point and merges
// them into one SiteReport.
type AnalysisService struct {
	landCover  *LandCoverAnalyzer
	aggregator *RegionAggregator
	water      *WaterBodyResolver
	backend    output.RasterBackend
	geocoder   output.Geocoder
	publisher  output.ReportPublisher
	caller     *remoteCaller
	metrics    output.MetricsCollector
	clock      clockwork.Clock
	logger     *slog.Logger
	cfg        AnalysisServiceConfig
	newID      func() string
}

// NewAnalysisService creates a new analysis service. geocoder and
// publisher may be nil.
func NewAnalysisService(
	landCover *LandCoverAnalyzer,
	aggregator *RegionAggregator,
	water *WaterBodyResolver,
	backend output.RasterBackend,
	geocoder output.Geocoder,
	publisher output.ReportPublisher,
	metrics output.MetricsCollector,
	clock clockwork.Clock,
	logger *slog.Logger,
	cfg AnalysisServiceConfig,
) *AnalysisService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PresenceThresholdPct == 0 {
		cfg.PresenceThresholdPct = domain.DefaultPresenceThresholdPct
	}
	if cfg.MapZoom == 0 {
		cfg.MapZoom = 14
	}
	if cfg.MapRadius == 0 {
		cfg.MapRadius = 1000
	}

	return &AnalysisService{
		landCover:  landCover,
		aggregator: aggregator,
		water:      water,
		backend:    backend,
		geocoder:   geocoder,
		publisher:  publisher,
		caller:     newRemoteCaller(cfg.CallTimeout, metrics, logger),
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
		newID:      uuid.NewString,
	}
}

// Analyze implements input.SiteAnalyzer.
func (s *AnalysisService) Analyze(ctx context.Context, p domain.GeoPoint) (domain.SiteReport, error) {
	return s.analyze(ctx, p, "")
}

// AnalyzePlace implements input.SiteAnalyzer.
func (s *AnalysisService) AnalyzePlace(ctx context.Context, place string) (domain.SiteReport, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		s.metrics.IncReports(reportInvalid)
		return domain.SiteReport{}, &domain.ValidationError{
			Field:      "place",
			Value:      place,
			Constraint: "non-empty",
			Message:    "place name is required",
		}
	}
	if s.geocoder == nil {
		return domain.SiteReport{}, fmt.Errorf("geocoding %q: %w", place, domain.ErrUnsupported)
	}

	var p domain.GeoPoint
	err := s.caller.do(ctx, sourceGeocoder, "resolve", func(ctx context.Context) error {
		var err error
		p, err = s.geocoder.Resolve(ctx, place)
		return err
	})
	if err != nil {
		s.logger.Info("place not resolved", "place", place, "error", err)
		return domain.SiteReport{}, err
	}

	s.logger.Debug("place resolved", "place", place, "point", p.String())
	return s.analyze(ctx, p, place)
}

func (s *AnalysisService) analyze(ctx context.Context, p domain.GeoPoint, place string) (domain.SiteReport, error) {
	if err := p.Validate(); err != nil {
		s.metrics.IncReports(reportInvalid)
		return domain.SiteReport{}, err
	}

	start := time.Now()

	var (
		landCover domain.LandCoverSection
		soil      domain.SoilSection
		water     domain.WaterSection
		climate   domain.ClimateSection
	)

	// Sub-analyses never return errors; each degrades into its own section.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		landCover = s.landCover.Analyze(gctx, p)
		s.observe(domain.SectionLandCover, landCover.Available, t)
		return nil
	})
	g.Go(func() error {
		t := time.Now()
		soil = s.analyzeSoil(gctx, p)
		s.observe(domain.SectionSoil, soil.Available, t)
		return nil
	})
	g.Go(func() error {
		t := time.Now()
		water = s.analyzeWater(gctx, p)
		s.observe(domain.SectionWater, water.Presence != domain.PresenceUnavailable, t)
		return nil
	})
	g.Go(func() error {
		t := time.Now()
		climate = s.analyzeClimate(gctx, p)
		s.observe(domain.SectionClimate, climate.RainfallMM.IsAvailable() && climate.SoilMoisture.IsAvailable(), t)
		return nil
	})
	_ = g.Wait()

	report := domain.NewSiteReport(s.newID(), p, place, s.clock.Now(), landCover, soil, water, climate)

	outcome := reportComplete
	if !report.Complete() {
		outcome = reportPartial
	}
	s.metrics.IncReports(outcome)
	s.logger.Info("site report built",
		"id", report.ID,
		"point", p.String(),
		"land_cover", report.LandCover.Class.String(),
		"issues", len(report.Issues),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, report); err != nil {
			s.logger.Warn("failed to publish site report", "id", report.ID, "error", err)
		}
	}

	return report, nil
}

func (s *AnalysisService) observe(section string, available bool, start time.Time) {
	s.metrics.IncAnalysis(section, available)
	s.metrics.ObserveAnalysisDuration(section, time.Since(start))
}

func (s *AnalysisService) aggregate(ctx context.Context, p domain.GeoPoint, opts SourceOptions, reducer domain.Reducer) domain.AggregateResult {
	return s.aggregator.Aggregate(ctx,
		domain.Region{Center: p, Radius: opts.Radius},
		opts.Source,
		reducer,
		opts.Scale,
	)
}

func (s *AnalysisService) analyzeSoil(ctx context.Context, p domain.GeoPoint) domain.SoilSection {
	sample := s.aggregate(ctx, p, s.cfg.Soil, domain.ReducerMode)

	v, ok := sample.Value()
	if !ok {
		return domain.SoilSection{
			SoilResolution: domain.ResolveSoil(0, false),
			Reason:         "soil texture: " + sample.Reason(),
		}
	}
	return domain.SoilSection{
		Available:      true,
		SoilResolution: domain.ResolveSoil(int(math.Round(v)), true),
	}
}

func (s *AnalysisService) analyzeWater(ctx context.Context, p domain.GeoPoint) domain.WaterSection {
	var (
		section domain.WaterSection
		body    domain.WaterBodyResult
		bodyErr error
	)

	// Presence and naming are independent and may disagree.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		section.OccurrencePct = s.aggregate(gctx, p, s.cfg.Occurrence, domain.ReducerMean)
		return nil
	})
	g.Go(func() error {
		if s.cfg.WaterMask.Source.Dataset == "" {
			section.WaterMaskPct = domain.Unavailable("not requested")
			return nil
		}
		mask := s.aggregate(gctx, p, s.cfg.WaterMask, domain.ReducerMean)
		if v, ok := mask.Value(); ok {
			mask = domain.Available(v * 100)
		}
		section.WaterMaskPct = mask
		return nil
	})
	g.Go(func() error {
		body, bodyErr = s.water.Resolve(gctx, p, s.cfg.SearchRadius)
		return nil
	})
	_ = g.Wait()

	section.Presence = domain.WaterPresence(section.OccurrencePct, s.cfg.PresenceThresholdPct)
	section.WaterBody = body
	section.NameAvailable = bodyErr == nil
	if bodyErr != nil {
		section.Reason = "water body name: " + reason(bodyErr)
	}
	return section
}

func (s *AnalysisService) analyzeClimate(ctx context.Context, p domain.GeoPoint) domain.ClimateSection {
	var section domain.ClimateSection

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		section.RainfallMM = s.aggregate(gctx, p, s.cfg.Rainfall, domain.ReducerMean)
		return nil
	})
	g.Go(func() error {
		section.SoilMoisture = s.aggregate(gctx, p, s.cfg.SoilMoisture, domain.ReducerMean)
		return nil
	})
	_ = g.Wait()

	return section
}

// ComposeMap implements input.MapComposer. Layers the backend cannot
// render are left out.
func (s *AnalysisService) ComposeMap(ctx context.Context, p domain.GeoPoint) (domain.MapView, error) {
	if err := p.Validate(); err != nil {
		return domain.MapView{}, err
	}

	m := domain.NewMapView(p, s.cfg.MapZoom)
	clip := domain.Region{Center: p, Radius: s.cfg.MapRadius}

	scene, err := s.landCover.SelectScene(ctx, p)
	if err == nil {
		th := s.cfg.Thresholds
		m = s.addLayer(ctx, m, "Sentinel-2 RGB", domain.TileRequest{
			SceneID: scene.ID,
			Vis:     domain.SentinelRGBVis,
		})
		m = s.addLayer(ctx, m, "Land Cover", domain.TileRequest{
			SceneID:    scene.ID,
			Vis:        domain.LandCoverVis,
			Clip:       &clip,
			Thresholds: &th,
		})
	}

	if s.cfg.WorldCover.Source.Dataset != "" {
		m = s.addLayer(ctx, m, "ESA WorldCover", domain.TileRequest{
			Source: s.cfg.WorldCover.Source,
			Vis:    domain.WorldCoverVis,
			Clip:   &clip,
		})
	}

	return m, nil
}

func (s *AnalysisService) addLayer(ctx context.Context, m domain.MapView, name string, req domain.TileRequest) domain.MapView {
	var url string
	err := s.caller.do(ctx, sourceRaster, "tile_url", func(ctx context.Context) error {
		var err error
		url, err = s.backend.TileURL(ctx, req)
		return err
	})
	if err != nil {
		s.logger.Warn("map layer skipped", "layer", name, "error", err)
		return m
	}
	return domain.AddEarthObservationLayer(m, url, req.Vis, name)
}
