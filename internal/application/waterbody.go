package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

const (
	sourcePOI       = "poi"
	sourceReference = "reference"
	metersPerDegree = 111320.0
)

// WaterTags selects water features from the POI source.
var WaterTags = map[string]string{"natural": "water"}

// referenceSource provides the shared reference datasets.
type referenceSource interface {
	Datasets(ctx context.Context) ([]*domain.ReferenceDataset, error)
}

// WaterBodyResolver names the water body nearest a point. The POI source
// is asked first; the reference datasets are only consulted when it has no
// named match.
type WaterBodyResolver struct {
	poi         output.POISource
	reference   referenceSource
	transformer output.CoordinateTransformer
	caller      *remoteCaller
	logger      *slog.Logger
	window      float64
}

// NewWaterBodyResolver creates a new water body resolver. window is the
// envelope prefilter distance in metres for reference candidates; 0
// compares every polygon.
func NewWaterBodyResolver(
	poi output.POISource,
	reference referenceSource,
	transformer output.CoordinateTransformer,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	callTimeout time.Duration,
	window float64,
) *WaterBodyResolver {
	return &WaterBodyResolver{
		poi:         poi,
		reference:   reference,
		transformer: transformer,
		caller:      newRemoteCaller(callTimeout, metrics, logger),
		logger:      logger,
		window:      window,
	}
}

// Resolve runs the fallback chain. The returned error is non-nil only when
// no name was found and at least one source failed, so the sentinel name
// cannot be trusted.
func (r *WaterBodyResolver) Resolve(ctx context.Context, p domain.GeoPoint, radius float64) (domain.WaterBodyResult, error) {
	if err := p.Validate(); err != nil {
		return domain.NoWaterBody(), err
	}

	var errs []error

	body, err := r.fromPOI(ctx, p, radius)
	if err != nil {
		errs = append(errs, err)
	} else if body != nil {
		return domain.WaterBodyResult{Name: body.Name, Body: body}, nil
	}

	body, err = r.fromReference(ctx, p)
	if err != nil {
		errs = append(errs, err)
	}
	if body != nil {
		return domain.WaterBodyResult{Name: body.Name, Body: body}, nil
	}

	return domain.NoWaterBody(), errors.Join(errs...)
}

// fromPOI returns the first named water feature in source order.
func (r *WaterBodyResolver) fromPOI(ctx context.Context, p domain.GeoPoint, radius float64) (*domain.WaterBody, error) {
	if r.poi == nil {
		return nil, nil
	}

	var features []domain.Feature
	err := r.caller.do(ctx, sourcePOI, "query_near", func(ctx context.Context) error {
		var err error
		features, err = r.poi.QueryNear(ctx, p, WaterTags, radius)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, f := range features {
		if name := f.Name(); name != "" {
			r.logger.Debug("water body resolved from poi", "name", name, "id", f.ID)
			return &domain.WaterBody{
				ID:       f.ID,
				Name:     name,
				Geometry: f.Geometry,
				Source:   domain.WaterSourcePOI,
			}, nil
		}
	}
	return nil, nil
}

// fromReference returns the reference polygon nearest to p. Distances are
// computed in the UTM zone of p after reprojecting both sides.
func (r *WaterBodyResolver) fromReference(ctx context.Context, p domain.GeoPoint) (*domain.WaterBody, error) {
	if r.reference == nil {
		return nil, nil
	}
	var datasets []*domain.ReferenceDataset
	err := r.caller.do(ctx, sourceReference, "datasets", func(ctx context.Context) error {
		var err error
		datasets, err = r.reference.Datasets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		return nil, nil
	}

	target := domain.UTMSRID(p)
	origin, err := r.transformer.Transform(ctx, p.Coordinate(), target)
	if err != nil {
		return nil, fmt.Errorf("projecting query point to EPSG:%d: %w", target, domain.ErrGeometryMismatch)
	}

	var (
		best *domain.WaterBody
		errs []error
	)
	for _, ds := range datasets {
		body, err := r.nearestIn(ctx, ds, p, origin)
		if err != nil {
			r.logger.Warn("reference dataset skipped", "dataset", ds.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if body != nil && (best == nil || body.Distance < best.Distance) {
			best = body
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, errors.Join(errs...)
}

// nearestIn searches one dataset. origin is p in the target CRS.
func (r *WaterBodyResolver) nearestIn(
	ctx context.Context,
	ds *domain.ReferenceDataset,
	p domain.GeoPoint,
	origin domain.Coordinate,
) (*domain.WaterBody, error) {
	if ds.SRID == 0 {
		return nil, fmt.Errorf("dataset %s has no CRS: %w", ds.ID, domain.ErrGeometryMismatch)
	}
	if !r.transformer.IsSupported(ds.SRID, origin.SRID) {
		return nil, fmt.Errorf("EPSG:%d to EPSG:%d: %w", ds.SRID, origin.SRID, domain.ErrGeometryMismatch)
	}

	if r.window > 0 {
		local, err := r.transformer.Transform(ctx, p.Coordinate(), ds.SRID)
		if err == nil {
			limit := windowIn(ds.SRID, p, r.window)
			var candidates []int
			for i, f := range ds.Features {
				if f.Envelope.DistanceTo(local) <= limit {
					candidates = append(candidates, i)
				}
			}
			// Features outside the window are farther than r.window, so a
			// hit inside it is the global minimum.
			body, err := r.nearest(ctx, ds, candidates, origin)
			if err != nil || (body != nil && body.Distance <= r.window) {
				return body, err
			}
		}
	}

	all := make([]int, len(ds.Features))
	for i := range all {
		all[i] = i
	}
	return r.nearest(ctx, ds, all, origin)
}

func (r *WaterBodyResolver) nearest(
	ctx context.Context,
	ds *domain.ReferenceDataset,
	indices []int,
	origin domain.Coordinate,
) (*domain.WaterBody, error) {
	var (
		best     *domain.WaterBody
		skipped  int
		firstErr error
	)
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := ds.Features[i]

		g, err := r.transformer.TransformGeometry(ctx, f.Geometry, ds.SRID, origin.SRID)
		if err != nil {
			skipped++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d, err := domain.PlanarDistance(g, origin.X, origin.Y)
		if err != nil || math.IsInf(d, 1) {
			skipped++
			continue
		}
		if best == nil || d < best.Distance {
			name := f.Name
			if name == "" {
				name = domain.UnnamedWaterBody
			}
			best = &domain.WaterBody{
				ID:       f.ID,
				Name:     name,
				Geometry: f.Geometry,
				Source:   domain.WaterSourceReference,
				Distance: d,
			}
		}
	}

	if skipped > 0 {
		r.logger.Debug("reference features skipped", "dataset", ds.ID, "count", skipped, "error", firstErr)
	}
	if best == nil && firstErr != nil {
		return nil, fmt.Errorf("reprojecting dataset %s: %w", ds.ID, errors.Join(domain.ErrGeometryMismatch, firstErr))
	}
	return best, nil
}

// windowIn converts a distance in metres into the units of srid. Degrees
// are widened by the longitude convergence at p.
func windowIn(srid int, p domain.GeoPoint, metres float64) float64 {
	if srid != domain.SRIDWGS84 {
		return metres
	}
	cos := math.Max(math.Cos(p.Lat*math.Pi/180), 0.01)
	return metres / (metersPerDegree * cos)
}
