package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

const sourceRaster = "raster"

// RegionAggregator reduces a backend data source over a buffered region.
// Radius, scale and reducer always come from the caller.
type RegionAggregator struct {
	backend output.RasterBackend
	caller  *remoteCaller
	logger  *slog.Logger
}

// NewRegionAggregator creates a new region aggregator. Every reduction
// gets its own callTimeout.
func NewRegionAggregator(
	backend output.RasterBackend,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	callTimeout time.Duration,
) *RegionAggregator {
	return &RegionAggregator{
		backend: backend,
		caller:  newRemoteCaller(callTimeout, metrics, logger),
		logger:  logger,
	}
}

// Aggregate reduces source over region. Invalid requests, empty regions,
// backend errors and timeouts all yield an Unavailable result carrying the
// reason; a failure never becomes a zero value.
func (a *RegionAggregator) Aggregate(
	ctx context.Context,
	region domain.Region,
	source domain.DataSource,
	reducer domain.Reducer,
	scale float64,
) domain.AggregateResult {
	req := domain.ReduceRequest{
		Region:  region,
		Source:  source,
		Reducer: reducer,
		Scale:   scale,
	}
	if err := req.Validate(); err != nil {
		a.logger.Error("invalid reduce request", "source", source.String(), "error", err)
		return domain.Unavailable(err.Error())
	}

	var result domain.AggregateResult
	err := a.caller.do(ctx, sourceRaster, "reduce_region", func(ctx context.Context) error {
		var err error
		result, err = a.backend.ReduceRegion(ctx, req)
		return err
	})
	if err != nil {
		return domain.Unavailable(reason(err))
	}

	if !result.IsAvailable() {
		a.logger.Debug("region has no data",
			"source", source.String(),
			"reducer", reducer,
			"radius", region.Radius,
			"reason", result.Reason(),
		)
		if result.Reason() == "" {
			return domain.Unavailable("no data in region")
		}
	}
	return result
}
