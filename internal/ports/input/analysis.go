// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/geosight/internal/domain"
)

// SiteAnalyzer defines the primary port for site reports.
type SiteAnalyzer interface {
	// Analyze builds a report for a point. It only fails for invalid input.
	Analyze(ctx context.Context, p domain.GeoPoint) (domain.SiteReport, error)

	// AnalyzePlace geocodes a place name first. An unknown place yields
	// domain.ErrLocationNotFound and no report.
	AnalyzePlace(ctx context.Context, place string) (domain.SiteReport, error)
}

// MapComposer defines the primary port for map views.
type MapComposer interface {
	// ComposeMap returns the visualization layers for a point.
	ComposeMap(ctx context.Context, p domain.GeoPoint) (domain.MapView, error)
}

// ReferenceCatalog defines the primary port for reference dataset status.
type ReferenceCatalog interface {
	// Info returns the load state of the reference dataset.
	Info(ctx context.Context) ReferenceInfo
}

// ReferenceInfo describes the loaded reference dataset.
type ReferenceInfo struct {
	Status   domain.ReferenceStatus
	Sources  []string
	SRID     int
	Features int
	Error    string
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy           bool              // Overall health status
	Ready             bool              // Ready to accept requests
	ReferenceStatus   string            // Reference dataset load state
	ReferenceFeatures int               // Number of reference features
	Components        map[string]string // Component statuses
}
