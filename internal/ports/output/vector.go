package output

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/jobrunner/geosight/internal/domain"
)

// POISource defines the secondary port for point-of-interest lookups.
type POISource interface {
	// QueryNear returns features matching all tags within radius metres,
	// in source order. An empty result is not an error.
	QueryNear(ctx context.Context, p domain.GeoPoint, tags map[string]string, radius float64) ([]domain.Feature, error)
}

// ReferenceLoader defines the secondary port for reading a reference
// polygon dataset from a local file.
type ReferenceLoader interface {
	// Load reads all features and the dataset CRS.
	Load(ctx context.Context, path string) (*domain.ReferenceDataset, error)

	// Supports reports whether the loader can read the file.
	Supports(path string) bool
}

// CoordinateTransformer defines the secondary port for coordinate transformations.
type CoordinateTransformer interface {
	// Transform transforms a coordinate from its SRID to targetSRID.
	Transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error)

	// TransformGeometry reprojects a geometry between SRIDs.
	TransformGeometry(ctx context.Context, g geom.T, sourceSRID, targetSRID int) (geom.T, error)

	// IsSupported checks if a transformation is supported.
	IsSupported(sourceSRID, targetSRID int) bool
}

// Geocoder defines the secondary port for place name resolution.
type Geocoder interface {
	// Resolve returns the location of a place or domain.ErrLocationNotFound.
	Resolve(ctx context.Context, name string) (domain.GeoPoint, error)
}

// ReportPublisher defines the secondary port for emitting finished reports.
type ReportPublisher interface {
	Publish(ctx context.Context, report domain.SiteReport) error
	Close() error
}
