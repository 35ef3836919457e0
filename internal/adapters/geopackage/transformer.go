package geopackage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/jobrunner/geosight/internal/domain"
)

// Transformer implements output.CoordinateTransformer using an in-memory
// SpatiaLite database populated with the EPSG definitions.
type Transformer struct {
	db *sql.DB
}

// NewTransformer creates a transformer backed by an in-memory database.
func NewTransformer(ctx context.Context) (*Transformer, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, err
	}
	// Each pooled connection would be a separate empty database.
	db.SetMaxOpenConns(1)

	if err := checkSpatiaLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	// InitSpatialMetaDataFull populates spatial_ref_sys, required by Transform.
	if _, err := db.ExecContext(ctx, "SELECT InitSpatialMetaDataFull(1)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing spatial metadata: %w", err)
	}

	return &Transformer{db: db}, nil
}

// Transform transforms a coordinate from one SRID to another.
func (t *Transformer) Transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	if coord.SRID == targetSRID {
		return coord, nil
	}

	query := `SELECT X(Transform(GeomFromText(?, ?), ?)), Y(Transform(GeomFromText(?, ?), ?))`
	wkt := coord.WKT()

	var x, y sql.NullFloat64
	err := t.db.QueryRowContext(ctx, query,
		wkt, coord.SRID, targetSRID,
		wkt, coord.SRID, targetSRID,
	).Scan(&x, &y)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("transforming coordinate: %w", err)
	}
	if !x.Valid || !y.Valid {
		return domain.Coordinate{}, fmt.Errorf("EPSG:%d to EPSG:%d: %w", coord.SRID, targetSRID, domain.ErrUnsupportedProjection)
	}

	return domain.Coordinate{X: x.Float64, Y: y.Float64, SRID: targetSRID}, nil
}

// TransformGeometry reprojects g via WKB round trip through SpatiaLite.
func (t *Transformer) TransformGeometry(ctx context.Context, g geom.T, sourceSRID, targetSRID int) (geom.T, error) {
	if sourceSRID == targetSRID {
		return g, nil
	}

	in, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}

	var out []byte
	err = t.db.QueryRowContext(ctx,
		`SELECT AsBinary(Transform(GeomFromWKB(?, ?), ?))`,
		in, sourceSRID, targetSRID,
	).Scan(&out)
	if err != nil {
		return nil, fmt.Errorf("transforming geometry: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("EPSG:%d to EPSG:%d: %w", sourceSRID, targetSRID, domain.ErrUnsupportedProjection)
	}

	return wkb.Unmarshal(out)
}

// IsSupported checks that both SRIDs are defined in spatial_ref_sys.
func (t *Transformer) IsSupported(sourceSRID, targetSRID int) bool {
	if sourceSRID <= 0 || targetSRID <= 0 {
		return false
	}
	if sourceSRID == targetSRID {
		return true
	}

	var count int
	err := t.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM spatial_ref_sys WHERE srid IN (?, ?)`,
		sourceSRID, targetSRID,
	).Scan(&count)
	return err == nil && count == 2
}

// Close closes the transformer's database connection.
func (t *Transformer) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}
