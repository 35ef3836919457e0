package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/jobrunner/geosight/internal/domain"
)

// layer is a feature table listed in gpkg_contents.
type layer struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// Loader implements output.ReferenceLoader for GeoPackage files.
type Loader struct {
	layerName     string
	nameAttribute string
}

// NewLoader creates a GeoPackage loader. An empty layerName reads the
// first feature layer; nameAttribute is the column holding feature names.
func NewLoader(layerName, nameAttribute string) *Loader {
	if nameAttribute == "" {
		nameAttribute = "name"
	}
	return &Loader{layerName: layerName, nameAttribute: nameAttribute}
}

// Supports reports whether path is a GeoPackage.
func (l *Loader) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gpkg")
}

// Load reads every feature of the selected layer into memory. The file is
// closed before returning.
func (l *Loader) Load(ctx context.Context, path string) (*domain.ReferenceDataset, error) {
	db, err := openReadOnly(ctx, path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	defer func() { _ = db.Close() }()

	if err := checkSpatiaLite(ctx, db); err != nil {
		return nil, err
	}

	layers, err := readLayers(ctx, db)
	if err != nil {
		return nil, err
	}
	lyr, err := l.selectLayer(layers)
	if err != nil {
		return nil, err
	}

	hasName, err := hasColumn(ctx, db, lyr.Name, l.nameAttribute)
	if err != nil {
		return nil, err
	}

	features, err := l.readFeatures(ctx, db, lyr, hasName)
	if err != nil {
		return nil, err
	}

	return &domain.ReferenceDataset{
		ID:       DeriveDatasetID(path),
		Path:     path,
		SRID:     lyr.SRID,
		Features: features,
		LoadedAt: time.Now(),
	}, nil
}

func (l *Loader) selectLayer(layers []layer) (layer, error) {
	if len(layers) == 0 {
		return layer{}, fmt.Errorf("no feature layers: %w", domain.ErrNotFound)
	}
	if l.layerName == "" {
		return layers[0], nil
	}
	for _, lyr := range layers {
		if lyr.Name == l.layerName {
			return lyr, nil
		}
	}
	return layer{}, fmt.Errorf("layer %q: %w", l.layerName, domain.ErrNotFound)
}

// openReadOnly opens the SQLite database with appropriate settings.
func openReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// readLayers reads layer information from gpkg_contents, ordered by name.
func readLayers(ctx context.Context, db *sql.DB) ([]layer, error) {
	query := `
		SELECT
			c.table_name,
			g.column_name,
			g.geometry_type_name,
			g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading layers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var layers []layer
	for rows.Next() {
		var lyr layer
		if err := rows.Scan(&lyr.Name, &lyr.GeometryColumn, &lyr.GeometryType, &lyr.SRID); err != nil {
			return nil, fmt.Errorf("scanning layer: %w", err)
		}
		layers = append(layers, lyr)
	}
	return layers, rows.Err()
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table)) //#nosec G201 -- table name from gpkg_contents
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// readFeatures decodes all geometries. GeoPackage binary is converted with
// CastAutomagic and read back as WKB.
func (l *Loader) readFeatures(ctx context.Context, db *sql.DB, lyr layer, hasName bool) ([]domain.ReferenceFeature, error) {
	nameExpr := "NULL"
	if hasName {
		nameExpr = fmt.Sprintf(`"%s"`, l.nameAttribute)
	}
	query := fmt.Sprintf(`
		SELECT rowid, AsBinary(CastAutomagic("%s")), %s
		FROM "%s"
		WHERE "%s" IS NOT NULL
		ORDER BY rowid
	`, lyr.GeometryColumn, nameExpr, lyr.Name, lyr.GeometryColumn) //#nosec G201 -- identifiers from trusted database

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading layer %s: %w", lyr.Name, err)
	}
	defer func() { _ = rows.Close() }()

	var features []domain.ReferenceFeature
	for rows.Next() {
		var (
			rowID int64
			blob  []byte
			name  sql.NullString
		)
		if err := rows.Scan(&rowID, &blob, &name); err != nil {
			return nil, fmt.Errorf("scanning feature: %w", err)
		}
		if len(blob) == 0 {
			continue
		}

		g, err := wkb.Unmarshal(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding feature %d: %w", rowID, err)
		}

		features = append(features, domain.ReferenceFeature{
			ID:       strconv.FormatInt(rowID, 10),
			Name:     strings.TrimSpace(name.String),
			Geometry: g,
			Envelope: domain.Envelope(g, lyr.SRID),
		})
	}
	return features, rows.Err()
}

// DeriveDatasetID derives a dataset ID from the file path.
func DeriveDatasetID(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
