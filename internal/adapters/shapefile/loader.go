// Package shapefile reads reference polygon datasets from ESRI shapefiles.
package shapefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/jobrunner/geosight/internal/domain"
)

// Loader implements output.ReferenceLoader for .shp files. The .prj and
// .cpg sidecars are read when present.
type Loader struct {
	nameAttribute string
}

// NewLoader creates a shapefile loader reading names from nameAttribute.
func NewLoader(nameAttribute string) *Loader {
	if nameAttribute == "" {
		nameAttribute = "name"
	}
	return &Loader{nameAttribute: nameAttribute}
}

// Supports reports whether path is a shapefile.
func (l *Loader) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".shp")
}

// Load reads every polygon of the shapefile into memory. Records without a
// polygon geometry are skipped.
func (l *Loader) Load(ctx context.Context, path string) (*domain.ReferenceDataset, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	defer func() { _ = reader.Close() }()

	srid, err := readSRID(path)
	if err != nil {
		return nil, err
	}
	decoder, err := readDecoder(path)
	if err != nil {
		return nil, err
	}

	nameIdx := fieldIndex(reader, l.nameAttribute)

	var features []domain.ReferenceFeature
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, shape := reader.Shape()
		g := toGeometry(shape, srid)
		if g == nil {
			continue
		}

		var name string
		if nameIdx >= 0 {
			name = decodeAttribute(decoder, reader.Attribute(nameIdx))
		}

		features = append(features, domain.ReferenceFeature{
			ID:       strconv.Itoa(row),
			Name:     name,
			Geometry: g,
			Envelope: domain.Envelope(g, srid),
		})
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	return &domain.ReferenceDataset{
		ID:       DeriveDatasetID(path),
		Path:     path,
		SRID:     srid,
		Features: features,
		LoadedAt: time.Now(),
	}, nil
}

// fieldIndex returns the index of a named field, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func decodeAttribute(decoder *encoding.Decoder, raw string) string {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if decoder == nil || val == "" {
		return val
	}
	decoded, err := decoder.String(val)
	if err != nil {
		return val
	}
	return decoded
}

// readDecoder maps the .cpg code page to a decoder. A missing .cpg or a
// UTF-8 code page returns nil.
func readDecoder(path string) (*encoding.Decoder, error) {
	data, err := os.ReadFile(sidecar(path, ".cpg"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Operation: "read", Key: sidecar(path, ".cpg"), Err: err}
	}

	switch strings.ToUpper(strings.TrimSpace(string(data))) {
	case "ISO-8859-1", "ISO88591", "8859_1", "LATIN1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "1252", "CP1252", "WINDOWS-1252", "ANSI 1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "ISO-8859-15", "8859_15":
		return charmap.ISO8859_15.NewDecoder(), nil
	default:
		return nil, nil
	}
}

func readSRID(path string) (int, error) {
	data, err := os.ReadFile(sidecar(path, ".prj"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, &domain.StorageError{Operation: "read", Key: sidecar(path, ".prj"), Err: err}
	}
	return ParseSRID(string(data)), nil
}

// sidecar returns the companion file path, matching the case of the .shp
// extension.
func sidecar(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if filepath.Ext(path) == ".SHP" {
		ext = strings.ToUpper(ext)
	}
	return base + ext
}

// toGeometry converts polygon shapes. Shapefile outer rings are clockwise
// and holes counter-clockwise; a hole belongs to the preceding shell.
func toGeometry(shape shp.Shape, srid int) geom.T {
	var (
		parts  []int32
		points []shp.Point
	)
	switch s := shape.(type) {
	case *shp.Polygon:
		parts, points = s.Parts, s.Points
	case *shp.PolygonZ:
		parts, points = s.Parts, s.Points
	default:
		return nil
	}
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	var current *geom.Polygon
	flush := func() {
		if current != nil {
			_ = mp.Push(current)
		}
	}

	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 4 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if signedArea(flat) <= 0 || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		_ = current.Push(ring)
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}

// DeriveDatasetID derives a dataset ID from the file path.
func DeriveDatasetID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
