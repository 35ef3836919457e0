package shapefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/jobrunner/geosight/internal/domain"
)

const wgs84Prj = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// clockwise square shell
func shell(minX, minY, size float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX, Y: minY + size},
		{X: minX + size, Y: minY + size},
		{X: minX + size, Y: minY},
		{X: minX, Y: minY},
	}
}

// counter-clockwise square hole
func hole(minX, minY, size float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX + size, Y: minY},
		{X: minX + size, Y: minY + size},
		{X: minX, Y: minY + size},
		{X: minX, Y: minY},
	}
}

type record struct {
	name  string
	parts [][]shp.Point
}

func writeShapefile(t *testing.T, dir, base string, records []record, prj, cpg string) string {
	t.Helper()
	path := filepath.Join(dir, base+".shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 50)}))

	for _, r := range records {
		row := w.Write((*shp.Polygon)(shp.NewPolyLine(r.parts)))
		require.NoError(t, w.WriteAttribute(int(row), 0, r.name))
	}
	w.Close()

	if prj != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, base+".prj"), []byte(prj), 0o600))
	}
	if cpg != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, base+".cpg"), []byte(cpg), 0o600))
	}
	return path
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "lakes", []record{
		{name: "Lake X", parts: [][]shp.Point{shell(0, 0, 1)}},
		{name: "", parts: [][]shp.Point{shell(5, 5, 1)}},
	}, wgs84Prj, "")

	ds, err := NewLoader("name").Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "lakes", ds.ID)
	assert.Equal(t, domain.SRIDWGS84, ds.SRID)
	require.Equal(t, 2, ds.Len())

	assert.Equal(t, "0", ds.Features[0].ID)
	assert.Equal(t, "Lake X", ds.Features[0].Name)
	assert.Equal(t, "", ds.Features[1].Name)

	env := ds.Features[0].Envelope
	assert.Equal(t, domain.Extent{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1, SRID: domain.SRIDWGS84}, env)
}

func TestLoaderLoadHoles(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "ring", []record{
		{name: "Ring Lake", parts: [][]shp.Point{shell(0, 0, 10), hole(4, 4, 2)}},
		{name: "Twin Lakes", parts: [][]shp.Point{shell(20, 0, 1), shell(30, 0, 1)}},
	}, wgs84Prj, "")

	ds, err := NewLoader("name").Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	ring, ok := ds.Features[0].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, ring.NumPolygons())
	assert.Equal(t, 2, ring.Polygon(0).NumLinearRings())

	// The centre of the hole is one unit away from the water.
	d, err := domain.PlanarDistance(ring, 5, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	twins, ok := ds.Features[1].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, twins.NumPolygons())
}

func TestLoaderLoadWithoutPrj(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "unknown", []record{
		{name: "Somewhere", parts: [][]shp.Point{shell(0, 0, 1)}},
	}, "", "")

	ds, err := NewLoader("").Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, ds.SRID)
}

func TestLoaderLoadLatin1(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "latin", []record{
		{name: string([]byte("M\xfcggelsee")), parts: [][]shp.Point{shell(0, 0, 1)}},
	}, wgs84Prj, "ISO-8859-1\n")

	ds, err := NewLoader("name").Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "Müggelsee", ds.Features[0].Name)
}

func TestLoaderLoadMissingNameAttribute(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "lakes", []record{
		{name: "Lake X", parts: [][]shp.Point{shell(0, 0, 1)}},
	}, wgs84Prj, "")

	ds, err := NewLoader("label").Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Empty(t, ds.Features[0].Name)
}

func TestLoaderLoadMissingFile(t *testing.T) {
	_, err := NewLoader("name").Load(context.Background(), filepath.Join(t.TempDir(), "none.shp"))

	var storageErr *domain.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestLoaderSupports(t *testing.T) {
	l := NewLoader("")
	assert.True(t, l.Supports("/data/lakes.shp"))
	assert.True(t, l.Supports("/data/LAKES.SHP"))
	assert.False(t, l.Supports("/data/lakes.gpkg"))
	assert.False(t, l.Supports("/data/lakes.dbf"))
}

func TestSidecar(t *testing.T) {
	assert.Equal(t, "/data/lakes.prj", sidecar("/data/lakes.shp", ".prj"))
	assert.Equal(t, "/data/LAKES.PRJ", sidecar("/data/LAKES.SHP", ".prj"))
}
