package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/twpayne/go-geom"
)

func square(minX, minY, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		minX + size, minY,
		minX + size, minY + size,
		minX, minY + size,
		minX, minY,
	}, []int{10})
}

func TestPlanarDistance(t *testing.T) {
	donut := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 100, 0, 100, 100, 0, 100, 0, 0,
		40, 40, 60, 40, 60, 60, 40, 60, 40, 40,
	}, []int{10, 20})

	tests := []struct {
		name string
		g    geom.T
		x, y float64
		want float64
	}{
		{"point", geom.NewPointFlat(geom.XY, []float64{3, 4}), 0, 0, 5},
		{"inside polygon", square(0, 0, 10), 5, 5, 0},
		{"outside polygon edge", square(0, 0, 10), 15, 5, 5},
		{"outside polygon corner", square(0, 0, 10), 13, 14, 5},
		{"inside hole", donut, 50, 50, 10},
		{"in polygon body", donut, 20, 20, 0},
		{"on polygon boundary", square(0, 0, 10), 10, 5, 0},
		{"linestring", geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 0}), 5, 120, 120},
		{"linestring past endpoint", geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 0}), 13, 4, 5},
		{"multipoint", geom.NewMultiPointFlat(geom.XY, []float64{0, 0, 30, 40}), 33, 44, 5},
		{"xyz polygon", geom.NewPolygonFlat(geom.XYZ, []float64{
			0, 0, 7, 10, 0, 7, 10, 10, 7, 0, 10, 7, 0, 0, 7,
		}, []int{15}), 13, 14, 5},
		{
			"multipolygon takes nearest",
			geom.NewMultiPolygonFlat(geom.XY,
				append(square(0, 0, 10).FlatCoords(), square(100, 0, 10).FlatCoords()...),
				[][]int{{10}, {20}}),
			95, 5, 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlanarDistance(tt.g, tt.x, tt.y)
			if err != nil {
				t.Fatalf("PlanarDistance() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PlanarDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanarDistanceEmpty(t *testing.T) {
	got, err := PlanarDistance(geom.NewMultiPolygon(geom.XY), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(got, 1) {
		t.Errorf("empty geometry distance = %v, want +Inf", got)
	}
}

func TestMapCoords(t *testing.T) {
	poly := square(1, 2, 1)
	shifted, err := MapCoords(poly, 3857, func(x, y float64) (float64, float64, error) {
		return x * 10, y * 10, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	p, ok := shifted.(*geom.Polygon)
	if !ok {
		t.Fatalf("got %T, want *geom.Polygon", shifted)
	}
	if p.SRID() != 3857 {
		t.Errorf("SRID = %d", p.SRID())
	}
	if got := p.FlatCoords()[0:2]; got[0] != 10 || got[1] != 20 {
		t.Errorf("first vertex = %v", got)
	}
	if poly.FlatCoords()[0] != 1 {
		t.Error("MapCoords must not modify its input")
	}
	if len(p.Ends()) != 1 || p.Ends()[0] != 10 {
		t.Errorf("ends = %v", p.Ends())
	}
}

func TestMapCoordsPropagatesError(t *testing.T) {
	boom := errors.New("out of zone")
	_, err := MapCoords(square(0, 0, 1), 32632, func(float64, float64) (float64, float64, error) {
		return 0, 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v", err)
	}
}

func TestEnvelope(t *testing.T) {
	e := Envelope(square(2, 3, 4), 32632)
	if e.MinX != 2 || e.MinY != 3 || e.MaxX != 6 || e.MaxY != 7 || e.SRID != 32632 {
		t.Errorf("Envelope() = %+v", e)
	}
}
