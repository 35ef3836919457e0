package domain

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// CoordFunc maps a planar position to another CRS.
type CoordFunc func(x, y float64) (float64, float64, error)

// MapCoords returns a copy of g with fn applied to every XY position.
// Higher dimensions are carried over unchanged.
func MapCoords(g geom.T, srid int, fn CoordFunc) (geom.T, error) {
	flat, err := mapFlat(g.FlatCoords(), g.Stride(), fn)
	if err != nil {
		return nil, err
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), flat).SetSRID(srid), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(t.Layout(), flat).SetSRID(srid), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(t.Layout(), flat).SetSRID(srid), nil
	case *geom.LinearRing:
		return geom.NewLinearRingFlat(t.Layout(), flat), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(t.Layout(), flat, t.Ends()).SetSRID(srid), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), flat, t.Ends()).SetSRID(srid), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(t.Layout(), flat, t.Endss()).SetSRID(srid), nil
	case *geom.GeometryCollection:
		out := geom.NewGeometryCollection()
		for _, child := range t.Geoms() {
			mapped, err := MapCoords(child, srid, fn)
			if err != nil {
				return nil, err
			}
			if err := out.Push(mapped); err != nil {
				return nil, err
			}
		}
		return out.SetSRID(srid), nil
	default:
		return nil, fmt.Errorf("geometry type %T: %w", g, ErrUnsupported)
	}
}

func mapFlat(in []float64, stride int, fn CoordFunc) ([]float64, error) {
	out := make([]float64, len(in))
	copy(out, in)
	if stride < 2 {
		return out, nil
	}
	for i := 0; i+1 < len(out); i += stride {
		x, y, err := fn(out[i], out[i+1])
		if err != nil {
			return nil, err
		}
		out[i], out[i+1] = x, y
	}
	return out, nil
}

// Envelope returns the bounding box of g.
func Envelope(g geom.T, srid int) Extent {
	b := g.Bounds()
	if b == nil || b.IsEmpty() {
		return Extent{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1), SRID: srid}
	}
	return Extent{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1), SRID: srid}
}

// PlanarDistance returns the Euclidean distance from (x, y) to g in the
// units of g's CRS. Points inside a polygon or on its boundary are at
// distance 0. An empty geometry is infinitely far away.
func PlanarDistance(g geom.T, x, y float64) (float64, error) {
	p := geom.Coord{x, y}

	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return math.Inf(1), nil
		}
		return xy.Distance(p, t.Coords()), nil
	case *geom.MultiPoint:
		best := math.Inf(1)
		for i := 0; i < t.NumPoints(); i++ {
			pt := t.Point(i)
			if pt.Empty() {
				continue
			}
			best = math.Min(best, xy.Distance(p, pt.Coords()))
		}
		return best, nil
	case *geom.LineString:
		return lineDistance(t.Layout(), p, t.FlatCoords()), nil
	case *geom.LinearRing:
		return lineDistance(t.Layout(), p, t.FlatCoords()), nil
	case *geom.MultiLineString:
		best := math.Inf(1)
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			best = math.Min(best, lineDistance(ls.Layout(), p, ls.FlatCoords()))
		}
		return best, nil
	case *geom.Polygon:
		return polygonDistance(t, p), nil
	case *geom.MultiPolygon:
		best := math.Inf(1)
		for i := 0; i < t.NumPolygons(); i++ {
			best = math.Min(best, polygonDistance(t.Polygon(i), p))
			if best == 0 {
				break
			}
		}
		return best, nil
	case *geom.GeometryCollection:
		best := math.Inf(1)
		for _, child := range t.Geoms() {
			d, err := PlanarDistance(child, x, y)
			if err != nil {
				return 0, err
			}
			best = math.Min(best, d)
		}
		return best, nil
	default:
		return 0, fmt.Errorf("geometry type %T: %w", g, ErrUnsupported)
	}
}

func polygonDistance(poly *geom.Polygon, p geom.Coord) float64 {
	n := poly.NumLinearRings()
	if n == 0 {
		return math.Inf(1)
	}

	if inRing(poly.LinearRing(0), p) {
		inHole := false
		for i := 1; i < n; i++ {
			if inRing(poly.LinearRing(i), p) {
				inHole = true
				break
			}
		}
		if !inHole {
			return 0
		}
	}

	best := math.Inf(1)
	for i := 0; i < n; i++ {
		ring := poly.LinearRing(i)
		best = math.Min(best, lineDistance(ring.Layout(), p, ring.FlatCoords()))
	}
	return best
}

// inRing counts the boundary as inside.
func inRing(ring *geom.LinearRing, p geom.Coord) bool {
	if ring.NumCoords() < 3 {
		return false
	}
	return xy.IsPointInRing(ring.Layout(), p, ring.FlatCoords())
}

func lineDistance(layout geom.Layout, p geom.Coord, flat []float64) float64 {
	if len(flat) < layout.Stride() {
		return math.Inf(1)
	}
	return xy.DistanceFromPointToLineString(layout, p, flat)
}
