// Package projection provides a pure-Go coordinate transformer for the
// projections used by site analysis: WGS84, Web Mercator and WGS84 / UTM.
package projection

import (
	"context"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/jobrunner/geosight/internal/domain"
)

// WGS84 ellipsoid.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257223563

	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0

	// Web Mercator is undefined at the poles.
	maxMercatorLat = 85.05112878
)

// series holds the Krüger coefficients of the transverse Mercator
// projection, expanded to third order in the third flattening.
type series struct {
	a     float64 // rectifying radius
	alpha [3]float64
	beta  [3]float64
	delta [3]float64
	n     float64
}

func newSeries() series {
	n := flattening / (2 - flattening)
	n2, n3 := n*n, n*n*n
	return series{
		n: n,
		a: semiMajorAxis / (1 + n) * (1 + n2/4 + n2*n2/64),
		alpha: [3]float64{
			n/2 - 2*n2/3 + 5*n3/16,
			13*n2/48 - 3*n3/5,
			61 * n3 / 240,
		},
		beta: [3]float64{
			n/2 - 2*n2/3 + 37*n3/96,
			n2/48 + n3/15,
			17 * n3 / 480,
		},
		delta: [3]float64{
			2*n - 2*n2/3 - 2*n3,
			7*n2/3 - 8*n3/5,
			56 * n3 / 15,
		},
	}
}

// Transformer implements output.CoordinateTransformer without external
// libraries. It supports EPSG:4326, EPSG:3857, EPSG:326xx and EPSG:327xx.
type Transformer struct {
	tm series
}

// NewTransformer creates a builtin transformer.
func NewTransformer() *Transformer {
	return &Transformer{tm: newSeries()}
}

// Transform transforms a coordinate from its SRID to targetSRID.
func (t *Transformer) Transform(_ context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	fn, err := t.pipeline(coord.SRID, targetSRID)
	if err != nil {
		return domain.Coordinate{}, err
	}
	x, y, err := fn(coord.X, coord.Y)
	if err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate{X: x, Y: y, SRID: targetSRID}, nil
}

// TransformGeometry reprojects every vertex of g.
func (t *Transformer) TransformGeometry(_ context.Context, g geom.T, sourceSRID, targetSRID int) (geom.T, error) {
	if sourceSRID == targetSRID {
		return g, nil
	}
	fn, err := t.pipeline(sourceSRID, targetSRID)
	if err != nil {
		return nil, err
	}
	return domain.MapCoords(g, targetSRID, fn)
}

// IsSupported checks if both SRIDs are known projections.
func (t *Transformer) IsSupported(sourceSRID, targetSRID int) bool {
	return supported(sourceSRID) && supported(targetSRID)
}

func supported(srid int) bool {
	if srid == domain.SRIDWGS84 || srid == domain.SRIDWebMercator {
		return true
	}
	_, _, ok := domain.ParseUTMSRID(srid)
	return ok
}

// pipeline composes source -> WGS84 -> target.
func (t *Transformer) pipeline(sourceSRID, targetSRID int) (domain.CoordFunc, error) {
	if !t.IsSupported(sourceSRID, targetSRID) {
		return nil, fmt.Errorf("EPSG:%d to EPSG:%d: %w", sourceSRID, targetSRID, domain.ErrUnsupportedProjection)
	}
	if sourceSRID == targetSRID {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}

	inverse := t.toGeographic(sourceSRID)
	forward := t.fromGeographic(targetSRID)
	return func(x, y float64) (float64, float64, error) {
		lon, lat, err := inverse(x, y)
		if err != nil {
			return 0, 0, err
		}
		return forward(lon, lat)
	}, nil
}

func (t *Transformer) toGeographic(srid int) domain.CoordFunc {
	switch srid {
	case domain.SRIDWGS84:
		return checkGeographic
	case domain.SRIDWebMercator:
		return inverseMercator
	}
	zone, north, _ := domain.ParseUTMSRID(srid)
	return func(x, y float64) (float64, float64, error) {
		lon, lat := t.tm.inverse(x, y, zone, north)
		return lon, lat, nil
	}
}

func (t *Transformer) fromGeographic(srid int) domain.CoordFunc {
	switch srid {
	case domain.SRIDWGS84:
		return checkGeographic
	case domain.SRIDWebMercator:
		return forwardMercator
	}
	zone, north, _ := domain.ParseUTMSRID(srid)
	return func(lon, lat float64) (float64, float64, error) {
		if err := validLatLon(lon, lat); err != nil {
			return 0, 0, err
		}
		x, y := t.tm.forward(lon, lat, zone, north)
		return x, y, nil
	}
}

func validLatLon(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("coordinate (%g, %g) outside WGS84 bounds: %w", lon, lat, domain.ErrInvalidInput)
	}
	return nil
}

func checkGeographic(lon, lat float64) (float64, float64, error) {
	if err := validLatLon(lon, lat); err != nil {
		return 0, 0, err
	}
	return lon, lat, nil
}

func forwardMercator(lon, lat float64) (float64, float64, error) {
	if err := validLatLon(lon, lat); err != nil {
		return 0, 0, err
	}
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	x := semiMajorAxis * lon * math.Pi / 180
	y := semiMajorAxis * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y, nil
}

func inverseMercator(x, y float64) (float64, float64, error) {
	lon := x / semiMajorAxis * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/semiMajorAxis)) - math.Pi/2) * 180 / math.Pi
	return lon, lat, nil
}

func centralMeridian(zone int) float64 {
	return float64(zone*6 - 183)
}

func (s series) forward(lon, lat float64, zone int, north bool) (float64, float64) {
	phi := lat * math.Pi / 180
	lambda := (lon - centralMeridian(zone)) * math.Pi / 180

	k := 2 * math.Sqrt(s.n) / (1 + s.n)
	sinPhi := math.Sin(phi)
	tau := math.Sinh(math.Atanh(sinPhi) - k*math.Atanh(k*sinPhi))

	xi := math.Atan2(tau, math.Cos(lambda))
	eta := math.Atanh(math.Sin(lambda) / math.Sqrt(1+tau*tau))

	e, n := eta, xi
	for j, a := range s.alpha {
		m := float64(2 * (j + 1))
		e += a * math.Cos(m*xi) * math.Sinh(m*eta)
		n += a * math.Sin(m*xi) * math.Cosh(m*eta)
	}

	x := utmFalseEasting + utmScale*s.a*e
	y := utmScale * s.a * n
	if !north {
		y += utmFalseNorthing
	}
	return x, y
}

func (s series) inverse(x, y float64, zone int, north bool) (float64, float64) {
	if !north {
		y -= utmFalseNorthing
	}
	xi := y / (utmScale * s.a)
	eta := (x - utmFalseEasting) / (utmScale * s.a)

	xiP, etaP := xi, eta
	for j, b := range s.beta {
		m := float64(2 * (j + 1))
		xiP -= b * math.Sin(m*xi) * math.Cosh(m*eta)
		etaP -= b * math.Cos(m*xi) * math.Sinh(m*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j, d := range s.delta {
		phi += d * math.Sin(float64(2*(j+1))*chi)
	}
	lambda := math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	return centralMeridian(zone) + lambda*180/math.Pi, phi * 180 / math.Pi
}
