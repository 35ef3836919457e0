// Package domain contains the core entities, value objects and pure
// classification rules of site analysis.
package domain

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS84 location in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewGeoPoint creates a validated GeoPoint.
func NewGeoPoint(lat, lon float64) (GeoPoint, error) {
	p := GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return GeoPoint{}, err
	}
	return p, nil
}

// Validate checks that latitude and longitude are within WGS84 bounds.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return &ValidationError{
			Field:      "lat",
			Value:      p.Lat,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return &ValidationError{
			Field:      "lon",
			Value:      p.Lon,
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	return nil
}

// Coordinate returns the point as an EPSG:4326 coordinate (x=lon, y=lat).
func (p GeoPoint) Coordinate() Coordinate {
	return Coordinate{X: p.Lon, Y: p.Lat, SRID: SRIDWGS84}
}

// WKT returns the Well-Known Text representation in lon/lat order.
func (p GeoPoint) WKT() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lon, p.Lat)
}

// String returns a string representation of the point.
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Coordinate is a position in an arbitrary coordinate reference system.
type Coordinate struct {
	X    float64 // Longitude or Easting
	Y    float64 // Latitude or Northing
	SRID int     // Spatial Reference ID
}

// WKT returns the Well-Known Text representation.
func (c Coordinate) WKT() string {
	return fmt.Sprintf("POINT(%f %f)", c.X, c.Y)
}

// Common SRID constants.
const (
	SRIDWGS84       = 4326 // WGS 84
	SRIDWebMercator = 3857 // Web Mercator

	sridUTMNorthBase = 32600
	sridUTMSouthBase = 32700
)

// UTMZone returns the 6-degree UTM zone number (1-60) for a longitude.
func UTMZone(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		return 1
	}
	if zone > 60 {
		return 60
	}
	return zone
}

// UTMSRID returns the WGS84 / UTM EPSG code of the zone containing p.
func UTMSRID(p GeoPoint) int {
	zone := UTMZone(p.Lon)
	if p.Lat < 0 {
		return sridUTMSouthBase + zone
	}
	return sridUTMNorthBase + zone
}

// ParseUTMSRID reports the zone and hemisphere of a WGS84 / UTM EPSG code.
func ParseUTMSRID(srid int) (zone int, north bool, ok bool) {
	switch {
	case srid > sridUTMNorthBase && srid <= sridUTMNorthBase+60:
		return srid - sridUTMNorthBase, true, true
	case srid > sridUTMSouthBase && srid <= sridUTMSouthBase+60:
		return srid - sridUTMSouthBase, false, true
	}
	return 0, false, false
}

// Extent represents a spatial bounding box.
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
	SRID int
}

// Contains checks if a coordinate is within the extent.
func (e Extent) Contains(c Coordinate) bool {
	return c.X >= e.MinX && c.X <= e.MaxX && c.Y >= e.MinY && c.Y <= e.MaxY
}

// IsValid checks if the extent has valid dimensions.
func (e Extent) IsValid() bool {
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// DistanceTo returns the planar distance from c to the nearest edge of the
// extent, or 0 when c lies inside it.
func (e Extent) DistanceTo(c Coordinate) float64 {
	dx := math.Max(math.Max(e.MinX-c.X, 0), c.X-e.MaxX)
	dy := math.Max(math.Max(e.MinY-c.Y, 0), c.Y-e.MaxY)
	return math.Hypot(dx, dy)
}
