package domain

import (
	"fmt"
	"strings"
)

// LandCoverClass is the rule-based class of a pixel. Values match the
// classified-image palette index.
type LandCoverClass int

// Land cover classes.
const (
	Unclassified LandCoverClass = iota
	Vegetation
	Water
	BuiltUp
	BareOrRoad
)

var landCoverNames = map[LandCoverClass]string{
	Unclassified: "Unclassified",
	Vegetation:   "Vegetation",
	Water:        "Water",
	BuiltUp:      "Built-up",
	BareOrRoad:   "Bare/Road",
}

// String returns the display name of the class.
func (c LandCoverClass) String() string {
	if name, ok := landCoverNames[c]; ok {
		return name
	}
	return landCoverNames[Unclassified]
}

// MarshalText implements encoding.TextMarshaler.
func (c LandCoverClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *LandCoverClass) UnmarshalText(text []byte) error {
	for class, name := range landCoverNames {
		if strings.EqualFold(name, string(text)) {
			*c = class
			return nil
		}
	}
	return fmt.Errorf("unknown land cover class %q: %w", text, ErrInvalidInput)
}

// Default classification thresholds.
const (
	DefaultVegetationThreshold = 0.2
	DefaultWaterThreshold      = 0.15
	DefaultBuiltUpThreshold    = 0.1
)

// Thresholds are the index cut-offs of the classification rules.
type Thresholds struct {
	Vegetation float64 `json:"vegetation"` // NDVI
	Water      float64 `json:"water"`      // NDWI
	BuiltUp    float64 `json:"built_up"`   // NDBI
}

// DefaultThresholds returns the calibrated default cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Vegetation: DefaultVegetationThreshold,
		Water:      DefaultWaterThreshold,
		BuiltUp:    DefaultBuiltUpThreshold,
	}
}

// Classify applies the priority chain to an IndexSet. The first matching
// rule wins; a value equal to a threshold does not match it.
func (t Thresholds) Classify(ix IndexSet) LandCoverClass {
	switch {
	case ix.NDVI > t.Vegetation:
		return Vegetation
	case ix.NDWI > t.Water:
		return Water
	case ix.NDBI > t.BuiltUp:
		return BuiltUp
	case ix.NDVI < 0 && ix.NDWI < 0 && ix.NDBI < 0:
		return BareOrRoad
	default:
		return Unclassified
	}
}

// Classify classifies with the default thresholds.
func Classify(ix IndexSet) LandCoverClass {
	return DefaultThresholds().Classify(ix)
}

// BandGrid is a row-major raster of band samples.
type BandGrid struct {
	Width  int
	Height int
	Scale  float64 // metres per pixel
	Pixels []SpectralBands
}

// LandCoverGrid is a row-major raster of classes.
type LandCoverGrid struct {
	Width   int              `json:"width"`
	Height  int              `json:"height"`
	Scale   float64          `json:"scale"`
	Classes []LandCoverClass `json:"classes"`
}

// ClassifyGrid classifies every pixel. Pixels missing bands are Unclassified.
func (t Thresholds) ClassifyGrid(g BandGrid) LandCoverGrid {
	out := LandCoverGrid{
		Width:   g.Width,
		Height:  g.Height,
		Scale:   g.Scale,
		Classes: make([]LandCoverClass, len(g.Pixels)),
	}
	for i, px := range g.Pixels {
		ix, err := ComputeIndices(px)
		if err != nil {
			out.Classes[i] = Unclassified
			continue
		}
		out.Classes[i] = t.Classify(ix)
	}
	return out
}

// Histogram counts pixels per class.
func (g LandCoverGrid) Histogram() map[LandCoverClass]int {
	counts := make(map[LandCoverClass]int)
	for _, c := range g.Classes {
		counts[c]++
	}
	return counts
}

// Dominant returns the modal class; ties go to the lower class value.
// An empty grid is Unclassified.
func (g LandCoverGrid) Dominant() LandCoverClass {
	counts := g.Histogram()
	best, bestCount := Unclassified, 0
	for c := Unclassified; c <= BareOrRoad; c++ {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// WorldCover class codes of the ESA WorldCover 10 m product.
var worldCoverNames = map[int]string{
	10:  "Tree cover",
	20:  "Shrubland",
	30:  "Grassland",
	40:  "Cropland",
	50:  "Built-up",
	60:  "Bare / sparse vegetation",
	70:  "Snow and ice",
	80:  "Permanent water bodies",
	90:  "Herbaceous wetland",
	95:  "Mangroves",
	100: "Moss and lichen",
}

// WorldCoverName returns the name of an ESA WorldCover code.
func WorldCoverName(code int) (string, bool) {
	name, ok := worldCoverNames[code]
	return name, ok
}
