package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Band is a Sentinel-2 band name.
type Band string

// Sentinel-2 surface reflectance bands used for site analysis.
const (
	BandBlue  Band = "B2"
	BandGreen Band = "B3"
	BandRed   Band = "B4"
	BandNIR   Band = "B8"
	BandSWIR1 Band = "B11"
	BandSWIR2 Band = "B12"
)

// SentinelBands is the default band selection for a scene.
var SentinelBands = []Band{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR1, BandSWIR2}

// IndexBands are the bands required to compute an IndexSet.
var IndexBands = []Band{BandGreen, BandRed, BandNIR, BandSWIR1}

// SpectralBands maps band names to reflectance values at a point.
type SpectralBands map[Band]float64

// Missing returns the requested bands that have no value.
func (b SpectralBands) Missing(bands ...Band) []Band {
	var missing []Band
	for _, band := range bands {
		if _, ok := b[band]; !ok {
			missing = append(missing, band)
		}
	}
	return missing
}

// IndexSet holds the normalized-difference indices of a pixel.
type IndexSet struct {
	NDVI float64 `json:"ndvi"`
	NDWI float64 `json:"ndwi"`
	NDBI float64 `json:"ndbi"`
}

// NormalizedDifference returns (a-b)/(a+b), or 0 when a+b is zero.
func NormalizedDifference(a, b float64) float64 {
	sum := a + b
	if sum == 0 {
		return 0
	}
	return (a - b) / sum
}

// ComputeIndices derives NDVI (B8,B4), NDWI (B3,B8) and NDBI (B11,B8).
// A sample lacking any required band yields ErrDataUnavailable.
func ComputeIndices(b SpectralBands) (IndexSet, error) {
	if missing := b.Missing(IndexBands...); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return IndexSet{}, fmt.Errorf("missing bands %s: %w", strings.Join(names, ","), ErrDataUnavailable)
	}

	return IndexSet{
		NDVI: NormalizedDifference(b[BandNIR], b[BandRed]),
		NDWI: NormalizedDifference(b[BandGreen], b[BandNIR]),
		NDBI: NormalizedDifference(b[BandSWIR1], b[BandNIR]),
	}, nil
}

// Scene is a candidate satellite acquisition.
type Scene struct {
	ID         string    `json:"id"`
	AcquiredAt time.Time `json:"acquired_at"`
	CloudCover float64   `json:"cloud_cover"` // percent of cloudy pixels
}

// SceneQuery selects candidate scenes covering a point in a date window.
type SceneQuery struct {
	Collection string
	Point      GeoPoint
	Start      time.Time
	End        time.Time
}

// SelectScene picks the least cloudy scene. Ties go to the most recent
// acquisition, then to the lexically smallest ID.
func SelectScene(candidates []Scene) (Scene, bool) {
	if len(candidates) == 0 {
		return Scene{}, false
	}

	ranked := make([]Scene, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CloudCover != b.CloudCover {
			return a.CloudCover < b.CloudCover
		}
		if !a.AcquiredAt.Equal(b.AcquiredAt) {
			return a.AcquiredAt.After(b.AcquiredAt)
		}
		return a.ID < b.ID
	})
	return ranked[0], true
}

// SceneWindow returns the acquisition window ending at now.
func SceneWindow(now time.Time, lookback time.Duration) (time.Time, time.Time) {
	return now.Add(-lookback), now
}
