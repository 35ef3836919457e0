package domain

// VisParams are the rendering parameters of a raster layer.
type VisParams struct {
	Bands   []string `json:"bands,omitempty"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Gamma   float64  `json:"gamma,omitempty"`
	Palette []string `json:"palette,omitempty"`
}

// Visualization presets.
var (
	SentinelRGBVis = VisParams{
		Bands: []string{string(BandRed), string(BandGreen), string(BandBlue)},
		Min:   0,
		Max:   3000,
		Gamma: 1.4,
	}

	// LandCoverVis palette is indexed by LandCoverClass.
	LandCoverVis = VisParams{
		Min:     float64(Unclassified),
		Max:     float64(BareOrRoad),
		Palette: []string{"black", "green", "blue", "gray", "yellow"},
	}

	WorldCoverVis = VisParams{
		Min:     10,
		Max:     100,
		Palette: []string{"brown", "green", "gray", "blue"},
	}
)

// TileRequest asks a raster backend for an XYZ tile URL template.
type TileRequest struct {
	SceneID    string      `json:"scene_id,omitempty"`
	Source     DataSource  `json:"source"`
	Vis        VisParams   `json:"vis"`
	Clip       *Region     `json:"clip,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"` // render the rule-based classes
}

// EarthObservationAttribution is attached to every backend tile layer.
const EarthObservationAttribution = "Google Earth Engine"

// MapLayer is an overlay tile layer.
type MapLayer struct {
	Name        string    `json:"name"`
	TileURL     string    `json:"tile_url"`
	Attribution string    `json:"attribution"`
	Vis         VisParams `json:"vis"`
	Overlay     bool      `json:"overlay"`
}

// MapView describes an interactive map for a presentation layer.
type MapView struct {
	Center GeoPoint   `json:"center"`
	Zoom   int        `json:"zoom"`
	Layers []MapLayer `json:"layers"`
}

// NewMapView creates an empty map centred on p.
func NewMapView(p GeoPoint, zoom int) MapView {
	return MapView{Center: p, Zoom: zoom}
}

// AddEarthObservationLayer returns a copy of m with a backend tile layer
// appended. m is left unchanged.
func AddEarthObservationLayer(m MapView, tileURL string, vis VisParams, name string) MapView {
	layers := make([]MapLayer, len(m.Layers), len(m.Layers)+1)
	copy(layers, m.Layers)
	layers = append(layers, MapLayer{
		Name:        name,
		TileURL:     tileURL,
		Attribution: EarthObservationAttribution,
		Vis:         vis,
		Overlay:     true,
	})
	m.Layers = layers
	return m
}
