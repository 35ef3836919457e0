package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ix   IndexSet
		want LandCoverClass
	}{
		{"water scenario", IndexSet{NDVI: -0.1, NDWI: 0.2, NDBI: 0.05}, Water},
		{"vegetation has priority", IndexSet{NDVI: 0.3, NDWI: 0.2, NDBI: 0.2}, Vegetation},
		{"built-up", IndexSet{NDVI: 0.1, NDWI: 0.0, NDBI: 0.25}, BuiltUp},
		{"bare or road", IndexSet{NDVI: -0.05, NDWI: -0.1, NDBI: -0.2}, BareOrRoad},
		{"unclassified", IndexSet{NDVI: 0.1, NDWI: 0.1, NDBI: 0.05}, Unclassified},
		{"ndvi at threshold falls through", IndexSet{NDVI: 0.2, NDWI: 0, NDBI: 0}, Unclassified},
		{"ndwi at threshold falls through", IndexSet{NDVI: 0, NDWI: 0.15, NDBI: 0}, Unclassified},
		{"ndbi at threshold falls through", IndexSet{NDVI: 0, NDWI: 0, NDBI: 0.1}, Unclassified},
		{"zero is not negative", IndexSet{NDVI: 0, NDWI: -0.1, NDBI: -0.1}, Unclassified},
		{"NaN input", IndexSet{NDVI: math.NaN(), NDWI: math.NaN(), NDBI: math.NaN()}, Unclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.ix); got != tt.want {
				t.Errorf("Classify(%+v) = %v, want %v", tt.ix, got, tt.want)
			}
		})
	}
}

func TestClassifyTotality(t *testing.T) {
	steps := []float64{-1, -0.5, -0.01, 0, 0.1, 0.15, 0.2, 0.21, 0.5, 1}
	for _, ndvi := range steps {
		for _, ndwi := range steps {
			for _, ndbi := range steps {
				got := Classify(IndexSet{NDVI: ndvi, NDWI: ndwi, NDBI: ndbi})
				if got < Unclassified || got > BareOrRoad {
					t.Fatalf("Classify returned out-of-range class %d", got)
				}
			}
		}
	}
}

func TestThresholdsCustom(t *testing.T) {
	th := Thresholds{Vegetation: 0.5, Water: 0.3, BuiltUp: 0.2}
	ix := IndexSet{NDVI: 0.3, NDWI: 0.2, NDBI: 0.25}
	if got := th.Classify(ix); got != BuiltUp {
		t.Errorf("Classify() = %v, want %v", got, BuiltUp)
	}
}

func TestClassifyGrid(t *testing.T) {
	veg := SpectralBands{BandGreen: 500, BandRed: 300, BandNIR: 2000, BandSWIR1: 900}
	water := SpectralBands{BandGreen: 900, BandRed: 400, BandNIR: 300, BandSWIR1: 100}
	partial := SpectralBands{BandGreen: 900}

	grid := DefaultThresholds().ClassifyGrid(BandGrid{
		Width:  2,
		Height: 2,
		Scale:  10,
		Pixels: []SpectralBands{veg, water, veg, partial},
	})

	want := []LandCoverClass{Vegetation, Water, Vegetation, Unclassified}
	for i, c := range grid.Classes {
		if c != want[i] {
			t.Errorf("pixel %d = %v, want %v", i, c, want[i])
		}
	}
	if got := grid.Dominant(); got != Vegetation {
		t.Errorf("Dominant() = %v, want %v", got, Vegetation)
	}
}

func TestLandCoverGridDominantTie(t *testing.T) {
	g := LandCoverGrid{Classes: []LandCoverClass{BuiltUp, Water, BuiltUp, Water}}
	if got := g.Dominant(); got != Water {
		t.Errorf("Dominant() = %v, want %v", got, Water)
	}
	if got := (LandCoverGrid{}).Dominant(); got != Unclassified {
		t.Errorf("empty Dominant() = %v", got)
	}
}

func TestLandCoverClassText(t *testing.T) {
	data, err := json.Marshal(map[string]LandCoverClass{"class": BareOrRoad})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"class":"Bare/Road"}` {
		t.Errorf("json = %s", data)
	}

	var c LandCoverClass
	if err := c.UnmarshalText([]byte("built-up")); err != nil || c != BuiltUp {
		t.Errorf("UnmarshalText() = %v, %v", c, err)
	}
	if err := c.UnmarshalText([]byte("forest")); err == nil {
		t.Error("expected error for unknown class")
	}
}

func TestWorldCoverName(t *testing.T) {
	if name, ok := WorldCoverName(80); !ok || name != "Permanent water bodies" {
		t.Errorf("WorldCoverName(80) = %q, %v", name, ok)
	}
	if _, ok := WorldCoverName(15); ok {
		t.Error("15 is not a WorldCover code")
	}
}
