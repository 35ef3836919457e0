package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNormalizedDifference(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"typical", 0.4, 0.1, 0.6},
		{"equal", 0.3, 0.3, 0},
		{"zero sum", 0, 0, 0},
		{"opposite values", 0.5, -0.5, 0},
		{"negative", 0.1, 0.4, -0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizedDifference(tt.a, tt.b)
			if math.IsNaN(got) {
				t.Fatal("NormalizedDifference returned NaN")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NormalizedDifference(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNormalizedDifferenceAntisymmetric(t *testing.T) {
	values := []float64{0, 0.01, 0.1, 0.25, 0.5, 1, 1200, 3000, -0.2}
	for _, a := range values {
		for _, b := range values {
			if got, want := NormalizedDifference(a, b), -NormalizedDifference(b, a); got != want {
				t.Errorf("nd(%v,%v) = %v, -nd(%v,%v) = %v", a, b, got, b, a, want)
			}
		}
	}
}

func TestComputeIndices(t *testing.T) {
	bands := SpectralBands{
		BandGreen: 600,
		BandRed:   400,
		BandNIR:   1600,
		BandSWIR1: 800,
	}

	ix, err := ComputeIndices(bands)
	if err != nil {
		t.Fatalf("ComputeIndices() error = %v", err)
	}

	if math.Abs(ix.NDVI-0.6) > 1e-9 {
		t.Errorf("NDVI = %v, want 0.6", ix.NDVI)
	}
	if math.Abs(ix.NDWI-(-1000.0/2200.0)) > 1e-9 {
		t.Errorf("NDWI = %v", ix.NDWI)
	}
	if math.Abs(ix.NDBI-(-800.0/2400.0)) > 1e-9 {
		t.Errorf("NDBI = %v", ix.NDBI)
	}
}

func TestComputeIndicesMissingBand(t *testing.T) {
	_, err := ComputeIndices(SpectralBands{BandGreen: 1, BandRed: 1})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestSelectScene(t *testing.T) {
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		candidates []Scene
		wantID     string
		wantOK     bool
	}{
		{
			name:   "empty",
			wantOK: false,
		},
		{
			name: "least cloudy wins",
			candidates: []Scene{
				{ID: "a", AcquiredAt: base, CloudCover: 40},
				{ID: "b", AcquiredAt: base.Add(-48 * time.Hour), CloudCover: 2.5},
				{ID: "c", AcquiredAt: base.Add(24 * time.Hour), CloudCover: 10},
			},
			wantID: "b",
			wantOK: true,
		},
		{
			name: "tie goes to most recent",
			candidates: []Scene{
				{ID: "old", AcquiredAt: base, CloudCover: 1},
				{ID: "new", AcquiredAt: base.Add(time.Hour), CloudCover: 1},
			},
			wantID: "new",
			wantOK: true,
		},
		{
			name: "full tie goes to smallest id",
			candidates: []Scene{
				{ID: "z", AcquiredAt: base, CloudCover: 1},
				{ID: "m", AcquiredAt: base, CloudCover: 1},
			},
			wantID: "m",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectScene(tt.candidates)
			if ok != tt.wantOK {
				t.Fatalf("SelectScene() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("SelectScene() = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestSelectSceneDoesNotReorderInput(t *testing.T) {
	in := []Scene{{ID: "a", CloudCover: 9}, {ID: "b", CloudCover: 1}}
	SelectScene(in)
	if in[0].ID != "a" {
		t.Error("SelectScene must not mutate its input")
	}
}
