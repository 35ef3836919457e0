package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

var testNow = time.Date(2024, 3, 25, 12, 0, 0, 0, time.UTC)

var worldCover = SourceOptions{
	Source: domain.DataSource{Dataset: "ESA/WorldCover/v100", Band: "Map", Collection: true},
	Radius: 1000,
	Scale:  10,
}

// waterBands yields ndvi < 0, ndwi > 0.15.
var waterBands = domain.SpectralBands{
	domain.BandBlue:  900,
	domain.BandGreen: 1200,
	domain.BandRed:   800,
	domain.BandNIR:   600,
	domain.BandSWIR1: 300,
	domain.BandSWIR2: 200,
}

func newTestLandCover(backend *mockBackend, gridRadius float64) *LandCoverAnalyzer {
	return NewLandCoverAnalyzer(
		backend,
		newTestAggregator(backend, time.Second),
		&output.NoOpMetrics{},
		clockwork.NewFakeClockAt(testNow),
		testLogger(),
		time.Second,
		domain.DefaultThresholds(),
		SceneOptions{Collection: "COPERNICUS/S2_SR_HARMONIZED", Lookback: 90 * 24 * time.Hour, Scale: 10},
		gridRadius,
		worldCover,
	)
}

func TestLandCoverAnalyzerClassifiesLeastCloudyScene(t *testing.T) {
	backend := &mockBackend{
		scenes: []domain.Scene{
			{ID: "cloudy", CloudCover: 40, AcquiredAt: testNow.Add(-24 * time.Hour)},
			{ID: "clear", CloudCover: 2, AcquiredAt: testNow.Add(-72 * time.Hour)},
		},
		bands: waterBands,
		reduce: map[string]domain.AggregateResult{
			"ESA/WorldCover/v100": domain.Available(80),
		},
	}

	section := newTestLandCover(backend, 0).Analyze(context.Background(), testPoint)

	if !section.Available {
		t.Fatalf("section unavailable: %s", section.Reason)
	}
	if section.Class != domain.Water {
		t.Errorf("Class = %s, want Water", section.Class)
	}
	if section.Scene == nil || section.Scene.ID != "clear" {
		t.Errorf("Scene = %+v, want clear", section.Scene)
	}
	if section.Indices == nil || section.Indices.NDWI <= 0.15 {
		t.Errorf("Indices = %+v", section.Indices)
	}
	if section.WorldCoverName != "Permanent water bodies" {
		t.Errorf("WorldCoverName = %q", section.WorldCoverName)
	}
	if section.Grid != nil {
		t.Error("grid should be skipped when the grid radius is 0")
	}

	if len(backend.listCalls) != 1 {
		t.Fatalf("list calls = %d, want 1", len(backend.listCalls))
	}
	q := backend.listCalls[0]
	if !q.End.Equal(testNow) || !q.Start.Equal(testNow.Add(-90*24*time.Hour)) {
		t.Errorf("window = %s..%s", q.Start, q.End)
	}
}

func TestLandCoverAnalyzerUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		backend *mockBackend
		reason  string
	}{
		{
			name:    "no scene",
			backend: &mockBackend{},
			reason:  "no scene available",
		},
		{
			name:    "scene listing fails",
			backend: &mockBackend{listErr: errors.New("quota exceeded")},
		},
		{
			name: "sampling fails",
			backend: &mockBackend{
				scenes:   []domain.Scene{{ID: "s1"}},
				bandsErr: errors.New("pixel out of bounds"),
			},
		},
		{
			name: "missing band",
			backend: &mockBackend{
				scenes: []domain.Scene{{ID: "s1"}},
				bands:  domain.SpectralBands{domain.BandRed: 100},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			section := newTestLandCover(tt.backend, 0).Analyze(context.Background(), testPoint)
			if section.Available {
				t.Fatal("section should be unavailable")
			}
			if section.Reason == "" {
				t.Error("unavailable section should carry a reason")
			}
			if tt.reason != "" && section.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", section.Reason, tt.reason)
			}
			if section.Class != domain.Unclassified {
				t.Errorf("Class = %s, want Unclassified", section.Class)
			}
			if section.WorldCover.IsAvailable() {
				t.Error("WorldCover should be unavailable without data")
			}
		})
	}
}

func TestLandCoverAnalyzerGrid(t *testing.T) {
	veg := domain.SpectralBands{domain.BandGreen: 500, domain.BandRed: 300, domain.BandNIR: 3000, domain.BandSWIR1: 1500}
	backend := &mockBackend{
		scenes: []domain.Scene{{ID: "s1"}},
		bands:  waterBands,
		grid: domain.BandGrid{
			Width:  2,
			Height: 1,
			Scale:  10,
			Pixels: []domain.SpectralBands{veg, veg},
		},
	}

	section := newTestLandCover(backend, 100).Analyze(context.Background(), testPoint)
	if section.Grid == nil {
		t.Fatal("Grid is nil")
	}
	if section.Grid.Dominant() != domain.Vegetation {
		t.Errorf("Dominant = %s, want Vegetation", section.Grid.Dominant())
	}

	backend.gridErr = errors.New("too many pixels")
	section = newTestLandCover(backend, 100).Analyze(context.Background(), testPoint)
	if !section.Available || section.Grid != nil {
		t.Errorf("grid failure should only drop the grid: available=%v grid=%v", section.Available, section.Grid)
	}
}
