package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

const (
	dsSoil      = "OpenLandMap/SOL/SOL_TEXTURE-CLASS_USDA-TT_M/v02"
	dsOccur     = "JRC/GSW1_4/GlobalSurfaceWater"
	dsMask      = "MODIS/006/MOD44W"
	dsRain      = "UCSB-CHG/CHIRPS/DAILY"
	dsMoisture  = "NASA_USDA/HSL/SMAP10KM_soil_moisture"
	testTimeout = 50 * time.Millisecond
)

type analysisFixture struct {
	backend   *mockBackend
	poi       *mockPOI
	reference *mockReference
	geocoder  *mockGeocoder
	publisher *mockPublisher
}

func newFixture() *analysisFixture {
	return &analysisFixture{
		backend: &mockBackend{
			scenes: []domain.Scene{{ID: "S2A_1", CloudCover: 3, AcquiredAt: testNow.Add(-48 * time.Hour)}},
			bands:  waterBands,
			reduce: map[string]domain.AggregateResult{
				dsSoil:                domain.Available(7),
				dsOccur:               domain.Available(42),
				dsMask:                domain.Available(0.25),
				dsRain:                domain.Available(3.2),
				dsMoisture:            domain.Available(0.18),
				"ESA/WorldCover/v100": domain.Available(80),
			},
		},
		poi: &mockPOI{features: []domain.Feature{
			{ID: "way/1", Attributes: map[string]string{"name": "Spree"}},
		}},
		reference: &mockReference{},
		geocoder: &mockGeocoder{places: map[string]domain.GeoPoint{
			"Berlin": testPoint,
		}},
		publisher: &mockPublisher{},
	}
}

func (f *analysisFixture) service() *AnalysisService {
	metrics := &output.NoOpMetrics{}
	logger := testLogger()
	clock := clockwork.NewFakeClockAt(testNow)

	agg := NewRegionAggregator(f.backend, metrics, logger, testTimeout)
	landCover := NewLandCoverAnalyzer(
		f.backend, agg, metrics, clock, logger, testTimeout,
		domain.DefaultThresholds(),
		SceneOptions{Collection: "COPERNICUS/S2_SR_HARMONIZED", Lookback: 90 * 24 * time.Hour, Scale: 10},
		0,
		worldCover,
	)
	water := NewWaterBodyResolver(f.poi, f.reference, &mockTransformer{}, metrics, logger, testTimeout, 0)

	var publisher output.ReportPublisher
	if f.publisher != nil {
		publisher = f.publisher
	}

	svc := NewAnalysisService(landCover, agg, water, f.backend, f.geocoder, publisher, metrics, clock, logger,
		AnalysisServiceConfig{
			Soil:                 SourceOptions{Source: domain.DataSource{Dataset: dsSoil, Band: "b0"}, Scale: 250},
			Occurrence:           SourceOptions{Source: domain.DataSource{Dataset: dsOccur, Band: "occurrence"}, Radius: 5000, Scale: 30},
			WaterMask:            SourceOptions{Source: domain.DataSource{Dataset: dsMask, Band: "water_mask", Collection: true}, Radius: 5000, Scale: 250},
			PresenceThresholdPct: 5,
			SearchRadius:         5000,
			Rainfall:             SourceOptions{Source: domain.DataSource{Dataset: dsRain, Band: "precipitation", Collection: true}, Scale: 5000},
			SoilMoisture:         SourceOptions{Source: domain.DataSource{Dataset: dsMoisture, Band: "ssm", Collection: true}, Scale: 5000},
			WorldCover:           worldCover,
			Thresholds:           domain.DefaultThresholds(),
			CallTimeout:          testTimeout,
		},
	)
	svc.newID = func() string { return "report-1" }
	return svc
}

func TestAnalysisServiceAnalyzeComplete(t *testing.T) {
	f := newFixture()
	report, err := f.service().Analyze(context.Background(), testPoint)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !report.Complete() {
		t.Errorf("report has issues: %+v", report.Issues)
	}
	if report.ID != "report-1" || !report.GeneratedAt.Equal(testNow) {
		t.Errorf("ID = %q, GeneratedAt = %s", report.ID, report.GeneratedAt)
	}
	if report.LandCover.Class != domain.Water {
		t.Errorf("LandCover.Class = %s, want Water", report.LandCover.Class)
	}
	if report.Soil.Class != domain.SoilSiltyClayLoam {
		t.Errorf("Soil.Class = %s, want SiltyClayLoam", report.Soil.Class)
	}
	if report.Soil.Crops == domain.NoCropRecommendation {
		t.Error("Soil.Crops should carry a recommendation")
	}
	if report.Water.Presence != domain.PresencePresent || report.Water.FishingPossible != "Yes" {
		t.Errorf("Water = %+v", report.Water)
	}
	if v, _ := report.Water.WaterMaskPct.Value(); v != 25 {
		t.Errorf("WaterMaskPct = %v, want 25", v)
	}
	if report.Water.WaterBody.Name != "Spree" || !report.Water.NameAvailable {
		t.Errorf("WaterBody = %+v", report.Water.WaterBody)
	}
	if v, _ := report.Climate.RainfallMM.Value(); v != 3.2 {
		t.Errorf("RainfallMM = %v, want 3.2", v)
	}

	if len(f.publisher.published) != 1 || f.publisher.published[0].ID != "report-1" {
		t.Errorf("published = %d reports", len(f.publisher.published))
	}
}

func TestAnalysisServiceOccurrenceTimeout(t *testing.T) {
	f := newFixture()
	f.backend.block = map[string]bool{dsOccur: true}

	report, err := f.service().Analyze(context.Background(), testPoint)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if report.Water.Presence != domain.PresenceUnavailable {
		t.Errorf("Presence = %s, want unavailable (not absent)", report.Water.Presence)
	}
	if report.Water.FishingPossible != "Unavailable" {
		t.Errorf("FishingPossible = %q, want Unavailable", report.Water.FishingPossible)
	}
	if report.Water.OccurrencePct.Reason() != "timeout" {
		t.Errorf("OccurrencePct reason = %q, want timeout", report.Water.OccurrencePct.Reason())
	}

	// Other sections are unaffected.
	if !report.LandCover.Available || !report.Soil.Available {
		t.Error("land cover and soil should still be available")
	}
	if report.Water.WaterBody.Name != "Spree" {
		t.Errorf("naming should be independent of presence, got %q", report.Water.WaterBody.Name)
	}
	if report.Complete() {
		t.Error("report should list the water issue")
	}

	data, err := json.Marshal(report.Water)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["presence"] != "unavailable" {
		t.Errorf("presence json = %v, want unavailable", decoded["presence"])
	}
	occ := decoded["occurrence_pct"].(map[string]any)
	if occ["available"] != false {
		t.Errorf("occurrence_pct json = %v", occ)
	}
	if _, hasValue := occ["value"]; hasValue {
		t.Error("unavailable occurrence should not serialize a value")
	}
}

func TestAnalysisServiceAllSourcesDown(t *testing.T) {
	f := newFixture()
	f.backend = &mockBackend{listErr: errors.New("backend down")}
	f.poi = &mockPOI{err: errors.New("poi down")}
	f.reference = &mockReference{err: domain.ErrReferenceNotLoaded}
	f.publisher = nil

	report, err := f.service().Analyze(context.Background(), testPoint)
	if err != nil {
		t.Fatalf("Analyze should degrade, got %v", err)
	}

	if report.LandCover.Available || report.Soil.Available {
		t.Error("sections should be unavailable")
	}
	if report.Soil.Class != domain.SoilUnknown || report.Soil.Crops != domain.NoCropRecommendation {
		t.Errorf("Soil = %+v", report.Soil)
	}
	if report.Water.Presence != domain.PresenceUnavailable {
		t.Errorf("Presence = %s", report.Water.Presence)
	}
	if report.Water.WaterBody.Name != domain.NoNamedWaterBody || report.Water.NameAvailable {
		t.Errorf("WaterBody = %+v, NameAvailable = %v", report.Water.WaterBody, report.Water.NameAvailable)
	}
	if report.Climate.RainfallMM.IsAvailable() || report.Climate.SoilMoisture.IsAvailable() {
		t.Error("climate should be unavailable")
	}

	sections := map[string]bool{}
	for _, issue := range report.Issues {
		sections[issue.Section] = true
	}
	for _, s := range []string{domain.SectionLandCover, domain.SectionSoil, domain.SectionWater, domain.SectionClimate} {
		if !sections[s] {
			t.Errorf("missing issue for section %s", s)
		}
	}
}

func TestAnalysisServiceZeroOccurrenceIsAbsent(t *testing.T) {
	f := newFixture()
	f.backend.reduce[dsOccur] = domain.Available(0)

	report, _ := f.service().Analyze(context.Background(), testPoint)
	if report.Water.Presence != domain.PresenceAbsent {
		t.Errorf("Presence = %s, want absent", report.Water.Presence)
	}
	if report.Water.FishingPossible != "No" {
		t.Errorf("FishingPossible = %q, want No", report.Water.FishingPossible)
	}
}

func TestAnalysisServiceInvalidPoint(t *testing.T) {
	f := newFixture()
	_, err := f.service().Analyze(context.Background(), domain.GeoPoint{Lat: 0, Lon: 181})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if f.backend.reduceCount() != 0 {
		t.Error("backend should not be called for an invalid point")
	}
}

func TestAnalysisServicePublishFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("broker unreachable")

	if _, err := f.service().Analyze(context.Background(), testPoint); err != nil {
		t.Errorf("Analyze failed: %v", err)
	}
}

func TestAnalysisServiceAnalyzePlace(t *testing.T) {
	f := newFixture()
	svc := f.service()

	report, err := svc.AnalyzePlace(context.Background(), "  Berlin ")
	if err != nil {
		t.Fatalf("AnalyzePlace failed: %v", err)
	}
	if report.Place != "Berlin" || report.Point != testPoint {
		t.Errorf("Place = %q, Point = %v", report.Place, report.Point)
	}

	_, err = svc.AnalyzePlace(context.Background(), "Atlantis")
	if !errors.Is(err, domain.ErrLocationNotFound) {
		t.Errorf("err = %v, want ErrLocationNotFound", err)
	}

	_, err = svc.AnalyzePlace(context.Background(), "   ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAnalysisServiceAnalyzePlaceNoPartialReport(t *testing.T) {
	f := newFixture()
	svc := f.service()

	report, err := svc.AnalyzePlace(context.Background(), "Atlantis")
	if err == nil {
		t.Fatal("expected error")
	}
	if report.ID != "" {
		t.Errorf("report = %+v, want zero value", report)
	}
	if f.backend.reduceCount() != 0 || len(f.publisher.published) != 0 {
		t.Error("no analysis should run for an unknown place")
	}
}

func TestAnalysisServiceComposeMap(t *testing.T) {
	f := newFixture()
	m, err := f.service().ComposeMap(context.Background(), testPoint)
	if err != nil {
		t.Fatalf("ComposeMap failed: %v", err)
	}

	if m.Zoom != 14 || m.Center != testPoint {
		t.Errorf("map = %+v", m)
	}
	names := make([]string, len(m.Layers))
	for i, l := range m.Layers {
		names[i] = l.Name
		if l.Attribution != domain.EarthObservationAttribution || l.TileURL == "" {
			t.Errorf("layer %q = %+v", l.Name, l)
		}
	}
	want := []string{"Sentinel-2 RGB", "Land Cover", "ESA WorldCover"}
	if len(names) != len(want) {
		t.Fatalf("layers = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("layer[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	lc := f.backend.tileCalls[1]
	if lc.SceneID != "S2A_1" || lc.Thresholds == nil || lc.Clip == nil {
		t.Errorf("land cover tile request = %+v", lc)
	}
}

func TestAnalysisServiceComposeMapSkipsFailedLayers(t *testing.T) {
	f := newFixture()
	f.backend.tileErr = errors.New("render failed")

	m, err := f.service().ComposeMap(context.Background(), testPoint)
	if err != nil {
		t.Fatalf("ComposeMap failed: %v", err)
	}
	if len(m.Layers) != 0 {
		t.Errorf("layers = %d, want 0", len(m.Layers))
	}
}
