package domain

import "time"

// Report section names.
const (
	SectionLandCover = "land_cover"
	SectionSoil      = "soil"
	SectionWater     = "water"
	SectionClimate   = "climate"
)

// LandCoverSection is the rule-based land cover at the point.
type LandCoverSection struct {
	Available bool           `json:"available"`
	Class     LandCoverClass `json:"class"`
	Indices   *IndexSet      `json:"indices,omitempty"`
	Scene     *Scene         `json:"scene,omitempty"`
	Grid      *LandCoverGrid `json:"grid,omitempty"`

	// WorldCover is the ESA WorldCover mode around the point, reported
	// next to the rule-based class.
	WorldCover     AggregateResult `json:"worldcover_code"`
	WorldCoverName string          `json:"worldcover_name,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// SoilSection is the resolved soil texture at the point.
type SoilSection struct {
	Available bool `json:"available"`
	SoilResolution
	Reason string `json:"reason,omitempty"`
}

// WaterSection combines presence and naming, which are independent.
type WaterSection struct {
	Presence        Presence        `json:"presence"`
	OccurrencePct   AggregateResult `json:"occurrence_pct"`
	WaterMaskPct    AggregateResult `json:"water_mask_pct"`
	FishingPossible string          `json:"fishing_possible"`
	WaterBody       WaterBodyResult `json:"water_body"`
	NameAvailable   bool            `json:"name_available"`
	Reason          string          `json:"reason,omitempty"`
}

// ClimateSection holds climate aggregates at the point.
type ClimateSection struct {
	RainfallMM   AggregateResult `json:"rainfall_mm"`
	SoilMoisture AggregateResult `json:"soil_moisture"`
}

// Issue records why part of a report is unavailable.
type Issue struct {
	Section string `json:"section"`
	Message string `json:"message"`
}

// SiteReport is the fused analysis of one point. It is assembled once by
// NewSiteReport and handed out by value.
type SiteReport struct {
	ID          string           `json:"id"`
	Point       GeoPoint         `json:"point"`
	Place       string           `json:"place,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	LandCover   LandCoverSection `json:"land_cover"`
	Soil        SoilSection      `json:"soil"`
	Water       WaterSection     `json:"water"`
	Climate     ClimateSection   `json:"climate"`
	Issues      []Issue          `json:"issues"`
}

// NewSiteReport assembles a report and derives its issue list.
func NewSiteReport(
	id string,
	point GeoPoint,
	place string,
	generatedAt time.Time,
	landCover LandCoverSection,
	soil SoilSection,
	water WaterSection,
	climate ClimateSection,
) SiteReport {
	if landCover.Grid != nil {
		grid := *landCover.Grid
		grid.Classes = append([]LandCoverClass(nil), grid.Classes...)
		landCover.Grid = &grid
	}
	water.FishingPossible = water.Presence.FishingPossible()

	issues := make([]Issue, 0)
	add := func(section, reason string) {
		if reason != "" {
			issues = append(issues, Issue{Section: section, Message: reason})
		}
	}
	unavailable := func(what string, r AggregateResult) string {
		if r.Reason() == "" {
			return what + ": unavailable"
		}
		return what + ": " + r.Reason()
	}
	if !landCover.Available {
		add(SectionLandCover, landCover.Reason)
	}
	if !soil.Available {
		add(SectionSoil, soil.Reason)
	}
	if water.Presence == PresenceUnavailable {
		add(SectionWater, unavailable("occurrence", water.OccurrencePct))
	}
	add(SectionWater, water.Reason)
	if !climate.RainfallMM.IsAvailable() {
		add(SectionClimate, unavailable("rainfall", climate.RainfallMM))
	}
	if !climate.SoilMoisture.IsAvailable() {
		add(SectionClimate, unavailable("soil moisture", climate.SoilMoisture))
	}

	return SiteReport{
		ID:          id,
		Point:       point,
		Place:       place,
		GeneratedAt: generatedAt.UTC(),
		LandCover:   landCover,
		Soil:        soil,
		Water:       water,
		Climate:     climate,
		Issues:      issues,
	}
}

// Complete reports whether every section carries data.
func (r SiteReport) Complete() bool {
	return len(r.Issues) == 0
}
