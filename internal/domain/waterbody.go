package domain

import (
	"strings"
	"time"

	"github.com/twpayne/go-geom"
)

// Water body name sentinels.
const (
	NoNamedWaterBody = "No Named Water Body Found"
	UnnamedWaterBody = "Unknown"
)

// WaterSource records which vector source resolved a water body.
type WaterSource string

// Water body sources.
const (
	WaterSourcePOI       WaterSource = "poi"
	WaterSourceReference WaterSource = "reference"
)

// Feature is a vector feature returned by a POI source.
type Feature struct {
	ID         string            `json:"id"`
	Geometry   geom.T            `json:"-"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Name returns the trimmed "name" attribute.
func (f Feature) Name() string {
	return strings.TrimSpace(f.Attributes["name"])
}

// WaterBody is a named (or unnamed) water feature near a query point.
type WaterBody struct {
	ID       string      `json:"id,omitempty"`
	Name     string      `json:"name"`
	Geometry geom.T      `json:"-"`
	Source   WaterSource `json:"source"`
	Distance float64     `json:"distance_m,omitempty"` // reference source only
}

// WaterBodyResult is the outcome of water body resolution. Body is nil when
// neither source produced a candidate.
type WaterBodyResult struct {
	Name string     `json:"name"`
	Body *WaterBody `json:"body,omitempty"`
}

// NoWaterBody is the result when both sources come up empty.
func NoWaterBody() WaterBodyResult {
	return WaterBodyResult{Name: NoNamedWaterBody}
}

// ReferenceFeature is a polygon of the reference water dataset.
type ReferenceFeature struct {
	ID       string
	Name     string // empty when the attribute is missing
	Geometry geom.T
	Envelope Extent
}

// ReferenceDataset is an immutable, loaded collection of reference features
// sharing one CRS.
type ReferenceDataset struct {
	ID       string
	Path     string
	SRID     int
	Features []ReferenceFeature
	LoadedAt time.Time
}

// Len returns the number of features.
func (d *ReferenceDataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Features)
}

// ReferenceStatus is the load state of the reference dataset.
type ReferenceStatus string

// Reference dataset states.
const (
	ReferenceStatusPending ReferenceStatus = "pending"
	ReferenceStatusLoading ReferenceStatus = "loading"
	ReferenceStatusReady   ReferenceStatus = "ready"
	ReferenceStatusFailed  ReferenceStatus = "failed"
	ReferenceStatusAbsent  ReferenceStatus = "absent"
)

// Presence is the tri-state outcome of the water presence decision.
type Presence int

// Presence states. The zero value is PresenceUnavailable.
const (
	PresenceUnavailable Presence = iota
	PresenceAbsent
	PresencePresent
)

// DefaultPresenceThresholdPct is the occurrence percentage above which
// water is considered present.
const DefaultPresenceThresholdPct = 5.0

// String returns the presence name.
func (p Presence) String() string {
	switch p {
	case PresencePresent:
		return "present"
	case PresenceAbsent:
		return "absent"
	default:
		return "unavailable"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Presence) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// WaterPresence decides presence from the occurrence aggregate. An
// unavailable occurrence is never reported as absent.
func WaterPresence(occurrence AggregateResult, thresholdPct float64) Presence {
	v, ok := occurrence.Value()
	if !ok {
		return PresenceUnavailable
	}
	if v > thresholdPct {
		return PresencePresent
	}
	return PresenceAbsent
}

// FishingPossible derives the fishing flag from presence.
func (p Presence) FishingPossible() string {
	switch p {
	case PresencePresent:
		return "Yes"
	case PresenceAbsent:
		return "No"
	default:
		return "Unavailable"
	}
}
