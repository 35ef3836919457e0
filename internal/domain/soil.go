package domain

// SoilClass is a USDA soil texture class.
type SoilClass int

// Soil texture classes in dataset code order.
const (
	SoilUnknown SoilClass = iota
	SoilSand
	SoilLoamySand
	SoilSandyLoam
	SoilSiltLoam
	SoilSandyClayLoam
	SoilClayLoam
	SoilSiltyClayLoam
	SoilSandyClay
	SoilSiltyClay
	SoilClay
)

var soilNames = [...]string{
	SoilUnknown:       "Unknown",
	SoilSand:          "Sand",
	SoilLoamySand:     "Loamy Sand",
	SoilSandyLoam:     "Sandy Loam",
	SoilSiltLoam:      "Silt Loam",
	SoilSandyClayLoam: "Sandy Clay Loam",
	SoilClayLoam:      "Clay Loam",
	SoilSiltyClayLoam: "Silty Clay Loam",
	SoilSandyClay:     "Sandy Clay",
	SoilSiltyClay:     "Silty Clay",
	SoilClay:          "Clay",
}

// String returns the display name of the class.
func (c SoilClass) String() string {
	if c < SoilUnknown || int(c) >= len(soilNames) {
		return soilNames[SoilUnknown]
	}
	return soilNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c SoilClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// TextureGroup is the coarse grouping that drives crop recommendations.
type TextureGroup string

// Texture groups.
const (
	TextureUnknown TextureGroup = ""
	TextureSandy   TextureGroup = "Sandy"
	TextureLoamy   TextureGroup = "Loamy"
	TextureClayey  TextureGroup = "Clayey"
)

// NoCropRecommendation is returned for soils without a known group.
const NoCropRecommendation = "No recommendation available"

var groupCrops = map[TextureGroup]string{
	TextureSandy:  "Carrots, Peanuts, Watermelon",
	TextureLoamy:  "Wheat, Maize, Vegetables",
	TextureClayey: "Rice, Sugarcane, Pulses",
}

// Group returns the texture group of the class.
func (c SoilClass) Group() TextureGroup {
	switch c {
	case SoilSand, SoilLoamySand:
		return TextureSandy
	case SoilSandyLoam, SoilSiltLoam:
		return TextureLoamy
	case SoilSandyClayLoam, SoilClayLoam, SoilSiltyClayLoam, SoilSandyClay, SoilSiltyClay, SoilClay:
		return TextureClayey
	default:
		return TextureUnknown
	}
}

// Crops returns the crop recommendation for the class.
func (c SoilClass) Crops() string {
	if crops, ok := groupCrops[c.Group()]; ok {
		return crops
	}
	return NoCropRecommendation
}

// SoilResolution is the outcome of resolving a soil code.
type SoilResolution struct {
	Code  *int         `json:"code,omitempty"`
	Class SoilClass    `json:"class"`
	Group TextureGroup `json:"group,omitempty"`
	Crops string       `json:"crops"`
}

// ResolveSoil maps a sampled soil code to its class and crop recommendation.
// A missing sample or a code outside 1..10 resolves to SoilUnknown.
func ResolveSoil(code int, ok bool) SoilResolution {
	if !ok {
		return SoilResolution{Class: SoilUnknown, Crops: NoCropRecommendation}
	}

	c := code
	class := SoilUnknown
	if code >= int(SoilSand) && code <= int(SoilClay) {
		class = SoilClass(code)
	}
	return SoilResolution{
		Code:  &c,
		Class: class,
		Group: class.Group(),
		Crops: class.Crops(),
	}
}
