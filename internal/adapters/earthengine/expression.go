package earthengine

import (
	"github.com/jobrunner/geosight/internal/domain"
)

// value is a node of an Earth Engine expression graph.
type value struct {
	ConstantValue           any         `json:"constantValue,omitempty"`
	FunctionInvocationValue *invocation `json:"functionInvocationValue,omitempty"`
	ArrayValue              *arrayValue `json:"arrayValue,omitempty"`
}

type invocation struct {
	FunctionName string            `json:"functionName"`
	Arguments    map[string]*value `json:"arguments,omitempty"`
}

type arrayValue struct {
	Values []*value `json:"values"`
}

// expression is the serialized graph. The root lives under result.
type expression struct {
	Result string            `json:"result"`
	Values map[string]*value `json:"values"`
}

func newExpression(root *value) expression {
	return expression{Result: "0", Values: map[string]*value{"0": root}}
}

func constant(v any) *value {
	return &value{ConstantValue: v}
}

func call(name string, args map[string]*value) *value {
	return &value{FunctionInvocationValue: &invocation{FunctionName: name, Arguments: args}}
}

func array(values ...*value) *value {
	return &value{ArrayValue: &arrayValue{Values: values}}
}

func stringList(items ...string) *value {
	values := make([]*value, len(items))
	for i, s := range items {
		values[i] = constant(s)
	}
	return array(values...)
}

// Geometry.

func pointGeometry(p domain.GeoPoint) *value {
	return call("GeometryConstructors.Point", map[string]*value{
		"coordinates": constant([]float64{p.Lon, p.Lat}),
	})
}

// regionGeometry buffers the point; a zero radius is the point itself.
func regionGeometry(r domain.Region) *value {
	pt := pointGeometry(r.Center)
	if r.Radius <= 0 {
		return pt
	}
	return call("Geometry.buffer", map[string]*value{
		"geometry": pt,
		"distance": constant(r.Radius),
	})
}

func bounds(geometry *value) *value {
	return call("Geometry.bounds", map[string]*value{"geometry": geometry})
}

// Images.

func loadImage(id string) *value {
	return call("Image.load", map[string]*value{"id": constant(id)})
}

// loadSource loads a dataset. Collections are mosaicked into one image.
func loadSource(src domain.DataSource) *value {
	if !src.Collection {
		return loadImage(src.Dataset)
	}
	return call("ImageCollection.mosaic", map[string]*value{
		"collection": call("ImageCollection.load", map[string]*value{"id": constant(src.Dataset)}),
	})
}

func selectBands(image *value, bands ...string) *value {
	return call("Image.select", map[string]*value{
		"input":         image,
		"bandSelectors": stringList(bands...),
	})
}

func clip(image, geometry *value) *value {
	return call("Image.clip", map[string]*value{
		"input":    image,
		"geometry": geometry,
	})
}

func constantImage(v float64) *value {
	return call("Image.constant", map[string]*value{"value": constant(v)})
}

func normalizedDifference(image *value, a, b domain.Band) *value {
	return call("Image.normalizedDifference", map[string]*value{
		"input":     image,
		"bandNames": stringList(string(a), string(b)),
	})
}

func compare(op string, image *value, threshold float64) *value {
	return call("Image."+op, map[string]*value{
		"image1": image,
		"image2": constantImage(threshold),
	})
}

func and(a, b *value) *value {
	return call("Image.and", map[string]*value{"image1": a, "image2": b})
}

func where(input, test *value, v float64) *value {
	return call("Image.where", map[string]*value{
		"input": input,
		"test":  test,
		"value": constantImage(v),
	})
}

// classified renders the rule-based land cover classes. Rules are applied
// in reverse priority so that the highest priority rule is written last.
func classified(scene *value, t domain.Thresholds) *value {
	ndvi := normalizedDifference(scene, domain.BandNIR, domain.BandRed)
	ndwi := normalizedDifference(scene, domain.BandGreen, domain.BandNIR)
	ndbi := normalizedDifference(scene, domain.BandSWIR1, domain.BandNIR)

	bare := and(and(compare("lt", ndvi, 0), compare("lt", ndwi, 0)), compare("lt", ndbi, 0))

	img := constantImage(float64(domain.Unclassified))
	img = where(img, bare, float64(domain.BareOrRoad))
	img = where(img, compare("gt", ndbi, t.BuiltUp), float64(domain.BuiltUp))
	img = where(img, compare("gt", ndwi, t.Water), float64(domain.Water))
	img = where(img, compare("gt", ndvi, t.Vegetation), float64(domain.Vegetation))
	return img
}

// Reductions.

func reducer(r domain.Reducer) *value {
	switch r {
	case domain.ReducerMode:
		return call("Reducer.mode", nil)
	default:
		return call("Reducer.mean", nil)
	}
}

func reduceRegion(image, red, geometry *value, scale float64) *value {
	return call("Image.reduceRegion", map[string]*value{
		"image":     image,
		"reducer":   red,
		"geometry":  geometry,
		"scale":     constant(scale),
		"maxPixels": constant(1e13),
	})
}

func reproject(image *value, scale float64) *value {
	return call("Image.reproject", map[string]*value{
		"image": image,
		"crs":   call("Projection", map[string]*value{"crs": constant("EPSG:3857")}),
		"scale": constant(scale),
	})
}

func sampleRectangle(image, region *value) *value {
	return call("Image.sampleRectangle", map[string]*value{
		"image":        image,
		"region":       region,
		"defaultValue": constant(0),
	})
}
