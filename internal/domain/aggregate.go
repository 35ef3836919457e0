package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Reducer is an aggregation applied over all samples within a region.
type Reducer string

// Supported reducers.
const (
	ReducerMean Reducer = "mean"
	ReducerMode Reducer = "mode"
)

// Valid reports whether the reducer is supported.
func (r Reducer) Valid() bool {
	return r == ReducerMean || r == ReducerMode
}

// Region is a point buffered by a radius in metres. A zero radius samples
// the point itself.
type Region struct {
	Center GeoPoint `json:"center"`
	Radius float64  `json:"radius_m"`
}

// DataSource identifies a raster band or vector layer on the backend.
// Collection marks an image collection that is mosaicked before reducing.
type DataSource struct {
	Dataset    string `json:"dataset"`
	Band       string `json:"band"`
	Collection bool   `json:"collection,omitempty"`
}

// String returns "dataset/band".
func (d DataSource) String() string {
	return d.Dataset + "/" + d.Band
}

// ReduceRequest describes a region reduction.
type ReduceRequest struct {
	Region  Region     `json:"region"`
	Source  DataSource `json:"source"`
	Reducer Reducer    `json:"reducer"`
	Scale   float64    `json:"scale_m"`
}

// Validate checks the request before it is sent to a backend.
func (r ReduceRequest) Validate() error {
	if err := r.Region.Center.Validate(); err != nil {
		return err
	}
	if r.Region.Radius < 0 {
		return &ValidationError{Field: "radius", Value: r.Region.Radius, Constraint: ">= 0", Message: "radius must not be negative"}
	}
	if r.Scale <= 0 {
		return &ValidationError{Field: "scale", Value: r.Scale, Constraint: "> 0", Message: "scale must be positive"}
	}
	if !r.Reducer.Valid() {
		return &ValidationError{Field: "reducer", Value: r.Reducer, Constraint: "mean|mode", Message: "unsupported reducer"}
	}
	if r.Source.Dataset == "" || r.Source.Band == "" {
		return &ValidationError{Field: "source", Value: r.Source.String(), Constraint: "dataset/band", Message: "data source is required"}
	}
	return nil
}

// AggregateResult is either a value or an explicit Unavailable marker.
// The zero value is Unavailable.
type AggregateResult struct {
	value     float64
	available bool
	reason    string
}

// Available wraps a reduced value.
func Available(v float64) AggregateResult {
	return AggregateResult{value: v, available: true}
}

// Unavailable marks a reduction that produced no value.
func Unavailable(reason string) AggregateResult {
	return AggregateResult{reason: reason}
}

// Value returns the value and whether it is available.
func (r AggregateResult) Value() (float64, bool) {
	return r.value, r.available
}

// IsAvailable reports whether the result carries a value.
func (r AggregateResult) IsAvailable() bool {
	return r.available
}

// Reason explains why the result is unavailable.
func (r AggregateResult) Reason() string {
	return r.reason
}

// String returns the value or "unavailable".
func (r AggregateResult) String() string {
	if !r.available {
		return "unavailable"
	}
	return fmt.Sprintf("%g", r.value)
}

type aggregateJSON struct {
	Available bool     `json:"available"`
	Value     *float64 `json:"value,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// MarshalJSON never emits a value for an unavailable result.
func (r AggregateResult) MarshalJSON() ([]byte, error) {
	out := aggregateJSON{Available: r.available, Reason: r.reason}
	if r.available {
		v := r.value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AggregateResult) UnmarshalJSON(data []byte) error {
	var in aggregateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Available && in.Value != nil {
		*r = Available(*in.Value)
		return nil
	}
	*r = Unavailable(in.Reason)
	return nil
}

// Reduce applies a reducer to local samples. NaN samples are masked out.
// Mode ties resolve to the smallest value.
func Reduce(reducer Reducer, samples []float64) AggregateResult {
	valid := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s) {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return Unavailable("no samples in region")
	}

	switch reducer {
	case ReducerMean:
		var sum float64
		for _, v := range valid {
			sum += v
		}
		return Available(sum / float64(len(valid)))
	case ReducerMode:
		sort.Float64s(valid)
		best, bestCount := valid[0], 0
		for i := 0; i < len(valid); {
			j := i
			for j < len(valid) && valid[j] == valid[i] {
				j++
			}
			if j-i > bestCount {
				best, bestCount = valid[i], j-i
			}
			i = j
		}
		return Available(best)
	default:
		return Unavailable(fmt.Sprintf("unsupported reducer %q", reducer))
	}
}
