// Package accessibility implements the accessibility aggregator:
// decay-weighted sum/mean/count/std/quantile reductions over a range result
// and a per-node attribute vector.
package accessibility

import (
	"math"
	"sort"

	"accessgraph/pkg/accesserr"
	"accessgraph/pkg/graph"
)

// Decay is one of the three decay kinds a caller may request.
type Decay string

const (
	DecayExp    Decay = "exp"
	DecayLinear Decay = "linear"
	DecayFlat   Decay = "flat"
)

// Aggregation is one of the nine aggregation kinds a caller may request.
type Aggregation string

const (
	AggMin    Aggregation = "min"
	AggP25    Aggregation = "25pct"
	AggMedian Aggregation = "median"
	AggP75    Aggregation = "75pct"
	AggMax    Aggregation = "max"
	AggSum    Aggregation = "sum"
	AggMean   Aggregation = "mean"
	AggCount  Aggregation = "count"
	AggStd    Aggregation = "std"
)

// EmptySentinel is returned whenever the range is empty — a contract
// callers must not confuse with a legitimate value (spec's attribute
// domains are assumed non-negative).
const EmptySentinel = -1.0

var quantileOf = map[Aggregation]float64{
	AggMin:    0.0,
	AggP25:    0.25,
	AggMedian: 0.5,
	AggP75:    0.75,
	AggMax:    1.0,
}

func isQuantileClass(agg Aggregation) bool {
	_, ok := quantileOf[agg]
	return ok
}

// IsValidAggregation reports whether agg is one of the nine accepted kinds,
// for callers that need to apply spec's "unknown aggregation -> return
// empty result" policy before doing any work.
func IsValidAggregation(agg Aggregation) bool {
	return isQuantileClass(agg) || agg == AggSum || agg == AggMean || agg == AggCount || agg == AggStd
}

// IsValidDecay reports whether decay is one of the three accepted kinds.
func IsValidDecay(decay Decay) bool {
	return decay == DecayExp || decay == DecayLinear || decay == DecayFlat
}

// AttributeStore holds, per node, a (possibly empty) list of attribute
// values. Multiple values at one node represent colocated features.
type AttributeStore struct {
	values [][]float64 // len NumNodes
}

// NewAttributeStore creates an empty store sized for a graph with n nodes.
func NewAttributeStore(n uint32) *AttributeStore {
	return &AttributeStore{values: make([][]float64, n)}
}

// Set replaces the attribute list at node.
func (s *AttributeStore) Set(node uint32, vals []float64) {
	s.values[node] = vals
}

// Append adds a single colocated value at node.
func (s *AttributeStore) Append(node uint32, val float64) {
	s.values[node] = append(s.values[node], val)
}

func decayFunc(d Decay) (func(distance, radius float64) float64, error) {
	switch d {
	case DecayExp:
		return func(distance, radius float64) float64 { return math.Exp(-distance / radius) }, nil
	case DecayLinear:
		return func(distance, radius float64) float64 { return math.Max(0, 1-distance/radius) }, nil
	case DecayFlat:
		return func(distance, radius float64) float64 { return 1 }, nil
	default:
		return nil, accesserr.Wrapf(accesserr.ErrUnknownDecay, "%q", d)
	}
}

// Aggregate reduces a range result plus an attribute store into a single
// score:
//
//   - quantile-class (min/25pct/median/75pct/max): every attribute value at
//     every settled node with distance <= radius is pooled into one buffer,
//     sorted ascending, and indexed by floor(quantile * count).
//   - moment-class (sum/mean/count/std): count is the raw item count; sum is
//     the decay-weighted sum; mean divides sum by count; std always uses
//     flat decay regardless of the requested decay and returns the
//     population standard deviation of the raw values.
//
// radius and every tuple's distance are in the same fixed-point units
// (graph.Scale); decay functions operate on the unscaled ratio.
func Aggregate(tuples []graph.DistanceTuple, attrs *AttributeStore, agg Aggregation, decay Decay, radius uint32) (float64, error) {
	if isQuantileClass(agg) {
		return quantile(tuples, attrs, quantileOf[agg], radius)
	}

	if agg != AggSum && agg != AggMean && agg != AggCount && agg != AggStd {
		return 0, accesserr.Wrapf(accesserr.ErrUnknownAggregation, "%q", agg)
	}

	if agg == AggStd {
		decay = DecayFlat
	}
	weight, err := decayFunc(decay)
	if err != nil {
		return 0, err
	}

	r := graph.UnscaleWeight(radius)

	// Fixed reduction order: ascending distance, ties ascending node.
	sorted := sortedTuples(tuples, radius)
	if len(sorted) == 0 {
		return EmptySentinel, nil
	}

	var cnt int
	var sum, sumSq float64
	for _, t := range sorted {
		d := graph.UnscaleWeight(t.Distance)
		for _, v := range attrs.values[t.Node] {
			cnt++
			sum += weight(d, r) * v
			sumSq += v * v
		}
	}
	if cnt == 0 {
		return EmptySentinel, nil
	}

	switch agg {
	case AggCount:
		return float64(cnt), nil
	case AggMean:
		return sum / float64(cnt), nil
	case AggStd:
		mean := sum / float64(cnt)
		return math.Sqrt(sumSq/float64(cnt) - mean*mean), nil
	default: // AggSum
		return sum, nil
	}
}

// quantile pools every attribute value across the settled range, sorts
// ascending, and returns the entry at floor(quantile*count) — clamped to the
// buffer's bounds at the extremes, matching floating-point quantile==0/1.
func quantile(tuples []graph.DistanceTuple, attrs *AttributeStore, q float64, radius uint32) (float64, error) {
	sorted := sortedTuples(tuples, radius)

	cnt := 0
	for _, t := range sorted {
		cnt += len(attrs.values[t.Node])
	}
	if cnt == 0 {
		return EmptySentinel, nil
	}

	vals := make([]float64, 0, cnt)
	for _, t := range sorted {
		vals = append(vals, attrs.values[t.Node]...)
	}
	sort.Float64s(vals)

	idx := int(float64(len(vals)) * q)
	if q <= 0 {
		idx = 0
	}
	if q >= 1 {
		idx = len(vals) - 1
	}
	return vals[idx], nil
}

// sortedTuples filters tuples to distance <= radius and returns them sorted
// ascending by distance, ties broken by ascending node, so aggregation is
// deterministic regardless of the order a range query settled nodes in.
func sortedTuples(tuples []graph.DistanceTuple, radius uint32) []graph.DistanceTuple {
	out := make([]graph.DistanceTuple, 0, len(tuples))
	for _, t := range tuples {
		if t.Distance <= radius {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Node < out[j].Node
	})
	return out
}
