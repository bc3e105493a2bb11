// Package graph implements the immutable CSR-style graph store underlying
// the contraction-hierarchy engine: dense node indices, fixed-point edge
// weights, and the contracted overlay produced by pkg/ch.
package graph

import "math"

// Scale is the fixed-point factor applied to every input edge weight.
// One internal distance unit is 1/Scale of the caller's cost unit.
const Scale = 1000

// NoNode is the sentinel used wherever "no such node" needs to be
// represented as a uint32 (predecessor arrays, shortcut midpoints are
// int32 and use -1 instead).
const NoNode = ^uint32(0)

// Unreachable is the fixed-point distance sentinel returned for nodes with
// no path, per spec's Unreachable error policy (>= 2^31-1).
const Unreachable = uint32(1<<31 - 1)

// Edge is a single input edge: (from, to, weight), with TwoWay resolving
// spec's open question on a per-edge basis rather than a single
// construct-wide flag.
type Edge struct {
	From, To uint32
	Weight   float64
	TwoWay   bool
}

// Graph is a directed graph in CSR (Compressed Sparse Row) format, scaled
// to fixed-point weights. It is the input to CH preprocessing.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32 // len NumNodes+1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32 // len NumEdges; target node for each edge
	Weight   []uint32 // len NumEdges; fixed-point cost (see Scale)
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// CHGraph holds the output of contraction hierarchies preprocessing: node
// ranks plus the forward-upward and backward-upward overlay CSR graphs.
//
// A physical edge appears in FwdXxx when rank[from] < rank[to] (it can be
// relaxed going forward, up in rank) and in BwdXxx — stored reversed,
// to→from — when rank[to] < rank[from] (it can be relaxed going backward,
// up in rank from the target's perspective). This is an equivalent, more
// cache-friendly encoding of spec's "two direction flags forward/backward
// per stored edge": membership in FwdXxx is the forward flag, membership in
// BwdXxx is the backward flag, and an original bidirectional input edge
// with equal weights in both directions naturally ends up with both set.
type CHGraph struct {
	NumNodes uint32
	Rank     []uint32

	// Forward-upward overlay: edges u->v with rank[u] < rank[v].
	FwdFirstOut []uint32
	FwdHead     []uint32
	FwdWeight   []uint32
	FwdMiddle   []int32 // -1 for an original edge, else the shortcut's midpoint node

	// Backward-upward overlay: edges v->u stored as u->v when rank[u] < rank[v],
	// so a backward search from a target relaxes "up" the same way a forward
	// search does.
	BwdFirstOut []uint32
	BwdHead     []uint32
	BwdWeight   []uint32
	BwdMiddle   []int32

	// Original (pre-contraction) CSR graph, kept so shortcuts can be unpacked
	// back to base edges and so the POI bucket index's backward-upward search
	// has a ground-truth adjacency to validate witness results against in
	// tests.
	OrigFirstOut []uint32
	OrigHead     []uint32
	OrigWeight   []uint32
}

// EdgesFromFwd returns the forward-upward overlay edge range for node u.
func (c *CHGraph) EdgesFromFwd(u uint32) (start, end uint32) {
	return c.FwdFirstOut[u], c.FwdFirstOut[u+1]
}

// EdgesFromBwd returns the backward-upward overlay edge range for node u.
func (c *CHGraph) EdgesFromBwd(u uint32) (start, end uint32) {
	return c.BwdFirstOut[u], c.BwdFirstOut[u+1]
}

// DistanceTuple is a single (node, distance) result entry. It is the shared
// output shape of the range query and the range cache, so the accessibility
// aggregator can consume either without caring which one produced it.
type DistanceTuple struct {
	Node     uint32
	Distance uint32
}

// ScaleWeight converts a caller-supplied real-valued cost into the internal
// fixed-point representation, rounding to the nearest unit.
func ScaleWeight(w float64) uint32 {
	return uint32(math.Round(w * Scale))
}

// UnscaleWeight converts an internal fixed-point distance back to a
// caller-facing float.
func UnscaleWeight(w uint32) float64 {
	return float64(w) / Scale
}
