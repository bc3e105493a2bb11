package query

import (
	"context"
	"math"
	"sort"

	"accessgraph/pkg/graph"
)

// DistanceTuple is the result shape of Range — a (node, distance) pair.
// Aliased from pkg/graph so the accessibility aggregator and the range
// cache can consume it without importing pkg/query.
type DistanceTuple = graph.DistanceTuple

// Engine answers one-to-one distance/path and one-to-many range queries
// against a contracted graph. An Engine is read-only after construction and
// safe for concurrent use: every query method allocates its own
// *QueryState, so callers pass no scratch state in.
type Engine struct {
	chg *graph.CHGraph

	// rankOrder holds every node index sorted ascending by rank; the range
	// query's downward sweep walks it back to front.
	rankOrder []uint32

	// Reverse CSRs of the Fwd/Bwd overlays, built once at construction, used
	// only to look up "does node u have an upward incoming edge cheaper than
	// my current key" for stall-on-demand pruning. They are not part of
	// graph.CHGraph because they are a query-side derived index, not a graph
	// fact pkg/ch or pkg/poi need.
	fwdInFirstOut, fwdInHead, fwdInWeight []uint32
	bwdInFirstOut, bwdInHead, bwdInWeight []uint32
}

// NewEngine builds a query Engine over a contracted graph, precomputing the
// incoming-edge indexes stall-on-demand needs and the rank order the range
// query's downward sweep needs.
func NewEngine(chg *graph.CHGraph) *Engine {
	e := &Engine{chg: chg}

	e.rankOrder = make([]uint32, chg.NumNodes)
	for i := range e.rankOrder {
		e.rankOrder[i] = uint32(i)
	}
	sort.Slice(e.rankOrder, func(i, j int) bool {
		return chg.Rank[e.rankOrder[i]] < chg.Rank[e.rankOrder[j]]
	})

	e.fwdInFirstOut, e.fwdInHead, e.fwdInWeight = reverseCSR(chg.NumNodes, chg.FwdFirstOut, chg.FwdHead, chg.FwdWeight)
	e.bwdInFirstOut, e.bwdInHead, e.bwdInWeight = reverseCSR(chg.NumNodes, chg.BwdFirstOut, chg.BwdHead, chg.BwdWeight)

	return e
}

// reverseCSR builds the incoming-edge CSR of a CSR graph: for every edge
// u->v it produces an entry v->u with the same weight, so callers can ask
// "who points at v" in O(degree(v)) instead of O(E).
func reverseCSR(n uint32, firstOut, head, weight []uint32) (rFirstOut, rHead, rWeight []uint32) {
	numEdges := uint32(len(head))
	rFirstOut = make([]uint32, n+1)
	rHead = make([]uint32, numEdges)
	rWeight = make([]uint32, numEdges)

	for u := uint32(0); u < n; u++ {
		for e := firstOut[u]; e < firstOut[u+1]; e++ {
			rFirstOut[head[e]+1]++
		}
	}
	for i := uint32(1); i <= n; i++ {
		rFirstOut[i] += rFirstOut[i-1]
	}

	pos := make([]uint32, n)
	copy(pos, rFirstOut[:n])
	for u := uint32(0); u < n; u++ {
		for e := firstOut[u]; e < firstOut[u+1]; e++ {
			v := head[e]
			idx := pos[v]
			rHead[idx] = u
			rWeight[idx] = weight[e]
			pos[v]++
		}
	}
	return
}

// stalledFwd reports whether node u, popped at key d, is dominated by one of
// its forward-upward incoming neighbors already settled cheaper — the
// stall-on-demand pruning rule.
func (e *Engine) stalledFwd(qs *QueryState, u, d uint32) bool {
	start, end := e.fwdInFirstOut[u], e.fwdInFirstOut[u+1]
	for i := start; i < end; i++ {
		x := e.fwdInHead[i]
		if dx := qs.DistFwd[x]; dx != math.MaxUint32 && dx+e.fwdInWeight[i] < d {
			return true
		}
	}
	return false
}

func (e *Engine) stalledBwd(qs *QueryState, u, d uint32) bool {
	start, end := e.bwdInFirstOut[u], e.bwdInFirstOut[u+1]
	for i := start; i < end; i++ {
		x := e.bwdInHead[i]
		if dx := qs.DistBwd[x]; dx != math.MaxUint32 && dx+e.bwdInWeight[i] < d {
			return true
		}
	}
	return false
}

// Distance returns the shortest-path distance from s to t, or
// graph.Unreachable if none exists.
func (e *Engine) Distance(ctx context.Context, s, t uint32) uint32 {
	qs := NewQueryState(e.chg.NumNodes)
	mu, meet := e.distanceWith(ctx, qs, s, t)
	if meet == graph.NoNode {
		return graph.Unreachable
	}
	return mu
}

// Route returns the shortest path from s to t as a sequence of
// original-graph node indices, plus its distance. Returns a nil path and
// graph.Unreachable if no path exists.
func (e *Engine) Route(ctx context.Context, s, t uint32) ([]uint32, uint32) {
	qs := NewQueryState(e.chg.NumNodes)
	mu, meet := e.distanceWith(ctx, qs, s, t)
	if meet == graph.NoNode {
		return nil, graph.Unreachable
	}
	overlay := reconstructOverlayPath(qs, meet)
	return unpackOverlayPath(e.chg, overlay), mu
}

// distanceWith runs bidirectional CH Dijkstra with stall-on-demand on a
// caller-supplied, already-reset QueryState, seeding it at s and t.
func (e *Engine) distanceWith(ctx context.Context, qs *QueryState, s, t uint32) (mu uint32, meetNode uint32) {
	mu = math.MaxUint32
	meetNode = graph.NoNode

	qs.touchFwd(s, 0, graph.NoNode)
	qs.FwdPQ.Push(s, 0)
	qs.touchBwd(t, 0, graph.NoNode)
	qs.BwdPQ.Push(t, 0)

	if s == t {
		return 0, s
	}

	iterations := 0
	for qs.FwdPQ.Len() > 0 || qs.BwdPQ.Len() > 0 {
		iterations++
		if iterations%256 == 0 && ctx.Err() != nil {
			return mu, meetNode
		}

		if qs.FwdPQ.Len() > 0 && qs.FwdPQ.PeekDist() < mu {
			item := qs.FwdPQ.Pop()
			u, d := item.Node, item.Dist
			if d <= qs.DistFwd[u] && !e.stalledFwd(qs, u, d) {
				if qs.DistBwd[u] != math.MaxUint32 {
					if cand := d + qs.DistBwd[u]; cand < mu {
						mu, meetNode = cand, u
					}
				}
				fStart, fEnd := e.chg.EdgesFromFwd(u)
				for ei := fStart; ei < fEnd; ei++ {
					v := e.chg.FwdHead[ei]
					if newDist := d + e.chg.FwdWeight[ei]; newDist < qs.DistFwd[v] {
						qs.touchFwd(v, newDist, u)
						qs.FwdPQ.Push(v, newDist)
					}
				}
			}
		}

		if qs.BwdPQ.Len() > 0 && qs.BwdPQ.PeekDist() < mu {
			item := qs.BwdPQ.Pop()
			u, d := item.Node, item.Dist
			if d <= qs.DistBwd[u] && !e.stalledBwd(qs, u, d) {
				if qs.DistFwd[u] != math.MaxUint32 {
					if cand := qs.DistFwd[u] + d; cand < mu {
						mu, meetNode = cand, u
					}
				}
				bStart, bEnd := e.chg.EdgesFromBwd(u)
				for ei := bStart; ei < bEnd; ei++ {
					v := e.chg.BwdHead[ei]
					if newDist := d + e.chg.BwdWeight[ei]; newDist < qs.DistBwd[v] {
						qs.touchBwd(v, newDist, u)
						qs.BwdPQ.Push(v, newDist)
					}
				}
			}
		}

		if qs.FwdPQ.PeekDist() >= mu && qs.BwdPQ.PeekDist() >= mu {
			break
		}
	}

	return mu, meetNode
}

// reconstructOverlayPath walks qs.PredFwd from meetNode back to the source
// (reversing it), then qs.PredBwd from meetNode forward to the target.
func reconstructOverlayPath(qs *QueryState, meetNode uint32) []uint32 {
	var fwdPath []uint32
	for node := meetNode; node != graph.NoNode; node = qs.PredFwd[node] {
		fwdPath = append(fwdPath, node)
	}
	for i, j := 0, len(fwdPath)-1; i < j; i, j = i+1, j-1 {
		fwdPath[i], fwdPath[j] = fwdPath[j], fwdPath[i]
	}

	for node := qs.PredBwd[meetNode]; node != graph.NoNode; node = qs.PredBwd[node] {
		fwdPath = append(fwdPath, node)
	}
	return fwdPath
}

// Range returns every node reachable from s within radius, as (node,
// distance) tuples. It runs a bounded forward-upward Dijkstra from s (with
// stall-on-demand) to find every node reachable via a pure ascending-rank
// path, then a downward sweep over all nodes in descending rank order that
// relaxes each node's backward-upward edges in reverse — the "auxiliary
// reverse pass" that recovers distances behind a descending tail.
func (e *Engine) Range(ctx context.Context, s, radius uint32) []DistanceTuple {
	n := e.chg.NumNodes
	dist := make([]uint32, n)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[s] = 0

	qs := NewQueryState(n)
	qs.touchFwd(s, 0, graph.NoNode)
	qs.FwdPQ.Push(s, 0)

	iterations := 0
	for qs.FwdPQ.Len() > 0 {
		iterations++
		if iterations%256 == 0 && ctx.Err() != nil {
			break
		}
		item := qs.FwdPQ.Pop()
		u, d := item.Node, item.Dist
		if d > qs.DistFwd[u] || d > radius || e.stalledFwd(qs, u, d) {
			continue
		}
		dist[u] = d
		fStart, fEnd := e.chg.EdgesFromFwd(u)
		for ei := fStart; ei < fEnd; ei++ {
			v := e.chg.FwdHead[ei]
			if newDist := d + e.chg.FwdWeight[ei]; newDist < qs.DistFwd[v] && newDist <= radius {
				qs.touchFwd(v, newDist, u)
				qs.FwdPQ.Push(v, newDist)
			}
		}
	}

	// Downward sweep: by the time node v (at rank index i) is processed,
	// every node with a higher rank has its final dist already settled,
	// since a Bwd edge at v always points to a strictly higher-ranked node.
	for i := len(e.rankOrder) - 1; i >= 0; i-- {
		v := e.rankOrder[i]
		start, end := e.chg.EdgesFromBwd(v)
		for ei := start; ei < end; ei++ {
			m := e.chg.BwdHead[ei]
			if dist[m] == math.MaxUint32 {
				continue
			}
			if cand := dist[m] + e.chg.BwdWeight[ei]; cand < dist[v] {
				dist[v] = cand
			}
		}
	}

	var out []DistanceTuple
	for v := uint32(0); v < n; v++ {
		if d := dist[v]; d <= radius {
			out = append(out, DistanceTuple{Node: v, Distance: d})
		}
	}
	return out
}
