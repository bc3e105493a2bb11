package poi

import (
	"context"
	"math"
	"sort"

	"accessgraph/pkg/graph"
)

// Category is a built POI bucket index for one category: bucket[v] holds
// every (poi, distance) pair with distance <= maxCategoryDistance, capped at
// maxItemsPerBucket. POIs are identified by a dense index local to the
// category, in registration order.
type Category struct {
	chg     *graph.CHGraph
	numPOIs uint32
	maxDist uint32
	buckets []*bucket // len NumNodes; nil entries mean "no POI reachable"
}

// defaultPartialKThreshold bounds the sorted-prefix size of every bucket:
// most k-nearest queries ask for far fewer than this many POIs, so keeping
// only this many sorted amortizes insertion cost across the long tail that
// lands in the unsorted overflow.
const defaultPartialKThreshold = 10

// BuildCategory runs a bounded backward-upward Dijkstra from every POI in
// pois (internal node indices), recording (poiIdx, distance) in every
// settled node's bucket. The search follows backward=true edges — the
// same Bwd overlay the bidirectional query's backward leg walks — so a
// settled node's distance is its true shortest-path distance *to* the
// POI, not from it.
func BuildCategory(chg *graph.CHGraph, pois []uint32, maxCategoryDistance, maxItemsPerBucket uint32) *Category {
	cat := &Category{
		chg:     chg,
		numPOIs: uint32(len(pois)),
		maxDist: maxCategoryDistance,
		buckets: make([]*bucket, chg.NumNodes),
	}

	partialK := int(maxItemsPerBucket)
	if partialK > defaultPartialKThreshold {
		partialK = defaultPartialKThreshold
	}

	dist := make([]uint32, chg.NumNodes)
	var heap minHeap

	for poiIdx, p := range pois {
		for i := range dist {
			dist[i] = math.MaxUint32
		}
		dist[p] = 0
		heap.Reset()
		heap.Push(p, 0)

		for heap.Len() > 0 {
			item := heap.Pop()
			u, d := item.node, item.dist
			if d > dist[u] {
				continue
			}
			if d > maxCategoryDistance {
				break
			}

			bkt := cat.buckets[u]
			if bkt == nil {
				bkt = newBucket(partialK, int(maxItemsPerBucket))
				cat.buckets[u] = bkt
			}
			bkt.insert(bucketEntry{poi: uint32(poiIdx), distance: d})

			start, end := chg.EdgesFromBwd(u)
			for ei := start; ei < end; ei++ {
				v := chg.BwdHead[ei]
				if newDist := d + chg.BwdWeight[ei]; newDist < dist[v] {
					dist[v] = newDist
					heap.Push(v, newDist)
				}
			}
		}
	}

	return cat
}

// Candidate is a single (poi, distance) result of a k-nearest-POI query.
type Candidate struct {
	POI      uint32
	Distance uint32
}

// FindNearest returns the k nearest POIs of this category to s within
// radius, ascending by distance, ties broken by smaller POI index then
// smaller intermediate node.
func (cat *Category) FindNearest(ctx context.Context, s, radius uint32, k int) []Candidate {
	n := cat.chg.NumNodes
	dist := make([]uint32, n)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[s] = 0

	var heap minHeap
	heap.Push(s, 0)

	type scored struct {
		poi      uint32
		distance uint32
		viaNode  uint32
	}
	var candidates []scored

	iterations := 0
	for heap.Len() > 0 {
		iterations++
		if iterations%256 == 0 && ctx.Err() != nil {
			break
		}
		item := heap.Pop()
		u, d := item.node, item.dist
		if d > dist[u] || d > radius {
			continue
		}

		if bkt := cat.buckets[u]; bkt != nil {
			for _, e := range bkt.all() {
				total := d + e.distance
				if total <= radius {
					candidates = append(candidates, scored{poi: e.poi, distance: total, viaNode: u})
				}
			}
		}

		start, end := cat.chg.EdgesFromFwd(u)
		for ei := start; ei < end; ei++ {
			v := cat.chg.FwdHead[ei]
			if newDist := d + cat.chg.FwdWeight[ei]; newDist < dist[v] && newDist <= radius {
				dist[v] = newDist
				heap.Push(v, newDist)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		if candidates[i].poi != candidates[j].poi {
			return candidates[i].poi < candidates[j].poi
		}
		return candidates[i].viaNode < candidates[j].viaNode
	})

	// Dedup by POI, keeping the first (smallest distance, then smallest
	// node) occurrence, since the same POI can be reached via more than
	// one settled node.
	seen := make(map[uint32]bool, len(candidates))
	out := make([]Candidate, 0, k)
	for _, c := range candidates {
		if seen[c.poi] {
			continue
		}
		seen[c.poi] = true
		out = append(out, Candidate{POI: c.poi, Distance: c.distance})
		if len(out) == k {
			break
		}
	}
	return out
}

// FindAllNearest runs FindNearest from every node in sources, in order.
// Callers wanting this fanned out across workers should use pkg/dispatch
// instead — this is the single-threaded reference path.
func (cat *Category) FindAllNearest(ctx context.Context, sources []uint32, radius uint32, k int) [][]Candidate {
	out := make([][]Candidate, len(sources))
	for i, s := range sources {
		out[i] = cat.FindNearest(ctx, s, radius, k)
	}
	return out
}

// minHeap is a concrete-typed min-heap local to pkg/poi — pkg/query's
// MinHeap isn't reused here to avoid an import cycle risk were pkg/query
// ever to depend on pkg/poi (it doesn't today, but the two packages model
// distinct search spaces and shouldn't share mutable heap state either way).
type minHeapItem struct {
	node uint32
	dist uint32
}

type minHeap struct {
	items []minHeapItem
}

func (h *minHeap) Len() int { return len(h.items) }

func (h *minHeap) Push(node, dist uint32) {
	h.items = append(h.items, minHeapItem{node, dist})
	i := len(h.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].dist >= h.items[parent].dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *minHeap) Pop() minHeapItem {
	n := len(h.items)
	top := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	n--
	i := 0
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.items[left].dist < h.items[smallest].dist {
			smallest = left
		}
		if right < n && h.items[right].dist < h.items[smallest].dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
	return top
}

func (h *minHeap) Reset() { h.items = h.items[:0] }
