// Package ch implements the contraction-hierarchy preprocessor:
// importance-ordered node contraction with lazy re-prioritization and
// bounded witness search, producing the forward/backward-upward overlay
// consumed by pkg/query and pkg/poi.
package ch

import (
	"container/heap"
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"accessgraph/pkg/graph"
)

// maxShortcutsPerNode is the limit on shortcuts a single contraction can
// create. Nodes exceeding this form an uncontracted "core" at the top of
// the hierarchy, keeping worst-case degree blowup bounded on pathological
// inputs without changing the up-down-monotone-path contract — core nodes
// are still correct, just not shortcut-compressed.
const maxShortcutsPerNode = 1000

// adjEntry is an edge in the mutable adjacency list used during contraction.
type adjEntry struct {
	to     uint32
	weight uint32
	middle int32 // -1 for an original edge, else the contracted node ID
}

// Contract performs Contraction Hierarchies preprocessing on g, returning
// the overlay plus the set of core (never-contracted) node indices.
func Contract(ctx context.Context, g *graph.Graph) (*graph.CHGraph, []uint32) {
	n := g.NumNodes
	if n == 0 {
		return &graph.CHGraph{}, nil
	}

	outAdj := make([][]adjEntry, n)
	inAdj := make([][]adjEntry, n)
	for u := uint32(0); u < n; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			w := g.Weight[e]
			outAdj[u] = append(outAdj[u], adjEntry{to: v, weight: w, middle: -1})
			inAdj[v] = append(inAdj[v], adjEntry{to: u, weight: w, middle: -1})
		}
	}

	contracted := make([]bool, n)
	rank := make([]uint32, n)
	contractedNeighbors := make([]int, n)
	level := make([]int, n)

	pq := make(priorityQueue, n)
	for i := uint32(0); i < n; i++ {
		pq[i] = &pqEntry{
			node:     i,
			priority: computePriority(outAdj, inAdj, i, contracted, contractedNeighbors[i], level[i]),
			index:    int(i),
		}
	}
	heap.Init(&pq)

	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)
	log.Printf("ch: starting contraction of %d nodes", n)

	var totalShortcuts int
	var core []uint32
	order := uint32(0)

	// Pool of reusable witness-search scratch, one per fan-out slot, so the
	// parallel batch below never allocates a fresh scratch per neighbor.
	scratch := newWitnessPool(n, maxWitnessWorkers)

	for pq.Len() > 0 {
		entry := heap.Pop(&pq).(*pqEntry)
		node := entry.node
		if contracted[node] {
			continue
		}

		newPriority := computePriority(outAdj, inAdj, node, contracted, contractedNeighbors[node], level[node])
		if newPriority > entry.priority && pq.Len() > 0 && newPriority > pq[0].priority {
			entry.priority = newPriority
			heap.Push(&pq, entry)
			continue
		}

		shortcuts := findShortcutsParallel(ctx, scratch, outAdj, inAdj, node, contracted)

		if len(shortcuts) > maxShortcutsPerNode {
			log.Printf("ch: stopping contraction: node %d would create %d shortcuts (limit %d); %d nodes remain in core",
				node, len(shortcuts), maxShortcutsPerNode, n-order)
			core = append(core, node)
			for pq.Len() > 0 {
				e := heap.Pop(&pq).(*pqEntry)
				if !contracted[e.node] {
					core = append(core, e.node)
				}
			}
			break
		}

		contracted[node] = true
		rank[node] = order
		order++
		totalShortcuts += len(shortcuts)

		for _, sc := range shortcuts {
			outAdj[sc.from] = append(outAdj[sc.from], adjEntry{to: sc.to, weight: sc.weight, middle: int32(node)})
			inAdj[sc.to] = append(inAdj[sc.to], adjEntry{to: sc.from, weight: sc.weight, middle: int32(node)})
		}

		for _, e := range outAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if level[node]+1 > level[e.to] {
					level[e.to] = level[node] + 1
				}
			}
		}
		for _, e := range inAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if level[node]+1 > level[e.to] {
					level[e.to] = level[node] + 1
				}
			}
		}

		if limiter.Allow() {
			log.Printf("ch: contracted %d/%d nodes, %d shortcuts so far", order, n, totalShortcuts)
		}
	}

	// Assign ranks to remaining uncontracted core nodes (those that broke out
	// of the loop above plus anything left if the PQ emptied without a core
	// break, which only happens for a graph small enough to fully contract).
	for _, node := range core {
		if !contracted[node] {
			contracted[node] = true
			rank[node] = order
			order++
		}
	}
	for i := uint32(0); i < n; i++ {
		if !contracted[i] {
			contracted[i] = true
			rank[i] = order
			order++
			core = append(core, i)
		}
	}

	log.Printf("ch: contraction complete: %d shortcuts created (%.1fx original edges), %d core nodes",
		totalShortcuts, float64(totalShortcuts)/float64(max(g.NumEdges, 1)), len(core))

	return buildOverlay(g, outAdj, inAdj, rank), core
}

// shortcut is a candidate shortcut edge discovered while contracting a node.
type shortcut struct {
	from, to uint32
	weight   uint32
}

// maxWitnessWorkers bounds the fan-out across independent witness searches
// within a single contraction round. Each incoming neighbor's batch witness
// search is independent of the others, so they join through an errgroup
// instead of running sequentially.
const maxWitnessWorkers = 8

// findShortcutsParallel determines which shortcuts are needed when
// contracting node, fanning the per-incoming-neighbor batch witness
// searches out across a bounded worker group.
func findShortcutsParallel(ctx context.Context, pool *witnessPool, outAdj, inAdj [][]adjEntry, node uint32, contracted []bool) []shortcut {
	var incoming, outgoing []adjEntry
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			incoming = append(incoming, e)
		}
	}
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			outgoing = append(outgoing, e)
		}
	}
	if len(incoming) == 0 || len(outgoing) == 0 {
		return nil
	}

	results := make([][]shortcut, len(incoming))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxWitnessWorkers)

	for i, in := range incoming {
		i, in := i, in
		g.Go(func() error {
			var maxOut uint32
			for _, out := range outgoing {
				if out.to != in.to && out.weight > maxOut {
					maxOut = out.weight
				}
			}
			if maxOut == 0 {
				return nil
			}
			maxWeight := in.weight + maxOut

			ws := pool.acquire()
			defer pool.release(ws)

			batchWitnessSearch(ws, outAdj, in.to, node, maxWeight, contracted)

			var local []shortcut
			for _, out := range outgoing {
				if out.to == in.to {
					continue
				}
				scWeight := in.weight + out.weight
				if ws.dist[out.to] > scWeight {
					local = append(local, shortcut{from: in.to, to: out.to, weight: scWeight})
				}
			}
			results[i] = local
			return nil
		})
	}
	_ = g.Wait() // witness searches never return an error; Wait only joins.

	var shortcuts []shortcut
	for _, r := range results {
		shortcuts = append(shortcuts, r...)
	}
	return shortcuts
}

// computePriority returns the priority for a node (lower = contract first)
// from the importance heuristic: edge difference, deleted-neighbor count,
// hierarchy-depth upper bound.
func computePriority(outAdj, inAdj [][]adjEntry, node uint32, contracted []bool, contractedNeighbors, level int) int {
	activeIn := 0
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			activeIn++
		}
	}
	activeOut := 0
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			activeOut++
		}
	}
	edgeDifference := activeIn*activeOut - (activeIn + activeOut)
	return edgeDifference + 2*contractedNeighbors + level
}

// buildOverlay creates the forward-upward and backward-upward overlay CSR
// graphs from the contracted adjacency lists and final node ranks.
func buildOverlay(orig *graph.Graph, outAdj, inAdj [][]adjEntry, rank []uint32) *graph.CHGraph {
	n := orig.NumNodes

	type csrEdge struct {
		from, to uint32
		weight   uint32
		middle   int32
	}

	var fwdEdges, bwdEdges []csrEdge
	for u := uint32(0); u < n; u++ {
		for _, e := range outAdj[u] {
			if rank[u] < rank[e.to] {
				fwdEdges = append(fwdEdges, csrEdge{from: u, to: e.to, weight: e.weight, middle: e.middle})
			}
		}
		for _, e := range inAdj[u] {
			if rank[u] < rank[e.to] {
				bwdEdges = append(bwdEdges, csrEdge{from: u, to: e.to, weight: e.weight, middle: e.middle})
			}
		}
	}

	log.Printf("ch: overlay has %d forward-upward edges, %d backward-upward edges", len(fwdEdges), len(bwdEdges))

	buildCSR := func(edges []csrEdge) (firstOut, head []uint32, weight []uint32, middle []int32) {
		numEdges := uint32(len(edges))
		firstOut = make([]uint32, n+1)
		head = make([]uint32, numEdges)
		weight = make([]uint32, numEdges)
		middle = make([]int32, numEdges)

		for _, e := range edges {
			firstOut[e.from+1]++
		}
		for i := uint32(1); i <= n; i++ {
			firstOut[i] += firstOut[i-1]
		}

		pos := make([]uint32, n)
		copy(pos, firstOut[:n])
		for _, e := range edges {
			idx := pos[e.from]
			head[idx] = e.to
			weight[idx] = e.weight
			middle[idx] = e.middle
			pos[e.from]++
		}
		return
	}

	fwdFirstOut, fwdHead, fwdWeight, fwdMiddle := buildCSR(fwdEdges)
	bwdFirstOut, bwdHead, bwdWeight, bwdMiddle := buildCSR(bwdEdges)

	return &graph.CHGraph{
		NumNodes:     n,
		Rank:         rank,
		FwdFirstOut:  fwdFirstOut,
		FwdHead:      fwdHead,
		FwdWeight:    fwdWeight,
		FwdMiddle:    fwdMiddle,
		BwdFirstOut:  bwdFirstOut,
		BwdHead:      bwdHead,
		BwdWeight:    bwdWeight,
		BwdMiddle:    bwdMiddle,
		OrigFirstOut: orig.FirstOut,
		OrigHead:     orig.Head,
		OrigWeight:   orig.Weight,
	}
}

// Priority queue implementation for contraction ordering.

type pqEntry struct {
	node     uint32
	priority int
	index    int
}

type priorityQueue []*pqEntry

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	entry := x.(*pqEntry)
	entry.index = len(*pq)
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[:n-1]
	return entry
}
