package ch

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"accessgraph/pkg/graph"
)

// buildTestGraph creates a small bidirectional graph for testing:
//
//	0 ---100--- 1 ---200--- 2
//	|                       |
//	300                    400
//	|                       |
//	3 ---500--- 4 ---600--- 5
func buildTestGraph(t *testing.T) *graph.Graph {
	g, err := graph.ConstructFromEdges(graph.GraphSpec{
		NumNodes: 6,
		Edges: []graph.Edge{
			{From: 0, To: 1, Weight: 0.1, TwoWay: true},
			{From: 1, To: 2, Weight: 0.2, TwoWay: true},
			{From: 0, To: 3, Weight: 0.3, TwoWay: true},
			{From: 2, To: 5, Weight: 0.4, TwoWay: true},
			{From: 3, To: 4, Weight: 0.5, TwoWay: true},
			{From: 4, To: 5, Weight: 0.6, TwoWay: true},
		},
	})
	require.NoError(t, err)
	return g
}

// plainDijkstra runs standard Dijkstra on the original CSR graph.
func plainDijkstra(g *graph.Graph, source, target uint32) uint32 {
	dist := make([]uint32, g.NumNodes)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[source] = 0

	type item struct {
		node uint32
		dist uint32
	}
	pq := []item{{source, 0}}

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].dist < pq[minIdx].dist {
				minIdx = i
			}
		}
		cur := pq[minIdx]
		pq[minIdx] = pq[len(pq)-1]
		pq = pq[:len(pq)-1]

		if cur.dist > dist[cur.node] {
			continue
		}
		if cur.node == target {
			return cur.dist
		}
		start, end := g.EdgesFrom(cur.node)
		for e := start; e < end; e++ {
			v := g.Head[e]
			newDist := cur.dist + g.Weight[e]
			if newDist < dist[v] {
				dist[v] = newDist
				pq = append(pq, item{v, newDist})
			}
		}
	}
	return dist[target]
}

// chDijkstra runs bidirectional CH Dijkstra on the overlay, mirroring
// pkg/query's engine logic but self-contained for cross-checking Contract's
// output independently of pkg/query.
func chDijkstra(ch *graph.CHGraph, source, target uint32) uint32 {
	distFwd := make([]uint32, ch.NumNodes)
	distBwd := make([]uint32, ch.NumNodes)
	for i := range distFwd {
		distFwd[i] = math.MaxUint32
		distBwd[i] = math.MaxUint32
	}
	distFwd[source] = 0
	distBwd[target] = 0

	type item struct {
		node uint32
		dist uint32
	}
	var fwdPQ, bwdPQ []item
	fwdPQ = append(fwdPQ, item{source, 0})
	bwdPQ = append(bwdPQ, item{target, 0})

	mu := uint32(math.MaxUint32)

	popMin := func(pq *[]item) item {
		minIdx := 0
		for i := 1; i < len(*pq); i++ {
			if (*pq)[i].dist < (*pq)[minIdx].dist {
				minIdx = i
			}
		}
		cur := (*pq)[minIdx]
		(*pq)[minIdx] = (*pq)[len(*pq)-1]
		*pq = (*pq)[:len(*pq)-1]
		return cur
	}
	peekMin := func(pq []item) uint32 {
		if len(pq) == 0 {
			return math.MaxUint32
		}
		m := pq[0].dist
		for _, it := range pq[1:] {
			if it.dist < m {
				m = it.dist
			}
		}
		return m
	}

	for len(fwdPQ) > 0 || len(bwdPQ) > 0 {
		if len(fwdPQ) > 0 && peekMin(fwdPQ) < mu {
			cur := popMin(&fwdPQ)
			if cur.dist <= distFwd[cur.node] {
				if distBwd[cur.node] < math.MaxUint32 {
					if cand := cur.dist + distBwd[cur.node]; cand < mu {
						mu = cand
					}
				}
				fStart, fEnd := ch.EdgesFromFwd(cur.node)
				for e := fStart; e < fEnd; e++ {
					v := ch.FwdHead[e]
					if newDist := cur.dist + ch.FwdWeight[e]; newDist < distFwd[v] {
						distFwd[v] = newDist
						fwdPQ = append(fwdPQ, item{v, newDist})
					}
				}
			}
		}
		if len(bwdPQ) > 0 && peekMin(bwdPQ) < mu {
			cur := popMin(&bwdPQ)
			if cur.dist <= distBwd[cur.node] {
				if distFwd[cur.node] < math.MaxUint32 {
					if cand := distFwd[cur.node] + cur.dist; cand < mu {
						mu = cand
					}
				}
				bStart, bEnd := ch.EdgesFromBwd(cur.node)
				for e := bStart; e < bEnd; e++ {
					v := ch.BwdHead[e]
					if newDist := cur.dist + ch.BwdWeight[e]; newDist < distBwd[v] {
						distBwd[v] = newDist
						bwdPQ = append(bwdPQ, item{v, newDist})
					}
				}
			}
		}
		if peekMin(fwdPQ) >= mu && peekMin(bwdPQ) >= mu {
			break
		}
	}
	return mu
}

func TestContractSmallGraph(t *testing.T) {
	g := buildTestGraph(t)
	require.EqualValues(t, 6, g.NumNodes)

	chg, _ := Contract(context.Background(), g)
	require.EqualValues(t, 6, chg.NumNodes)

	rankSeen := make(map[uint32]bool)
	for _, r := range chg.Rank {
		require.Less(t, r, chg.NumNodes)
		rankSeen[r] = true
	}
	require.Len(t, rankSeen, int(chg.NumNodes))
}

func TestCHCorrectnessAllPairs(t *testing.T) {
	g := buildTestGraph(t)
	chg, _ := Contract(context.Background(), g)

	for s := uint32(0); s < g.NumNodes; s++ {
		for d := uint32(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}
			require.Equal(t, plainDijkstra(g, s, d), chDijkstra(chg, s, d), "s=%d d=%d", s, d)
		}
	}
}

func TestContractEmptyGraph(t *testing.T) {
	chg, core := Contract(context.Background(), &graph.Graph{})
	require.EqualValues(t, 0, chg.NumNodes)
	require.Nil(t, core)
}

func TestContractLinearGraph(t *testing.T) {
	g, err := graph.ConstructFromEdges(graph.GraphSpec{
		NumNodes: 5,
		Edges: []graph.Edge{
			{From: 0, To: 1, Weight: 0.1},
			{From: 1, To: 2, Weight: 0.2},
			{From: 2, To: 3, Weight: 0.3},
			{From: 3, To: 4, Weight: 0.4},
		},
	})
	require.NoError(t, err)

	chg, _ := Contract(context.Background(), g)
	dist := chDijkstra(chg, 0, 4)
	require.Equal(t, plainDijkstra(g, 0, 4), dist)
	require.EqualValues(t, 1000, dist)
}
