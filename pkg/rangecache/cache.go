// Package rangecache implements the optional range cache: a precomputed
// per-node range result at a fixed radius, reused by any query whose
// radius does not exceed it.
package rangecache

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"accessgraph/pkg/graph"
	"accessgraph/pkg/query"
)

// maxFillWorkers bounds Precompute's fan-out, mirroring pkg/ch's witness
// search worker cap — each node's range fill is independent of every other.
const maxFillWorkers = 8

// Cache holds, for every node, the full Range(v, Radius) result computed at
// construction time. It is read-only after Precompute returns and safe for
// concurrent readers — no lock is taken on the read path.
type Cache struct {
	Radius uint32
	rows   [][]graph.DistanceTuple // len NumNodes
}

// Precompute fills cache[v] = engine.Range(v, radius) for every node in the
// graph engine is built over, fanning the per-node fills out across a
// bounded worker group since they are mutually independent. No mutation
// happens after this returns.
func Precompute(ctx context.Context, eng *query.Engine, numNodes uint32, radius uint32) (*Cache, error) {
	c := &Cache{
		Radius: radius,
		rows:   make([][]graph.DistanceTuple, numNodes),
	}

	workers := maxFillWorkers
	if hw := runtime.GOMAXPROCS(0); hw < workers {
		workers = hw
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for v := uint32(0); v < numNodes; v++ {
		v := v
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.rows[v] = eng.Range(gctx, v, radius)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the cached range result for v filtered to distance <= r,
// and whether the cache can serve the request at all (r <= c.Radius). A
// false ok means the caller must fall back to a live Range call.
func (c *Cache) Lookup(v uint32, r uint32) (result []graph.DistanceTuple, ok bool) {
	if r > c.Radius {
		return nil, false
	}
	rows := c.rows[v]
	if r == c.Radius {
		return rows, true
	}
	out := make([]graph.DistanceTuple, 0, len(rows))
	for _, t := range rows {
		if t.Distance <= r {
			out = append(out, t)
		}
	}
	return out, true
}

// MultiCache indexes a Cache per graph number, for the facade's model of
// multiple weight-vector graphs sharing one node set — each graph gets its
// own cache, looked up by graphno.
type MultiCache struct {
	mu      sync.RWMutex
	byGraph map[int]*Cache
}

// NewMultiCache creates an empty multi-graph cache registry.
func NewMultiCache() *MultiCache {
	return &MultiCache{byGraph: make(map[int]*Cache)}
}

// Set installs the cache for a graph number, replacing any previous one.
func (m *MultiCache) Set(graphno int, c *Cache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byGraph[graphno] = c
}

// Get returns the cache for a graph number, or nil if none was precomputed.
func (m *MultiCache) Get(graphno int) *Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byGraph[graphno]
}
