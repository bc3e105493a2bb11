// Package facade implements the stable external surface: external
// 64-bit node IDs in and out, multiple weight-vector graphs sharing one
// node set behind a single handle, and the full operation table of
// construct/precompute_range/range/route/routes/distance/distances/
// init_category_poi/find_nearest_pois/find_all_nearest_pois/init_acc_var/
// aggregate_all.
package facade

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"accessgraph/pkg/accesserr"
	"accessgraph/pkg/accessibility"
	"accessgraph/pkg/ch"
	"accessgraph/pkg/dispatch"
	"accessgraph/pkg/graph"
	"accessgraph/pkg/poi"
	"accessgraph/pkg/query"
	"accessgraph/pkg/rangecache"
)

// Handle identifies one construct call's node set and graphs.
type Handle uuid.UUID

func (h Handle) String() string { return uuid.UUID(h).String() }

// EdgeSpec is one topology edge, shared across every weight vector of a
// construct call; From/To are internal dense indices aligned with the
// extIDs slice passed to Construct.
type EdgeSpec struct {
	From, To uint32
	TwoWay   bool
}

// graphInstance is one weight-vector's contracted overlay plus its own
// query engine, optional range cache, and lazily-built per-category POI
// indexes (a POI bucket index is graphno-specific because it is built from
// that graph's backward-upward overlay).
type graphInstance struct {
	chg   *graph.CHGraph
	eng   *query.Engine
	cache *rangecache.Cache // nil until PrecomputeRange

	poiMu    sync.Mutex
	poiBuilt map[string]*poi.Category
}

type poiRegistration struct {
	maxDist, maxItems uint32
	nodeIdx           []uint32
}

// session is everything one construct call produced: the external-ID
// bijection, one graphInstance per graphno, and the category registries.
// Attribute and POI stores live above the graph and are shared across
// every graphno in the session, indexed independently of graphno.
type session struct {
	numNodes uint32
	extToInt map[int64]uint32
	intToExt []int64
	graphs   []*graphInstance

	mu       sync.RWMutex
	poiRegs  map[string]poiRegistration
	attrRegs map[string]*accessibility.AttributeStore
}

// Engine is the facade: it owns every session created by Construct and a
// shared worker pool every batch operation dispatches through.
type Engine struct {
	mu       sync.RWMutex
	sessions map[Handle]*session
	pool     *dispatch.Pool
}

// NewEngine creates a facade with a pool sized to numWorkers (<=0 means
// runtime.NumCPU(), per dispatch.NewPool).
func NewEngine(numWorkers int) *Engine {
	return &Engine{
		sessions: make(map[Handle]*session),
		pool:     dispatch.NewPool(numWorkers),
	}
}

// Close shuts down the facade's worker pool.
func (e *Engine) Close() { e.pool.Close() }

// Construct runs CH preprocessing for each weight vector in weightVectors
// (one graphno per entry, all sharing edges' topology) and returns a handle
// for the resulting session. extIDs[i] is the external ID of internal node
// i; len(extIDs) == numNodes. Returns accesserr.ErrInvalidGraph (from
// graph.ConstructFromEdges) if any vector is malformed — fatal, no session
// is created.
func (e *Engine) Construct(ctx context.Context, numNodes uint32, extIDs []int64, edges []EdgeSpec, weightVectors [][]float64) (Handle, error) {
	if uint32(len(extIDs)) != numNodes {
		return Handle{}, accesserr.Wrap(accesserr.ErrInvalidGraph, "len(extIDs) != numNodes")
	}
	if len(weightVectors) == 0 {
		return Handle{}, accesserr.Wrap(accesserr.ErrInvalidGraph, "at least one weight vector is required")
	}

	extToInt := make(map[int64]uint32, len(extIDs))
	for i, id := range extIDs {
		extToInt[id] = uint32(i)
	}

	graphs := make([]*graphInstance, len(weightVectors))
	for g, weights := range weightVectors {
		if len(weights) != len(edges) {
			return Handle{}, accesserr.Wrapf(accesserr.ErrInvalidGraph, "graph %d: len(weights) != len(edges)", g)
		}
		graphEdges := make([]graph.Edge, len(edges))
		for i, es := range edges {
			graphEdges[i] = graph.Edge{From: es.From, To: es.To, Weight: weights[i], TwoWay: es.TwoWay}
		}
		base, err := graph.ConstructFromEdges(graph.GraphSpec{NumNodes: numNodes, Edges: graphEdges})
		if err != nil {
			return Handle{}, err
		}
		chg, _ := ch.Contract(ctx, base)
		graphs[g] = &graphInstance{
			chg:      chg,
			eng:      query.NewEngine(chg),
			poiBuilt: make(map[string]*poi.Category),
		}
	}

	h := Handle(uuid.New())
	sess := &session{
		numNodes: numNodes,
		extToInt: extToInt,
		intToExt: append([]int64(nil), extIDs...),
		graphs:   graphs,
		poiRegs:  make(map[string]poiRegistration),
		attrRegs: make(map[string]*accessibility.AttributeStore),
	}

	e.mu.Lock()
	e.sessions[h] = sess
	e.mu.Unlock()
	return h, nil
}

func (e *Engine) session(h Handle) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[h]
	if !ok {
		return nil, accesserr.Wrap(accesserr.ErrOutOfBoundsExternalID, "unknown handle")
	}
	return sess, nil
}

func (s *session) graphAt(graphno int) (*graphInstance, error) {
	if graphno < 0 || graphno >= len(s.graphs) {
		return nil, accesserr.Wrapf(accesserr.ErrOutOfBoundsExternalID, "graphno %d out of range", graphno)
	}
	return s.graphs[graphno], nil
}

func (s *session) toInternal(extID int64) (uint32, error) {
	v, ok := s.extToInt[extID]
	if !ok {
		return 0, accesserr.Wrapf(accesserr.ErrOutOfBoundsExternalID, "external id %d", extID)
	}
	return v, nil
}

// PrecomputeRange fills the range cache for every graphno at a fixed
// radius (caller-facing cost units). Subsequent Range calls with a radius
// <= this one short-circuit through the cache.
func (e *Engine) PrecomputeRange(ctx context.Context, h Handle, radius float64) error {
	sess, err := e.session(h)
	if err != nil {
		return err
	}
	r := graph.ScaleWeight(radius)
	for _, gi := range sess.graphs {
		c, err := rangecache.Precompute(ctx, gi.eng, sess.numNodes, r)
		if err != nil {
			return err
		}
		gi.cache = c
	}
	return nil
}

// RangeResult is one (external node ID, distance) entry of a Range call.
type RangeResult struct {
	ExtID    int64
	Distance float64
}

// Range returns, for every source, every node within radius as
// (ext_id, distance) pairs — using the range cache if radius fits it.
func (e *Engine) Range(ctx context.Context, h Handle, graphno int, sources []int64, radius float64) ([][]RangeResult, error) {
	sess, err := e.session(h)
	if err != nil {
		return nil, err
	}
	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, err
	}
	internalSrcs := make([]uint32, len(sources))
	for i, ext := range sources {
		v, err := sess.toInternal(ext)
		if err != nil {
			return nil, err
		}
		internalSrcs[i] = v
	}

	r := graph.ScaleWeight(radius)
	out := make([][]RangeResult, len(sources))
	err = dispatch.GuidedFor(ctx, len(sources), e.pool.NumWorkers(), func(_ int, i int) error {
		var tuples []graph.DistanceTuple
		if gi.cache != nil {
			if cached, ok := gi.cache.Lookup(internalSrcs[i], r); ok {
				tuples = cached
			}
		}
		if tuples == nil {
			tuples = gi.eng.Range(ctx, internalSrcs[i], r)
		}
		results := make([]RangeResult, len(tuples))
		for j, t := range tuples {
			results[j] = RangeResult{ExtID: sess.intToExt[t.Node], Distance: graph.UnscaleWeight(t.Distance)}
		}
		out[i] = results
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Route returns the shortest path from src to tgt as external node IDs, and
// its distance. An empty path with math.Inf(1) distance means unreachable.
func (e *Engine) Route(ctx context.Context, h Handle, graphno int, src, tgt int64) ([]int64, float64, error) {
	sess, err := e.session(h)
	if err != nil {
		return nil, 0, err
	}
	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, 0, err
	}
	s, err := sess.toInternal(src)
	if err != nil {
		return nil, 0, err
	}
	t, err := sess.toInternal(tgt)
	if err != nil {
		return nil, 0, err
	}

	path, dist := gi.eng.Route(ctx, s, t)
	if dist == graph.Unreachable {
		return nil, math.Inf(1), nil
	}
	extPath := make([]int64, len(path))
	for i, v := range path {
		extPath[i] = sess.intToExt[v]
	}
	return extPath, graph.UnscaleWeight(dist), nil
}

// Routes runs Route over parallel (sources[i], targets[i]) pairs,
// truncated to min(len(sources), len(targets)).
func (e *Engine) Routes(ctx context.Context, h Handle, graphno int, sources, targets []int64) ([][]int64, []float64, error) {
	n := len(sources)
	if len(targets) < n {
		n = len(targets)
	}
	sess, err := e.session(h)
	if err != nil {
		return nil, nil, err
	}
	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, nil, err
	}

	internalSrc := make([]uint32, n)
	internalTgt := make([]uint32, n)
	for i := 0; i < n; i++ {
		s, err := sess.toInternal(sources[i])
		if err != nil {
			return nil, nil, err
		}
		t, err := sess.toInternal(targets[i])
		if err != nil {
			return nil, nil, err
		}
		internalSrc[i], internalTgt[i] = s, t
	}

	paths := make([][]int64, n)
	dists := make([]float64, n)
	err = dispatch.GuidedFor(ctx, n, e.pool.NumWorkers(), func(_ int, i int) error {
		path, dist := gi.eng.Route(ctx, internalSrc[i], internalTgt[i])
		if dist == graph.Unreachable {
			dists[i] = math.Inf(1)
			return nil
		}
		extPath := make([]int64, len(path))
		for j, v := range path {
			extPath[j] = sess.intToExt[v]
		}
		paths[i] = extPath
		dists[i] = graph.UnscaleWeight(dist)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return paths, dists, nil
}

// Distance returns the shortest-path cost from src to tgt, or math.Inf(1)
// if unreachable.
func (e *Engine) Distance(ctx context.Context, h Handle, graphno int, src, tgt int64) (float64, error) {
	sess, err := e.session(h)
	if err != nil {
		return 0, err
	}
	gi, err := sess.graphAt(graphno)
	if err != nil {
		return 0, err
	}
	s, err := sess.toInternal(src)
	if err != nil {
		return 0, err
	}
	t, err := sess.toInternal(tgt)
	if err != nil {
		return 0, err
	}
	d := gi.eng.Distance(ctx, s, t)
	if d == graph.Unreachable {
		return math.Inf(1), nil
	}
	return graph.UnscaleWeight(d), nil
}

// Distances runs Distance over parallel pairs, truncated to
// min(len(sources), len(targets)).
func (e *Engine) Distances(ctx context.Context, h Handle, graphno int, sources, targets []int64) ([]float64, error) {
	n := len(sources)
	if len(targets) < n {
		n = len(targets)
	}
	sess, err := e.session(h)
	if err != nil {
		return nil, err
	}
	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, err
	}

	internalSrc := make([]uint32, n)
	internalTgt := make([]uint32, n)
	for i := 0; i < n; i++ {
		s, err := sess.toInternal(sources[i])
		if err != nil {
			return nil, err
		}
		t, err := sess.toInternal(targets[i])
		if err != nil {
			return nil, err
		}
		internalSrc[i], internalTgt[i] = s, t
	}

	out := make([]float64, n)
	err = dispatch.GuidedFor(ctx, n, e.pool.NumWorkers(), func(_ int, i int) error {
		d := gi.eng.Distance(ctx, internalSrc[i], internalTgt[i])
		if d == graph.Unreachable {
			out[i] = math.Inf(1)
			return nil
		}
		out[i] = graph.UnscaleWeight(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InitCategoryPOI registers a POI category's node set and search bounds.
// Registration is graphno-independent; the actual bucket index is built
// lazily per graphno on first use (a POI bucket is a function of that
// graphno's backward-upward overlay).
func (e *Engine) InitCategoryPOI(h Handle, maxDist float64, maxItems int, category string, nodeExtIDs []int64) error {
	sess, err := e.session(h)
	if err != nil {
		return err
	}
	idx := make([]uint32, len(nodeExtIDs))
	for i, ext := range nodeExtIDs {
		v, err := sess.toInternal(ext)
		if err != nil {
			return err
		}
		idx[i] = v
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.poiRegs[category] = poiRegistration{
		maxDist:  graph.ScaleWeight(maxDist),
		maxItems: uint32(maxItems),
		nodeIdx:  idx,
	}
	// Invalidate any already-built index for this category across every
	// graphno — a re-registration supersedes it.
	for _, gi := range sess.graphs {
		gi.poiMu.Lock()
		delete(gi.poiBuilt, category)
		gi.poiMu.Unlock()
	}
	return nil
}

func (gi *graphInstance) categoryIndex(category string, reg poiRegistration) *poi.Category {
	gi.poiMu.Lock()
	defer gi.poiMu.Unlock()
	if cat, ok := gi.poiBuilt[category]; ok {
		return cat
	}
	cat := poi.BuildCategory(gi.chg, reg.nodeIdx, reg.maxDist, reg.maxItems)
	gi.poiBuilt[category] = cat
	return cat
}

// POIResult is one (distance, poi index) entry. POIIndex is the dense
// category-internal index assigned to a POI by the order it was passed to
// InitCategoryPOI — not the POI's external node ID — so two POIs
// registered at the same node still come back as distinct results.
type POIResult struct {
	Distance float64
	POIIndex int
}

// FindNearestPOIs returns up to k nearest POIs of category to src, ascending
// by distance. An unregistered category returns (nil, nil) — no error.
func (e *Engine) FindNearestPOIs(ctx context.Context, h Handle, graphno int, src int64, maxRadius float64, k int, category string) ([]POIResult, error) {
	sess, err := e.session(h)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	reg, ok := sess.poiRegs[category]
	sess.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, err
	}
	s, err := sess.toInternal(src)
	if err != nil {
		return nil, err
	}

	cat := gi.categoryIndex(category, reg)
	cands := cat.FindNearest(ctx, s, graph.ScaleWeight(maxRadius), k)
	out := make([]POIResult, len(cands))
	for i, c := range cands {
		out[i] = POIResult{Distance: graph.UnscaleWeight(c.Distance), POIIndex: int(c.POI)}
	}
	return out, nil
}

// FindAllNearestPOIs returns N x k grids of distance and dense POI index
// (see POIResult.POIIndex), missing slots filled with -1. An unregistered
// category returns (nil, nil, nil).
func (e *Engine) FindAllNearestPOIs(ctx context.Context, h Handle, graphno int, maxRadius float64, k int, category string) (distances [][]float64, poiIndices [][]int, err error) {
	sess, err := e.session(h)
	if err != nil {
		return nil, nil, err
	}
	sess.mu.RLock()
	reg, ok := sess.poiRegs[category]
	sess.mu.RUnlock()
	if !ok {
		return nil, nil, nil
	}

	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, nil, err
	}

	sources := make([]uint32, sess.numNodes)
	for i := range sources {
		sources[i] = uint32(i)
	}
	cat := gi.categoryIndex(category, reg)
	batch := cat.FindAllNearest(ctx, sources, graph.ScaleWeight(maxRadius), k)

	distances = make([][]float64, len(batch))
	poiIndices = make([][]int, len(batch))
	for i, row := range batch {
		dRow := make([]float64, k)
		idxRow := make([]int, k)
		for j := 0; j < k; j++ {
			if j < len(row) {
				dRow[j] = graph.UnscaleWeight(row[j].Distance)
				idxRow[j] = int(row[j].POI)
			} else {
				dRow[j] = -1
				idxRow[j] = -1
			}
		}
		distances[i] = dRow
		poiIndices[i] = idxRow
	}
	return distances, poiIndices, nil
}

// InitAccVar loads an attribute category's per-node value lists.
// nodeExtIDs[i]'s attribute list is values[i]; colocated features at the
// same node across calls accumulate rather than overwrite.
func (e *Engine) InitAccVar(h Handle, category string, nodeExtIDs []int64, values [][]float64) error {
	sess, err := e.session(h)
	if err != nil {
		return err
	}
	if len(nodeExtIDs) != len(values) {
		return accesserr.Wrap(accesserr.ErrInvalidGraph, "len(nodeExtIDs) != len(values)")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	store, ok := sess.attrRegs[category]
	if !ok {
		store = accessibility.NewAttributeStore(sess.numNodes)
		sess.attrRegs[category] = store
	}
	for i, ext := range nodeExtIDs {
		v, ok := sess.extToInt[ext]
		if !ok {
			return accesserr.Wrapf(accesserr.ErrOutOfBoundsExternalID, "external id %d", ext)
		}
		for _, val := range values[i] {
			store.Append(v, val)
		}
	}
	return nil
}

// AggregateAll computes the accessibility aggregate for every node in the
// network. An unregistered category, or an unrecognized aggtyp/decay,
// returns (nil, nil) — no error.
func (e *Engine) AggregateAll(ctx context.Context, h Handle, graphno int, radius float64, category string, aggtyp accessibility.Aggregation, decay accessibility.Decay) ([]float64, error) {
	sess, err := e.session(h)
	if err != nil {
		return nil, err
	}
	sess.mu.RLock()
	store, ok := sess.attrRegs[category]
	sess.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !accessibility.IsValidAggregation(aggtyp) || !accessibility.IsValidDecay(decay) {
		return nil, nil
	}

	gi, err := sess.graphAt(graphno)
	if err != nil {
		return nil, err
	}

	r := graph.ScaleWeight(radius)
	out := make([]float64, sess.numNodes)
	err = dispatch.GuidedFor(ctx, int(sess.numNodes), e.pool.NumWorkers(), func(_ int, i int) error {
		v := uint32(i)
		var tuples []graph.DistanceTuple
		if gi.cache != nil {
			if cached, ok := gi.cache.Lookup(v, r); ok {
				tuples = cached
			}
		}
		if tuples == nil {
			tuples = gi.eng.Range(ctx, v, r)
		}
		score, err := accessibility.Aggregate(tuples, store, aggtyp, decay, r)
		if err != nil {
			return err
		}
		out[i] = score
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
