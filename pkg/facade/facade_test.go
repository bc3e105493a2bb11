package facade

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"accessgraph/pkg/accessibility"
)

// chainHandle builds the 4-node chain 0-1-2-3, edges (0,1,1) (1,2,1) (2,3,1),
// twoway. External IDs are the node's position times 100, to exercise the
// ext<->int translation.
func chainHandle(t *testing.T, e *Engine) (Handle, []int64) {
	t.Helper()
	extIDs := []int64{100, 200, 300, 400}
	edges := []EdgeSpec{
		{From: 0, To: 1, TwoWay: true},
		{From: 1, To: 2, TwoWay: true},
		{From: 2, To: 3, TwoWay: true},
	}
	weights := [][]float64{{1, 1, 1}}
	h, err := e.Construct(context.Background(), 4, extIDs, edges, weights)
	require.NoError(t, err)
	return h, extIDs
}

func TestDistanceChainBetweenEndpoints(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	got, err := e.Distance(context.Background(), h, 0, ext[0], ext[3])
	require.NoError(t, err)
	require.InDelta(t, 3.0, got, 1e-9)
}

func TestRangeFromChainEndpoint(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	got, err := e.Range(context.Background(), h, 0, []int64{ext[0]}, 2.0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := map[int64]float64{ext[0]: 0.0, ext[1]: 1.0, ext[2]: 2.0}
	require.Len(t, got[0], len(want))
	for _, r := range got[0] {
		wd, ok := want[r.ExtID]
		require.True(t, ok, "unexpected ext id %d in range result", r.ExtID)
		require.InDelta(t, wd, r.Distance, 1e-9)
	}
}

func TestFindNearestPOIAlongChain(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	err := e.InitCategoryPOI(h, 10, 1, "x", []int64{ext[3]})
	require.NoError(t, err)

	got, err := e.FindNearestPOIs(context.Background(), h, 0, ext[0], 5.0, 1, "x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.InDelta(t, 3.0, got[0].Distance, 1e-9)
	require.Equal(t, 0, got[0].POIIndex)
}

func TestAggregateAllSumAndMedianOnStar(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()

	extIDs := make([]int64, 10)
	for i := range extIDs {
		extIDs[i] = int64(i)
	}
	edges := make([]EdgeSpec, 9)
	weights := make([]float64, 9)
	for i := 1; i <= 9; i++ {
		edges[i-1] = EdgeSpec{From: 0, To: uint32(i), TwoWay: true}
		weights[i-1] = float64(i)
	}
	h, err := e.Construct(context.Background(), 10, extIDs, edges, [][]float64{weights})
	require.NoError(t, err)

	leafIDs := extIDs[1:]
	values := make([][]float64, 9)
	for i := range leafIDs {
		values[i] = []float64{float64(i + 1)}
	}
	require.NoError(t, e.InitAccVar(h, "v", leafIDs, values))

	// sum / flat decay
	sumFlat, err := e.AggregateAll(context.Background(), h, 0, 5, "v", accessibility.AggSum, accessibility.DecayFlat)
	require.NoError(t, err)
	require.InDelta(t, 15.0, sumFlat[0], 1e-9)

	// sum / linear decay
	sumLinear, err := e.AggregateAll(context.Background(), h, 0, 5, "v", accessibility.AggSum, accessibility.DecayLinear)
	require.NoError(t, err)
	require.InDelta(t, 4.0, sumLinear[0], 1e-9)

	// median / flat decay
	median, err := e.AggregateAll(context.Background(), h, 0, 5, "v", accessibility.AggMedian, accessibility.DecayFlat)
	require.NoError(t, err)
	require.InDelta(t, 3.0, median[0], 1e-9)
}

func TestDistanceBetweenDisconnectedComponentsIsUnreachable(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()

	extIDs := []int64{0, 1, 2, 3}
	edges := []EdgeSpec{
		{From: 0, To: 1, TwoWay: true},
		{From: 2, To: 3, TwoWay: true},
	}
	h, err := e.Construct(context.Background(), 4, extIDs, edges, [][]float64{{1, 1}})
	require.NoError(t, err)

	got, err := e.Distance(context.Background(), h, 0, 0, 2)
	require.NoError(t, err)
	require.True(t, math.IsInf(got, 1))
}

func TestRouteUnreachableReturnsEmptyPath(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()

	extIDs := []int64{0, 1, 2, 3}
	edges := []EdgeSpec{
		{From: 0, To: 1, TwoWay: true},
		{From: 2, To: 3, TwoWay: true},
	}
	h, err := e.Construct(context.Background(), 4, extIDs, edges, [][]float64{{1, 1}})
	require.NoError(t, err)

	path, dist, err := e.Route(context.Background(), h, 0, 0, 2)
	require.NoError(t, err)
	require.Empty(t, path)
	require.True(t, math.IsInf(dist, 1))
}

func TestUnknownCategoryReturnsEmptyNoError(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	got, err := e.FindNearestPOIs(context.Background(), h, 0, ext[0], 5.0, 1, "nonexistent")
	require.NoError(t, err)
	require.Nil(t, got)

	agg, err := e.AggregateAll(context.Background(), h, 0, 5, "nonexistent", accessibility.AggSum, accessibility.DecayFlat)
	require.NoError(t, err)
	require.Nil(t, agg)
}

func TestUnknownAggregationReturnsEmptyNoError(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)
	require.NoError(t, e.InitAccVar(h, "v", []int64{ext[0]}, [][]float64{{1}}))

	got, err := e.AggregateAll(context.Background(), h, 0, 5, "v", accessibility.Aggregation("bogus"), accessibility.DecayFlat)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOutOfBoundsExternalIDFails(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, _ := chainHandle(t, e)

	_, err := e.Distance(context.Background(), h, 0, 100, 999999)
	require.Error(t, err)
	require.True(t, IsOutOfBoundsExternalID(err))
}

func TestInvalidGraphRejectsConstruct(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()

	_, err := e.Construct(context.Background(), 2, []int64{0, 1}, []EdgeSpec{{From: 0, To: 5}}, [][]float64{{1}})
	require.Error(t, err)
	require.True(t, IsInvalidGraph(err))
}

func TestRangeUsesCacheTransparently(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	require.NoError(t, e.PrecomputeRange(context.Background(), h, 5.0))

	withCache, err := e.Range(context.Background(), h, 0, []int64{ext[0]}, 2.0)
	require.NoError(t, err)

	e2 := NewEngine(2)
	defer e2.Close()
	h2, ext2 := chainHandle(t, e2)
	withoutCache, err := e2.Range(context.Background(), h2, 0, []int64{ext2[0]}, 2.0)
	require.NoError(t, err)

	require.ElementsMatch(t, withCache[0], withoutCache[0])
}

func TestFindAllNearestPOIsGridHasMissingSentinels(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	require.NoError(t, e.InitCategoryPOI(h, 10, 2, "x", []int64{ext[3]}))
	dists, poiIndices, err := e.FindAllNearestPOIs(context.Background(), h, 0, 10, 2, "x")
	require.NoError(t, err)
	require.Len(t, dists, 4)
	for i := range dists {
		require.Len(t, dists[i], 2)
		// Only one POI registered: slot 0 is real, slot 1 is the -1 sentinel.
		require.Equal(t, -1, poiIndices[i][1])
		require.Equal(t, -1.0, dists[i][1])
	}
}
