package poi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"accessgraph/pkg/ch"
	"accessgraph/pkg/graph"
)

// buildStarGraph builds a small bidirectional graph with node 0 as a hub:
//
//	1 --10-- 0 --20-- 2
//	          |
//	         30
//	          |
//	          3
func buildStarGraph(t *testing.T) *graph.CHGraph {
	t.Helper()
	g, err := graph.ConstructFromEdges(graph.GraphSpec{
		NumNodes: 4,
		Edges: []graph.Edge{
			{From: 0, To: 1, Weight: 0.01, TwoWay: true},
			{From: 0, To: 2, Weight: 0.02, TwoWay: true},
			{From: 0, To: 3, Weight: 0.03, TwoWay: true},
		},
	})
	require.NoError(t, err)
	chg, _ := ch.Contract(context.Background(), g)
	return chg
}

func TestFindNearestBasic(t *testing.T) {
	chg := buildStarGraph(t)
	// Category POIs are nodes 1, 2, 3 (dense POI indices 0, 1, 2).
	cat := BuildCategory(chg, []uint32{1, 2, 3}, 1000, 10)

	got := cat.FindNearest(context.Background(), 0, 1000, 2)
	require.Len(t, got, 2)
	require.Equal(t, uint32(10), got[0].Distance) // node 1, poi index 0
	require.Equal(t, uint32(0), got[0].POI)
	require.Equal(t, uint32(20), got[1].Distance) // node 2, poi index 1
	require.Equal(t, uint32(1), got[1].POI)
}

func TestFindNearestRadiusExcludesFarPOI(t *testing.T) {
	chg := buildStarGraph(t)
	cat := BuildCategory(chg, []uint32{1, 2, 3}, 1000, 10)

	got := cat.FindNearest(context.Background(), 0, 15, 10)
	require.Len(t, got, 1)
	require.Equal(t, uint32(10), got[0].Distance)
}

func TestFindNearestFromPOIItself(t *testing.T) {
	chg := buildStarGraph(t)
	cat := BuildCategory(chg, []uint32{1, 2, 3}, 1000, 10)

	got := cat.FindNearest(context.Background(), 1, 1000, 1)
	require.Len(t, got, 1)
	require.Equal(t, uint32(0), got[0].Distance)
	require.Equal(t, uint32(0), got[0].POI)
}

func TestFindAllNearestMatchesPerNode(t *testing.T) {
	chg := buildStarGraph(t)
	cat := BuildCategory(chg, []uint32{1, 2, 3}, 1000, 10)

	sources := []uint32{0, 1, 2, 3}
	batch := cat.FindAllNearest(context.Background(), sources, 1000, 1)
	require.Len(t, batch, 4)
	for i, s := range sources {
		single := cat.FindNearest(context.Background(), s, 1000, 1)
		require.Equal(t, single, batch[i])
	}
}

func TestBucketEvictsWorstWhenFull(t *testing.T) {
	b := newBucket(2, 3)
	b.insert(bucketEntry{poi: 1, distance: 50})
	b.insert(bucketEntry{poi: 2, distance: 10})
	b.insert(bucketEntry{poi: 3, distance: 30})
	// kSmallest is full at {10, 30}; 50 should have gone to overflow.
	require.Equal(t, 3, b.size())

	b.insert(bucketEntry{poi: 4, distance: 5})
	// 5 beats kSmallest's current worst (30); 30 is evicted into overflow,
	// which is itself full at {50} — but 30 beats 50, the overflow's own
	// worst, so 50 (not 30) is the one that ends up discarded.
	nearest := b.kNearest(3)
	require.Len(t, nearest, 3)
	require.Equal(t, uint32(5), nearest[0].distance)
	require.Equal(t, uint32(10), nearest[1].distance)
	require.Equal(t, uint32(30), nearest[2].distance)
}

func TestBucketGlobalNearestSurviveOutOfOrderInserts(t *testing.T) {
	// A full bucket (kSmallest cap 1, total cap 2) fed a farther candidate
	// before a nearer one must still end up holding the two nearest overall,
	// not whichever two happened to arrive first.
	b := newBucket(1, 2)
	b.insert(bucketEntry{poi: 1, distance: 100})
	b.insert(bucketEntry{poi: 2, distance: 90})
	// kSmallest={90}, overflow={100}; size==maxTotal.
	require.Equal(t, 2, b.size())

	b.insert(bucketEntry{poi: 3, distance: 5})
	// 5 beats kSmallest's worst (90); 90 is displaced into the full overflow,
	// where it beats the overflow's own worst (100), evicting it.
	nearest := b.kNearest(2)
	require.Len(t, nearest, 2)
	require.Equal(t, uint32(5), nearest[0].distance)
	require.Equal(t, uint32(90), nearest[1].distance)
}
