package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"accessgraph/pkg/accesserr"
)

func TestConstructSimpleGraph(t *testing.T) {
	g, err := ConstructFromEdges(GraphSpec{
		NumNodes: 3,
		Edges: []Edge{
			{From: 0, To: 1, Weight: 1.0},
			{From: 1, To: 2, Weight: 2.0},
			{From: 2, To: 0, Weight: 3.0},
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, g.NumNodes)
	require.EqualValues(t, 3, g.NumEdges)

	for i := uint32(0); i < g.NumNodes; i++ {
		start, end := g.EdgesFrom(i)
		require.Equal(t, uint32(1), end-start)
	}

	var total uint32
	for _, w := range g.Weight {
		total += w
	}
	require.EqualValues(t, 6000, total)
}

func TestConstructEmptyNodeSet(t *testing.T) {
	_, err := ConstructFromEdges(GraphSpec{NumNodes: 0})
	require.Error(t, err)
	require.ErrorIs(t, err, accesserr.ErrInvalidGraph)
}

func TestConstructRejectsNegativeWeight(t *testing.T) {
	_, err := ConstructFromEdges(GraphSpec{
		NumNodes: 2,
		Edges:    []Edge{{From: 0, To: 1, Weight: -1}},
	})
	require.ErrorIs(t, err, accesserr.ErrInvalidGraph)
}

func TestConstructRejectsNaNWeight(t *testing.T) {
	_, err := ConstructFromEdges(GraphSpec{
		NumNodes: 2,
		Edges:    []Edge{{From: 0, To: 1, Weight: math.NaN()}},
	})
	require.ErrorIs(t, err, accesserr.ErrInvalidGraph)
}

func TestConstructRejectsOutOfRangeNode(t *testing.T) {
	_, err := ConstructFromEdges(GraphSpec{
		NumNodes: 2,
		Edges:    []Edge{{From: 0, To: 5, Weight: 1}},
	})
	require.ErrorIs(t, err, accesserr.ErrInvalidGraph)
}

func TestConstructTwoWayExpandsBothDirections(t *testing.T) {
	g, err := ConstructFromEdges(GraphSpec{
		NumNodes: 2,
		Edges:    []Edge{{From: 0, To: 1, Weight: 0.5, TwoWay: true}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, g.NumEdges)
	for i := uint32(0); i < g.NumNodes; i++ {
		start, end := g.EdgesFrom(i)
		require.Equal(t, uint32(1), end-start)
	}
}

func TestConstructCSRInvariants(t *testing.T) {
	g, err := ConstructFromEdges(GraphSpec{
		NumNodes: 4,
		Edges: []Edge{
			{From: 0, To: 1, Weight: 1},
			{From: 0, To: 2, Weight: 2},
			{From: 0, To: 3, Weight: 3},
			{From: 1, To: 0, Weight: 1},
		},
	})
	require.NoError(t, err)

	for i := uint32(1); i <= g.NumNodes; i++ {
		require.GreaterOrEqual(t, g.FirstOut[i], g.FirstOut[i-1])
	}
	require.Equal(t, g.NumEdges, g.FirstOut[g.NumNodes])
	for _, h := range g.Head {
		require.Less(t, h, g.NumNodes)
	}
}
