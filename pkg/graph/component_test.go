package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(5)

	for i := uint32(0); i < 5; i++ {
		require.Equal(t, i, uf.Find(i))
	}

	uf.Union(0, 1)
	require.Equal(t, uf.Find(0), uf.Find(1))

	uf.Union(2, 3)
	require.Equal(t, uf.Find(2), uf.Find(3))

	require.NotEqual(t, uf.Find(0), uf.Find(2))

	uf.Union(1, 3)
	require.Equal(t, uf.Find(0), uf.Find(3))
}

func TestConnectivityTwoComponents(t *testing.T) {
	// Component 1: 0 <-> 1 <-> 2; Component 2: 3 <-> 4.
	spec := GraphSpec{
		NumNodes: 5,
		Edges: []Edge{
			{From: 0, To: 1, Weight: 1, TwoWay: true},
			{From: 1, To: 2, Weight: 1, TwoWay: true},
			{From: 3, To: 4, Weight: 1, TwoWay: true},
		},
	}
	g, err := ConstructFromEdges(spec)
	require.NoError(t, err)

	report := Connectivity(g)
	require.Equal(t, 2, report.NumComponents)
	require.Equal(t, uint32(3), report.LargestSize)
	require.True(t, report.SameComponent(0, 2))
	require.False(t, report.SameComponent(0, 3))
}

func TestConnectivityEmptyGraph(t *testing.T) {
	report := Connectivity(&Graph{})
	require.Equal(t, 0, report.NumComponents)
	require.Nil(t, report.ComponentOf)
}
