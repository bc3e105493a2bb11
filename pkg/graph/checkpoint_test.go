package graph

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	chg := &CHGraph{
		NumNodes:     3,
		Rank:         []uint32{0, 1, 2},
		FwdFirstOut:  []uint32{0, 1, 2, 2},
		FwdHead:      []uint32{1, 2},
		FwdWeight:    []uint32{1000, 2000},
		FwdMiddle:    []int32{-1, -1},
		BwdFirstOut:  []uint32{0, 0, 1, 2},
		BwdHead:      []uint32{0, 1},
		BwdWeight:    []uint32{1000, 2000},
		BwdMiddle:    []int32{-1, -1},
		OrigFirstOut: []uint32{0, 1, 2, 2},
		OrigHead:     []uint32{1, 2},
		OrigWeight:   []uint32{1000, 2000},
	}
	core := roaring.New()
	core.Add(2)

	store := LocalStore{Dir: t.TempDir()}
	ctx := context.Background()

	require.NoError(t, WriteCheckpoint(ctx, store, "graph.chk", chg, core))

	got, gotCore, err := ReadCheckpoint(ctx, store, "graph.chk")
	require.NoError(t, err)
	require.Equal(t, chg.NumNodes, got.NumNodes)
	require.Equal(t, chg.Rank, got.Rank)
	require.Equal(t, chg.FwdHead, got.FwdHead)
	require.Equal(t, chg.BwdWeight, got.BwdWeight)
	require.Equal(t, chg.OrigHead, got.OrigHead)
	require.True(t, gotCore.Contains(2))
	require.False(t, gotCore.Contains(0))
}
