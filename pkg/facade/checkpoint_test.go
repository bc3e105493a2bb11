package facade

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTripsQueries(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, ext := chainHandle(t, e)

	var buf bytes.Buffer
	require.NoError(t, e.SaveCheckpoint(h, &buf))

	e2 := NewEngine(2)
	defer e2.Close()
	h2, err := e2.LoadCheckpoint(&buf)
	require.NoError(t, err)

	want, err := e.Distance(context.Background(), h, 0, ext[0], ext[3])
	require.NoError(t, err)
	got, err := e2.Distance(context.Background(), h2, 0, ext[0], ext[3])
	require.NoError(t, err)
	require.InDelta(t, want, got, 1e-9)

	wantRange, err := e.Range(context.Background(), h, 0, []int64{ext[0]}, 2.0)
	require.NoError(t, err)
	gotRange, err := e2.Range(context.Background(), h2, 0, []int64{ext[0]}, 2.0)
	require.NoError(t, err)
	require.ElementsMatch(t, wantRange[0], gotRange[0])
}

func TestLoadCheckpointRejectsUnknownHandleAfterLoad(t *testing.T) {
	e := NewEngine(2)
	defer e.Close()
	h, _ := chainHandle(t, e)

	var buf bytes.Buffer
	require.NoError(t, e.SaveCheckpoint(h, &buf))

	e2 := NewEngine(2)
	defer e2.Close()
	_, err := e2.LoadCheckpoint(&buf)
	require.NoError(t, err)

	_, err = e2.Distance(context.Background(), Handle{}, 0, 0, 1)
	require.Error(t, err)
	require.True(t, IsOutOfBoundsExternalID(err))
}
