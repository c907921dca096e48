package graph_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/route_finder/pkg/graph"
)

func buildTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(
		[]graph.RawNode{
			{ID: 10, Lat: 12.970, Lon: 77.590},
			{ID: 20, Lat: 12.971, Lon: 77.591},
			{ID: 30, Lat: 12.972, Lon: 77.592},
			{ID: 40, Lat: 12.973, Lon: 77.593},
		},
		graph.Symmetrize([]graph.RawEdge{
			{From: 10, To: 20, Weight: 100},
			{From: 20, To: 30, Weight: 200},
			{From: 10, To: 40, Weight: 300},
		}),
	)
	require.NoError(t, err)
	return g
}

func TestBinaryRoundTrip(t *testing.T) {
	original := buildTestGraph(t)

	path := filepath.Join(t.TempDir(), "test.graph.bin")
	require.NoError(t, graph.WriteBinary(path, original))

	loaded, err := graph.ReadBinary(path)
	require.NoError(t, err)

	assert.Equal(t, original.NumNodes, loaded.NumNodes)
	assert.Equal(t, original.NumEdges, loaded.NumEdges)
	assert.Equal(t, original.NodeID, loaded.NodeID)
	assert.Equal(t, original.NodeLat, loaded.NodeLat)
	assert.Equal(t, original.NodeLon, loaded.NodeLon)
	assert.Equal(t, original.FirstOut, loaded.FirstOut)
	assert.Equal(t, original.Head, loaded.Head)
	assert.Equal(t, original.Weight, loaded.Weight)
	assert.Equal(t, original.Comp, loaded.Comp)

	// The temp file is renamed away.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestBinaryEmptyGraph(t *testing.T) {
	g, err := graph.Build(nil, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "empty.graph.bin")
	require.NoError(t, graph.WriteBinary(path, g))

	loaded, err := graph.ReadBinary(path)
	require.NoError(t, err)
	assert.Zero(t, loaded.NumNodes)
}

func TestBinaryInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.graph.bin")
	require.NoError(t, os.WriteFile(path, []byte("NOT_MPROUTER_HEADER_BLAH_BLAH_BLAH_MORE_DATA"), 0644))

	_, err := graph.ReadBinary(path)
	assert.ErrorIs(t, err, graph.ErrCorrupt)
}

func TestBinaryTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.graph.bin")
	require.NoError(t, os.WriteFile(path, []byte("MPROUTER"), 0644))

	_, err := graph.ReadBinary(path)
	assert.ErrorIs(t, err, graph.ErrCorrupt)
}

func TestBinaryChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flipped.graph.bin")
	require.NoError(t, graph.WriteBinary(path, buildTestGraph(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-10] ^= 0xFF // inside the Weight array
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = graph.ReadBinary(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrCorrupt))
	assert.Contains(t, err.Error(), "CRC32")
}

func TestBinaryRejectsDanglingHead(t *testing.T) {
	g := buildTestGraph(t)
	g.Head[0] = 99 // points past the node table; CRC is computed over it

	path := filepath.Join(t.TempDir(), "dangling.graph.bin")
	require.NoError(t, graph.WriteBinary(path, g))

	_, err := graph.ReadBinary(path)
	assert.ErrorIs(t, err, graph.ErrInconsistent)
}
