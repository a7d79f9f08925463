package chunk_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xorbits-io/xorbits/pkg/chunk"
)

func mustChunk(t *testing.T, opKey string, inputs []*chunk.Chunk) *chunk.Chunk {
	t.Helper()
	c, err := chunk.New(chunk.NewUserOperand(opKey, "test-op", nil), inputs, 0, nil)
	require.NoError(t, err)
	return c
}

func TestGraphTopologicalOrder(t *testing.T) {
	a := mustChunk(t, "a", nil)
	b := mustChunk(t, "b", []*chunk.Chunk{a})
	c := mustChunk(t, "c", []*chunk.Chunk{a})
	d := mustChunk(t, "d", []*chunk.Chunk{b, c})

	g := chunk.NewGraph([]*chunk.Chunk{d})
	for _, n := range []*chunk.Chunk{a, b, c, d} {
		g.AddNode(n)
	}
	require.NoError(t, g.AddEdge(a, b))
	require.NoError(t, g.AddEdge(a, c))
	require.NoError(t, g.AddEdge(b, d))
	require.NoError(t, g.AddEdge(c, d))

	order, err := g.TopologicalIter()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := make(map[chunk.Key]int, len(order))
	for i, n := range order {
		pos[n.Key] = i
	}
	require.Less(t, pos[a.Key], pos[b.Key])
	require.Less(t, pos[a.Key], pos[c.Key])
	require.Less(t, pos[b.Key], pos[d.Key])
	require.Less(t, pos[c.Key], pos[d.Key])

	require.Equal(t, []*chunk.Chunk{a}, g.IterIndep(false))
	require.Equal(t, []*chunk.Chunk{d}, g.IterIndep(true))
}

func TestGraphAddEdgeRequiresNodes(t *testing.T) {
	a := mustChunk(t, "a", nil)
	b := mustChunk(t, "b", []*chunk.Chunk{a})

	g := chunk.NewGraph(nil)
	g.AddNode(a)
	err := g.AddEdge(a, b)
	require.Error(t, err)
}

func TestChunkKeyStableForSameInputs(t *testing.T) {
	a := mustChunk(t, "a", nil)
	b1 := mustChunk(t, "b", []*chunk.Chunk{a})
	b2 := mustChunk(t, "b", []*chunk.Chunk{a})
	require.Equal(t, b1.Key, b2.Key)
}
