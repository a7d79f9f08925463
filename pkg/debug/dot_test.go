package debug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

func buildTestGraph() *subtask.Graph {
	g := subtask.NewGraph()
	a := &subtask.Subtask{ID: "a", LogicKey: "read", LogicParallelism: 1}
	b := &subtask.Subtask{
		ID: "b", LogicKey: "filter", LogicParallelism: 1,
		BandsSpecified: true,
		ExpectBands:    []band.Band{band.MustNew("/ip4/127.0.0.1/tcp/10001", "numa-0")},
	}
	proxy := &subtask.Subtask{ID: "p", LogicKey: "shuffle", IsShuffleProxy: true}
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(proxy)
	_ = g.AddEdge(a, b)
	_ = g.AddEdge(b, proxy)
	g.AddShuffleProxySubtask(proxy)
	return g
}

func TestWriteDOTIncludesNodesAndEdges(t *testing.T) {
	g := buildTestGraph()
	var sb strings.Builder
	require.NoError(t, WriteDOT(&sb, g))
	out := sb.String()

	require.True(t, strings.HasPrefix(out, "digraph subtaskgraph {"))
	require.Contains(t, out, `"a"`)
	require.Contains(t, out, `"b"`)
	require.Contains(t, out, `"p"`)
	require.Contains(t, out, `"a" -> "b"`)
	require.Contains(t, out, `"b" -> "p"`)
	require.Contains(t, out, "/ip4/127.0.0.1/tcp/10001")
}

func TestWriteDOTMarksShuffleProxies(t *testing.T) {
	g := buildTestGraph()
	var sb strings.Builder
	require.NoError(t, WriteDOT(&sb, g))
	out := sb.String()

	lines := strings.Split(out, "\n")
	var proxyLine string
	for _, l := range lines {
		if strings.Contains(l, `"p" [`) {
			proxyLine = l
		}
	}
	require.Contains(t, proxyLine, "fillcolor=lightyellow")
}

func TestWriteDOTEmptyGraph(t *testing.T) {
	g := subtask.NewGraph()
	var sb strings.Builder
	require.NoError(t, WriteDOT(&sb, g))
	require.Contains(t, sb.String(), "digraph subtaskgraph")
}
