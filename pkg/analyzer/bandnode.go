package analyzer

import (
	xband "github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
)

// chunkNode adapts a *chunk.Chunk (whose Key/Op are fields, not methods)
// into the band.Node interface the Assigner walks.
type chunkNode struct {
	c *chunk.Chunk
	g *chunk.Graph
}

func (n chunkNode) Key() string { return string(n.c.Key) }

func (n chunkNode) Op() xband.Operand { return n.c.Op }

func (n chunkNode) Predecessors() []xband.Node {
	preds := n.g.Predecessors(n.c)
	out := make([]xband.Node, len(preds))
	for i, p := range preds {
		out[i] = chunkNode{c: p, g: n.g}
	}
	return out
}

func wrapNodes(chunks []*chunk.Chunk, g *chunk.Graph) []xband.Node {
	out := make([]xband.Node, len(chunks))
	for i, c := range chunks {
		out[i] = chunkNode{c: c, g: g}
	}
	return out
}
