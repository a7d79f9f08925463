package chunk

import "fmt"

// Graph is an immutable-once-built DAG over Chunks with designated result
// chunks (the user-visible outputs). Invariants: acyclic; every input of a
// node is itself a node; result chunks are a subset of nodes; a topological
// order exists.
type Graph struct {
	nodes        []*Chunk
	index        map[Key]int
	successors   map[Key][]*Chunk
	predecessors map[Key][]*Chunk
	ResultChunks []*Chunk
}

// NewGraph builds an empty Graph with the given result chunks (which must be
// added via AddNode before use).
func NewGraph(resultChunks []*Chunk) *Graph {
	return &Graph{
		index:        make(map[Key]int),
		successors:   make(map[Key][]*Chunk),
		predecessors: make(map[Key][]*Chunk),
		ResultChunks: resultChunks,
	}
}

// Contains reports whether c has been added to the graph.
func (g *Graph) Contains(c *Chunk) bool {
	_, ok := g.index[c.Key]
	return ok
}

// AddNode registers c as a node. It is a no-op if already present.
func (g *Graph) AddNode(c *Chunk) {
	if g.Contains(c) {
		return
	}
	g.index[c.Key] = len(g.nodes)
	g.nodes = append(g.nodes, c)
}

// AddEdge records that `to` consumes `from`'s output. Both must already be
// nodes (via AddNode).
func (g *Graph) AddEdge(from, to *Chunk) error {
	if !g.Contains(from) {
		return fmt.Errorf("chunk: graph.AddEdge: %s not a node", from)
	}
	if !g.Contains(to) {
		return fmt.Errorf("chunk: graph.AddEdge: %s not a node", to)
	}
	g.successors[from.Key] = append(g.successors[from.Key], to)
	g.predecessors[to.Key] = append(g.predecessors[to.Key], from)
	return nil
}

// Nodes returns every chunk in the graph, in insertion order.
func (g *Graph) Nodes() []*Chunk { return g.nodes }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Predecessors returns the chunks c directly consumes.
func (g *Graph) Predecessors(c *Chunk) []*Chunk { return g.predecessors[c.Key] }

// Successors returns the chunks that directly consume c.
func (g *Graph) Successors(c *Chunk) []*Chunk { return g.successors[c.Key] }

// IterIndep returns the chunks with no predecessors (graph sources), or, if
// reverse is true, the chunks with no successors (graph sinks).
func (g *Graph) IterIndep(reverse bool) []*Chunk {
	var out []*Chunk
	for _, c := range g.nodes {
		var deps []*Chunk
		if reverse {
			deps = g.successors[c.Key]
		} else {
			deps = g.predecessors[c.Key]
		}
		if len(deps) == 0 {
			out = append(out, c)
		}
	}
	return out
}

// TopologicalIter returns all nodes in a topological order (Kahn's
// algorithm). Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalIter() ([]*Chunk, error) {
	inDegree := make(map[Key]int, len(g.nodes))
	for _, c := range g.nodes {
		inDegree[c.Key] = len(g.predecessors[c.Key])
	}
	var queue []*Chunk
	for _, c := range g.nodes {
		if inDegree[c.Key] == 0 {
			queue = append(queue, c)
		}
	}
	out := make([]*Chunk, 0, len(g.nodes))
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		out = append(out, c)
		for _, succ := range g.successors[c.Key] {
			inDegree[succ.Key]--
			if inDegree[succ.Key] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if len(out) != len(g.nodes) {
		return nil, fmt.Errorf("chunk: graph has a cycle (visited %d of %d nodes)", len(out), len(g.nodes))
	}
	return out, nil
}
