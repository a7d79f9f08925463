package subtask

import "fmt"

// Graph is a DAG over Subtasks with an auxiliary set of shuffle-proxy
// subtasks.
type Graph struct {
	nodes              []*Subtask
	index              map[string]int
	successors         map[string][]*Subtask
	predecessors       map[string][]*Subtask
	shuffleProxyByID   map[string]*Subtask
}

// NewGraph builds an empty subtask Graph.
func NewGraph() *Graph {
	return &Graph{
		index:            make(map[string]int),
		successors:       make(map[string][]*Subtask),
		predecessors:     make(map[string][]*Subtask),
		shuffleProxyByID: make(map[string]*Subtask),
	}
}

// Contains reports whether s has been added to the graph.
func (g *Graph) Contains(s *Subtask) bool {
	_, ok := g.index[s.ID]
	return ok
}

// AddNode registers s as a node. No-op if already present.
func (g *Graph) AddNode(s *Subtask) {
	if g.Contains(s) {
		return
	}
	g.index[s.ID] = len(g.nodes)
	g.nodes = append(g.nodes, s)
}

// AddEdge records that `to` depends on `from` having completed.
func (g *Graph) AddEdge(from, to *Subtask) error {
	if !g.Contains(from) {
		return fmt.Errorf("subtask: graph.AddEdge: %s not a node", from.ID)
	}
	if !g.Contains(to) {
		return fmt.Errorf("subtask: graph.AddEdge: %s not a node", to.ID)
	}
	g.successors[from.ID] = append(g.successors[from.ID], to)
	g.predecessors[to.ID] = append(g.predecessors[to.ID], from)
	return nil
}

// AddShuffleProxySubtask marks s as producing a shuffle-proxy chunk.
func (g *Graph) AddShuffleProxySubtask(s *Subtask) {
	g.shuffleProxyByID[s.ID] = s
}

// ShuffleProxySubtasks returns every subtask marked via
// AddShuffleProxySubtask.
func (g *Graph) ShuffleProxySubtasks() []*Subtask {
	out := make([]*Subtask, 0, len(g.shuffleProxyByID))
	for _, s := range g.shuffleProxyByID {
		out = append(out, s)
	}
	return out
}

// Nodes returns every subtask, in insertion order.
func (g *Graph) Nodes() []*Subtask { return g.nodes }

// Len returns the number of subtasks.
func (g *Graph) Len() int { return len(g.nodes) }

// Predecessors returns the subtasks s directly depends on.
func (g *Graph) Predecessors(s *Subtask) []*Subtask { return g.predecessors[s.ID] }

// Successors returns the subtasks that directly depend on s.
func (g *Graph) Successors(s *Subtask) []*Subtask { return g.successors[s.ID] }

// TopologicalIter returns all subtasks in a topological order (Kahn's
// algorithm); an error indicates a cycle, which should never occur for a
// graph built by the analyzer.
func (g *Graph) TopologicalIter() ([]*Subtask, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, s := range g.nodes {
		inDegree[s.ID] = len(g.predecessors[s.ID])
	}
	var queue []*Subtask
	for _, s := range g.nodes {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s)
		}
	}
	out := make([]*Subtask, 0, len(g.nodes))
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		out = append(out, s)
		for _, succ := range g.successors[s.ID] {
			inDegree[succ.ID]--
			if inDegree[succ.ID] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if len(out) != len(g.nodes) {
		return nil, fmt.Errorf("subtask: graph has a cycle (visited %d of %d nodes)", len(out), len(g.nodes))
	}
	return out, nil
}
