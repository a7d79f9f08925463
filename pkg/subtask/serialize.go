package subtask

import (
	"encoding/json"
	"fmt"
)

// graphSnapshot is the wire shape for a Graph: the structural facts a
// consumer (the introspection dashboard, a resumed task driver) actually
// needs to reconstruct the DAG shape — node identity, dependency edges,
// dispatch priority, and logic-group membership. ChunkGraph payloads are
// never round-tripped; a decoded Subtask carries only these fields.
type graphSnapshot struct {
	Nodes []nodeSnapshot `json:"nodes"`
	Edges []edgeSnapshot `json:"edges"`
}

type nodeSnapshot struct {
	ID               string   `json:"id"`
	StageID          string   `json:"stage_id"`
	LogicKey         string   `json:"logic_key"`
	LogicIndex       int      `json:"logic_index"`
	LogicParallelism int      `json:"logic_parallelism"`
	Priority         Priority `json:"priority"`
	Virtual          bool     `json:"virtual"`
	IsShuffleProxy   bool     `json:"is_shuffle_proxy"`
}

type edgeSnapshot struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MarshalJSON encodes the graph's shape: every node's identity and dispatch
// priority plus every dependency edge.
func (g *Graph) MarshalJSON() ([]byte, error) {
	snap := graphSnapshot{}
	for _, s := range g.nodes {
		snap.Nodes = append(snap.Nodes, nodeSnapshot{
			ID:               s.ID,
			StageID:          s.StageID,
			LogicKey:         s.LogicKey,
			LogicIndex:       s.LogicIndex,
			LogicParallelism: s.LogicParallelism,
			Priority:         s.Priority,
			Virtual:          s.Virtual,
			IsShuffleProxy:   g.shuffleProxyByID[s.ID] != nil,
		})
		for _, succ := range g.successors[s.ID] {
			snap.Edges = append(snap.Edges, edgeSnapshot{From: s.ID, To: succ.ID})
		}
	}
	return json.Marshal(snap)
}

// UnmarshalJSON rebuilds a Graph from a snapshot produced by MarshalJSON.
// Reconstructed subtasks carry only the fields the snapshot preserves;
// ChunkGraph and the remaining bookkeeping fields are left zero.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var snap graphSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("subtask: decode graph: %w", err)
	}

	*g = *NewGraph()
	byID := make(map[string]*Subtask, len(snap.Nodes))
	for _, n := range snap.Nodes {
		s := &Subtask{
			ID:               n.ID,
			StageID:          n.StageID,
			LogicKey:         n.LogicKey,
			LogicIndex:       n.LogicIndex,
			LogicParallelism: n.LogicParallelism,
			Priority:         n.Priority,
			Virtual:          n.Virtual,
			IsShuffleProxy:   n.IsShuffleProxy,
		}
		g.AddNode(s)
		byID[s.ID] = s
		if n.IsShuffleProxy {
			g.AddShuffleProxySubtask(s)
		}
	}
	for _, e := range snap.Edges {
		from, ok := byID[e.From]
		if !ok {
			return fmt.Errorf("subtask: decode graph: edge references unknown node %q", e.From)
		}
		to, ok := byID[e.To]
		if !ok {
			return fmt.Errorf("subtask: decode graph: edge references unknown node %q", e.To)
		}
		if err := g.AddEdge(from, to); err != nil {
			return err
		}
	}
	return nil
}
