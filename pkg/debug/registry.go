package debug

import (
	"sync"

	"github.com/xorbits-io/xorbits/pkg/subtask"
)

// GraphRegistry is a thread-safe store of subtask graphs keyed by task ID,
// populated by whatever submits chunk graphs to the Graph Analyzer and
// drained as tasks complete. Its Lookup method satisfies GraphLookup.
type GraphRegistry struct {
	mu     sync.RWMutex
	graphs map[string]*subtask.Graph
}

// NewGraphRegistry builds an empty registry.
func NewGraphRegistry() *GraphRegistry {
	return &GraphRegistry{graphs: make(map[string]*subtask.Graph)}
}

// Register records g as the subtask graph for taskID, overwriting any
// previous entry.
func (r *GraphRegistry) Register(taskID string, g *subtask.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[taskID] = g
}

// Forget removes taskID's graph, once the task has completed and its
// debug value has expired.
func (r *GraphRegistry) Forget(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.graphs, taskID)
}

// Lookup implements GraphLookup.
func (r *GraphRegistry) Lookup(taskID string) (*subtask.Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[taskID]
	return g, ok
}
