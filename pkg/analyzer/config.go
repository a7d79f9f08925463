// Package analyzer implements the Graph Analyzer: it turns a chunk graph
// plus a band-resource map into a subtask DAG, handling fusion coloring,
// map/reduce shuffle grouping, band assignment with affinity constraints,
// and priority propagation.
//
// Grounded in full on
// _examples/original_source/python/xorbits/_mars/services/task/analyzer/analyzer.py.
package analyzer

import (
	"sync"

	"github.com/xorbits-io/xorbits/pkg/band"
)

// ShuffleFetchType selects how a subtask's cross-boundary shuffle-proxy
// inputs are represented.
type ShuffleFetchType int

const (
	ShuffleFetchByKey ShuffleFetchType = iota
	ShuffleFetchByIndex
)

// Config tunes a single Analyze call.
type Config struct {
	// FuseEnabled turns on the Coloring pass; when false every operator
	// becomes its own color.
	FuseEnabled bool
	// ShuffleFetchType picks FETCH_BY_KEY (default) or FETCH_BY_INDEX
	// semantics for shuffle-proxy fetch stubs.
	ShuffleFetchType ShuffleFetchType
	// InitialSameColorNum caps how many chunks may share a color, per
	// band; 0 means unlimited.
	InitialSameColorNum int
	// MapReduceCounter allocates map_reduce_id values. Required whenever
	// the chunk graph contains a shuffle; passed explicitly (not a
	// package global) per spec §9's design note.
	MapReduceCounter *MapReduceCounter
	// OpToBands lets a caller force specific ops (keyed by Operand.Key())
	// onto a band, overriding capacity-based assignment — the Go
	// analogue of gen_subtask_graph's op_to_bands parameter, used when
	// re-analyzing a graph after a prior stage already pinned placements.
	OpToBands map[string]band.Band
}

// MapReduceCounter is a process-wide (or, in an HA deployment, Raft-
// replicated — see pkg/consensus) monotonic source of map_reduce_id
// values, threaded explicitly through Config rather than a hidden global.
type MapReduceCounter struct {
	mu   sync.Mutex
	next int
}

// NewMapReduceCounter builds a counter starting at 0.
func NewMapReduceCounter() *MapReduceCounter {
	return &MapReduceCounter{}
}

// Next returns the next unused map_reduce_id.
func (c *MapReduceCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}
