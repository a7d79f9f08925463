// Package subtask models the fused execution unit the Graph Analyzer emits
// (Subtask, SubtaskGraph, MapReduceInfo) and the priority dispatch queue the
// Actor Pool dequeues from.
package subtask

import (
	"github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
)

// Priority is the (depth, op-priority) tuple subtasks are ordered by.
// Depth dominates: a subtask at depth 3 always outranks one at depth 2
// regardless of op priority.
type Priority struct {
	Depth      int
	OpPriority int
}

// Less reports whether p should be dispatched before other (higher priority
// first): greater depth, then greater op priority, wins.
func (p Priority) Less(other Priority) bool {
	if p.Depth != other.Depth {
		return p.Depth > other.Depth
	}
	return p.OpPriority > other.OpPriority
}

// Subtask is a fused connected subgraph of chunks executed as a unit on one
// band.
type Subtask struct {
	ID               string
	StageID          string
	LogicKey         string
	LogicIndex       int
	LogicParallelism int
	SessionID        string
	TaskID           string

	// ChunkGraph is the subtask's own inner graph: local edges between
	// fused chunks, Fetch stubs for cross-subtask inputs.
	ChunkGraph *chunk.Graph

	ExpectBands    []band.Band
	BandsSpecified bool

	Virtual   bool
	Priority  Priority
	Retryable bool

	// UpdateMetaChunks are the subtask's output chunks that are also
	// results of the whole chunk graph; their metadata must be published
	// back to the task driver on completion.
	UpdateMetaChunks []*chunk.Chunk

	ExtraConfig   map[string]any
	StageNOutputs int
	IsShuffleProxy bool
}

// MapReduceInfo records, per shuffle-proxy chunk, the allocated
// map_reduce_id, the ordered reducer partition indexes, and the band
// assignment of each reducer.
type MapReduceInfo struct {
	MapReduceID    int
	ReducerIndexes []int
	ReducerBands   []band.Band
}
