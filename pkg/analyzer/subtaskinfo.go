package analyzer

import (
	"fmt"

	xband "github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

// subtaskBuildState threads the bookkeeping _gen_subtask_info needs across
// the whole Analyze call: the copied-chunk map must accumulate across every
// color class, since a later class's out-of-scope inputs reference an
// earlier class's copies.
type subtaskBuildState struct {
	chunkToCopied   map[chunk.Key]*chunk.Chunk
	chunkToSubtask  map[chunk.Key]*subtask.Subtask
	fetches         *fetchCache
	finalResultSet  map[chunk.Key]bool
	sessionID       string
	taskID          string
	stageID         string
	shuffleFetchType ShuffleFetchType
	newSubtaskID    func() string
}

// genSubtaskInfo builds one subtask's inner graph and bookkeeping from a
// color class, mirroring GraphAnalyzer._gen_subtask_info.
func (s *subtaskBuildState) genSubtaskInfo(chunks []*chunk.Chunk, chunkToBand map[chunk.Key]xband.Band) (*subtask.Subtask, []*subtask.Subtask, bool, error) {
	chunksSet := make(map[chunk.Key]bool, len(chunks))
	for _, c := range chunks {
		chunksSet[c.Key] = true
	}

	inner := chunk.NewGraph(nil)
	var resultChunks []*chunk.Chunk
	resultSet := make(map[chunk.Key]bool)
	var outOfScope []*chunk.Chunk
	var updateMetaChunks []*chunk.Chunk

	var assignedBand *xband.Band
	var expectBand *xband.Band
	bandsSpecified := false
	virtualCount := 0
	retryable := true
	var chunkPriority *int

	for _, c := range chunks {
		if eb := c.Op.ExpectBand(); eb != nil {
			if expectBand == nil {
				expectBand = eb
				bandsSpecified = true
			} else if expectBand.Key() != eb.Key() {
				return nil, nil, false, fmt.Errorf("analyzer: expect_band conflict within color class: %s vs %s", expectBand, eb)
			}
		}
		if b, ok := chunkToBand[c.Key]; ok {
			if assignedBand != nil && assignedBand.Key() != b.Key() {
				return nil, nil, false, fmt.Errorf("analyzer: band conflict within color class: %s vs %s", assignedBand, b)
			}
			bb := b
			assignedBand = &bb
		}
		if chunk.IsVirtual(c.Op) {
			virtualCount++
			if virtualCount > 1 {
				return nil, nil, false, fmt.Errorf("analyzer: only one virtual operand can exist per color class")
			}
		}
		if !c.Op.Retryable() {
			retryable = false
		}
		if p := c.Op.Priority(); p != nil {
			if chunkPriority != nil && *chunkPriority != *p {
				return nil, nil, false, fmt.Errorf("analyzer: priority conflict within color class")
			}
			chunkPriority = p
		}

		resolvedInputs := make([]*chunk.Chunk, len(c.Inputs))
		for i, in := range c.Inputs {
			if chunksSet[in.Key] {
				copied, ok := s.chunkToCopied[in.Key]
				if !ok {
					return nil, nil, false, fmt.Errorf("analyzer: input %s not yet copied (topological order violated)", in.Key)
				}
				resolvedInputs[i] = copied
			} else {
				stub, err := s.fetches.stubFor(in, s.shuffleFetchType)
				if err != nil {
					return nil, nil, false, err
				}
				resolvedInputs[i] = stub
				if !chunk.IsFetch(in.Op) {
					outOfScope = append(outOfScope, in)
				}
			}
		}

		copiedOp := c.Op.Copy()
		copiedChunk, err := chunk.New(copiedOp, resolvedInputs, c.OutputIndex, copyParams(c.Params))
		if err != nil {
			return nil, nil, false, err
		}
		copiedChunk = copiedChunk.WithKey(c.Key)

		inner.AddNode(copiedChunk)
		s.chunkToCopied[c.Key] = copiedChunk

		if s.finalResultSet[c.Key] && !resultSet[copiedChunk.Key] {
			resultChunks = append(resultChunks, copiedChunk)
			resultSet[copiedChunk.Key] = true
			updateMetaChunks = append(updateMetaChunks, copiedChunk)
		}

		if !chunk.IsVirtual(c.Op) {
			for _, in := range resolvedInputs {
				if !inner.Contains(in) {
					inner.AddNode(in)
				}
				if err := inner.AddEdge(in, copiedChunk); err != nil {
					return nil, nil, false, err
				}
			}
		}
	}

	stageNOutputs := len(resultChunks)
	for _, sink := range inner.IterIndep(true) {
		if !resultSet[sink.Key] {
			resultChunks = append(resultChunks, sink)
			resultSet[sink.Key] = true
		}
	}
	inner.ResultChunks = resultChunks

	var expectBands []xband.Band
	switch {
	case bandsSpecified:
		expectBands = []xband.Band{*expectBand}
	case assignedBand != nil:
		expectBands = []xband.Band{*assignedBand}
	}

	var inpSubtasks []*subtask.Subtask
	depth := 0
	if len(outOfScope) > 0 {
		seen := make(map[string]bool)
		for _, ooc := range outOfScope {
			copiedOOC, ok := s.chunkToCopied[ooc.Key]
			if !ok {
				return nil, nil, false, fmt.Errorf("analyzer: out-of-scope chunk %s was never copied", ooc.Key)
			}
			inpSubtask, ok := s.chunkToSubtask[ooc.Key]
			if !ok {
				return nil, nil, false, fmt.Errorf("analyzer: out-of-scope chunk %s has no owning subtask yet", ooc.Key)
			}
			if !containsChunk(inpSubtask.ChunkGraph.ResultChunks, copiedOOC.Key) {
				inpSubtask.ChunkGraph.ResultChunks = append(inpSubtask.ChunkGraph.ResultChunks, copiedOOC)
			}
			if inpSubtask.Priority.Depth+1 > depth {
				depth = inpSubtask.Priority.Depth + 1
			}
			if !seen[inpSubtask.ID] {
				seen[inpSubtask.ID] = true
				inpSubtasks = append(inpSubtasks, inpSubtask)
			}
		}
	}
	priority := subtask.Priority{Depth: depth}
	if chunkPriority != nil {
		priority.OpPriority = *chunkPriority
	}

	st := &subtask.Subtask{
		ID:               s.newSubtaskID(),
		StageID:          s.stageID,
		LogicKey:         logicKey(chunks),
		SessionID:        s.sessionID,
		TaskID:           s.taskID,
		ChunkGraph:       inner,
		ExpectBands:      expectBands,
		BandsSpecified:   bandsSpecified,
		Virtual:          virtualCount > 0,
		Priority:         priority,
		Retryable:        retryable,
		UpdateMetaChunks: updateMetaChunks,
		StageNOutputs:    stageNOutputs,
	}

	isShuffleProxy := false
	shuffleProxyCount := 0
	for _, rc := range resultChunks {
		if chunk.IsShuffleProxy(rc.Op) {
			shuffleProxyCount++
		}
	}
	if shuffleProxyCount > 1 {
		return nil, nil, false, fmt.Errorf("analyzer: more than one shuffle-proxy result in a single subtask")
	}
	isShuffleProxy = shuffleProxyCount == 1
	st.IsShuffleProxy = isShuffleProxy

	return st, inpSubtasks, isShuffleProxy, nil
}

func copyParams(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func containsChunk(chunks []*chunk.Chunk, key chunk.Key) bool {
	for _, c := range chunks {
		if c.Key == key {
			return true
		}
	}
	return false
}
