package analyzer

import (
	"context"
	"fmt"

	xband "github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
	"github.com/xorbits-io/xorbits/pkg/fusion"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

// Result is everything gen_subtask_graph produces for one analysis pass.
type Result struct {
	SubtaskGraph   *subtask.Graph
	MapReduceInfos map[int]subtask.MapReduceInfo
}

// Analyze runs the full pipeline: start selection, band assignment,
// coloring, shuffle pre-split, and subtask emission. It is deterministic
// given identical inputs. All errors are fatal — no partial SubtaskGraph is
// ever returned, per spec §4.1's failure semantics.
func Analyze(ctx context.Context, g *chunk.Graph, resources xband.ResourceMap, cfg Config, sessionID, taskID, stageID string) (*Result, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	order, err := g.TopologicalIter()
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	startChunks, reassignChunks := selectStartAndReassignChunks(order, g)
	toAssign := append(append([]*chunk.Chunk{}, startChunks...), reassignChunks...)

	curAssigns := make(map[string]xband.Band, len(cfg.OpToBands))
	for k, v := range cfg.OpToBands {
		curAssigns[k] = v
	}

	assigner := xband.NewAssigner(resources)
	assignedByKey, err := assigner.Assign(wrapNodes(toAssign, g), curAssigns)
	if err != nil {
		return nil, fmt.Errorf("analyzer: assign start chunks: %w", err)
	}

	chunkToBand := make(map[chunk.Key]xband.Band, len(order))
	for k, v := range assignedByKey {
		chunkToBand[chunk.Key(k)] = v
	}
	// explicit affinity on chunks outside the to-assign set also pins a
	// band, mirroring gen_subtask_graph's post-assign override loop.
	for _, c := range order {
		if _, ok := chunkToBand[c.Key]; ok {
			continue
		}
		if eb := c.Op.ExpectBand(); eb != nil {
			chunkToBand[c.Key] = *eb
		}
	}

	propagated := make(map[string]xband.Band, len(chunkToBand))
	for k, v := range chunkToBand {
		propagated[string(k)] = v
	}
	if err := assigner.Propagate(wrapNodes(order, g), propagated); err != nil {
		return nil, fmt.Errorf("analyzer: propagate bands: %w", err)
	}
	for k, v := range propagated {
		chunkToBand[chunk.Key(k)] = v
	}

	fetchByIndex := cfg.ShuffleFetchType == ShuffleFetchByIndex
	hasShuffle := graphHasShuffle(order)

	var colorOf map[chunk.Key]int
	var coloring *fusion.Coloring
	if cfg.FuseEnabled {
		maxColorSize := cfg.InitialSameColorNum
		if hasShuffle && fetchByIndex {
			maxColorSize = 1
		}
		coloring = fusion.New(g, chunkToBand, maxColorSize, fetchByIndex)
		colorOf, err = coloring.Color()
		if err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
	} else {
		colorOf = colorByOperator(order)
	}

	colorToChunks := make(map[int][]*chunk.Chunk)
	for _, c := range order {
		if chunk.IsFetch(c.Op) {
			continue
		}
		if color, ok := colorOf[c.Key]; ok {
			colorToChunks[color] = append(colorToChunks[color], c)
		}
	}

	if cfg.FuseEnabled && fetchByIndex {
		splitShuffleMapperColors(g, order, colorOf, colorToChunks, coloring, chunkToBand)
		if err := coloring.CheckBudget(); err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
	}

	return emitSubtaskGraph(g, order, colorOf, colorToChunks, chunkToBand, cfg, sessionID, taskID, stageID)
}

func selectStartAndReassignChunks(order []*chunk.Chunk, g *chunk.Graph) (start, reassign []*chunk.Chunk) {
	seenOp := make(map[string]bool)
	for _, c := range order {
		if len(g.Predecessors(c)) == 0 {
			if !seenOp[c.Op.Key()] {
				seenOp[c.Op.Key()] = true
				start = append(start, c)
			}
		}
	}
	for _, c := range order {
		if chunk.NeedsReassignWorker(c.Op) && !seenOp[c.Op.Key()] {
			seenOp[c.Op.Key()] = true
			reassign = append(reassign, c)
		}
	}
	return start, reassign
}

func graphHasShuffle(order []*chunk.Chunk) bool {
	for _, c := range order {
		if _, ok := c.Op.(*chunk.MapReduceOperand); ok {
			return true
		}
	}
	return false
}

// colorByOperator implements the fuse-disabled rule: every operator becomes
// its own color, so its outputs (multiple chunks sharing the same op key)
// share a color too.
func colorByOperator(order []*chunk.Chunk) map[chunk.Key]int {
	opColor := make(map[string]int)
	colorOf := make(map[chunk.Key]int)
	next := 0
	for _, c := range order {
		if chunk.IsFetch(c.Op) {
			continue
		}
		id, ok := opColor[c.Op.Key()]
		if !ok {
			id = next
			next++
			opColor[c.Op.Key()] = id
		}
		colorOf[c.Key] = id
	}
	return colorOf
}

// splitShuffleMapperColors implements §4.1 step 4: for each shuffle-proxy
// chunk, if more than one of its direct mapper predecessors share a color,
// peel each into a fresh color.
func splitShuffleMapperColors(g *chunk.Graph, order []*chunk.Chunk, colorOf map[chunk.Key]int, colorToChunks map[int][]*chunk.Chunk, coloring *fusion.Coloring, chunkToBand map[chunk.Key]xband.Band) {
	for _, proxy := range order {
		if !chunk.IsShuffleProxy(proxy.Op) {
			continue
		}
		byColor := make(map[int][]*chunk.Chunk)
		for _, mapper := range g.Predecessors(proxy) {
			if color, ok := colorOf[mapper.Key]; ok {
				byColor[color] = append(byColor[color], mapper)
			}
		}
		for color, mappers := range byColor {
			if len(mappers) <= 1 {
				continue
			}
			for _, mapper := range mappers {
				removeChunk(colorToChunks, color, mapper.Key)
				newID := coloring.NextColor()
				b := chunkToBand[mapper.Key]
				coloring.Reassign(mapper, newID, b)
				colorOf[mapper.Key] = newID
				colorToChunks[newID] = []*chunk.Chunk{mapper}
			}
		}
	}
}

func removeChunk(colorToChunks map[int][]*chunk.Chunk, color int, key chunk.Key) {
	chunks := colorToChunks[color]
	for i, c := range chunks {
		if c.Key == key {
			colorToChunks[color] = append(chunks[:i], chunks[i+1:]...)
			return
		}
	}
}

func emitSubtaskGraph(
	g *chunk.Graph,
	order []*chunk.Chunk,
	colorOf map[chunk.Key]int,
	colorToChunks map[int][]*chunk.Chunk,
	chunkToBand map[chunk.Key]xband.Band,
	cfg Config,
	sessionID, taskID, stageID string,
) (*Result, error) {
	finalResultSet := make(map[chunk.Key]bool, len(g.ResultChunks))
	for _, c := range g.ResultChunks {
		finalResultSet[c.Key] = true
	}

	subtaskSeq := 0
	state := &subtaskBuildState{
		chunkToCopied:    make(map[chunk.Key]*chunk.Chunk),
		chunkToSubtask:   make(map[chunk.Key]*subtask.Subtask),
		fetches:          newFetchCache(),
		finalResultSet:   finalResultSet,
		sessionID:        sessionID,
		taskID:           taskID,
		stageID:          stageID,
		shuffleFetchType: cfg.ShuffleFetchType,
		newSubtaskID: func() string {
			subtaskSeq++
			return fmt.Sprintf("%s:%s:%s:%d", sessionID, taskID, stageID, subtaskSeq)
		},
	}

	sg := subtask.NewGraph()
	visited := make(map[chunk.Key]bool)
	logicGroups := make(map[string][]*subtask.Subtask)
	mapReduceInfos := make(map[int]subtask.MapReduceInfo)

	for _, c := range order {
		if visited[c.Key] || chunk.IsFetch(c.Op) {
			continue
		}
		color, ok := colorOf[c.Key]
		if !ok {
			continue
		}
		sameColor := colorToChunks[color]
		if len(sameColor) == 0 {
			continue
		}

		st, inpSubtasks, isShuffleProxy, err := state.genSubtaskInfo(sameColor, chunkToBand)
		if err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
		sg.AddNode(st)
		if isShuffleProxy {
			sg.AddShuffleProxySubtask(st)
		}
		logicGroups[st.LogicKey] = append(logicGroups[st.LogicKey], st)
		for _, inp := range inpSubtasks {
			if err := sg.AddEdge(inp, st); err != nil {
				return nil, fmt.Errorf("analyzer: %w", err)
			}
		}

		for _, cc := range sameColor {
			state.chunkToSubtask[cc.Key] = st
			visited[cc.Key] = true
		}

		if isShuffleProxy && cfg.MapReduceCounter != nil {
			for _, cc := range sameColor {
				if chunk.IsShuffleProxy(cc.Op) {
					info := genMapReduceInfo(g, cc, chunkToBand, state.chunkToCopied, cfg.MapReduceCounter)
					mapReduceInfos[info.MapReduceID] = info
				}
			}
		}
	}

	for _, group := range logicGroups {
		for i, st := range group {
			st.LogicIndex = i
			st.LogicParallelism = len(group)
		}
	}

	return &Result{SubtaskGraph: sg, MapReduceInfos: mapReduceInfos}, nil
}
