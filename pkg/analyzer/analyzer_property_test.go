package analyzer_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/xorbits-io/xorbits/pkg/analyzer"
	"github.com/xorbits-io/xorbits/pkg/chunk"
)

const depthChainLength = 7

// TestSubtaskPriorityDepthIsOnePlusMaxPredecessorDepth builds a random DAG
// of user-operator chunks and checks that, whatever fusion and placement
// decisions Analyze makes, every emitted subtask's priority depth equals
// one plus the max depth of its predecessors (zero if it has none).
func TestSubtaskPriorityDepthIsOnePlusMaxPredecessorDepth(t *testing.T) {
	pairs := depthChainLength * (depthChainLength - 1) / 2

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("every subtask's priority depth is one plus the max depth of its predecessors", prop.ForAll(
		func(edgeBits []bool) bool {
			g := chunk.NewGraph(nil)
			nodes := make([]*chunk.Chunk, depthChainLength)

			bit := 0
			for i := 0; i < depthChainLength; i++ {
				op := chunk.NewUserOperand(fmt.Sprintf("op-%d", i), "noop", nil)
				var preds []*chunk.Chunk
				for j := 0; j < i; j++ {
					if edgeBits[bit] {
						preds = append(preds, nodes[j])
					}
					bit++
				}
				c, err := chunk.New(op, preds, 0, nil)
				if err != nil {
					return false
				}
				nodes[i] = c
				g.AddNode(c)
				for _, p := range preds {
					if err := g.AddEdge(p, c); err != nil {
						return false
					}
				}
			}
			g.ResultChunks = nodes

			resources := testResources(t, "/ip4/10.0.0.1/tcp/9001")
			cfg := analyzer.Config{FuseEnabled: true, MapReduceCounter: analyzer.NewMapReduceCounter()}
			result, err := analyzer.Analyze(context.Background(), g, resources, cfg, "sess-1", "task-1", "stage-1")
			if err != nil {
				return false
			}

			for _, st := range result.SubtaskGraph.Nodes() {
				expected := 0
				for _, pred := range result.SubtaskGraph.Predecessors(st) {
					if pred.Priority.Depth+1 > expected {
						expected = pred.Priority.Depth + 1
					}
				}
				if st.Priority.Depth != expected {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(pairs, gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestSubtasksSharingLogicKeyFormCompleteParallelismSet builds k independent
// partitions of the same logical operator (same operator key, distinct
// output index so they don't collapse into one chunk) and checks that the
// subtasks they become carry a shared logic key, indexes covering
// 0..k-1 exactly once, and a matching parallelism.
func TestSubtasksSharingLogicKeyFormCompleteParallelismSet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("subtasks sharing a logic key carry indexes 0..k-1 and parallelism k", prop.ForAll(
		func(k int) bool {
			g := chunk.NewGraph(nil)
			op := chunk.NewUserOperand("partition-op", "partition", nil)
			nodes := make([]*chunk.Chunk, k)
			for i := 0; i < k; i++ {
				c, err := chunk.New(op, nil, i, nil)
				if err != nil {
					return false
				}
				nodes[i] = c
				g.AddNode(c)
			}
			g.ResultChunks = nodes

			resources := testResources(t, "/ip4/10.0.0.1/tcp/9001")
			cfg := analyzer.Config{FuseEnabled: true, MapReduceCounter: analyzer.NewMapReduceCounter()}
			result, err := analyzer.Analyze(context.Background(), g, resources, cfg, "sess-1", "task-1", "stage-1")
			if err != nil {
				return false
			}
			if result.SubtaskGraph.Len() != k {
				return false
			}

			logicKey := result.SubtaskGraph.Nodes()[0].LogicKey
			seenIndex := make(map[int]bool, k)
			for _, st := range result.SubtaskGraph.Nodes() {
				if st.LogicKey != logicKey {
					return false
				}
				if st.LogicParallelism != k {
					return false
				}
				seenIndex[st.LogicIndex] = true
			}
			return len(seenIndex) == k
		},
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}

// TestShuffleProxyMapReduceInfoMatchesReducerTopology builds a random
// n-mapper/m-reducer shuffle (mappers -> proxy -> reducers) and checks that
// the resulting MapReduceInfo carries exactly one reducer index and band
// per reducer, and that every mapper is stamped with that info's
// map_reduce_id.
func TestShuffleProxyMapReduceInfoMatchesReducerTopology(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("a shuffle proxy's MapReduceInfo matches its reducer topology and stamps every mapper", prop.ForAll(
		func(nMappers, nReducers int) bool {
			g := chunk.NewGraph(nil)

			mappers := make([]*chunk.Chunk, nMappers)
			for i := 0; i < nMappers; i++ {
				op := chunk.NewMapReduceOperand(fmt.Sprintf("map-%d", i), chunk.StageMap, 0)
				c, err := chunk.New(op, nil, i, nil)
				if err != nil {
					return false
				}
				mappers[i] = c
				g.AddNode(c)
			}

			proxyOp := chunk.NewShuffleProxyOperand("proxy", nReducers)
			proxy, err := chunk.New(proxyOp, mappers, 0, nil)
			if err != nil {
				return false
			}
			g.AddNode(proxy)
			for _, m := range mappers {
				if err := g.AddEdge(m, proxy); err != nil {
					return false
				}
			}

			reducers := make([]*chunk.Chunk, nReducers)
			for j := 0; j < nReducers; j++ {
				op := chunk.NewMapReduceOperand(fmt.Sprintf("reduce-%d", j), chunk.StageReduce, j)
				c, err := chunk.New(op, []*chunk.Chunk{proxy}, 0, nil)
				if err != nil {
					return false
				}
				reducers[j] = c
				g.AddNode(c)
				if err := g.AddEdge(proxy, c); err != nil {
					return false
				}
			}
			g.ResultChunks = reducers

			resources := testResources(t, "/ip4/10.0.0.1/tcp/9001")
			cfg := analyzer.Config{
				FuseEnabled:      true,
				ShuffleFetchType: analyzer.ShuffleFetchByIndex,
				MapReduceCounter: analyzer.NewMapReduceCounter(),
			}
			result, err := analyzer.Analyze(context.Background(), g, resources, cfg, "sess-1", "task-1", "stage-1")
			if err != nil {
				return false
			}
			if len(result.MapReduceInfos) != 1 {
				return false
			}

			var mapReduceID int
			var reducerIndexes []int
			var reducerBandCount int
			for _, mri := range result.MapReduceInfos {
				mapReduceID = mri.MapReduceID
				reducerIndexes = mri.ReducerIndexes
				reducerBandCount = len(mri.ReducerBands)
			}
			if len(reducerIndexes) != nReducers || reducerBandCount != nReducers {
				return false
			}
			seenIndex := make(map[int]bool, nReducers)
			for _, idx := range reducerIndexes {
				seenIndex[idx] = true
			}
			if len(seenIndex) != nReducers {
				return false
			}

			copiedByKey := make(map[chunk.Key]*chunk.Chunk)
			for _, st := range result.SubtaskGraph.Nodes() {
				for _, cc := range st.ChunkGraph.Nodes() {
					copiedByKey[cc.Key] = cc
				}
			}
			for _, m := range mappers {
				cc, ok := copiedByKey[m.Key]
				if !ok {
					return false
				}
				id, ok := cc.ExtraParams["analyzer_map_reduce_id"]
				if !ok || id != mapReduceID {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
