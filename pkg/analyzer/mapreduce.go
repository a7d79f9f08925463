package analyzer

import (
	xband "github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

// genMapReduceInfo allocates a map_reduce_id for the given shuffle-proxy
// chunk, stamps every mapper predecessor's already-copied chunk with
// analyzer_map_reduce_id, and returns the MapReduceInfo recording reducer
// indexes and bands — mirroring GraphAnalyzer._gen_map_reduce_info.
func genMapReduceInfo(
	g *chunk.Graph,
	proxy *chunk.Chunk,
	chunkToBand map[chunk.Key]xband.Band,
	chunkToCopied map[chunk.Key]*chunk.Chunk,
	counter *MapReduceCounter,
) subtask.MapReduceInfo {
	var reducerIndexes []int
	var reducerBands []xband.Band
	for _, succ := range g.Successors(proxy) {
		mr, ok := succ.Op.(*chunk.MapReduceOperand)
		if !ok || mr.StageVal != chunk.StageReduce {
			continue
		}
		reducerIndexes = append(reducerIndexes, mr.ReducerIndex)
		if b, ok := chunkToBand[succ.Key]; ok {
			reducerBands = append(reducerBands, b)
		}
	}

	id := counter.Next()
	for _, pred := range g.Predecessors(proxy) {
		if !chunk.IsShuffleMapper(pred.Op) {
			continue
		}
		if copied, ok := chunkToCopied[pred.Key]; ok {
			copied.SetExtraParam("analyzer_map_reduce_id", id)
		}
	}

	return subtask.MapReduceInfo{
		MapReduceID:    id,
		ReducerIndexes: reducerIndexes,
		ReducerBands:   reducerBands,
	}
}
