package analyzer

import "github.com/xorbits-io/xorbits/pkg/chunk"

// fetchCache memoizes the Fetch stub built for each out-of-scope input
// chunk, mirroring _gen_input_chunks's chunk_to_fetch_chunk dict: every
// subtask that needs the same cross-boundary input reuses one stub.
type fetchCache struct {
	byKey map[chunk.Key]*chunk.Chunk
}

func newFetchCache() *fetchCache {
	return &fetchCache{byKey: make(map[chunk.Key]*chunk.Chunk)}
}

// stubFor returns (creating if needed) the Fetch chunk standing in for in.
func (f *fetchCache) stubFor(in *chunk.Chunk, shuffleFetchType ShuffleFetchType) (*chunk.Chunk, error) {
	if cached, ok := f.byKey[in.Key]; ok {
		return cached, nil
	}
	if chunk.IsFetch(in.Op) {
		f.byKey[in.Key] = in
		return in, nil
	}
	if chunk.IsShuffleProxy(in.Op) {
		sp := in.Op.(*chunk.ShuffleProxyOperand)
		reducerIndex := 0
		if shuffleFetchType == ShuffleFetchByIndex {
			// This stub is cached per proxy chunk and shared by every
			// subtask that reads it, so it always carries reducer index
			// 0; nothing later changes it.
		}
		op := chunk.NewShuffleFetchOperand(string(in.Key), sp.NReducers, reducerIndex)
		stub, err := chunk.New(op, nil, 0, nil)
		if err != nil {
			return nil, err
		}
		f.byKey[in.Key] = stub
		return stub, nil
	}
	op := chunk.NewFetchOperand(string(in.Key))
	stub, err := chunk.New(op, nil, 0, nil)
	if err != nil {
		return nil, err
	}
	f.byKey[in.Key] = stub
	return stub, nil
}
