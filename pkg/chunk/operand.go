package chunk

import "github.com/xorbits-io/xorbits/pkg/band"

// Stage marks which half of a shuffle a MapReduceOperand belongs to.
type Stage int

const (
	StageNone Stage = iota
	StageMap
	StageReduce
)

// Operand is the tagged-union computation that produces a Chunk's data.
// Concrete kinds: FetchOperand, VirtualOperand, MapReduceOperand,
// ShuffleProxyOperand, UserOperand.
type Operand interface {
	// Key is the operator's own content-addressed identity, stable across
	// Copy: two operands with the same Key represent "the same operation".
	Key() string
	Retryable() bool
	Priority() *int
	ExpectBand() *band.Band
	ExpectWorker() string
	ReassignWorker() bool
	// Copy returns a deep copy of the operand with the same Key, suitable
	// for rewiring into a subtask's inner chunk graph.
	Copy() Operand
}

// baseOp carries the fields shared by every concrete operand kind.
type baseOp struct {
	key            string
	retryable      bool
	priority       *int
	expectBand     *band.Band
	expectWorker   string
	reassignWorker bool
}

func (b baseOp) Key() string             { return b.key }
func (b baseOp) Retryable() bool         { return b.retryable }
func (b baseOp) Priority() *int          { return b.priority }
func (b baseOp) ExpectBand() *band.Band  { return b.expectBand }
func (b baseOp) ExpectWorker() string    { return b.expectWorker }
func (b baseOp) ReassignWorker() bool    { return b.reassignWorker }

// FetchOperand is a placeholder standing in for a chunk produced by another
// subtask; it is never colored and never contributes to fusion.
type FetchOperand struct {
	baseOp
	// SourceKey is the key of the chunk being fetched.
	SourceKey string
	// Shuffle, when true, means this is a build_fetch_shuffle stub.
	Shuffle      bool
	NReducers    int
	ReducerIndex int
}

func NewFetchOperand(sourceKey string) *FetchOperand {
	return &FetchOperand{baseOp: baseOp{key: "fetch:" + sourceKey, retryable: true}, SourceKey: sourceKey}
}

func NewShuffleFetchOperand(sourceKey string, nReducers, reducerIndex int) *FetchOperand {
	return &FetchOperand{
		baseOp:       baseOp{key: "fetch-shuffle:" + sourceKey, retryable: true},
		SourceKey:    sourceKey,
		Shuffle:      true,
		NReducers:    nReducers,
		ReducerIndex: reducerIndex,
	}
}

func (f *FetchOperand) Copy() Operand {
	cp := *f
	return &cp
}

// VirtualOperand marks an operand that does not itself execute but exists to
// express a scheduling constraint. At most one may appear per subtask.
type VirtualOperand struct {
	baseOp
	Kind string
}

// NewVirtualOperand builds a scheduling-constraint marker operand; kind is
// an opaque label (e.g. "barrier") the caller assigns meaning to.
func NewVirtualOperand(key, kind string) *VirtualOperand {
	return &VirtualOperand{baseOp: baseOp{key: key, retryable: true}, Kind: kind}
}

func (v *VirtualOperand) Copy() Operand {
	cp := *v
	return &cp
}

// MapReduceOperand is either the map or reduce half of a shuffle.
type MapReduceOperand struct {
	baseOp
	StageVal     Stage
	IsMapper     bool
	ReducerIndex int
}

// NewMapReduceOperand builds one half of a shuffle: stage selects map or
// reduce, and reducerIndex is the partition index (ignored for the map
// stage).
func NewMapReduceOperand(key string, stage Stage, reducerIndex int) *MapReduceOperand {
	return &MapReduceOperand{
		baseOp:       baseOp{key: key, retryable: true},
		StageVal:     stage,
		IsMapper:     stage == StageMap,
		ReducerIndex: reducerIndex,
	}
}

func (m *MapReduceOperand) Copy() Operand {
	cp := *m
	return &cp
}

// ShuffleProxyOperand is the synthetic chunk marking a map->reduce boundary.
type ShuffleProxyOperand struct {
	baseOp
	NReducers int
}

// NewShuffleProxyOperand builds the synthetic chunk separating a shuffle's
// mappers from its reducers; nReducers is the partition count reducers are
// indexed over.
func NewShuffleProxyOperand(key string, nReducers int) *ShuffleProxyOperand {
	return &ShuffleProxyOperand{baseOp: baseOp{key: key, retryable: true}, NReducers: nReducers}
}

func (s *ShuffleProxyOperand) Copy() Operand {
	cp := *s
	return &cp
}

// UserOperand is an opaque, externally-defined computation: the stand-in for
// the (out of scope) dataframe/tensor operator library. Params carries
// whatever shape/index metadata the caller needs; the core treats it as
// opaque.
type UserOperand struct {
	baseOp
	Opcode string
	Params map[string]any
}

func NewUserOperand(key, opcode string, params map[string]any) *UserOperand {
	return &UserOperand{
		baseOp: baseOp{key: key, retryable: true},
		Opcode: opcode,
		Params: params,
	}
}

func (u *UserOperand) WithPriority(p int) *UserOperand {
	u.priority = &p
	return u
}

func (u *UserOperand) WithExpectBand(b band.Band) *UserOperand {
	u.expectBand = &b
	return u
}

func (u *UserOperand) WithExpectWorker(w string) *UserOperand {
	u.expectWorker = w
	return u
}

func (u *UserOperand) WithReassignWorker(v bool) *UserOperand {
	u.reassignWorker = v
	return u
}

func (u *UserOperand) WithRetryable(v bool) *UserOperand {
	u.retryable = v
	return u
}

func (u *UserOperand) Copy() Operand {
	cp := *u
	params := make(map[string]any, len(u.Params))
	for k, v := range u.Params {
		params[k] = v
	}
	cp.Params = params
	return &cp
}

// IsFetch reports whether op is a (possibly shuffle) fetch stub.
func IsFetch(op Operand) bool {
	_, ok := op.(*FetchOperand)
	return ok
}

// IsVirtual reports whether op is a virtual operand.
func IsVirtual(op Operand) bool {
	_, ok := op.(*VirtualOperand)
	return ok
}

// IsShuffleProxy reports whether op marks a shuffle map->reduce boundary.
func IsShuffleProxy(op Operand) bool {
	_, ok := op.(*ShuffleProxyOperand)
	return ok
}

// IsShuffleMapper reports whether op is the mapper half of a shuffle.
func IsShuffleMapper(op Operand) bool {
	mr, ok := op.(*MapReduceOperand)
	return ok && (mr.StageVal == StageMap || mr.IsMapper)
}

// IsShuffleReducer reports whether op is the reducer half of a shuffle.
func IsShuffleReducer(op Operand) bool {
	mr, ok := op.(*MapReduceOperand)
	return ok && mr.StageVal == StageReduce
}

// NeedsReassignWorker mirrors need_reassign_worker from the original
// analyzer: true for operands explicitly marked, or reduce-stage operands,
// which must be (re)assigned a band during start-chunk assignment even
// though they are not graph sources.
func NeedsReassignWorker(op Operand) bool {
	if op.ReassignWorker() {
		return true
	}
	return IsShuffleReducer(op)
}
