package band

import (
	"fmt"
	"sort"
)

// Operand is the minimal operator surface the Assigner needs; chunk.Operand
// satisfies it without band importing chunk (which would cycle, since
// chunk.Operand.ExpectBand returns *Band).
type Operand interface {
	Key() string
	ExpectBand() *Band
	ExpectWorker() string
}

// Node is the minimal chunk surface the Assigner needs.
type Node interface {
	Key() string
	Op() Operand
	Predecessors() []Node
}

// Assigner maps chunks to (worker, band) honoring affinity, resource
// capacity, and inheritance from predecessors — grounded on spec §4.1 step
// 2 and the capacity-scoring approach of the teacher's
// pkg/scheduler/partitioning/data_split.go (analyzeNodeCapacities /
// calculateCapacityScore), adapted from per-request batch partitioning to
// per-chunk band assignment. The upstream project's own `assigner.py` was
// not part of the grounding material retrieved for this spec, so the exact
// band-inheritance traversal below is an original design satisfying spec
// §4.1 step 2's prose, not a transliteration of a specific source file.
type Assigner struct {
	resources ResourceMap
}

// NewAssigner builds an Assigner over the given band/resource map.
func NewAssigner(resources ResourceMap) *Assigner {
	return &Assigner{resources: resources}
}

// Assign resolves a band for every to-assign operand (start chunks plus
// reassign-worker/reducer chunks), honoring curAssigns (explicit affinity
// or caller-forced placement, keyed by op key) as hard constraints, then
// picks the highest-scoring band by capacity for any operand left
// unresolved. It returns only the to-assign chunks' bands; callers (the
// analyzer) fill in the remaining chunks' bands from their predecessors
// with Propagate, before coloring.
func (a *Assigner) Assign(toAssign []Node, curAssigns map[string]Band) (map[string]Band, error) {
	if len(a.resources) == 0 {
		return nil, fmt.Errorf("band: assigner has no bands to assign to")
	}
	result := make(map[string]Band, len(toAssign))
	bands := a.sortedBandsByCapacity()

	for i, n := range toAssign {
		op := n.Op()
		if forced, ok := curAssigns[op.Key()]; ok {
			result[n.Key()] = forced
			continue
		}
		if eb := op.ExpectBand(); eb != nil {
			result[n.Key()] = *eb
			continue
		}
		if ew := op.ExpectWorker(); ew != "" {
			if b, ok := a.bandForWorker(ew); ok {
				result[n.Key()] = b
				continue
			}
		}
		// No affinity: round-robin over capacity-ranked bands so load
		// spreads across the highest-capacity bands first.
		result[n.Key()] = bands[i%len(bands)]
	}
	return result, nil
}

// Propagate fills in bands for chunks not in the to-assign set, by walking
// the graph in the given topological order and inheriting each chunk's
// band from the first already-assigned predecessor. Chunks with no
// assigned predecessor (isolated start chunks the caller forgot to
// include in toAssign) are left unassigned; the caller should treat that
// as a planning error.
func (a *Assigner) Propagate(order []Node, assigned map[string]Band) error {
	for _, n := range order {
		if _, ok := assigned[n.Key()]; ok {
			continue
		}
		for _, pred := range n.Predecessors() {
			if b, ok := assigned[pred.Key()]; ok {
				assigned[n.Key()] = b
				break
			}
		}
	}
	return nil
}

func (a *Assigner) bandForWorker(worker string) (Band, bool) {
	for _, b := range a.resources {
		if b.Band.Worker != nil && b.Band.Worker.String() == worker {
			return b.Band, true
		}
		if b.Band.Key() == worker {
			return b.Band, true
		}
	}
	return Band{}, false
}

// sortedBandsByCapacity ranks bands by a simple weighted capacity score
// (CPU + memory/1e9 + 2*GPUs), highest first — the same shape of scoring
// data_split.go's calculateCapacityScore uses, trimmed to the dimensions
// Resource carries.
func (a *Assigner) sortedBandsByCapacity() []Band {
	bands := a.resources.Bands()
	sort.Slice(bands, func(i, j int) bool {
		ri, _ := a.resources.Get(bands[i])
		rj, _ := a.resources.Get(bands[j])
		return capacityScore(ri) > capacityScore(rj) || (capacityScore(ri) == capacityScore(rj) && bands[i].Key() < bands[j].Key())
	})
	return bands
}

func capacityScore(r Resource) float64 {
	return r.NumCPUs + r.MemorySize/1e9 + 2*r.GPUs
}
