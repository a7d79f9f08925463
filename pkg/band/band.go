// Package band defines the smallest scheduling unit: a (worker, resource-lane)
// pair, plus the resource map the Assigner plans against.
package band

import (
	"fmt"

	"github.com/multiformats/go-multiaddr"
)

// Band is a (worker-address, resource-lane-name) pair, e.g.
// ("/ip4/10.0.0.2/tcp/9001", "numa-0").
type Band struct {
	Worker multiaddr.Multiaddr
	Lane   string
}

// New builds a Band from a worker multiaddr string and a lane name.
func New(workerAddr, lane string) (Band, error) {
	ma, err := multiaddr.NewMultiaddr(workerAddr)
	if err != nil {
		return Band{}, fmt.Errorf("band: parse worker address %q: %w", workerAddr, err)
	}
	return Band{Worker: ma, Lane: lane}, nil
}

// MustNew is New but panics on error; intended for tests and static config.
func MustNew(workerAddr, lane string) Band {
	b, err := New(workerAddr, lane)
	if err != nil {
		panic(err)
	}
	return b
}

// Key returns a comparable string form, usable as a map key independent of
// multiaddr.Multiaddr's interface identity.
func (b Band) Key() string {
	worker := ""
	if b.Worker != nil {
		worker = b.Worker.String()
	}
	return worker + "|" + b.Lane
}

func (b Band) String() string {
	return b.Key()
}

// Resource describes the capacity of a Band along the dimensions the
// Assigner scores against.
type Resource struct {
	NumCPUs    float64
	MemorySize float64
	// GPUs is optional, left at 0 for CPU-only bands.
	GPUs float64
}

// ResourceMap maps every schedulable Band to its advertised Resource.
type ResourceMap map[string]bandResource

type bandResource struct {
	Band     Band
	Resource Resource
}

// NewResourceMap builds an empty ResourceMap.
func NewResourceMap() ResourceMap {
	return make(ResourceMap)
}

// Set records the resource for a band, keyed by Band.Key().
func (m ResourceMap) Set(b Band, r Resource) {
	m[b.Key()] = bandResource{Band: b, Resource: r}
}

// Get returns the resource registered for a band and whether it was found.
func (m ResourceMap) Get(b Band) (Resource, bool) {
	br, ok := m[b.Key()]
	return br.Resource, ok
}

// Bands returns every band present in the map, in unspecified order.
func (m ResourceMap) Bands() []Band {
	out := make([]Band, 0, len(m))
	for _, br := range m {
		out = append(out, br.Band)
	}
	return out
}
