// Package actor implements the Actor Pool: a main pool process that
// supervises a set of labeled subpool processes, each running its own
// cooperative event loop, dispatching messages by address and allocation
// strategy.
//
// Grounded in full on
// _examples/original_source/python/xorbits/_mars/oscar/backends/config.py
// (ActorPoolConfig) and
// _examples/original_source/python/xorbits/_mars/oscar/backends/mars/pool.py
// (MainActorPool, SubActorPool).
package actor

import (
	"fmt"
	"sort"
	"sync"
)

// PoolConfig is one subpool's launch configuration, mirroring
// ActorPoolConfig.add_pool_conf's per-process record.
type PoolConfig struct {
	ProcessIndex    int
	Label           string
	InternalAddress string
	ExternalAddress []string
	Env             map[string]string
	Modules         []string
	SuspendSigint   bool
	Kwargs          map[string]any
}

// ActorPoolConfig is the shared configuration every subpool and the main
// pool consult to resolve addresses, labels, and metric/comm settings —
// the Go analogue of oscar.backends.config.ActorPoolConfig, using a
// struct-of-maps instead of a single untyped dict since Go has no
// equivalent of Python's permissive nested-dict config idiom.
type ActorPoolConfig struct {
	mu      sync.RWMutex
	pools   map[int]*PoolConfig
	mapping map[string]string // external address -> internal address
	metrics map[string]any
	comm    map[string]any
}

// NewActorPoolConfig builds an empty ActorPoolConfig.
func NewActorPoolConfig() *ActorPoolConfig {
	return &ActorPoolConfig{
		pools:   make(map[int]*PoolConfig),
		mapping: make(map[string]string),
		metrics: make(map[string]any),
		comm:    make(map[string]any),
	}
}

// NPool reports how many subpools are registered.
func (c *ActorPoolConfig) NPool() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools)
}

// AddPoolConfig registers a subpool, mirroring add_pool_conf.
func (c *ActorPoolConfig) AddPoolConfig(pc PoolConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(pc.ExternalAddress) == 0 {
		pc.ExternalAddress = []string{pc.InternalAddress}
	}
	cp := pc
	c.pools[pc.ProcessIndex] = &cp
	for _, addr := range cp.ExternalAddress {
		c.mapping[addr] = cp.InternalAddress
	}
}

// GetPoolConfig returns the registered config for a process index.
func (c *ActorPoolConfig) GetPoolConfig(processIndex int) (PoolConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pc, ok := c.pools[processIndex]
	if !ok {
		return PoolConfig{}, fmt.Errorf("actor: no pool config for process index %d", processIndex)
	}
	return *pc, nil
}

// ExternalAddress returns the primary external address of a subpool.
func (c *ActorPoolConfig) ExternalAddress(processIndex int) (string, error) {
	pc, err := c.GetPoolConfig(processIndex)
	if err != nil {
		return "", err
	}
	return pc.ExternalAddress[0], nil
}

// ProcessIndexes returns every registered process index.
func (c *ActorPoolConfig) ProcessIndexes() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, 0, len(c.pools))
	for idx := range c.pools {
		out = append(out, idx)
	}
	return out
}

// ProcessIndex resolves the process index owning externalAddress.
func (c *ActorPoolConfig) ProcessIndex(externalAddress string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for idx, pc := range c.pools {
		for _, addr := range pc.ExternalAddress {
			if addr == externalAddress {
				return idx, nil
			}
		}
	}
	return 0, fmt.Errorf("actor: cannot get process index for %s", externalAddress)
}

// ResetPoolExternalAddress rebinds a subpool's external address(es) —
// exercised when a subpool is recovered after a crash and comes back
// bound to a fresh socket/port, mirroring reset_pool_external_address.
// SUPPLEMENTED: the original's Windows-only internal==external aliasing
// note is preserved as the fallback branch below, generalized to any
// platform where InternalAddress derivation falls back to a loopback TCP
// address (see address.go).
func (c *ActorPoolConfig) ResetPoolExternalAddress(processIndex int, externalAddress []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pools[processIndex]
	if !ok {
		return fmt.Errorf("actor: no pool config for process index %d", processIndex)
	}
	internalAddress := pc.InternalAddress
	for _, addr := range pc.ExternalAddress {
		if internalAddress == addr {
			internalAddress = externalAddress[0]
		}
		delete(c.mapping, addr)
	}
	pc.ExternalAddress = externalAddress
	for _, addr := range externalAddress {
		c.mapping[addr] = internalAddress
	}
	return nil
}

// ExternalAddressesForLabel returns every subpool's primary external
// address, optionally filtered to one label — the Go analogue of
// get_external_addresses(label=...), exercised by the allocator when
// resolving "any idle worker in this label" placements.
func (c *ActorPoolConfig) ExternalAddressesForLabel(label string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, pc := range c.pools {
		if label == "" || pc.Label == label {
			out = append(out, pc.ExternalAddress[0])
		}
	}
	return out
}

// ExternalToInternalAddressMap returns the full external->internal mapping.
func (c *ActorPoolConfig) ExternalToInternalAddressMap() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.mapping))
	for k, v := range c.mapping {
		out[k] = v
	}
	return out
}

// AddMetricConfigs merges metric configuration, mirroring add_metric_configs.
func (c *ActorPoolConfig) AddMetricConfigs(metrics map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range metrics {
		c.metrics[k] = v
	}
}

// MetricConfigs returns the current metric configuration.
func (c *ActorPoolConfig) MetricConfigs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metrics))
	for k, v := range c.metrics {
		out[k] = v
	}
	return out
}

// Pools returns a snapshot of every registered subpool's PoolConfig, sorted
// by process index — used by pkg/consensus to replicate the actor pool
// layout across a Raft cluster without exposing the internal maps
// directly.
func (c *ActorPoolConfig) Pools() []PoolConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PoolConfig, 0, len(c.pools))
	for _, pc := range c.pools {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessIndex < out[j].ProcessIndex })
	return out
}

// ReplacePools replaces the entire pool layout with pools, rebuilding the
// external->internal address mapping — the inverse of Pools, used to apply
// a Raft-replicated snapshot on a follower.
func (c *ActorPoolConfig) ReplacePools(pools []PoolConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools = make(map[int]*PoolConfig, len(pools))
	c.mapping = make(map[string]string)
	for _, pc := range pools {
		cp := pc
		if len(cp.ExternalAddress) == 0 {
			cp.ExternalAddress = []string{cp.InternalAddress}
		}
		c.pools[cp.ProcessIndex] = &cp
		for _, addr := range cp.ExternalAddress {
			c.mapping[addr] = cp.InternalAddress
		}
	}
}

// AddCommConfig merges communication configuration, mirroring add_comm_config.
func (c *ActorPoolConfig) AddCommConfig(comm map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range comm {
		c.comm[k] = v
	}
}

// CommConfig returns the current communication configuration.
func (c *ActorPoolConfig) CommConfig() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.comm))
	for k, v := range c.comm {
		out[k] = v
	}
	return out
}
