package actor

import (
	"fmt"
	"math/rand"
)

// AllocateStrategy picks which subpool a new actor should land on.
// Supplemented relative to the original: Oscar leaves placement to the
// caller via an explicit address argument, but the placement choices it
// supports (pin to main, pin to a process index, random within a label,
// first idle within a label) are spread across call sites; collecting them
// behind one interface gives pkg/band's Assigner a uniform target to drive.
type AllocateStrategy interface {
	Allocate(cfg *ActorPoolConfig, pool *MainPool) (string, error)
}

// MainPoolStrategy always targets the main pool's own address (process
// index 0), mirroring the default MainActorPool.allocate_from_main.
type MainPoolStrategy struct{}

func (MainPoolStrategy) Allocate(cfg *ActorPoolConfig, _ *MainPool) (string, error) {
	return cfg.ExternalAddress(0)
}

// ProcessIndexStrategy pins placement to a specific process index.
type ProcessIndexStrategy struct {
	ProcessIndex int
}

func (s ProcessIndexStrategy) Allocate(cfg *ActorPoolConfig, _ *MainPool) (string, error) {
	return cfg.ExternalAddress(s.ProcessIndex)
}

// RandomSubPoolStrategy picks uniformly at random among every subpool
// carrying Label (or every subpool, when Label is empty).
type RandomSubPoolStrategy struct {
	Label string
}

func (s RandomSubPoolStrategy) Allocate(cfg *ActorPoolConfig, _ *MainPool) (string, error) {
	candidates := cfg.ExternalAddressesForLabel(s.Label)
	if len(candidates) == 0 {
		return "", fmt.Errorf("actor: no subpools with label %q", s.Label)
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// IdleLabelStrategy picks the first live, currently-actor-free subpool
// carrying Label, falling back to RandomSubPoolStrategy when every
// candidate already hosts at least one actor.
type IdleLabelStrategy struct {
	Label string
}

func (s IdleLabelStrategy) Allocate(cfg *ActorPoolConfig, pool *MainPool) (string, error) {
	candidates := cfg.ExternalAddressesForLabel(s.Label)
	if len(candidates) == 0 {
		return "", fmt.Errorf("actor: no subpools with label %q", s.Label)
	}
	for _, addr := range candidates {
		sp, ok := pool.SubPool(addr)
		if !ok || !sp.IsAlive() {
			continue
		}
		idle := sp.ActorCount() == 0
		if idle {
			return addr, nil
		}
	}
	return RandomSubPoolStrategy{Label: s.Label}.Allocate(cfg, pool)
}
