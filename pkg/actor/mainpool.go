package actor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AutoRecoverMode controls what recover_sub_pool rebuilds after a crash.
type AutoRecoverMode int

const (
	AutoRecoverNone AutoRecoverMode = iota
	AutoRecoverProcess
	AutoRecoverActor
)

// killGrace bounds how long KillSubPool's graceful phase waits for a
// subpool process to exit on its own before escalating to a forced kill.
const killGrace = 3 * time.Second

// MainPool supervises every subpool, the Go analogue of MainActorPool: it
// spawns subpool processes, monitors their liveness, and recovers crashed
// ones. Unlike the original there is no separate MainActorPool/
// SubActorPool class split driven by which OS process is "process 0" —
// the main pool here never itself runs user actors, it only owns the
// PoolConfig and the *SubPool process handles.
type MainPool struct {
	config      *ActorPoolConfig
	autoRecover AutoRecoverMode
	startMethod StartMethod
	transport   *Transport

	mu       sync.RWMutex
	subpools map[string]*SubPool // keyed by external address

	monitorInterval time.Duration
	monitorCancel   context.CancelFunc
	monitorDone     chan struct{}
}

// NewMainPool builds a MainPool around an already-populated ActorPoolConfig.
// The process-start strategy defaults to StartMethodSpawn; call
// SetStartMethod to honor a configured POOL_START_METHOD.
func NewMainPool(config *ActorPoolConfig, autoRecover AutoRecoverMode) *MainPool {
	return &MainPool{
		config:          config,
		autoRecover:     autoRecover,
		startMethod:     StartMethodSpawn,
		transport:       NewTransport(nil),
		subpools:        make(map[string]*SubPool),
		monitorInterval: 2 * time.Second,
	}
}

// SetStartMethod overrides the process-start strategy used when launching
// a subpool at initial start. RecoverSubPool ignores it and always uses
// Spawn (see StartMethod).
func (p *MainPool) SetStartMethod(m StartMethod) {
	p.startMethod = m
}

// Send dispatches msg to the actor id hosted at address: a direct call to
// this MainPool's own SubPool handle when it runs the subpool at address,
// otherwise a remote call over Transport to whichever process does — the
// single entry point a caller uses regardless of where the target actor
// actually lives. Every subpool is now its own OS process reached over
// Transport either way; the local branch just reuses the SubPool's own
// transport connection instead of dialing through p.transport again.
func (p *MainPool) Send(ctx context.Context, address string, id ActorID, msg any) (any, error) {
	if sp, ok := p.SubPool(address); ok {
		return sp.Send(ctx, id, msg)
	}
	return p.transport.Send(ctx, address, id, msg)
}

// StartSubPool launches one subpool's OS process and blocks until it
// reports ready, mirroring start_sub_pool's status-queue handoff.
func (p *MainPool) StartSubPool(ctx context.Context, processIndex int) (*SubPool, error) {
	pc, err := p.config.GetPoolConfig(processIndex)
	if err != nil {
		return nil, fmt.Errorf("actor: start sub pool: %w", err)
	}
	sp, err := NewSubPool(pc, p.startMethod)
	if err != nil {
		return nil, fmt.Errorf("actor: start sub pool %d: %w", processIndex, err)
	}
	if err := sp.Start(ctx); err != nil {
		return nil, fmt.Errorf("actor: start sub pool %d: %w", processIndex, err)
	}

	p.mu.Lock()
	p.subpools[pc.ExternalAddress[0]] = sp
	p.mu.Unlock()
	return sp, nil
}

// StartSubPools launches every configured subpool concurrently and waits
// for all of them, mirroring MainActorPool.start's gather over
// start_sub_pool coroutines.
func (p *MainPool) StartSubPools(ctx context.Context) error {
	indexes := p.config.ProcessIndexes()
	errCh := make(chan error, len(indexes))
	var wg sync.WaitGroup
	for _, idx := range indexes {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := p.StartSubPool(ctx, idx)
			errCh <- err
		}(idx)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Start launches every subpool then the health monitor, mirroring
// MainActorPool.start's super().start() + start_monitor() sequence.
func (p *MainPool) Start(ctx context.Context) error {
	if err := p.StartSubPools(ctx); err != nil {
		return err
	}
	p.startMonitor(ctx)
	return nil
}

// SubPool looks up a running subpool by its external address.
func (p *MainPool) SubPool(address string) (*SubPool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sp, ok := p.subpools[address]
	return sp, ok
}

// SubPools returns every locally-running subpool, keyed by external address
// — used by the introspection HTTP surface to report pool health without
// reaching into MainPool's internal map directly.
func (p *MainPool) SubPools() map[string]*SubPool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]*SubPool, len(p.subpools))
	for addr, sp := range p.subpools {
		out[addr] = sp
	}
	return out
}

// IsSubPoolAlive reports liveness for the subpool at address, the Go
// analogue of is_sub_pool_alive.
func (p *MainPool) IsSubPoolAlive(address string) bool {
	sp, ok := p.SubPool(address)
	return ok && sp.IsAlive()
}

// KillSubPool stops the subpool process at address according to mode.
// KillModeGraceful signals os.Interrupt and waits up to killGrace before
// escalating to a forced kill; KillModeForced skips straight to the
// forced kill — the two named points on kill_sub_pool's SIGINT-then-
// terminate escalation scale.
func (p *MainPool) KillSubPool(ctx context.Context, address string, mode KillMode) error {
	sp, ok := p.SubPool(address)
	if !ok {
		return fmt.Errorf("actor: no subpool at %s", address)
	}

	if mode == KillModeGraceful {
		grace, cancel := context.WithTimeout(ctx, killGrace)
		err := sp.Stop(grace)
		cancel()
		if err != nil {
			if killErr := sp.Kill(); killErr != nil {
				return killErr
			}
		}
	} else if err := sp.Kill(); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.subpools, address)
	p.mu.Unlock()
	return nil
}

// RecoverSubPool rebuilds the subpool at address from scratch, always
// restarting fresh rather than trying to resume in place — recover_sub_pool
// always uses the "spawn" start method for the same reason, regardless of
// how the original subpool was started or how MainPool is configured. If
// AutoRecoverActor is configured, every actor previously hosted there is
// recreated on the replacement.
func (p *MainPool) RecoverSubPool(ctx context.Context, address string) error {
	p.mu.RLock()
	old, ok := p.subpools[address]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("actor: no subpool at %s", address)
	}

	var toRecreate []CreateActorRequest
	if p.autoRecover == AutoRecoverActor {
		var err error
		toRecreate, err = old.Recreate()
		if err != nil {
			return fmt.Errorf("actor: recover sub pool %s: %w", address, err)
		}
	}

	idx, err := p.config.ProcessIndex(address)
	if err != nil {
		return fmt.Errorf("actor: recover sub pool %s: %w", address, err)
	}

	_ = old.Kill()

	pc, err := p.config.GetPoolConfig(idx)
	if err != nil {
		return fmt.Errorf("actor: recover sub pool %s: %w", address, err)
	}
	sp, err := NewSubPool(pc, StartMethodSpawn)
	if err != nil {
		return fmt.Errorf("actor: recover sub pool %s: %w", address, err)
	}
	if err := sp.Start(ctx); err != nil {
		return fmt.Errorf("actor: recover sub pool %s: %w", address, err)
	}
	p.mu.Lock()
	p.subpools[address] = sp
	p.mu.Unlock()

	for _, req := range toRecreate {
		if err := sp.CreateActor(req.ID, req.TypeName, req.Params); err != nil {
			return fmt.Errorf("actor: recover sub pool %s: recreate actor %s: %w", address, req.ID, err)
		}
	}
	return nil
}

// startMonitor launches the background goroutine that watches every
// subpool's liveness and recovers dead ones when auto-recovery is enabled,
// the Go analogue of MainActorPool.start_monitor's periodic liveness loop.
func (p *MainPool) startMonitor(ctx context.Context) {
	monCtx, cancel := context.WithCancel(ctx)
	p.monitorCancel = cancel
	p.monitorDone = make(chan struct{})
	go func() {
		defer close(p.monitorDone)
		ticker := time.NewTicker(p.monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-monCtx.Done():
				return
			case <-ticker.C:
				p.checkSubPools(monCtx)
			}
		}
	}()
}

func (p *MainPool) checkSubPools(ctx context.Context) {
	p.mu.RLock()
	addrs := make([]string, 0, len(p.subpools))
	for addr := range p.subpools {
		addrs = append(addrs, addr)
	}
	p.mu.RUnlock()

	for _, addr := range addrs {
		if p.IsSubPoolAlive(addr) {
			continue
		}
		if p.autoRecover == AutoRecoverNone {
			continue
		}
		_ = p.RecoverSubPool(ctx, addr)
	}
}

// Stop stops the monitor and every subpool, gracefully.
func (p *MainPool) Stop(ctx context.Context) error {
	if p.monitorCancel != nil {
		p.monitorCancel()
		<-p.monitorDone
	}
	p.mu.RLock()
	addrs := make([]string, 0, len(p.subpools))
	for addr := range p.subpools {
		addrs = append(addrs, addr)
	}
	p.mu.RUnlock()

	var firstErr error
	for _, addr := range addrs {
		if err := p.KillSubPool(ctx, addr, KillModeGraceful); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = p.transport.Close()
	return firstErr
}
