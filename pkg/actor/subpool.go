package actor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// SubPoolStatus mirrors SubpoolStatus: the last-known liveness state of one
// subpool, tracked by the main pool's monitor loop.
type SubPoolStatus int

const (
	SubPoolStatusUnknown SubPoolStatus = iota
	SubPoolStatusStarting
	SubPoolStatusRunning
	SubPoolStatusStopped
)

// subPoolReadyTimeout bounds how long Start waits for a freshly spawned
// subpool process to bind its listener before giving up.
const subPoolReadyTimeout = 10 * time.Second

// SubPool is the Go analogue of SubActorPool: each subpool is a dedicated
// OS process, started via os/exec, running its own cooperative loop
// (see Host/RunWorker in worker.go) and reachable over the gob Transport
// bound to its internal address. SubPool itself is the main pool's handle
// to that process: it owns the *exec.Cmd, observes the process's exit for
// liveness, and forwards CreateActor/Send calls across the process
// boundary instead of running actors in-process.
type SubPool struct {
	processIndex    int
	label           string
	internalAddress string
	externalAddress string
	startMethod     StartMethod

	transport *Transport

	mu       sync.RWMutex
	recreate []CreateActorRequest // recorded for auto-recover == "actor"

	status  atomic.Int32
	exitErr atomic.Value // error

	cmd  *exec.Cmd
	done chan struct{}
}

// NewSubPool constructs a subpool handle from its PoolConfig. The process
// is not spawned yet; call Start to launch it.
func NewSubPool(pc PoolConfig, startMethod StartMethod) (*SubPool, error) {
	sp := &SubPool{
		processIndex:    pc.ProcessIndex,
		label:           pc.Label,
		internalAddress: pc.InternalAddress,
		externalAddress: pc.ExternalAddress[0],
		startMethod:     startMethod,
		transport:       NewTransport(nil),
	}
	sp.status.Store(int32(SubPoolStatusUnknown))
	return sp, nil
}

// Start spawns the subpool's OS process via os/exec — re-executing the
// current binary with XORBITS_SUBPOOL_WORKER_CONFIG set, which
// ReexecIfWorker (called at the top of main) detects and turns into a
// RunWorker call instead of the normal node startup path — then waits for
// its listener to accept connections before returning. A background
// goroutine watches the process's exit for genuine crash/OS-kill
// detection: IsAlive stops reporting true the instant the process dies,
// not only when this goroutine happens to notice.
func (sp *SubPool) Start(ctx context.Context) error {
	sp.startMethod.effective()

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("actor: resolve executable for subpool %d: %w", sp.processIndex, err)
	}

	envVal, err := marshalWorkerConfig(WorkerConfig{
		ProcessIndex:    sp.processIndex,
		Label:           sp.label,
		InternalAddress: sp.internalAddress,
	})
	if err != nil {
		return err
	}

	cmd := exec.Command(execPath)
	cmd.Env = append(os.Environ(), workerConfigEnv+"="+envVal)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	sp.status.Store(int32(SubPoolStatusStarting))
	if err := cmd.Start(); err != nil {
		sp.status.Store(int32(SubPoolStatusStopped))
		return fmt.Errorf("actor: spawn subpool %d: %w", sp.processIndex, err)
	}

	sp.cmd = cmd
	sp.done = make(chan struct{})
	go func() {
		waitErr := cmd.Wait()
		sp.exitErr.Store(waitErr)
		sp.status.Store(int32(SubPoolStatusStopped))
		_ = sp.transport.Close()
		close(sp.done)
	}()

	if err := sp.waitReady(ctx); err != nil {
		_ = sp.Kill()
		return err
	}
	sp.status.Store(int32(SubPoolStatusRunning))
	return nil
}

// waitReady polls the subpool's internal address until it accepts a
// connection, the process exits first, or subPoolReadyTimeout elapses —
// mirroring wait_sub_pools_ready's "block until every subprocess reports
// ready" handshake without a dedicated status queue.
func (sp *SubPool) waitReady(ctx context.Context) error {
	network, addr := dialNetwork(sp.internalAddress)
	deadline := time.Now().Add(subPoolReadyTimeout)
	for {
		select {
		case <-sp.done:
			if exitErr, _ := sp.exitErr.Load().(error); exitErr != nil {
				return fmt.Errorf("actor: subpool %d exited before becoming ready: %w", sp.processIndex, exitErr)
			}
			return fmt.Errorf("actor: subpool %d exited before becoming ready", sp.processIndex)
		default:
		}

		conn, dialErr := net.DialTimeout(network, addr, 200*time.Millisecond)
		if dialErr == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("actor: subpool %d did not become ready within %s: %w", sp.processIndex, subPoolReadyTimeout, dialErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// CreateActor asks the subpool process to build typeName (looked up via
// RegisterActorFactory) and host it under id. The request is recorded so
// RecoverSubPool can replay it against a freshly spawned replacement.
func (sp *SubPool) CreateActor(id ActorID, typeName string, params []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), subPoolReadyTimeout)
	defer cancel()
	if _, err := sp.transport.Send(ctx, sp.internalAddress, id, workerCreateActor{TypeName: typeName, Params: params}); err != nil {
		return fmt.Errorf("actor: create actor %q on subpool %d: %w", id, sp.processIndex, err)
	}
	sp.mu.Lock()
	sp.recreate = append(sp.recreate, CreateActorRequest{ID: id, TypeName: typeName, Params: params})
	sp.mu.Unlock()
	return nil
}

// Send dispatches msg to the named actor over the subpool's transport and
// blocks for its reply — the analogue of sending an xoscar tell/call
// message into a subprocess mailbox.
func (sp *SubPool) Send(ctx context.Context, id ActorID, msg any) (any, error) {
	return sp.transport.Send(ctx, sp.internalAddress, id, msg)
}

// IsAlive reports whether the subpool's OS process is still running, the
// Go analogue of is_sub_pool_alive's process.is_alive() check. Because
// Start's goroutine observes cmd.Wait directly, this reflects a genuine
// crash or OS kill the instant it happens, not merely a graceful Stop.
func (sp *SubPool) IsAlive() bool {
	return SubPoolStatus(sp.status.Load()) == SubPoolStatusRunning
}

// Status returns the subpool's last-known liveness state.
func (sp *SubPool) Status() SubPoolStatus {
	return SubPoolStatus(sp.status.Load())
}

// ProcessIndex returns the subpool's configured process index.
func (sp *SubPool) ProcessIndex() int { return sp.processIndex }

// Label returns the subpool's configured label.
func (sp *SubPool) Label() string { return sp.label }

// ExternalAddress returns the subpool's primary external address.
func (sp *SubPool) ExternalAddress() string { return sp.externalAddress }

// ActorCount returns the number of CreateActor calls this subpool's
// current process has accepted. There is no cheap local count once actors
// live in a separate process; this tracks requests accepted rather than
// round-tripping a count query per call, which matches how the original
// handle is used (introspection/debug, not billing-grade precision).
func (sp *SubPool) ActorCount() int {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return len(sp.recreate)
}

// String renders the status as its lowercase name, for JSON/log output.
func (s SubPoolStatus) String() string {
	switch s {
	case SubPoolStatusStarting:
		return "starting"
	case SubPoolStatusRunning:
		return "running"
	case SubPoolStatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stop asks the subpool process to exit by signaling it with os.Interrupt
// (the closest portable equivalent of SIGINT) and waits up to ctx's
// deadline for it to exit on its own — the graceful half of
// kill_sub_pool's SIGINT-then-terminate escalation. Callers needing the
// forced half call Kill once Stop's context expires.
func (sp *SubPool) Stop(ctx context.Context) error {
	if sp.cmd == nil || sp.cmd.Process == nil {
		return nil
	}
	if err := sp.cmd.Process.Signal(os.Interrupt); err != nil {
		log.WithError(err).WithField("process_index", sp.processIndex).Warn("actor: signal subpool for graceful stop")
	}
	select {
	case <-sp.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("actor: subpool %d did not stop gracefully: %w", sp.processIndex, ctx.Err())
	}
}

// Kill forces the subpool process to exit immediately, without waiting for
// it to clean up — the forced half of kill_sub_pool's escalation, used
// once Stop's grace window is exhausted or when KillMode is explicitly
// Forced.
func (sp *SubPool) Kill() error {
	if sp.cmd == nil || sp.cmd.Process == nil {
		return nil
	}
	if err := sp.cmd.Process.Kill(); err != nil && sp.Status() != SubPoolStatusStopped {
		return fmt.Errorf("actor: kill subpool %d: %w", sp.processIndex, err)
	}
	if sp.done != nil {
		<-sp.done
	}
	return nil
}

// Recreate returns a copy of every CreateActor request recorded for this
// subpool; RecoverSubPool replays them onto the freshly started
// replacement, the Go analogue of recover_sub_pool's
// auto_recover == "actor" path.
func (sp *SubPool) Recreate() ([]CreateActorRequest, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	out := make([]CreateActorRequest, len(sp.recreate))
	copy(out, sp.recreate)
	return out, nil
}
