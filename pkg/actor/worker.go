package actor

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joeycumines/go-utilpkg/eventloop"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "actor")

func init() {
	gob.Register(workerCreateActor{})
	gob.Register(workerCreated{})
}

// workerCreateActor is the wire message SubPool.CreateActor sends a worker
// process to build and register an actor, piggybacked through the same
// sendRequest envelope Transport.Send already uses for ordinary messages —
// Host.Dispatch special-cases it rather than Serve growing a second RPC.
type workerCreateActor struct {
	TypeName string
	Params   []byte
}

// workerCreated acknowledges a workerCreateActor request.
type workerCreated struct{}

// Host is the actor table one subpool worker process runs: one per OS
// process, driven by a single eventloop.Loop so no two actors in this
// process ever race each other's state.
type Host struct {
	mu     sync.RWMutex
	actors map[ActorID]Actor
	loop   *eventloop.Loop
}

// NewHost builds an empty actor table backed by a fresh cooperative loop.
func NewHost() (*Host, error) {
	loop, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("actor: new host loop: %w", err)
	}
	return &Host{actors: make(map[ActorID]Actor), loop: loop}, nil
}

// CreateActor builds typeName via its registered ActorFactory and hosts it
// under id, running the construction on the host's own loop goroutine.
func (h *Host) CreateActor(id ActorID, typeName string, params []byte) error {
	errCh := make(chan error, 1)
	err := h.loop.Submit(eventloop.Task{Runnable: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, exists := h.actors[id]; exists {
			errCh <- fmt.Errorf("actor: id %q already exists in this subpool", id)
			return
		}
		a, berr := buildActor(typeName, params)
		if berr != nil {
			errCh <- berr
			return
		}
		h.actors[id] = a
		errCh <- nil
	}})
	if err != nil {
		return fmt.Errorf("actor: submit create-actor: %w", err)
	}
	return <-errCh
}

// ActorCount returns the number of actors currently hosted.
func (h *Host) ActorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors)
}

// Dispatch is the Serve callback a worker process runs: it routes a
// workerCreateActor to CreateActor and everything else to the named
// actor's Receive, on the host's loop goroutine. A panicking Receive is
// recovered and reported as an error rather than taking the rest of the
// worker process's actors down with it.
func (h *Host) Dispatch(ctx context.Context, id ActorID, msg any) (any, error) {
	if ca, ok := msg.(workerCreateActor); ok {
		if err := h.CreateActor(id, ca.TypeName, ca.Params); err != nil {
			return nil, err
		}
		return workerCreated{}, nil
	}

	type result struct {
		val any
		err error
	}
	resCh := make(chan result, 1)
	submitErr := h.loop.Submit(eventloop.Task{Runnable: func() {
		h.mu.RLock()
		a, ok := h.actors[id]
		h.mu.RUnlock()
		if !ok {
			resCh <- result{err: fmt.Errorf("actor: no actor %q in this subpool", id)}
			return
		}
		v, rerr := h.safeReceive(a, msg)
		resCh <- result{val: v, err: rerr}
	}})
	if submitErr != nil {
		return nil, fmt.Errorf("actor: submit message: %w", submitErr)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resCh:
		return r.val, r.err
	}
}

func (h *Host) safeReceive(a Actor, msg any) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actor: panic handling message: %v", r)
		}
	}()
	return a.Receive(msg)
}

// Close releases the host's loop.
func (h *Host) Close() error {
	return h.loop.Close()
}

// WorkerConfig is what a subpool worker process needs to identify itself
// and bind its listener. It crosses the os/exec boundary as JSON in an
// environment variable rather than argv, so it never has to survive a
// shell's quoting rules.
type WorkerConfig struct {
	ProcessIndex    int
	Label           string
	InternalAddress string
}

// workerConfigEnv names the environment variable SubPool.Start sets on a
// spawned child to mark it as a subpool worker and hand it its config.
const workerConfigEnv = "XORBITS_SUBPOOL_WORKER_CONFIG"

func marshalWorkerConfig(cfg WorkerConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("actor: marshal worker config: %w", err)
	}
	return string(b), nil
}

func workerConfigFromEnv() (WorkerConfig, bool) {
	raw := os.Getenv(workerConfigEnv)
	if raw == "" {
		return WorkerConfig{}, false
	}
	var cfg WorkerConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.WithError(err).Error("actor: malformed subpool worker config, ignoring")
		return WorkerConfig{}, false
	}
	return cfg, true
}

// ReexecIfWorker checks whether this process was re-executed by
// SubPool.Start to act as a subpool worker and, if so, runs the worker
// body and exits — never returning to the caller. Call this as the first
// statement in main(), and in a TestMain for any test binary that links
// this package, so a re-exec'd child (including a re-exec'd test binary)
// takes over before cobra/go-test flag parsing begins.
func ReexecIfWorker() {
	cfg, ok := workerConfigFromEnv()
	if !ok {
		return
	}
	os.Exit(runWorkerProcess(cfg))
}

func runWorkerProcess(cfg WorkerConfig) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := RunWorker(ctx, cfg); err != nil {
		log.WithError(err).WithField("process_index", cfg.ProcessIndex).Error("subpool worker exited with error")
		return 1
	}
	return 0
}

// RunWorker binds a listener on cfg.InternalAddress and serves remote
// create-actor/send calls against a fresh Host until ctx is cancelled —
// the entire body of a subpool worker process.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	host, err := NewHost()
	if err != nil {
		return err
	}
	defer host.Close()

	network, addr := dialNetwork(cfg.InternalAddress)
	if network == "unix" {
		_ = os.Remove(addr) // stale socket left by a prior crashed instance
	}
	listener, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("actor: worker %d listen on %s: %w", cfg.ProcessIndex, cfg.InternalAddress, err)
	}
	defer listener.Close()

	log.WithFields(logrus.Fields{
		"process_index": cfg.ProcessIndex,
		"label":         cfg.Label,
		"address":       cfg.InternalAddress,
	}).Info("subpool worker ready")

	return Serve(ctx, listener, host.Dispatch)
}
