// Package consensus replicates the cluster's source of truth across the
// main-pool nodes of an actor pool deployment via Raft: which node is
// currently the leader, the monotonically increasing map_reduce_id counter
// every GraphAnalyzer run draws from, and the ActorPoolConfig layout
// (subpool addresses and labels) itself. Adapted from
// pkg/consensus/engine.go, generalized from an untyped string->interface{}
// KV store into one with typed accessors for those two domain values, kept
// on top of the same generic Apply/FSM machinery.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/sirupsen/logrus"

	"github.com/xorbits-io/xorbits/internal/config"
	"github.com/xorbits-io/xorbits/pkg/actor"
	"github.com/xorbits-io/xorbits/pkg/p2p"
)

var log = logrus.WithField("component", "consensus")

// keys used against the generic KV state.
const (
	keyMapReduceID     = "map_reduce_id"
	keyActorPoolConfig = "actor_pool_config"
)

// Engine wraps a Raft group replicating main-pool cluster state.
type Engine struct {
	config *config.ConsensusConfig
	p2p    *p2p.Node

	raft      *raft.Raft
	fsm       *FSM
	store     *raftboltdb.BoltStore
	snapshots raft.SnapshotStore
	transport *raft.NetworkTransport

	isLeader     bool
	leadershipMu sync.RWMutex
	leaderCh     chan bool

	state   map[string]interface{}
	stateMu sync.RWMutex

	applyCh chan *ApplyEvent

	started bool
	mu      sync.RWMutex
}

// ApplyEvent is one committed state change.
type ApplyEvent struct {
	Type      string                 `json:"type"`
	Key       string                 `json:"key"`
	Value     interface{}            `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// FSM implements the Raft finite state machine over a string->interface{}
// map.
type FSM struct {
	state   map[string]interface{}
	stateMu sync.RWMutex
	applyCh chan *ApplyEvent
}

// NewEngine builds an Engine and starts its embedded Raft instance.
func NewEngine(cfg *config.ConsensusConfig, p2pNode *p2p.Node) (*Engine, error) {
	engine := &Engine{
		config:   cfg,
		p2p:      p2pNode,
		state:    make(map[string]interface{}),
		leaderCh: make(chan bool, 1),
		applyCh:  make(chan *ApplyEvent, 1000),
	}

	engine.fsm = &FSM{
		state:   make(map[string]interface{}),
		applyCh: engine.applyCh,
	}

	if err := engine.initRaft(); err != nil {
		return nil, fmt.Errorf("consensus: initialize raft: %w", err)
	}

	return engine, nil
}

func (e *Engine) initRaft() error {
	if err := os.MkdirAll(e.config.DataDir, 0755); err != nil {
		return fmt.Errorf("consensus: create data directory: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(e.p2p.ID().String())
	if e.config.LogLevel != "" {
		raftConfig.LogLevel = e.config.LogLevel
	}
	raftConfig.HeartbeatTimeout = e.config.HeartbeatTimeout
	raftConfig.ElectionTimeout = e.config.ElectionTimeout
	raftConfig.CommitTimeout = e.config.CommitTimeout
	raftConfig.MaxAppendEntries = e.config.MaxAppendEntries
	raftConfig.SnapshotInterval = e.config.SnapshotInterval
	raftConfig.SnapshotThreshold = e.config.SnapshotThreshold

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(e.config.DataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("consensus: create log store: %w", err)
	}
	e.store = logStore

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(e.config.DataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("consensus: create stable store: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(e.config.DataDir, 3, os.Stderr)
	if err != nil {
		return fmt.Errorf("consensus: create snapshot store: %w", err)
	}
	e.snapshots = snapshots

	addr, err := net.ResolveTCPAddr("tcp", e.config.BindAddr)
	if err != nil {
		return fmt.Errorf("consensus: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(e.config.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("consensus: create transport: %w", err)
	}
	e.transport = transport

	ra, err := raft.NewRaft(raftConfig, e.fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("consensus: create raft instance: %w", err)
	}
	e.raft = ra

	go e.monitorLeadership()

	return nil
}

func (e *Engine) monitorLeadership() {
	for isLeader := range e.raft.LeaderCh() {
		e.leadershipMu.Lock()
		e.isLeader = isLeader
		e.leadershipMu.Unlock()

		select {
		case e.leaderCh <- isLeader:
		default:
		}
	}
}

// Start bootstraps a single-node cluster when configured to, then starts
// event processing.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("consensus: engine already started")
	}

	if e.config.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(e.p2p.ID().String()),
					Address: e.transport.LocalAddr(),
				},
			},
		}
		e.raft.BootstrapCluster(configuration)
	}

	go e.processEvents()

	e.started = true
	return nil
}

func (e *Engine) processEvents() {
	for event := range e.applyCh {
		e.stateMu.Lock()
		if event.Type == "delete" {
			delete(e.state, event.Key)
		} else {
			e.state[event.Key] = event.Value
		}
		e.stateMu.Unlock()
	}
}

// Apply replicates a key/value write through Raft. Fails fast if this node
// is not currently leader rather than silently forwarding.
func (e *Engine) Apply(key string, value interface{}, metadata map[string]interface{}) error {
	if !e.IsLeader() {
		return fmt.Errorf("consensus: not leader, cannot apply changes")
	}

	event := &ApplyEvent{
		Type:      "set",
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("consensus: marshal event: %w", err)
	}

	future := e.raft.Apply(data, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("consensus: apply change: %w", err)
	}

	return nil
}

// Get reads a key from the locally-applied state (may lag the leader's
// committed log by at most one Raft round trip on a follower).
func (e *Engine) Get(key string) (interface{}, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	value, exists := e.state[key]
	return value, exists
}

// Delete removes a key through Raft consensus.
func (e *Engine) Delete(key string) error {
	if !e.IsLeader() {
		return fmt.Errorf("consensus: not leader, cannot delete")
	}

	event := &ApplyEvent{
		Type:      "delete",
		Key:       key,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("consensus: marshal event: %w", err)
	}

	future := e.raft.Apply(data, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("consensus: apply delete: %w", err)
	}

	return nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (e *Engine) IsLeader() bool {
	e.leadershipMu.RLock()
	defer e.leadershipMu.RUnlock()
	return e.isLeader
}

// Leader returns the current leader's transport address.
func (e *Engine) Leader() string {
	return string(e.raft.Leader())
}

// AddVoter adds a voting member to the Raft cluster.
func (e *Engine) AddVoter(id string, address string) error {
	if !e.IsLeader() {
		return fmt.Errorf("consensus: not leader, cannot add voter")
	}

	future := e.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes a member from the Raft cluster.
func (e *Engine) RemoveServer(id string) error {
	if !e.IsLeader() {
		return fmt.Errorf("consensus: not leader, cannot remove server")
	}

	future := e.raft.RemoveServer(raft.ServerID(id), 0, 10*time.Second)
	return future.Error()
}

// LeadershipChanges returns a channel publishing leadership transitions.
func (e *Engine) LeadershipChanges() <-chan bool {
	return e.leaderCh
}

// Stats returns the underlying Raft instance's diagnostic stats.
func (e *Engine) Stats() map[string]string {
	return e.raft.Stats()
}

// Shutdown gracefully tears down Raft, the apply pipeline, the Raft log's
// bolt store and the transport. The stable store opened in initRaft is not
// closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	close(e.applyCh)

	if e.raft != nil {
		future := e.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("consensus: shutdown raft: %w", err)
		}
	}

	if e.store != nil {
		e.store.Close()
	}

	if e.transport != nil {
		e.transport.Close()
	}

	e.started = false
	return nil
}

// NextMapReduceID atomically increments and returns the cluster-wide
// map_reduce_id counter every GraphAnalyzer run draws from for its
// MapReduce subtask grouping key, replacing what the original keeps as a
// single-process global.
func (e *Engine) NextMapReduceID(ctx context.Context) (uint64, error) {
	if !e.IsLeader() {
		return 0, fmt.Errorf("consensus: not leader, cannot allocate map_reduce_id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Read the FSM's own state, which Apply has updated by the time it
	// returns, rather than e.state, which processEvents mirrors later.
	e.fsm.stateMu.RLock()
	current := e.fsm.state[keyMapReduceID]
	e.fsm.stateMu.RUnlock()
	var next uint64
	switch v := current.(type) {
	case float64: // json.Unmarshal into interface{} decodes numbers as float64
		next = uint64(v) + 1
	case uint64:
		next = v + 1
	default:
		next = 1
	}

	if err := e.Apply(keyMapReduceID, next, nil); err != nil {
		return 0, fmt.Errorf("consensus: allocate map_reduce_id: %w", err)
	}
	return next, nil
}

// PublishActorPoolConfig replicates cfg's current subpool layout to every
// Raft member, so a follower taking over leadership (or a fresh node
// joining) can reconstruct the actor pool topology without re-deriving it.
func (e *Engine) PublishActorPoolConfig(cfg *actor.ActorPoolConfig) error {
	pools := cfg.Pools()
	data, err := json.Marshal(pools)
	if err != nil {
		return fmt.Errorf("consensus: marshal actor pool config: %w", err)
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("consensus: round-trip actor pool config: %w", err)
	}
	return e.Apply(keyActorPoolConfig, raw, nil)
}

// LoadActorPoolConfig replaces cfg's subpool layout with the last
// replicated snapshot, if any. Returns false when no snapshot has been
// published yet.
func (e *Engine) LoadActorPoolConfig(cfg *actor.ActorPoolConfig) (bool, error) {
	raw, ok := e.Get(keyActorPoolConfig)
	if !ok {
		return false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("consensus: marshal replicated actor pool config: %w", err)
	}
	var pools []actor.PoolConfig
	if err := json.Unmarshal(data, &pools); err != nil {
		return false, fmt.Errorf("consensus: unmarshal replicated actor pool config: %w", err)
	}
	cfg.ReplacePools(pools)
	return true, nil
}

// FSM methods.

// Apply applies one committed Raft log entry to the in-memory state.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var event ApplyEvent
	if err := json.Unmarshal(l.Data, &event); err != nil {
		return fmt.Errorf("consensus: unmarshal event: %w", err)
	}

	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	if err := f.validateEvent(&event); err != nil {
		return fmt.Errorf("consensus: invalid event: %w", err)
	}

	switch event.Type {
	case "set":
		f.state[event.Key] = event.Value
	case "delete":
		delete(f.state, event.Key)
	default:
		return fmt.Errorf("consensus: unknown event type: %s", event.Type)
	}

	select {
	case f.applyCh <- &event:
	case <-time.After(time.Second):
		log.WithField("key", event.Key).Warn("apply channel full, dropping event notification")
	}

	return nil
}

func (f *FSM) validateEvent(event *ApplyEvent) error {
	if event.Key == "" {
		return fmt.Errorf("event key cannot be empty")
	}
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	return nil
}

// Snapshot captures the current FSM state for Raft's log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	state := make(map[string]interface{}, len(f.state))
	for k, v := range f.state {
		state[k] = v
	}

	return &fsmSnapshot{state: state}, nil
}

// Restore replaces the FSM state from a snapshot.
func (f *FSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state map[string]interface{}
	if err := json.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("consensus: decode snapshot: %w", err)
	}

	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	f.state = state
	return nil
}

type fsmSnapshot struct {
	state map[string]interface{}
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("consensus: encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
