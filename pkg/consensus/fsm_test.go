package consensus

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

func newTestFSM() *FSM {
	return &FSM{
		state:   make(map[string]interface{}),
		applyCh: make(chan *ApplyEvent, 16),
	}
}

func applyEvent(t *testing.T, fsm *FSM, event ApplyEvent) {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: data})
	if err, ok := result.(error); ok {
		require.NoError(t, err)
	}
}

func TestFSMApplySetAndDelete(t *testing.T) {
	fsm := newTestFSM()

	applyEvent(t, fsm, ApplyEvent{Type: "set", Key: "map_reduce_id", Value: float64(1), Timestamp: time.Now()})
	fsm.stateMu.RLock()
	require.Equal(t, float64(1), fsm.state["map_reduce_id"])
	fsm.stateMu.RUnlock()

	applyEvent(t, fsm, ApplyEvent{Type: "delete", Key: "map_reduce_id", Timestamp: time.Now()})
	fsm.stateMu.RLock()
	_, ok := fsm.state["map_reduce_id"]
	fsm.stateMu.RUnlock()
	require.False(t, ok)
}

func TestFSMApplyRejectsUnknownType(t *testing.T) {
	fsm := newTestFSM()
	data, err := json.Marshal(ApplyEvent{Type: "bogus", Key: "k", Timestamp: time.Now()})
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: data})
	require.Error(t, result.(error))
}

func TestFSMApplyRejectsEmptyKey(t *testing.T) {
	fsm := newTestFSM()
	data, err := json.Marshal(ApplyEvent{Type: "set", Key: "", Timestamp: time.Now()})
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: data})
	require.Error(t, result.(error))
}

func TestFSMSnapshotAndRestore(t *testing.T) {
	fsm := newTestFSM()
	applyEvent(t, fsm, ApplyEvent{Type: "set", Key: "a", Value: "1", Timestamp: time.Now()})
	applyEvent(t, fsm, ApplyEvent{Type: "set", Key: "b", Value: "2", Timestamp: time.Now()})

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	sink := &fakeSnapshotSink{Buffer: &buf}
	require.NoError(t, snap.Persist(sink))

	restored := newTestFSM()
	require.NoError(t, restored.Restore(&fakeReadCloser{Reader: bytes.NewReader(buf.Bytes())}))

	restored.stateMu.RLock()
	defer restored.stateMu.RUnlock()
	require.Equal(t, "1", restored.state["a"])
	require.Equal(t, "2", restored.state["b"])
}

type fakeSnapshotSink struct {
	*bytes.Buffer
}

func (s *fakeSnapshotSink) ID() string       { return "test" }
func (s *fakeSnapshotSink) Cancel() error    { return nil }
func (s *fakeSnapshotSink) Close() error     { return nil }

type fakeReadCloser struct {
	*bytes.Reader
}

func (r *fakeReadCloser) Close() error { return nil }
