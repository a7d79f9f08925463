package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xorbits-io/xorbits/pkg/analyzer"
	xband "github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

// ackReceivedProbe asks a hosted ackActor for the subtask IDs it has seen so
// far. An ackActor now runs inside a subpool worker process, so a driver
// test cannot read its received slice directly; it round-trips through
// Send instead, the same way any other caller would observe actor state.
type ackReceivedProbe struct{}

type ackActor struct{ received []string }

func (a *ackActor) Receive(msg any) (any, error) {
	switch m := msg.(type) {
	case dispatchMsg:
		a.received = append(a.received, m.SubtaskID)
		return DispatchResult{SubtaskID: m.SubtaskID}, nil
	case ackReceivedProbe:
		return append([]string(nil), a.received...), nil
	default:
		return nil, nil
	}
}

func init() {
	RegisterMessageType(ackReceivedProbe{})
	RegisterActorFactory("ack", func(params []byte) (Actor, error) {
		return &ackActor{}, nil
	})
}

func ackReceived(t *testing.T, sp *SubPool, id ActorID) []string {
	t.Helper()
	reply, err := sp.Send(context.Background(), id, ackReceivedProbe{})
	require.NoError(t, err)
	got, _ := reply.([]string)
	return got
}

func driverTestUserChunk(t *testing.T, key string, inputs []*chunk.Chunk) *chunk.Chunk {
	t.Helper()
	op := chunk.NewUserOperand(key, "test-op", nil)
	c, err := chunk.New(op, inputs, 0, nil)
	require.NoError(t, err)
	return c
}

func TestTaskDriverDispatchSubtaskSendsToAssignedBand(t *testing.T) {
	const workerAddr = "/ip4/10.0.0.1/tcp/9001"
	cfg := NewActorPoolConfig()
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 0, Label: "worker", InternalAddress: GenInternalAddress(0, workerAddr), ExternalAddress: []string{workerAddr}})
	pool := NewMainPool(cfg, AutoRecoverNone)
	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()
	require.NoError(t, pool.StartSubPools(startCtx))
	defer pool.Stop(context.Background())

	sp, ok := pool.SubPool(workerAddr)
	require.True(t, ok)
	require.NoError(t, sp.CreateActor("st-1", "ack", nil))

	driver, shutdown, err := NewTaskDriver(pool, analyzer.Config{}, TaskDriverConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	band := xband.MustNew(workerAddr, "default")
	st := &subtask.Subtask{ID: "st-1", ExpectBands: []xband.Band{band}, BandsSpecified: true}

	require.NoError(t, driver.dispatchSubtask(context.Background(), st))
	require.Equal(t, []string{"st-1"}, ackReceived(t, sp, "st-1"))
}

func TestTaskDriverDispatchSubtaskRequiresAssignedBand(t *testing.T) {
	pool := NewMainPool(NewActorPoolConfig(), AutoRecoverNone)
	driver, shutdown, err := NewTaskDriver(pool, analyzer.Config{}, TaskDriverConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	err = driver.dispatchSubtask(context.Background(), &subtask.Subtask{ID: "st-1"})
	require.Error(t, err)
}

func TestTaskDriverRunTaskPropagatesAnalyzeError(t *testing.T) {
	a := driverTestUserChunk(t, "a", nil)
	b := driverTestUserChunk(t, "b", []*chunk.Chunk{a})

	g := chunk.NewGraph([]*chunk.Chunk{b})
	g.AddNode(a)
	g.AddNode(b)
	require.NoError(t, g.AddEdge(a, b))
	require.NoError(t, g.AddEdge(b, a), "a cyclic chunk graph is the fixture, not a real dependency")

	resources := xband.NewResourceMap()
	resources.Set(xband.MustNew("/ip4/10.0.0.1/tcp/9001", "default"), xband.Resource{NumCPUs: 1, MemorySize: 1e9})

	pool := NewMainPool(NewActorPoolConfig(), AutoRecoverNone)
	driver, shutdown, err := NewTaskDriver(pool, analyzer.Config{FuseEnabled: true, MapReduceCounter: analyzer.NewMapReduceCounter()}, TaskDriverConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, err = driver.RunTask(context.Background(), g, resources, "sess-1", "task-1", "stage-1")
	require.Error(t, err, "a cyclic chunk graph must never reach subtask dispatch")
}

func TestTaskDriverRunTaskDispatchesToRegisteredActors(t *testing.T) {
	const workerAddr = "/ip4/10.0.0.1/tcp/9001"
	a := driverTestUserChunk(t, "a", nil)
	b := driverTestUserChunk(t, "b", []*chunk.Chunk{a})

	g := chunk.NewGraph([]*chunk.Chunk{b})
	g.AddNode(a)
	g.AddNode(b)
	require.NoError(t, g.AddEdge(a, b))

	resources := xband.NewResourceMap()
	resources.Set(xband.MustNew(workerAddr, "default"), xband.Resource{NumCPUs: 4, MemorySize: 8e9})

	analyzerCfg := analyzer.Config{FuseEnabled: true, MapReduceCounter: analyzer.NewMapReduceCounter()}
	result, err := analyzer.Analyze(context.Background(), g, resources, analyzerCfg, "sess-1", "task-1", "stage-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.SubtaskGraph.Len(), "a linear chain with a single available band fuses into one subtask")

	poolCfg := NewActorPoolConfig()
	poolCfg.AddPoolConfig(PoolConfig{ProcessIndex: 0, Label: "worker", InternalAddress: GenInternalAddress(0, workerAddr), ExternalAddress: []string{workerAddr}})
	pool := NewMainPool(poolCfg, AutoRecoverNone)
	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()
	require.NoError(t, pool.StartSubPools(startCtx))
	defer pool.Stop(context.Background())

	sp, ok := pool.SubPool(workerAddr)
	require.True(t, ok)
	subtaskID := result.SubtaskGraph.Nodes()[0].ID
	require.NoError(t, sp.CreateActor(ActorID(subtaskID), "ack", nil))

	driver, shutdown, err := NewTaskDriver(pool, analyzerCfg, TaskDriverConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	sg, err := driver.RunTask(context.Background(), g, resources, "sess-1", "task-1", "stage-1")
	require.NoError(t, err)
	require.Equal(t, 1, sg.Len())
	require.Equal(t, []string{subtaskID}, ackReceived(t, sp, ActorID(subtaskID)))
}

func TestNewTracerDisabledIsNoop(t *testing.T) {
	tracer, shutdown, err := NewTracer(TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NoError(t, shutdown(context.Background()))
}
