package consensus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	internalconfig "github.com/xorbits-io/xorbits/internal/config"
	"github.com/xorbits-io/xorbits/pkg/actor"
	"github.com/xorbits-io/xorbits/pkg/p2p"
)

// freeTCPAddr picks an available loopback port for the Raft transport.
func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newSingleNodeEngine(t *testing.T) *Engine {
	t.Helper()

	node, err := p2p.NewNode(context.Background(), internalconfig.P2PConfig{
		Listen: "/ip4/127.0.0.1/tcp/0",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	cfg := &internalconfig.ConsensusConfig{
		DataDir:           t.TempDir(),
		BindAddr:          freeTCPAddr(t),
		Bootstrap:         true,
		HeartbeatTimeout:  100 * time.Millisecond,
		ElectionTimeout:   100 * time.Millisecond,
		CommitTimeout:     20 * time.Millisecond,
		MaxAppendEntries:  64,
		SnapshotInterval:  time.Hour,
		SnapshotThreshold: 1 << 20,
	}

	engine, err := NewEngine(cfg, node)
	require.NoError(t, err)
	require.NoError(t, engine.Start())
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	require.Eventually(t, engine.IsLeader, 5*time.Second, 10*time.Millisecond)
	return engine
}

func TestEngineApplyAndGet(t *testing.T) {
	engine := newSingleNodeEngine(t)

	require.NoError(t, engine.Apply("foo", "bar", nil))
	require.Eventually(t, func() bool {
		v, ok := engine.Get("foo")
		return ok && v == "bar"
	}, time.Second, 10*time.Millisecond)
}

func TestEngineNextMapReduceIDIncrements(t *testing.T) {
	engine := newSingleNodeEngine(t)

	first, err := engine.NextMapReduceID(context.Background())
	require.NoError(t, err)
	second, err := engine.NextMapReduceID(context.Background())
	require.NoError(t, err)

	require.Equal(t, first+1, second)
}

func TestEnginePublishAndLoadActorPoolConfig(t *testing.T) {
	engine := newSingleNodeEngine(t)

	src := actor.NewActorPoolConfig()
	src.AddPoolConfig(actor.PoolConfig{ProcessIndex: 0, Label: "main", InternalAddress: "127.0.0.1:10001"})
	src.AddPoolConfig(actor.PoolConfig{ProcessIndex: 1, Label: "numa-0", InternalAddress: "127.0.0.1:10002"})

	require.NoError(t, engine.PublishActorPoolConfig(src))

	dst := actor.NewActorPoolConfig()
	require.Eventually(t, func() bool {
		ok, err := engine.LoadActorPoolConfig(dst)
		return err == nil && ok
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 2, dst.NPool())
	addr, err := dst.ExternalAddress(1)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:10002", addr)
}
