package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type echoActor struct{ calls int }

func (e *echoActor) Receive(msg any) (any, error) {
	e.calls++
	return msg, nil
}

func init() {
	RegisterActorFactory("echo", func(params []byte) (Actor, error) {
		return &echoActor{}, nil
	})
}

func newTestConfig(t *testing.T, n int) *ActorPoolConfig {
	t.Helper()
	cfg := NewActorPoolConfig()
	for i := 0; i < n; i++ {
		label := "main"
		if i > 0 {
			label = "worker"
		}
		cfg.AddPoolConfig(PoolConfig{
			ProcessIndex:    i,
			Label:           label,
			InternalAddress: GenInternalAddress(i, "127.0.0.1:0"),
			ExternalAddress: []string{GenInternalAddress(i, "127.0.0.1:0")},
		})
	}
	return cfg
}

func startTestSubPool(t *testing.T, processIndex int) *SubPool {
	t.Helper()
	pc := PoolConfig{
		ProcessIndex:    processIndex,
		InternalAddress: GenInternalAddress(processIndex, "127.0.0.1:0"),
		ExternalAddress: []string{GenInternalAddress(processIndex, "127.0.0.1:0")},
	}
	sp, err := NewSubPool(pc, StartMethodSpawn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, sp.Start(ctx))
	t.Cleanup(func() { _ = sp.Kill() })
	return sp
}

func TestSubPoolCreateActorAndSend(t *testing.T) {
	sp := startTestSubPool(t, 100)

	require.NoError(t, sp.CreateActor("echo", "echo", nil))

	reply, err := sp.Send(context.Background(), "echo", "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", reply)

	err = sp.CreateActor("echo", "echo", nil)
	require.Error(t, err, "recreating the same id in the same subpool must fail")
}

func TestSubPoolSendUnknownActor(t *testing.T) {
	sp := startTestSubPool(t, 101)

	_, err := sp.Send(context.Background(), "missing", "x")
	require.Error(t, err)
}

func TestMainPoolStartAndKillSubPool(t *testing.T) {
	cfg := newTestConfig(t, 2)
	pool := NewMainPool(cfg, AutoRecoverNone)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, pool.StartSubPools(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	addr, err := cfg.ExternalAddress(1)
	require.NoError(t, err)
	require.True(t, pool.IsSubPoolAlive(addr))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, pool.KillSubPool(stopCtx, addr, KillModeGraceful))
	require.False(t, pool.IsSubPoolAlive(addr))
}

func TestMainPoolKillSubPoolForcedSkipsGrace(t *testing.T) {
	cfg := newTestConfig(t, 2)
	pool := NewMainPool(cfg, AutoRecoverNone)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, pool.StartSubPools(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	addr, err := cfg.ExternalAddress(1)
	require.NoError(t, err)

	killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer killCancel()
	require.NoError(t, pool.KillSubPool(killCtx, addr, KillModeForced))
	require.False(t, pool.IsSubPoolAlive(addr))
}

func TestMainPoolDetectsCrashedSubPool(t *testing.T) {
	cfg := newTestConfig(t, 2)
	pool := NewMainPool(cfg, AutoRecoverNone)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, pool.StartSubPools(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	addr, err := cfg.ExternalAddress(1)
	require.NoError(t, err)
	sp, ok := pool.SubPool(addr)
	require.True(t, ok)

	require.NoError(t, sp.Kill(), "simulate an external OS kill of the subpool process")
	require.False(t, pool.IsSubPoolAlive(addr), "IsAlive must reflect the real process exit, not just a graceful Stop")
}

func TestMainPoolRecoverSubPoolRecreatesActors(t *testing.T) {
	cfg := newTestConfig(t, 2)
	pool := NewMainPool(cfg, AutoRecoverActor)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, pool.StartSubPools(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	addr, err := cfg.ExternalAddress(1)
	require.NoError(t, err)
	sp, ok := pool.SubPool(addr)
	require.True(t, ok)
	require.NoError(t, sp.CreateActor("echo", "echo", nil))

	require.NoError(t, pool.RecoverSubPool(ctx, addr))

	sp2, ok := pool.SubPool(addr)
	require.True(t, ok)
	reply, err := sp2.Send(context.Background(), "echo", "still alive")
	require.NoError(t, err)
	require.Equal(t, "still alive", reply)
}

func TestAllocateStrategies(t *testing.T) {
	cfg := newTestConfig(t, 3)
	pool := NewMainPool(cfg, AutoRecoverNone)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, pool.StartSubPools(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	mainAddr, err := MainPoolStrategy{}.Allocate(cfg, pool)
	require.NoError(t, err)
	expectedMain, _ := cfg.ExternalAddress(0)
	require.Equal(t, expectedMain, mainAddr)

	workerAddr, err := IdleLabelStrategy{Label: "worker"}.Allocate(cfg, pool)
	require.NoError(t, err)
	require.NotEqual(t, mainAddr, workerAddr)

	_, err = RandomSubPoolStrategy{Label: "nonexistent"}.Allocate(cfg, pool)
	require.Error(t, err)
}
