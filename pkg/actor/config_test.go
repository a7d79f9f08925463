package actor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorPoolConfigAddAndLookup(t *testing.T) {
	cfg := NewActorPoolConfig()
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 0, Label: "main", InternalAddress: "127.0.0.1:10001"})
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 1, Label: "numa-0", InternalAddress: "127.0.0.1:10002"})

	require.Equal(t, 2, cfg.NPool())

	addr, err := cfg.ExternalAddress(1)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:10002", addr)

	idx, err := cfg.ProcessIndex("127.0.0.1:10002")
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	_, err = cfg.ProcessIndex("nowhere:0")
	require.Error(t, err)
}

func TestActorPoolConfigExternalAddressDefaultsToInternal(t *testing.T) {
	cfg := NewActorPoolConfig()
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 0, InternalAddress: "127.0.0.1:10001"})

	pc, err := cfg.GetPoolConfig(0)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:10001"}, pc.ExternalAddress)
}

func TestActorPoolConfigResetPoolExternalAddress(t *testing.T) {
	cfg := NewActorPoolConfig()
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 0, InternalAddress: "127.0.0.1:10001"})

	require.NoError(t, cfg.ResetPoolExternalAddress(0, []string{"10.0.0.5:20001"}))

	addr, err := cfg.ExternalAddress(0)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:20001", addr)

	mapping := cfg.ExternalToInternalAddressMap()
	require.Equal(t, "10.0.0.5:20001", mapping["10.0.0.5:20001"])
	require.NotContains(t, mapping, "127.0.0.1:10001")
}

func TestActorPoolConfigExternalAddressesForLabel(t *testing.T) {
	cfg := NewActorPoolConfig()
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 0, Label: "numa-0", InternalAddress: "a:1"})
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 1, Label: "numa-0", InternalAddress: "b:1"})
	cfg.AddPoolConfig(PoolConfig{ProcessIndex: 2, Label: "numa-1", InternalAddress: "c:1"})

	require.ElementsMatch(t, []string{"a:1", "b:1"}, cfg.ExternalAddressesForLabel("numa-0"))
	require.Len(t, cfg.ExternalAddressesForLabel(""), 3)
}

func TestActorPoolConfigMetricAndCommConfigsMerge(t *testing.T) {
	cfg := NewActorPoolConfig()
	cfg.AddMetricConfigs(map[string]any{"backend": "prometheus"})
	cfg.AddMetricConfigs(map[string]any{"interval": 5})
	require.Equal(t, map[string]any{"backend": "prometheus", "interval": 5}, cfg.MetricConfigs())

	cfg.AddCommConfig(map[string]any{"transport": "unix"})
	require.Equal(t, map[string]any{"transport": "unix"}, cfg.CommConfig())
}
