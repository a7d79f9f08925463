package consensus

import (
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

func newTestElectionManager(t *testing.T) *LeaderElectionManager {
	t.Helper()
	engine := &Engine{leaderCh: make(chan bool, 1)}
	lem := NewLeaderElectionManager(engine, nil)
	t.Cleanup(func() { require.NoError(t, lem.Close()) })
	return lem
}

func TestUpdateNodeCapabilityComputesPriority(t *testing.T) {
	lem := newTestElectionManager(t)

	lem.UpdateNodeCapability(&NodeCapability{
		NodeID:           raft.ServerID("node-a"),
		CPUCores:         16,
		MemoryGB:         64,
		StorageGB:        500,
		NetworkBandwidth: 5 * 1024 * 1024 * 1024,
		Latency:          10 * time.Millisecond,
		Throughput:       500,
		Reliability:      0.9,
		Uptime:           10 * 24 * time.Hour,
	})

	best := lem.GetBestLeaderCandidate()
	require.NotNil(t, best)
	require.Equal(t, raft.ServerID("node-a"), best.NodeID)
	require.Greater(t, best.Priority, 0.0)
}

func TestGetLeadershipRankingOrdersByPriority(t *testing.T) {
	lem := newTestElectionManager(t)

	lem.UpdateNodeCapability(&NodeCapability{NodeID: raft.ServerID("weak"), CPUCores: 1, Reliability: 0.1})
	lem.UpdateNodeCapability(&NodeCapability{NodeID: raft.ServerID("strong"), CPUCores: 32, MemoryGB: 128, StorageGB: 1000,
		NetworkBandwidth: 10 * 1024 * 1024 * 1024, Throughput: 1000, Reliability: 1.0, Uptime: 30 * 24 * time.Hour})

	ranking := lem.GetLeadershipRanking()
	require.Len(t, ranking, 2)
	require.Equal(t, raft.ServerID("strong"), ranking[0].NodeID)
	require.Equal(t, raft.ServerID("weak"), ranking[1].NodeID)
}

func TestRecordElectionEventUpdatesMetrics(t *testing.T) {
	lem := newTestElectionManager(t)

	lem.RecordElectionEvent(&ElectionEvent{
		Timestamp: time.Now(),
		EventType: ElectionCompleted,
		NewLeader: raft.ServerID("node-a"),
		Duration:  50 * time.Millisecond,
	})

	metrics := lem.GetElectionMetrics()
	require.EqualValues(t, 1, metrics.TotalElections)
	require.Equal(t, raft.ServerID("node-a"), metrics.CurrentLeader)
}

func TestGeographicScorePrefersConfiguredRegions(t *testing.T) {
	lem := NewLeaderElectionManager(&Engine{leaderCh: make(chan bool, 1)}, &ElectionConfig{
		HardwareWeight:            0.2,
		PerformanceWeight:         0.2,
		ReliabilityWeight:         0.2,
		GeographicWeight:          0.3,
		UptimeWeight:              0.1,
		PreferredRegions:          []string{"us-east"},
		CapabilityRefreshInterval: time.Hour,
		CapabilityTimeout:         time.Second,
	})
	t.Cleanup(func() { require.NoError(t, lem.Close()) })

	in := lem.calculateGeographicScore(&NodeCapability{Region: "us-east"})
	out := lem.calculateGeographicScore(&NodeCapability{Region: "eu-west"})
	require.Equal(t, 1.0, in)
	require.Equal(t, 0.5, out)
}
