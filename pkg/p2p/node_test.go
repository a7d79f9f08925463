package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/xorbits-io/xorbits/internal/config"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := NewNode(context.Background(), config.P2PConfig{
		Listen:       "/ip4/127.0.0.1/tcp/0",
		ConnMgrLow:   10,
		ConnMgrHigh:  20,
		ConnMgrGrace: "1s",
		DialTimeout:  2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNewNodeHasIdentityAndAddrs(t *testing.T) {
	n := newTestNode(t)
	require.NotEmpty(t, n.ID().String())
	require.NotEmpty(t, n.Addrs())
}

func TestConnectBetweenTwoNodes(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	bInfo := peerInfoOf(b)
	err := a.Connect(context.Background(), bInfo)
	require.NoError(t, err)

	require.True(t, a.IsConnected(b.ID()))
	require.Contains(t, a.GetAllPeers(), b.ID())
	require.Equal(t, 1, a.PeerCount())
}

func TestDisconnect(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	require.NoError(t, a.Connect(context.Background(), peerInfoOf(b)))
	require.True(t, a.IsConnected(b.ID()))

	require.NoError(t, a.Disconnect(b.ID()))
	require.False(t, a.IsConnected(b.ID()))
}

func TestRegisterResolveForget(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	addr := "10.0.0.5:9001"
	a.Register(addr, peerInfoOf(b))

	info, ok := a.Resolve(addr)
	require.True(t, ok)
	require.Equal(t, b.ID(), info.ID)

	a.Forget(addr)
	_, ok = a.Resolve(addr)
	require.False(t, ok)
}

func TestConnectExternalUnregisteredFails(t *testing.T) {
	a := newTestNode(t)
	err := a.ConnectExternal(context.Background(), "10.0.0.9:9999")
	require.Error(t, err)
}

func peerInfoOf(n *Node) peer.AddrInfo {
	return peer.AddrInfo{ID: n.ID(), Addrs: n.Addrs()}
}
