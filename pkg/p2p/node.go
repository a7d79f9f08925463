// Package p2p provides the cross-host transport backing an actor's
// external address: the fast path for same-host sends is the unix socket
// pkg/actor.GenInternalAddress derives, but a subtask graph that spans
// hosts needs peer.ID + multiaddr resolution and a real connection, which
// this package supplies via libp2p. Adapted from pkg/p2p/node.go, trimmed
// of the discovery/resource-advertiser/content-router/security subsystems
// that subsequent feature sets of the teacher layered in (see DESIGN.md).
package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/xorbits-io/xorbits/internal/config"
)

var log = logrus.WithField("component", "p2p")

// PeerRecord is what the directory keeps about one remote actor-pool host:
// its libp2p identity plus the time the entry was last registered. Nothing
// in this package reads LastSeen or prunes entries by it.
type PeerRecord struct {
	Info     peer.AddrInfo
	LastSeen time.Time
}

// Node wraps a libp2p host with the bare surface a cross-host actor send
// needs: connect, disconnect, query, and a directory mapping external actor
// addresses (as pkg/actor produces them) onto libp2p peers.
type Node struct {
	host host.Host

	mu        sync.RWMutex
	directory map[string]PeerRecord // actor external address -> peer record

	connectTimeout time.Duration
}

// NewNode builds a libp2p host from cfg and wraps it as a Node. EnableDHT is
// accepted by P2PConfig but this trimmed node does not run a DHT — peer
// addresses arrive through the directory (Raft-replicated ActorPoolConfig,
// see pkg/consensus) rather than discovery, so only the listen/connmgr/
// dial-timeout knobs are consumed here.
func NewNode(ctx context.Context, cfg config.P2PConfig) (*Node, error) {
	opts := []libp2p.Option{}

	if cfg.Listen != "" {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.Listen))
	}

	low := cfg.ConnMgrLow
	high := cfg.ConnMgrHigh
	if low <= 0 {
		low = 50
	}
	if high <= 0 {
		high = 200
	}
	grace := 30 * time.Second
	if cfg.ConnMgrGrace != "" {
		if d, err := time.ParseDuration(cfg.ConnMgrGrace); err == nil {
			grace = d
		}
	}
	cm, err := connmgr.NewConnManager(low, high, connmgr.WithGracePeriod(grace))
	if err != nil {
		return nil, fmt.Errorf("p2p: build connection manager: %w", err)
	}
	opts = append(opts, libp2p.ConnectionManager(cm))

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("p2p: build libp2p host: %w", err)
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}

	n := &Node{
		host:           h,
		directory:      make(map[string]PeerRecord),
		connectTimeout: dialTimeout,
	}
	log.WithField("peer_id", h.ID().String()).Info("p2p node started")
	return n, nil
}

// ID returns this host's libp2p peer identity.
func (n *Node) ID() peer.ID { return n.host.ID() }

// Addrs returns the multiaddrs this host is reachable on.
func (n *Node) Addrs() []multiaddr.Multiaddr { return n.host.Addrs() }

// Register binds an actor external address (host:port, as pkg/actor
// produces it) to a libp2p peer, so a later ConnectExternal for that
// address resolves without the caller supplying the peer info.
func (n *Node) Register(externalAddress string, info peer.AddrInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.directory[externalAddress] = PeerRecord{Info: info, LastSeen: time.Now()}
}

// Forget removes a directory entry, used when a subpool recovery rotates
// its external address out from under a stale peer record.
func (n *Node) Forget(externalAddress string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.directory, externalAddress)
}

// Resolve looks up the peer directory entry for an actor external address.
func (n *Node) Resolve(externalAddress string) (peer.AddrInfo, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	rec, ok := n.directory[externalAddress]
	return rec.Info, ok
}

// Connect dials a peer and blocks until the connection is established or
// ctx/connectTimeout elapses.
func (n *Node) Connect(ctx context.Context, info peer.AddrInfo) error {
	ctx, cancel := context.WithTimeout(ctx, n.connectTimeout)
	defer cancel()
	n.host.Peerstore().AddAddrs(info.ID, info.Addrs, time.Hour)
	if err := n.host.Connect(ctx, info); err != nil {
		return fmt.Errorf("p2p: connect to %s: %w", info.ID, err)
	}
	return nil
}

// ConnectExternal resolves externalAddress via the directory and connects,
// the cross-host send path's entry point when the destination is not the
// local host.
func (n *Node) ConnectExternal(ctx context.Context, externalAddress string) error {
	info, ok := n.Resolve(externalAddress)
	if !ok {
		return fmt.Errorf("p2p: no peer registered for actor address %q", externalAddress)
	}
	return n.Connect(ctx, info)
}

// Disconnect closes every open connection to peerID.
func (n *Node) Disconnect(peerID peer.ID) error {
	return n.host.Network().ClosePeer(peerID)
}

// IsConnected reports whether the host currently has a live connection to
// peerID.
func (n *Node) IsConnected(peerID peer.ID) bool {
	return n.host.Network().Connectedness(peerID) == network.Connected
}

// GetAllPeers returns every peer the host currently holds a connection to.
func (n *Node) GetAllPeers() []peer.ID {
	conns := n.host.Network().Conns()
	out := make([]peer.ID, 0, len(conns))
	seen := make(map[peer.ID]struct{}, len(conns))
	for _, c := range conns {
		pid := c.RemotePeer()
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		out = append(out, pid)
	}
	return out
}

// PeerCount returns the number of distinct connected peers.
func (n *Node) PeerCount() int { return len(n.GetAllPeers()) }

// Host exposes the underlying libp2p host for callers that need to
// register stream handlers directly.
func (n *Node) Host() host.Host { return n.host }

// Close tears down the libp2p host and all its connections.
func (n *Node) Close() error {
	return n.host.Close()
}
