// Remote transport: when MainPool.Send targets an address this node does
// not run locally, the message is gob-encoded and sent over a pooled
// net.Conn to whatever process does own the address (another subpool on
// the same host via its unix socket internal address, or a TCP listener
// on another host). Adapted from pkg/pool/connection.go's generic
// connection pool — its pooling/health-check/cleanup machinery is kept
// nearly verbatim, retargeted from a bare ConnectionFactory interface to
// one dialing xorbits subpool addresses specifically.
package actor

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"
)

// TransportConfig holds connection pool sizing for remote sends.
type TransportConfig struct {
	MinConnections int
	MaxConnections int
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration

	HealthCheckInterval time.Duration
}

// DefaultTransportConfig returns reasonable defaults for a single remote
// peer's connection pool.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		MinConnections:      1,
		MaxConnections:      10,
		ConnectTimeout:      10 * time.Second,
		IdleTimeout:         5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// sendRequest is the wire envelope for a remote Send call. Msg is carried
// as an interface{} via gob, so callers sending custom message types must
// gob.Register them before dialing out.
type sendRequest struct {
	ActorID ActorID
	Msg     any
}

type sendResponse struct {
	Val any
	Err string
}

// RegisterMessageType registers a concrete message type for gob transport.
// gob pre-registers builtin kinds (string, int, slices/maps thereof) but
// any custom struct sent as an Actor message over Transport.Send must be
// registered once via this function before the first remote Send.
func RegisterMessageType(value any) {
	gob.Register(value)
}

// dialNetwork reports "unix" for unix-socket-style internal addresses
// ("unix:///path") and "tcp" otherwise, mirroring GenInternalAddress's
// address shapes.
func dialNetwork(address string) (network, addr string) {
	const unixPrefix = "unix://"
	if len(address) > len(unixPrefix) && address[:len(unixPrefix)] == unixPrefix {
		return "unix", address[len(unixPrefix):]
	}
	return "tcp", address
}

// ConnFactory dials a single fixed remote address, implementing the
// create/validate/close triple pool.ConnectionPool's teacher ancestor
// expected from its ConnectionFactory interface.
type ConnFactory struct {
	Address        string
	ConnectTimeout time.Duration
}

func (f *ConnFactory) Create() (net.Conn, error) {
	network, addr := dialNetwork(f.Address)
	return net.DialTimeout(network, addr, f.ConnectTimeout)
}

func (f *ConnFactory) Validate(conn net.Conn) error {
	if conn == nil {
		return fmt.Errorf("actor: nil connection")
	}
	return nil
}

func (f *ConnFactory) Close(conn net.Conn) error {
	return conn.Close()
}

// ConnPool pools connections to one remote subpool address, the same
// get/put/health-check/cleanup shape as the teacher's generic
// pool.ConnectionPool, specialized to dial exactly one address.
type ConnPool struct {
	config  *TransportConfig
	factory *ConnFactory

	mu    sync.Mutex
	idle  []net.Conn
	total int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnPool builds a pool for address and starts a background
// health-check loop. It dials nothing itself: Get dials on demand, and
// MinConnections is not read.
func NewConnPool(address string, config *TransportConfig) *ConnPool {
	if config == nil {
		config = DefaultTransportConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &ConnPool{
		config:  config,
		factory: &ConnFactory{Address: address, ConnectTimeout: config.ConnectTimeout},
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(1)
	go p.healthCheckLoop()
	return p
}

func (p *ConnPool) healthCheckLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pruneUnhealthy()
		}
	}
}

func (p *ConnPool) pruneUnhealthy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	healthy := p.idle[:0]
	for _, conn := range p.idle {
		if p.factory.Validate(conn) == nil {
			healthy = append(healthy, conn)
		} else {
			_ = p.factory.Close(conn)
			p.total--
		}
	}
	p.idle = healthy
}

// Get returns a pooled connection, dialing a fresh one if none are idle and
// the pool is under MaxConnections.
func (p *ConnPool) Get(ctx context.Context) (net.Conn, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		if p.factory.Validate(conn) == nil {
			return conn, nil
		}
		_ = p.factory.Close(conn)
		p.mu.Lock()
		p.total--
	}
	canCreate := p.total < p.config.MaxConnections
	p.mu.Unlock()

	if !canCreate {
		return nil, fmt.Errorf("actor: transport pool to %s exhausted", p.factory.Address)
	}

	conn, err := p.factory.Create()
	if err != nil {
		return nil, fmt.Errorf("actor: dial %s: %w", p.factory.Address, err)
	}
	p.mu.Lock()
	p.total++
	p.mu.Unlock()
	return conn, nil
}

// Put returns conn to the idle pool, or closes it if the pool is full.
func (p *ConnPool) Put(conn net.Conn) {
	p.mu.Lock()
	if len(p.idle) >= p.config.MaxConnections {
		p.mu.Unlock()
		_ = p.factory.Close(conn)
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Close stops the health-check loop and closes every pooled connection.
func (p *ConnPool) Close() error {
	p.cancel()
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.idle {
		_ = p.factory.Close(conn)
	}
	p.idle = nil
	return nil
}

// Transport dials out to non-local actor addresses on demand, caching one
// ConnPool per remote address.
type Transport struct {
	config *TransportConfig

	mu    sync.Mutex
	pools map[string]*ConnPool
}

// NewTransport builds an empty Transport; pools are created lazily per
// remote address on first Send.
func NewTransport(config *TransportConfig) *Transport {
	return &Transport{
		config: config,
		pools:  make(map[string]*ConnPool),
	}
}

func (t *Transport) poolFor(address string) *ConnPool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pools[address]
	if !ok {
		p = NewConnPool(address, t.config)
		t.pools[address] = p
	}
	return p
}

// Send dials address (if not already connected), writes a gob-encoded
// sendRequest, and decodes the remote's sendResponse — the cross-process
// analogue of SubPool.Send for an actor this node does not run locally.
func (t *Transport) Send(ctx context.Context, address string, id ActorID, msg any) (any, error) {
	pool := t.poolFor(address)
	conn, err := pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	enc := gob.NewEncoder(conn)
	if err := enc.Encode(sendRequest{ActorID: id, Msg: msg}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("actor: encode remote send to %s: %w", address, err)
	}

	dec := gob.NewDecoder(bufio.NewReader(conn))
	var resp sendResponse
	if err := dec.Decode(&resp); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("actor: decode remote send response from %s: %w", address, err)
	}

	pool.Put(conn)

	if resp.Err != "" {
		return resp.Val, fmt.Errorf("actor: remote send to %s: %s", address, resp.Err)
	}
	return resp.Val, nil
}

// Close tears down every cached remote connection pool.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		_ = p.Close()
	}
	t.pools = nil
	return nil
}

// Serve accepts connections on listener and dispatches each decoded
// sendRequest to dispatch, the listener-side counterpart of Send — what a
// subpool would run on its internal/external address to accept remote
// sends. One goroutine per accepted connection; each connection may carry
// many sequential requests.
func Serve(ctx context.Context, listener net.Listener, dispatch func(ctx context.Context, id ActorID, msg any) (any, error)) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("actor: accept: %w", err)
			}
		}
		go serveConn(ctx, conn, dispatch)
	}
}

func serveConn(ctx context.Context, conn net.Conn, dispatch func(ctx context.Context, id ActorID, msg any) (any, error)) {
	defer conn.Close()
	dec := gob.NewDecoder(bufio.NewReader(conn))
	enc := gob.NewEncoder(conn)
	for {
		var req sendRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		val, err := dispatch(ctx, req.ActorID, req.Msg)
		resp := sendResponse{Val: val}
		if err != nil {
			resp.Err = err.Error()
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}
