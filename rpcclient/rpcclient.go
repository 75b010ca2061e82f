// Package rpcclient implements §4.9: an RPC client constructed in either
// direct mode (a single provider address) or discovery mode (a registry
// address plus a per-method host cache with round-robin selection and a
// per-host connection pool). All three call shapes — sync, async, callback
// — go through a shared requestor.Requestor, exactly as the original's
// RpcClient/RpcCaller split did.
package rpcclient

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rpcmesh/dispatch"
	"rpcmesh/loadbalance"
	"rpcmesh/message"
	"rpcmesh/netcore"
	"rpcmesh/registry"
	"rpcmesh/requestor"
)

// Mode distinguishes the client's two construction shapes.
type Mode int

const (
	ModeDirect Mode = iota
	ModeDiscovery
)

// methodHostEntry is the per-method host cache §4.9 mandates: the host
// list from the last Discover call plus a round-robin cursor, both guarded
// by the entry's own mutex rather than the client's.
type methodHostEntry struct {
	mu     sync.Mutex
	hosts  []registry.HostAddr
	cursor int64
}

// pick returns the next host in round-robin order under this entry's own
// lock, per §4.9's explicit "cursor modulo length, taken under lock"
// requirement — never a client-wide lock. This is the default selection;
// pickWith below lets a caller substitute an alternative Balancer.
func (e *methodHostEntry) pick() (registry.HostAddr, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hosts) == 0 {
		return registry.HostAddr{}, false
	}
	idx := e.cursor % int64(len(e.hosts))
	e.cursor++
	return e.hosts[idx], true
}

// pickWith selects among the entry's cached hosts using balancer, still
// under the entry's own lock, when balancer is non-nil; a nil balancer
// falls back to the round-robin cursor pick above.
func (e *methodHostEntry) pickWith(balancer loadbalance.Balancer) (registry.HostAddr, bool) {
	if balancer == nil {
		return e.pick()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hosts) == 0 {
		return registry.HostAddr{}, false
	}
	host, err := balancer.Pick(e.hosts)
	if err != nil || host == nil {
		return registry.HostAddr{}, false
	}
	return *host, true
}

func (e *methodHostEntry) set(hosts []registry.HostAddr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hosts = hosts
	e.cursor = 0
}

// remove drops host from the entry's cache, if present.
func (e *methodHostEntry) remove(host registry.HostAddr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.hosts {
		if h == host {
			e.hosts = append(e.hosts[:i], e.hosts[i+1:]...)
			return
		}
	}
}

// Client is the RPC-calling half of §4.9: a shared Requestor/Dispatcher
// pair fans out over either one direct connection or a discovery-backed
// pool of per-host connections.
type Client struct {
	mode   Mode
	logger *zap.Logger

	dispatcher *dispatch.Dispatcher
	requestor  *requestor.Requestor

	direct netcore.Connection

	registryClient *registry.Client
	balancer       loadbalance.Balancer

	poolMu sync.Mutex
	pool   map[string]netcore.Connection // "ip:port" -> connection

	hostsMu     sync.Mutex
	methodHosts map[string]*methodHostEntry
}

// NewDirect constructs a direct-mode client holding a single connection to
// addr; every call dispatches over it regardless of method.
func NewDirect(addr string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		mode:       ModeDirect,
		logger:     logger,
		dispatcher: dispatch.New(logger),
		requestor:  requestor.New(logger),
	}
	dispatch.RegisterHandler(c.dispatcher, message.RspRPC, c.requestor.OnRpcResponse)

	conn, err := netcore.Connect(addr, logger, func(conn netcore.Connection) {
		c.dispatcher.Bind(conn)
		conn.SetOnDown(func(conn netcore.Connection) { c.requestor.OnConnectionDown(conn) })
	})
	if err != nil {
		return nil, fmt.Errorf("rpcclient: direct dial %s: %w", addr, err)
	}
	c.direct = conn
	return c, nil
}

// NewDiscovery constructs a discovery-mode client talking to the registry
// at registryAddr. balancer selects among a method's discovered hosts when
// non-nil; the zero value, round-robin, is what §4.9 mandates and is used
// when balancer is nil.
func NewDiscovery(registryAddr string, balancer loadbalance.Balancer, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		mode:        ModeDiscovery,
		logger:      logger,
		dispatcher:  dispatch.New(logger),
		requestor:   requestor.New(logger),
		balancer:    balancer,
		pool:        make(map[string]netcore.Connection),
		methodHosts: make(map[string]*methodHostEntry),
	}
	dispatch.RegisterHandler(c.dispatcher, message.RspRPC, c.requestor.OnRpcResponse)

	reg, err := registry.Dial(registryAddr, c.onRegistryNotify, logger)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: registry dial %s: %w", registryAddr, err)
	}
	c.registryClient = reg
	return c, nil
}

func hostKey(h registry.HostAddr) string { return fmt.Sprintf("%s:%d", h.IP, h.Port) }

// onRegistryNotify handles the registry's unsolicited ONLINE/OFFLINE
// pushes. Per §4.9, only OFFLINE requires action: evict the host's pooled
// connection and drop it from the method's cached host list.
func (c *Client) onRegistryNotify(optype message.ServiceOptype, method string, host registry.HostAddr) {
	if optype != message.ServiceOffline {
		return
	}
	c.hostsMu.Lock()
	entry, ok := c.methodHosts[method]
	c.hostsMu.Unlock()
	if ok {
		entry.remove(host)
	}

	key := hostKey(host)
	c.poolMu.Lock()
	conn, ok := c.pool[key]
	if ok {
		delete(c.pool, key)
	}
	c.poolMu.Unlock()
	if ok {
		conn.Shutdown()
	}
}

func (c *Client) entryFor(method string) *methodHostEntry {
	c.hostsMu.Lock()
	defer c.hostsMu.Unlock()
	entry, ok := c.methodHosts[method]
	if !ok {
		entry = &methodHostEntry{}
		c.methodHosts[method] = entry
	}
	return entry
}

// connectionFor resolves the connection a call to method should dispatch
// over: the single direct connection, or — in discovery mode — a
// round-robin pick among method's discovered hosts, reusing or lazily
// dialing that host's pooled connection.
func (c *Client) connectionFor(method string) (netcore.Connection, error) {
	if c.mode == ModeDirect {
		return c.direct, nil
	}

	entry := c.entryFor(method)
	host, ok := entry.pickWith(c.balancer)
	if !ok {
		hosts, err := c.registryClient.Discover(method)
		if err != nil {
			return nil, fmt.Errorf("rpcclient: discover %q: %w", method, err)
		}
		if len(hosts) == 0 {
			return nil, fmt.Errorf("rpcclient: no hosts for method %q", method)
		}
		entry.set(hosts)
		host, _ = entry.pickWith(c.balancer)
	}

	return c.connectionToHost(host)
}

func (c *Client) connectionToHost(host registry.HostAddr) (netcore.Connection, error) {
	key := hostKey(host)

	c.poolMu.Lock()
	conn, ok := c.pool[key]
	c.poolMu.Unlock()
	if ok && conn.Connected() {
		return conn, nil
	}

	conn, err := netcore.Connect(key, c.logger, func(conn netcore.Connection) {
		c.dispatcher.Bind(conn)
		conn.SetOnDown(func(conn netcore.Connection) { c.requestor.OnConnectionDown(conn) })
	})
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", key, err)
	}

	c.poolMu.Lock()
	c.pool[key] = conn
	c.poolMu.Unlock()
	return conn, nil
}

func (c *Client) buildRequest(method string, params map[string]interface{}) message.Message {
	return newCaller().build(method, params)
}

func resultOf(msg message.Message, method string) (interface{}, error) {
	rsp := msg.(*message.RpcResponse)
	if rsp.RCode != message.RCodeOK {
		return nil, fmt.Errorf("rpcclient: %s: %s", method, rsp.RCode)
	}
	return rsp.Result, nil
}

// CallSync sends method(params) and blocks for the result.
func (c *Client) CallSync(method string, params map[string]interface{}) (interface{}, error) {
	conn, err := c.connectionFor(method)
	if err != nil {
		return nil, err
	}
	req := c.buildRequest(method, params)
	msg, err := c.requestor.SendSync(conn, req)
	if err != nil {
		return nil, err
	}
	return resultOf(msg, method)
}

// CallAsync sends method(params) and returns a Future resolving to its
// RpcResponse.
func (c *Client) CallAsync(method string, params map[string]interface{}) (*requestor.Future, error) {
	conn, err := c.connectionFor(method)
	if err != nil {
		return nil, err
	}
	req := c.buildRequest(method, params)
	return c.requestor.SendAsync(conn, req)
}

// CallCallback sends method(params) and invokes cb with the result on the
// dispatch thread once the response arrives.
func (c *Client) CallCallback(method string, params map[string]interface{}, cb func(result interface{}, err error)) error {
	conn, err := c.connectionFor(method)
	if err != nil {
		return err
	}
	req := c.buildRequest(method, params)
	return c.requestor.SendCallback(conn, req, func(msg message.Message) {
		result, err := resultOf(msg, method)
		cb(result, err)
	})
}

// Close shuts down every connection this client owns.
func (c *Client) Close() {
	if c.direct != nil {
		c.direct.Shutdown()
	}
	if c.registryClient != nil {
		c.registryClient.Close()
	}
	c.poolMu.Lock()
	for _, conn := range c.pool {
		conn.Shutdown()
	}
	c.poolMu.Unlock()
}
