// Package registry implements §4.7: the provider index, the discoverer
// index, and the online/offline notification fan-out that links them.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"rpcmesh/internal/idgen"
	"rpcmesh/message"
	"rpcmesh/netcore"
)

// HostAddr is the registry's own name for message.HostAddr, matching the
// naming loadbalance and rpcclient use when they talk about a resolved
// provider address rather than a raw wire field.
type HostAddr = message.HostAddr

// ProviderEntry tracks one provider connection's host and the set of
// methods it currently offers.
type ProviderEntry struct {
	conn    netcore.Connection
	host    HostAddr
	mu      sync.Mutex
	methods map[string]struct{}
}

// DiscovererEntry tracks one discoverer connection's set of queried
// methods.
type DiscovererEntry struct {
	conn    netcore.Connection
	mu      sync.Mutex
	methods map[string]struct{}
}

// Core is the in-memory registry §4.7 mandates: two symmetric indices
// guarded by an outer mutex, with per-entry mutexes for the inner method
// sets, fanning notifications out only after releasing the outer lock.
type Core struct {
	mu sync.Mutex

	providers       map[netcore.Connection]*ProviderEntry
	methodProviders map[string]map[netcore.Connection]*ProviderEntry

	discoverers       map[netcore.Connection]*DiscovererEntry
	methodDiscoverers map[string]map[netcore.Connection]*DiscovererEntry

	logger *zap.Logger
}

// New creates an empty Core.
func New(logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		providers:         make(map[netcore.Connection]*ProviderEntry),
		methodProviders:   make(map[string]map[netcore.Connection]*ProviderEntry),
		discoverers:       make(map[netcore.Connection]*DiscovererEntry),
		methodDiscoverers: make(map[string]map[netcore.Connection]*DiscovererEntry),
		logger:            logger,
	}
}

func (c *Core) addProvider(conn netcore.Connection, host HostAddr, method string) {
	c.mu.Lock()
	entry, ok := c.providers[conn]
	if !ok {
		entry = &ProviderEntry{conn: conn, host: host, methods: make(map[string]struct{})}
		c.providers[conn] = entry
	}
	entry.mu.Lock()
	entry.methods[method] = struct{}{}
	entry.mu.Unlock()

	mset, ok := c.methodProviders[method]
	if !ok {
		mset = make(map[netcore.Connection]*ProviderEntry)
		c.methodProviders[method] = mset
	}
	mset[conn] = entry
	c.mu.Unlock()
}

// delProvider unbinds conn's ProviderEntry and returns the entry plus the
// methods it offered, for the caller to fan OFFLINE out over after
// releasing every lock.
func (c *Core) delProvider(conn netcore.Connection) (*ProviderEntry, []string) {
	c.mu.Lock()
	entry, ok := c.providers[conn]
	if !ok {
		c.mu.Unlock()
		return nil, nil
	}
	delete(c.providers, conn)

	entry.mu.Lock()
	methods := make([]string, 0, len(entry.methods))
	for m := range entry.methods {
		methods = append(methods, m)
	}
	entry.mu.Unlock()

	for _, m := range methods {
		if mset, ok := c.methodProviders[m]; ok {
			delete(mset, conn)
			if len(mset) == 0 {
				delete(c.methodProviders, m)
			}
		}
	}
	c.mu.Unlock()
	return entry, methods
}

func (c *Core) addDiscoverer(conn netcore.Connection, method string) {
	c.mu.Lock()
	entry, ok := c.discoverers[conn]
	if !ok {
		entry = &DiscovererEntry{conn: conn, methods: make(map[string]struct{})}
		c.discoverers[conn] = entry
	}
	entry.mu.Lock()
	entry.methods[method] = struct{}{}
	entry.mu.Unlock()

	mset, ok := c.methodDiscoverers[method]
	if !ok {
		mset = make(map[netcore.Connection]*DiscovererEntry)
		c.methodDiscoverers[method] = mset
	}
	mset[conn] = entry
	c.mu.Unlock()
}

func (c *Core) delDiscoverer(conn netcore.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.discoverers[conn]
	if !ok {
		return
	}
	delete(c.discoverers, conn)

	entry.mu.Lock()
	methods := make([]string, 0, len(entry.methods))
	for m := range entry.methods {
		methods = append(methods, m)
	}
	entry.mu.Unlock()

	for _, m := range methods {
		if mset, ok := c.methodDiscoverers[m]; ok {
			delete(mset, conn)
			if len(mset) == 0 {
				delete(c.methodDiscoverers, m)
			}
		}
	}
}

// hostsFor snapshots the current provider hosts for method, under the
// outer lock only — no inner-entry locks or sends happen here.
func (c *Core) hostsFor(method string) []HostAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	mset := c.methodProviders[method]
	hosts := make([]HostAddr, 0, len(mset))
	for _, entry := range mset {
		hosts = append(hosts, entry.host)
	}
	return hosts
}

// discoverersFor snapshots the discoverer connections interested in
// method. Per §5's lock-ordering invariant, the caller releases this
// before sending to any of them.
func (c *Core) discoverersFor(method string) []netcore.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	mset := c.methodDiscoverers[method]
	conns := make([]netcore.Connection, 0, len(mset))
	for conn := range mset {
		conns = append(conns, conn)
	}
	return conns
}

func (c *Core) pushNotification(optype message.ServiceOptype, method string, host HostAddr) {
	conns := c.discoverersFor(method)
	for _, conn := range conns {
		m, _ := message.New(message.ReqService)
		notice := m.(*message.ServiceRequest)
		notice.SetID(idgen.New())
		notice.Method = method
		notice.Optype = optype
		h := host
		notice.Host = &h
		body, err := notice.Marshal()
		if err != nil {
			c.logger.Error("registry: failed to marshal notification", zap.Error(err))
			continue
		}
		conn.Send(message.ReqService, notice.ID(), body)
	}
}

// OnServiceRequest is the Dispatcher handler for ReqService.
func (c *Core) OnServiceRequest(conn netcore.Connection, req *message.ServiceRequest) {
	switch req.Optype {
	case message.ServiceRegistry:
		host := HostAddr{}
		if req.Host != nil {
			host = *req.Host
		}
		c.addProvider(conn, host, req.Method)
		c.pushNotification(message.ServiceOnline, req.Method, host)
		c.reply(conn, req.ID(), message.RCodeOK, message.ServiceRegistry, "", nil)

	case message.ServiceDiscovery:
		c.addDiscoverer(conn, req.Method)
		hosts := c.hostsFor(req.Method)
		if len(hosts) == 0 {
			c.reply(conn, req.ID(), message.RCodeNotFoundService, message.ServiceDiscovery, req.Method, nil)
			return
		}
		c.reply(conn, req.ID(), message.RCodeOK, message.ServiceDiscovery, req.Method, hosts)

	default:
		c.reply(conn, req.ID(), message.RCodeInvalidOptype, message.ServiceUnknown, "", nil)
	}
}

// OnConnectionDown unbinds whatever ProviderEntry/DiscovererEntry conn held,
// fanning an OFFLINE notification out for each method the provider offered.
func (c *Core) OnConnectionDown(conn netcore.Connection) {
	entry, methods := c.delProvider(conn)
	if entry != nil {
		for _, m := range methods {
			c.pushNotification(message.ServiceOffline, m, entry.host)
		}
	}
	c.delDiscoverer(conn)
}

func (c *Core) reply(conn netcore.Connection, id string, rcode message.RCode, optype message.ServiceOptype, method string, hosts []HostAddr) {
	m, _ := message.New(message.RspService)
	rsp := m.(*message.ServiceResponse)
	rsp.SetID(id)
	rsp.RCode = rcode
	rsp.Optype = optype
	rsp.Method = method
	rsp.Hosts = hosts

	body, err := rsp.Marshal()
	if err != nil {
		c.logger.Error("registry: failed to marshal response", zap.Error(err))
		return
	}
	conn.Send(message.RspService, id, body)
}
