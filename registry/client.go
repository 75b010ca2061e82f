package registry

import (
	"fmt"

	"go.uber.org/zap"

	"rpcmesh/dispatch"
	"rpcmesh/internal/idgen"
	"rpcmesh/message"
	"rpcmesh/netcore"
	"rpcmesh/requestor"
)

// NotifyFunc is invoked whenever the registry pushes an unsolicited
// ONLINE/OFFLINE ServiceRequest to this Client.
type NotifyFunc func(optype message.ServiceOptype, method string, host HostAddr)

// Client is the thin wire wrapper around ServiceRequest/ServiceResponse the
// original's ReigstryClient/DiscoveryClient provided: RegisterMethod and
// Discover instead of hand-building requests, plus a callback for the
// registry's unsolicited online/offline pushes.
type Client struct {
	conn       netcore.Connection
	requestor  *requestor.Requestor
	dispatcher *dispatch.Dispatcher
	onNotify   NotifyFunc
	logger     *zap.Logger
}

// Dial connects to a registry server at addr.
func Dial(addr string, onNotify NotifyFunc, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		requestor:  requestor.New(logger),
		dispatcher: dispatch.New(logger),
		onNotify:   onNotify,
		logger:     logger,
	}

	dispatch.RegisterHandler(c.dispatcher, message.RspService, c.requestor.OnServiceResponse)
	dispatch.RegisterHandler(c.dispatcher, message.ReqService, c.onPush)

	conn, err := netcore.Connect(addr, logger, func(conn netcore.Connection) {
		c.dispatcher.Bind(conn)
		conn.SetOnDown(func(conn netcore.Connection) { c.requestor.OnConnectionDown(conn) })
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// onPush handles the registry's unsolicited ONLINE/OFFLINE ServiceRequest
// pushes — they arrive tagged ReqService, not RspService, since the
// registry is the one initiating them.
func (c *Client) onPush(conn netcore.Connection, req *message.ServiceRequest) {
	if req.Optype != message.ServiceOnline && req.Optype != message.ServiceOffline {
		c.logger.Warn("registry client: unexpected push optype", zap.Int("optype", int(req.Optype)))
		return
	}
	host := HostAddr{}
	if req.Host != nil {
		host = *req.Host
	}
	if c.onNotify != nil {
		c.onNotify(req.Optype, req.Method, host)
	}
}

func (c *Client) newRequest(method string, optype message.ServiceOptype, host *HostAddr) *message.ServiceRequest {
	m, _ := message.New(message.ReqService)
	req := m.(*message.ServiceRequest)
	req.SetID(idgen.New())
	req.Method = method
	req.Optype = optype
	req.Host = host
	return req
}

// RegisterMethod advertises host as a provider of method.
func (c *Client) RegisterMethod(method string, host HostAddr) error {
	req := c.newRequest(method, message.ServiceRegistry, &host)
	msg, err := c.requestor.SendSync(c.conn, req)
	if err != nil {
		return err
	}
	rsp := msg.(*message.ServiceResponse)
	if rsp.RCode != message.RCodeOK {
		return fmt.Errorf("registry: register %q: %s", method, rsp.RCode)
	}
	return nil
}

// Discover resolves the current provider hosts for method.
func (c *Client) Discover(method string) ([]HostAddr, error) {
	req := c.newRequest(method, message.ServiceDiscovery, nil)
	msg, err := c.requestor.SendSync(c.conn, req)
	if err != nil {
		return nil, err
	}
	rsp := msg.(*message.ServiceResponse)
	if rsp.RCode == message.RCodeNotFoundService {
		return nil, nil
	}
	if rsp.RCode != message.RCodeOK {
		return nil, fmt.Errorf("registry: discover %q: %s", method, rsp.RCode)
	}
	return rsp.Hosts, nil
}

// Close shuts down the connection to the registry.
func (c *Client) Close() { c.conn.Shutdown() }
