package broker

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rpcmesh/dispatch"
	"rpcmesh/internal/idgen"
	"rpcmesh/message"
	"rpcmesh/netcore"
	"rpcmesh/requestor"
)

// SubCallback is invoked on the connection's read-loop goroutine for every
// PUBLISH delivered on a subscribed topic, mirroring the original's
// TopicManager::SubCallback.
type SubCallback func(topic, msg string)

// Client is the thin wire wrapper around TopicRequest/TopicResponse the
// original's client-side TopicManager provided: Create/Remove/Subscribe/
// Cancel/Publish instead of hand-building requests, plus a per-topic
// callback invoked when a PUBLISH arrives on a subscribed topic.
type Client struct {
	conn       netcore.Connection
	requestor  *requestor.Requestor
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	mu   sync.Mutex
	subs map[string]SubCallback
}

// Dial connects to a broker server at addr.
func Dial(addr string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		requestor:  requestor.New(logger),
		dispatcher: dispatch.New(logger),
		logger:     logger,
		subs:       make(map[string]SubCallback),
	}

	dispatch.RegisterHandler(c.dispatcher, message.RspTopic, c.requestor.OnTopicResponse)
	dispatch.RegisterHandler(c.dispatcher, message.ReqTopic, c.onPublish)

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

// onPublish handles an unsolicited PUBLISH fan-out — it arrives tagged
// ReqTopic, carrying the publisher's original id, not a response the
// requestor correlation table is tracking.
func (c *Client) onPublish(conn netcore.Connection, req *message.TopicRequest) {
	if req.Optype != message.TopicPublish {
		c.logger.Warn("broker client: unexpected push optype", zap.Int("optype", int(req.Optype)))
		return
	}
	c.mu.Lock()
	cb := c.subs[req.TopicKey]
	c.mu.Unlock()
	if cb != nil {
		cb(req.TopicKey, req.TopicMsg)
	}
}

func (c *Client) newRequest(topic string, optype message.TopicOptype, msg string) *message.TopicRequest {
	m, _ := message.New(message.ReqTopic)
	req := m.(*message.TopicRequest)
	req.SetID(idgen.New())
	req.TopicKey = topic
	req.Optype = optype
	req.TopicMsg = msg
	return req
}

func (c *Client) call(topic string, optype message.TopicOptype, msg string) error {
	req := c.newRequest(topic, optype, msg)
	out, err := c.requestor.SendSync(c.conn, req)
	if err != nil {
		return err
	}
	rsp := out.(*message.TopicResponse)
	if rsp.RCode != message.RCodeOK {
		return fmt.Errorf("broker: %v %q: %s", optype, topic, rsp.RCode)
	}
	return nil
}

// Create allocates topic, idempotently.
func (c *Client) Create(topic string) error { return c.call(topic, message.TopicCreate, "") }

// Remove drops topic.
func (c *Client) Remove(topic string) error { return c.call(topic, message.TopicRemove, "") }

// Subscribe joins topic and registers cb to receive every PUBLISH on it
// until Cancel is called.
func (c *Client) Subscribe(topic string, cb SubCallback) error {
	if err := c.call(topic, message.TopicSubscribe, ""); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	return nil
}

// Cancel leaves topic; no error if not currently subscribed.
func (c *Client) Cancel(topic string) error {
	if err := c.call(topic, message.TopicCancel, ""); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
	return nil
}

// Publish sends msg to every current subscriber of topic.
func (c *Client) Publish(topic, msg string) error {
	return c.call(topic, message.TopicPublish, msg)
}

// Close shuts down the connection to the broker.
func (c *Client) Close() { c.conn.Shutdown() }
