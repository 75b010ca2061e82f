// Package broker implements §4.8: the topic index, the subscriber index,
// and the fan-out that delivers a PUBLISH to every subscriber of a topic in
// publish order.
package broker

import (
	"sync"

	"go.uber.org/zap"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

// TopicEntry tracks one topic's current subscriber set.
type TopicEntry struct {
	mu          sync.Mutex
	subscribers map[netcore.Connection]struct{}
}

// SubscriberEntry tracks one connection's current topic subscriptions.
type SubscriberEntry struct {
	mu     sync.Mutex
	topics map[string]struct{}
}

// Core is the in-memory broker §4.8 mandates: topics and subscribers are
// two cross-linked indices guarded by an outer mutex, with per-entry
// mutexes for the inner sets. Every fan-out — PUBLISH to subscribers, or
// OnConnectionDown unlinking a dead connection — snapshots its victim set
// under the relevant lock, releases it, then sends or mutates outside all
// locks, per §5.
type Core struct {
	mu sync.Mutex

	topics      map[string]*TopicEntry
	subscribers map[netcore.Connection]*SubscriberEntry

	logger *zap.Logger
}

// New creates an empty Core.
func New(logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		topics:      make(map[string]*TopicEntry),
		subscribers: make(map[netcore.Connection]*SubscriberEntry),
		logger:      logger,
	}
}

// OnTopicRequest is the Dispatcher handler for ReqTopic.
func (c *Core) OnTopicRequest(conn netcore.Connection, req *message.TopicRequest) {
	switch req.Optype {
	case message.TopicCreate:
		c.create(req.TopicKey)
		c.reply(conn, req.ID(), message.RCodeOK)

	case message.TopicRemove:
		c.remove(req.TopicKey)
		c.reply(conn, req.ID(), message.RCodeOK)

	case message.TopicSubscribe:
		if !c.subscribe(conn, req.TopicKey) {
			c.reply(conn, req.ID(), message.RCodeNotFoundTopic)
			return
		}
		c.reply(conn, req.ID(), message.RCodeOK)

	case message.TopicCancel:
		c.cancel(conn, req.TopicKey)
		c.reply(conn, req.ID(), message.RCodeOK)

	case message.TopicPublish:
		if !c.publish(conn, req) {
			c.reply(conn, req.ID(), message.RCodeNotFoundTopic)
			return
		}
		c.reply(conn, req.ID(), message.RCodeOK)

	default:
		c.reply(conn, req.ID(), message.RCodeInvalidOptype)
	}
}

// create idempotently allocates a TopicEntry.
func (c *Core) create(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; !ok {
		c.topics[topic] = &TopicEntry{subscribers: make(map[netcore.Connection]struct{})}
	}
}

// remove drops the topic and unlinks it from every subscriber that held
// it.
func (c *Core) remove(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.topics[topic]
	if !ok {
		return
	}
	delete(c.topics, topic)

	entry.mu.Lock()
	subs := make([]netcore.Connection, 0, len(entry.subscribers))
	for conn := range entry.subscribers {
		subs = append(subs, conn)
	}
	entry.mu.Unlock()

	for _, conn := range subs {
		if sub, ok := c.subscribers[conn]; ok {
			sub.mu.Lock()
			delete(sub.topics, topic)
			sub.mu.Unlock()
		}
	}
}

// subscribe cross-links conn into topic's subscriber set. It reports false
// if topic does not exist.
func (c *Core) subscribe(conn netcore.Connection, topic string) bool {
	c.mu.Lock()
	entry, ok := c.topics[topic]
	if !ok {
		c.mu.Unlock()
		return false
	}
	sub, ok := c.subscribers[conn]
	if !ok {
		sub = &SubscriberEntry{topics: make(map[string]struct{})}
		c.subscribers[conn] = sub
	}
	c.mu.Unlock()

	entry.mu.Lock()
	entry.subscribers[conn] = struct{}{}
	entry.mu.Unlock()

	sub.mu.Lock()
	sub.topics[topic] = struct{}{}
	sub.mu.Unlock()
	return true
}

// cancel unlinks conn's subscription to topic, if any. It is a no-op, not
// an error, when the subscription is already absent.
func (c *Core) cancel(conn netcore.Connection, topic string) {
	c.mu.Lock()
	entry, topicOK := c.topics[topic]
	sub, subOK := c.subscribers[conn]
	c.mu.Unlock()

	if topicOK {
		entry.mu.Lock()
		delete(entry.subscribers, conn)
		entry.mu.Unlock()
	}
	if subOK {
		sub.mu.Lock()
		delete(sub.topics, topic)
		sub.mu.Unlock()
	}
}

// publish fans req out to every current subscriber of its topic. Per §5's
// lock-ordering invariant, the subscriber set is snapshotted under the
// topic's own lock and the lock is released before any Send runs — a slow
// or blocked subscriber must never hold up CREATE/REMOVE/SUBSCRIBE/CANCEL
// or a concurrent PUBLISH on the same topic. §4.8's publish-order guarantee
// still holds without the lock: one connection's frames are decoded and
// dispatched one at a time on that connection's own read loop, so a second
// PUBLISH from the same publisher can't even begin until this one has
// finished sending to every subscriber. It reports false if the topic does
// not exist.
func (c *Core) publish(conn netcore.Connection, req *message.TopicRequest) bool {
	c.mu.Lock()
	entry, ok := c.topics[req.TopicKey]
	c.mu.Unlock()
	if !ok {
		return false
	}

	body, err := req.Marshal()
	if err != nil {
		c.logger.Error("broker: failed to marshal publish fan-out", zap.Error(err))
		return true
	}

	entry.mu.Lock()
	subs := make([]netcore.Connection, 0, len(entry.subscribers))
	for subConn := range entry.subscribers {
		subs = append(subs, subConn)
	}
	entry.mu.Unlock()

	for _, subConn := range subs {
		subConn.Send(message.ReqTopic, req.ID(), body)
	}
	return true
}

// OnConnectionDown drops conn's SubscriberEntry and unlinks it from every
// topic it held. A publisher that never subscribed needs no cleanup here.
func (c *Core) OnConnectionDown(conn netcore.Connection) {
	c.mu.Lock()
	sub, ok := c.subscribers[conn]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subscribers, conn)

	sub.mu.Lock()
	topics := make([]string, 0, len(sub.topics))
	for t := range sub.topics {
		topics = append(topics, t)
	}
	sub.mu.Unlock()
	c.mu.Unlock()

	c.mu.Lock()
	entries := make([]*TopicEntry, 0, len(topics))
	for _, t := range topics {
		if entry, ok := c.topics[t]; ok {
			entries = append(entries, entry)
		}
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		delete(entry.subscribers, conn)
		entry.mu.Unlock()
	}
}

func (c *Core) reply(conn netcore.Connection, id string, rcode message.RCode) {
	m, _ := message.New(message.RspTopic)
	rsp := m.(*message.TopicResponse)
	rsp.SetID(id)
	rsp.RCode = rcode

	body, err := rsp.Marshal()
	if err != nil {
		c.logger.Error("broker: failed to marshal response", zap.Error(err))
		return
	}
	conn.Send(message.RspTopic, id, body)
}
