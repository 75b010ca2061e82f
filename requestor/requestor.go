// Package requestor implements the client-side correlation table described
// in §4.5: it pairs outbound request ids with a pending completion —
// future, synchronous wait, or callback — and resolves that completion when
// the matching response arrives, or with RCodeDisconnected when the owning
// connection goes down.
package requestor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

// Mode distinguishes the two non-synchronous completion shapes. The
// original C++ source reused one REQ_ASYNC enum value for both; this keeps
// them as two explicit, non-overlapping values instead.
type Mode int

const (
	ModeAsync Mode = iota
	ModeCallback
)

// Future resolves to the response message once it arrives.
type Future struct {
	ch chan message.Message
}

// Wait blocks until the response is delivered or the connection closes.
func (f *Future) Wait() message.Message { return <-f.ch }

type entry struct {
	id      string
	conn    netcore.Connection
	reqType message.MType
	mode    Mode
	done    chan message.Message
	cb      func(message.Message)
}

// Requestor is owned by one request-issuing role (rpcclient, a
// registry.Client, a broker.Client each create their own).
// One correlation table serves all connections that role owns; entries are
// additionally indexed per connection so a close sweep can find them.
type Requestor struct {
	mu      sync.Mutex
	byID    map[string]*entry
	byConn  map[netcore.Connection]map[string]*entry
	logger  *zap.Logger
}

// New creates an empty correlation table.
func New(logger *zap.Logger) *Requestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Requestor{
		byID:   make(map[string]*entry),
		byConn: make(map[netcore.Connection]map[string]*entry),
		logger: logger,
	}
}

func (r *Requestor) track(e *entry) {
	r.mu.Lock()
	r.byID[e.id] = e
	conns, ok := r.byConn[e.conn]
	if !ok {
		conns = make(map[string]*entry)
		r.byConn[e.conn] = conns
	}
	conns[e.id] = e
	r.mu.Unlock()
}

func (r *Requestor) untrack(e *entry) {
	r.mu.Lock()
	delete(r.byID, e.id)
	if conns, ok := r.byConn[e.conn]; ok {
		delete(conns, e.id)
		if len(conns) == 0 {
			delete(r.byConn, e.conn)
		}
	}
	r.mu.Unlock()
}

func (r *Requestor) send(conn netcore.Connection, req message.Message, mode Mode, cb func(message.Message)) (*Future, error) {
	body, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("requestor: marshal request: %w", err)
	}

	e := &entry{id: req.ID(), conn: conn, reqType: req.Type(), mode: mode, cb: cb}
	if mode == ModeAsync {
		e.done = make(chan message.Message, 1)
	}
	r.track(e)

	if !conn.Send(req.Type(), req.ID(), body) {
		r.untrack(e)
		return nil, fmt.Errorf("requestor: connection is not up")
	}

	if mode == ModeAsync {
		return &Future{ch: e.done}, nil
	}
	return nil, nil
}

// SendAsync sends req and returns a Future resolving to the response.
func (r *Requestor) SendAsync(conn netcore.Connection, req message.Message) (*Future, error) {
	return r.send(conn, req, ModeAsync, nil)
}

// SendSync sends req and blocks for the response.
func (r *Requestor) SendSync(conn netcore.Connection, req message.Message) (message.Message, error) {
	f, err := r.send(conn, req, ModeAsync, nil)
	if err != nil {
		return nil, err
	}
	return f.Wait(), nil
}

// SendCallback sends req and invokes cb with the response on the dispatch
// thread once it arrives.
func (r *Requestor) SendCallback(conn netcore.Connection, req message.Message, cb func(message.Message)) error {
	_, err := r.send(conn, req, ModeCallback, cb)
	return err
}

// onResponse looks up the pending entry by msg.ID(), completes it, and
// removes it — every entry is removed exactly once, per §4.5's contract.
// A response with an unknown id (already completed, or never sent) is
// logged and discarded.
func (r *Requestor) onResponse(msg message.Message) {
	r.mu.Lock()
	e, ok := r.byID[msg.ID()]
	if ok {
		delete(r.byID, msg.ID())
		if conns, ok := r.byConn[e.conn]; ok {
			delete(conns, e.id)
			if len(conns) == 0 {
				delete(r.byConn, e.conn)
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("requestor: response with unknown id discarded", zap.String("id", msg.ID()))
		return
	}

	switch e.mode {
	case ModeAsync:
		e.done <- msg
	case ModeCallback:
		if e.cb != nil {
			e.cb(msg)
		}
	}
}

// OnRpcResponse is the Dispatcher handler for RspRPC.
func (r *Requestor) OnRpcResponse(conn netcore.Connection, msg *message.RpcResponse) { r.onResponse(msg) }

// OnTopicResponse is the Dispatcher handler for RspTopic.
func (r *Requestor) OnTopicResponse(conn netcore.Connection, msg *message.TopicResponse) { r.onResponse(msg) }

// OnServiceResponse is the Dispatcher handler for RspService.
func (r *Requestor) OnServiceResponse(conn netcore.Connection, msg *message.ServiceResponse) { r.onResponse(msg) }

// OnConnectionDown completes every entry still pending on conn with a
// synthetic DISCONNECTED response of the matching variant, so no caller
// blocks forever waiting on a connection that will never answer.
func (r *Requestor) OnConnectionDown(conn netcore.Connection) {
	r.mu.Lock()
	conns := r.byConn[conn]
	delete(r.byConn, conn)
	var victims []*entry
	for id, e := range conns {
		delete(r.byID, id)
		victims = append(victims, e)
	}
	r.mu.Unlock()

	for _, e := range victims {
		rsp := disconnectedResponse(e.reqType, e.id)
		switch e.mode {
		case ModeAsync:
			e.done <- rsp
		case ModeCallback:
			if e.cb != nil {
				e.cb(rsp)
			}
		}
	}
}

func disconnectedResponse(reqType message.MType, id string) message.Message {
	rspType := reqType
	switch reqType {
	case message.ReqRPC:
		rspType = message.RspRPC
	case message.ReqTopic:
		rspType = message.RspTopic
	case message.ReqService:
		rspType = message.RspService
	}

	m, err := message.New(rspType)
	if err != nil {
		// reqType was never one of the three request tags; fall back to a
		// bare RpcResponse so the caller still gets an RCodeDisconnected.
		m, _ = message.New(message.RspRPC)
	}
	m.SetID(id)
	switch v := m.(type) {
	case *message.RpcResponse:
		v.RCode = message.RCodeDisconnected
	case *message.TopicResponse:
		v.RCode = message.RCodeDisconnected
	case *message.ServiceResponse:
		v.RCode = message.RCodeDisconnected
	}
	return m
}
