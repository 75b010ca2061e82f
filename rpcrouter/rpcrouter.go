// Package rpcrouter implements the server-side method registry described
// in §4.6: a ServiceDescribe per method built via a Builder, parameter and
// return value-kind checking, and the RpcRequest/RpcResponse dispatch loop
// that validates, invokes, and replies.
package rpcrouter

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

// VType is the value-kind schema a parameter or return value must match.
type VType int

const (
	VBool VType = iota
	VIntegral
	VNumeric
	VString
	VArray
	VObject
)

func matchesVType(kind VType, v interface{}) bool {
	switch kind {
	case VBool:
		_, ok := v.(bool)
		return ok
	case VIntegral:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case VNumeric:
		_, ok := v.(float64)
		return ok
	case VString:
		_, ok := v.(string)
		return ok
	case VArray:
		_, ok := v.([]interface{})
		return ok
	case VObject:
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return false
	}
}

// Param is one entry in a ServiceDescribe's ordered parameter schema.
type Param struct {
	Name string
	Kind VType
}

// HandlerFunc is the business logic bound to a registered method. It
// receives the request's already-validated parameters and returns a result
// value whose kind must match the ServiceDescribe's Return.
type HandlerFunc func(params map[string]interface{}) (interface{}, error)

// ServiceDescribe is the method name, ordered parameter schema, expected
// return kind, and handler closure the router stores per method.
type ServiceDescribe struct {
	Method  string
	Params  []Param
	Return  VType
	Handler HandlerFunc
}

// Builder assembles a ServiceDescribe fluently.
type Builder struct {
	d ServiceDescribe
}

// NewBuilder starts building the ServiceDescribe for method.
func NewBuilder(method string) *Builder {
	return &Builder{d: ServiceDescribe{Method: method}}
}

// Param appends one parameter to the schema. Parameters not listed here are
// permitted in the request but unchecked — an open schema at the tail.
func (b *Builder) Param(name string, kind VType) *Builder {
	b.d.Params = append(b.d.Params, Param{Name: name, Kind: kind})
	return b
}

// Returns sets the expected return value-kind.
func (b *Builder) Returns(kind VType) *Builder {
	b.d.Return = kind
	return b
}

// Handler sets the business logic closure.
func (b *Builder) Handler(f HandlerFunc) *Builder {
	b.d.Handler = f
	return b
}

// Build finalizes the ServiceDescribe.
func (b *Builder) Build() ServiceDescribe { return b.d }

// Router is the server-side method registry plus the RpcRequest handler
// bound to the Dispatcher for every RPC-serving connection.
type Router struct {
	mu       sync.RWMutex
	services map[string]ServiceDescribe
	logger   *zap.Logger
}

// New creates an empty Router.
func New(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{services: make(map[string]ServiceDescribe), logger: logger}
}

// Register adds or replaces the ServiceDescribe for its method.
func (r *Router) Register(d ServiceDescribe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[d.Method] = d
}

func (r *Router) lookup(method string) (ServiceDescribe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.services[method]
	return d, ok
}

// OnRpcRequest is the Dispatcher handler for ReqRPC: validate, invoke,
// reply. Every path replies exactly once, carrying the request's id on
// RspRPC, per §4.6.
func (r *Router) OnRpcRequest(conn netcore.Connection, req *message.RpcRequest) {
	rsp := r.Handle(context.Background(), req)
	r.Send(conn, rsp)
}

// Handle runs validate-invoke-check without touching the wire, so a caller
// can compose cross-cutting concerns (middleware.Bind) around it before the
// response is sent. ctx is not passed to the service's HandlerFunc, and the
// router itself never consults it.
func (r *Router) Handle(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	svc, ok := r.lookup(req.Method)
	if !ok {
		return r.response(req.ID(), message.RCodeNotFoundService, nil)
	}

	for _, p := range svc.Params {
		val, present := req.Parameters[p.Name]
		if !present || !matchesVType(p.Kind, val) {
			return r.response(req.ID(), message.RCodeInvalidParams, nil)
		}
	}

	result, err := invoke(svc.Handler, req.Parameters)
	if err != nil {
		r.logger.Debug("rpcrouter: handler error", zap.String("method", req.Method), zap.Error(err))
		return r.response(req.ID(), message.RCodeInternalError, nil)
	}
	if !matchesVType(svc.Return, result) {
		return r.response(req.ID(), message.RCodeInternalError, nil)
	}

	return r.response(req.ID(), message.RCodeOK, result)
}

// invoke calls the handler, converting a panic — the Go analogue of the
// "abnormal termination in the underlying runtime" the spec calls out — into
// an error the caller folds into INTERNAL_ERROR.
func invoke(h HandlerFunc, params map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rpcrouter: handler panicked: %v", p)
		}
	}()
	return h(params)
}

func (r *Router) response(id string, rcode message.RCode, result interface{}) *message.RpcResponse {
	m, _ := message.New(message.RspRPC)
	rsp := m.(*message.RpcResponse)
	rsp.SetID(id)
	rsp.RCode = rcode
	rsp.Result = result
	return rsp
}

// Send marshals rsp and writes it to conn, tagged RspRPC. Exported so
// middleware.Bind can deliver the response Handle returns without
// reaching into the router's internals.
func (r *Router) Send(conn netcore.Connection, rsp *message.RpcResponse) {
	body, err := rsp.Marshal()
	if err != nil {
		r.logger.Error("rpcrouter: failed to marshal response", zap.Error(err))
		return
	}
	conn.Send(message.RspRPC, rsp.ID(), body)
}
