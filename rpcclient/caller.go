package rpcclient

import (
	"rpcmesh/internal/idgen"
	"rpcmesh/message"
)

// caller builds an RpcRequest out of a method name and parameters, kept as
// its own small type the way the original split "build a request" out of
// RpcClient into a separate RpcCaller.
type caller struct{}

func newCaller() *caller { return &caller{} }

func (c *caller) build(method string, params map[string]interface{}) *message.RpcRequest {
	m, _ := message.New(message.ReqRPC)
	req := m.(*message.RpcRequest)
	req.SetID(idgen.New())
	req.Method = method
	if params == nil {
		params = map[string]interface{}{}
	}
	req.Parameters = params
	return req
}
