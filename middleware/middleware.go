// Package middleware composes cross-cutting concerns — logging, retry,
// timeout, rate limiting — around rpcrouter.Router's RpcRequest → RpcResponse
// dispatch, the way the teacher's Chain/HandlerFunc composed them around its
// raw message.RPCMessage handler.
package middleware

import (
	"context"

	"rpcmesh/message"
	"rpcmesh/netcore"
	"rpcmesh/rpcrouter"
)

// HandlerFunc is the request/response shape middleware wraps: a pure
// function from an RpcRequest to its RpcResponse, with no side effect on
// the wire — delivering the result is Bind's job, not the handler's.
type HandlerFunc func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse

// Middleware wraps a HandlerFunc with one cross-cutting concern.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, applied outermost-first: the first
// middleware in the list is the first to see the request and the last to
// see the response.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Bind wraps router.Handle in chain and returns a Dispatcher-compatible
// handler for ReqRPC, so a server can register rate limiting, retry,
// logging, or timeout in front of a rpcrouter.Router without that router
// needing to know middleware exists.
func Bind(router *rpcrouter.Router, chain Middleware) func(netcore.Connection, *message.RpcRequest) {
	handler := chain(func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
		return router.Handle(ctx, req)
	})
	return func(conn netcore.Connection, req *message.RpcRequest) {
		rsp := handler(context.Background(), req)
		router.Send(conn, rsp)
	}
}
