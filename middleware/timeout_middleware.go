package middleware

import (
	"context"
	"time"

	"rpcmesh/message"
)

// TimeOutMiddleware bounds next's execution to timeout, replying
// RCodeInternalError if it runs past the deadline. There is no dedicated
// TIMEOUT rcode in the wire taxonomy (§5 notes the protocol itself has no
// request-level timeout); this is a local resource bound on the server
// side, reported the same way a handler panic is.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RpcResponse, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case rsp := <-done:
				return rsp
			case <-ctx.Done():
				rsp := &message.RpcResponse{RCode: message.RCodeInternalError}
				rsp.SetID(req.ID())
				return rsp
			}
		}
	}
}
