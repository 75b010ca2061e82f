package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"rpcmesh/message"
)

// RateLimitMiddleware caps dispatch to r requests/second with burst
// capacity burst, using the teacher's token-bucket approach verbatim.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			if !limiter.Allow() {
				rsp := &message.RpcResponse{RCode: message.RCodeInternalError}
				rsp.SetID(req.ID())
				return rsp
			}
			return next(ctx, req)
		}
	}
}
