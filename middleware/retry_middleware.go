package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rpcmesh/message"
)

// RetryMiddleware retries next up to maxRetries times, with exponential
// backoff starting at baseDelay, whenever the response carries
// RCodeInternalError — the rcode TimeOutMiddleware and a panicking handler
// both report, the closest analogue to the teacher's "timeout" / "connection
// refused" substring check. Any other non-OK rcode is returned immediately.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			rsp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if rsp.RCode != message.RCodeInternalError {
					return rsp
				}
				logger.Debug("middleware: retrying request",
					zap.Int("attempt", i+1), zap.String("method", req.Method))
				time.Sleep(baseDelay * time.Duration(1<<i))
				rsp = next(ctx, req)
			}
			return rsp
		}
	}
}
