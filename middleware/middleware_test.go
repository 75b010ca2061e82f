package middleware

import (
	"context"
	"testing"
	"time"

	"rpcmesh/message"
)

func newReq(method string) *message.RpcRequest {
	req := &message.RpcRequest{Method: method, Parameters: map[string]interface{}{}}
	req.SetID("req-1")
	return req
}

func echoHandler(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	rsp := &message.RpcResponse{RCode: message.RCodeOK, Result: "ok"}
	rsp.SetID(req.ID())
	return rsp
}

func slowHandler(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(nil)(echoHandler)

	resp := handler(context.Background(), newReq("Arith.Add"))
	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.RCode != message.RCodeOK {
		t.Fatalf("expect OK, got %v", resp.RCode)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newReq("Arith.Add"))
	if resp.RCode != message.RCodeOK {
		t.Fatalf("expect OK, got %v", resp.RCode)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newReq("Arith.Add"))
	if resp.RCode != message.RCodeInternalError {
		t.Fatalf("expect INTERNAL_ERROR, got %v", resp.RCode)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass immediately, the third
	// is throttled.
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := newReq("Arith.Add")

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		if resp.RCode != message.RCodeOK {
			t.Fatalf("request %d should pass, got %v", i, resp.RCode)
		}
	}

	resp := handler(context.Background(), req)
	if resp.RCode != message.RCodeInternalError {
		t.Fatalf("request 3 should be rate limited, got %v", resp.RCode)
	}
}

func TestRetryRecoversFromInternalError(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
		attempts++
		if attempts < 3 {
			rsp := &message.RpcResponse{RCode: message.RCodeInternalError}
			rsp.SetID(req.ID())
			return rsp
		}
		return echoHandler(ctx, req)
	}

	handler := RetryMiddleware(nil, 5, time.Millisecond)(flaky)
	resp := handler(context.Background(), newReq("Arith.Add"))
	if resp.RCode != message.RCodeOK {
		t.Fatalf("expect eventual OK, got %v after %d attempts", resp.RCode, attempts)
	}
	if attempts != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryNonInternalError(t *testing.T) {
	attempts := 0
	handler := RetryMiddleware(nil, 5, time.Millisecond)(func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
		attempts++
		rsp := &message.RpcResponse{RCode: message.RCodeInvalidParams}
		rsp.SetID(req.ID())
		return rsp
	})

	resp := handler(context.Background(), newReq("Arith.Add"))
	if resp.RCode != message.RCodeInvalidParams {
		t.Fatalf("expect INVALID_PARAMS to pass through, got %v", resp.RCode)
	}
	if attempts != 1 {
		t.Fatalf("expect exactly one attempt for a non-retryable rcode, got %d", attempts)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(nil), TimeOutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)

	resp := handler(context.Background(), newReq("Arith.Add"))
	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.RCode != message.RCodeOK {
		t.Fatalf("expect OK, got %v", resp.RCode)
	}
}
