package rpcrouter

import (
	"testing"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

type fakeConn struct {
	netcore.Connection
	lastBody []byte
}

func (f *fakeConn) Send(mtype message.MType, id string, body []byte) bool {
	f.lastBody = body
	return true
}
func (f *fakeConn) Shutdown()          {}
func (f *fakeConn) Connected() bool    { return true }
func (f *fakeConn) RemoteAddr() string { return "fake" }
func (f *fakeConn) SetOnUp(netcore.OnUpFunc)           {}
func (f *fakeConn) SetOnDown(netcore.OnDownFunc)       {}
func (f *fakeConn) SetOnMessage(netcore.OnMessageFunc) {}

func (f *fakeConn) response() *message.RpcResponse {
	m, err := message.Decode(message.RspRPC, "", f.lastBody)
	if err != nil {
		panic(err)
	}
	return m.(*message.RpcResponse)
}

func newRouterWithAdd() *Router {
	r := New(nil)
	r.Register(NewBuilder("Add").
		Param("num1", VIntegral).
		Param("num2", VIntegral).
		Returns(VIntegral).
		Handler(func(params map[string]interface{}) (interface{}, error) {
			return params["num1"].(float64) + params["num2"].(float64), nil
		}).
		Build())
	return r
}

func TestRpcRouterAddSucceeds(t *testing.T) {
	r := newRouterWithAdd()
	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "Add", Parameters: map[string]interface{}{"num1": 11.0, "num2": 22.0}}
	req.SetID("r1")

	r.OnRpcRequest(conn, req)

	rsp := conn.response()
	if rsp.RCode != message.RCodeOK {
		t.Fatalf("expected OK, got %v", rsp.RCode)
	}
	if rsp.Result.(float64) != 33.0 {
		t.Fatalf("expected 33, got %v", rsp.Result)
	}
}

func TestRpcRouterUnknownMethod(t *testing.T) {
	r := newRouterWithAdd()
	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "Mul", Parameters: map[string]interface{}{}}
	req.SetID("r2")

	r.OnRpcRequest(conn, req)

	if conn.response().RCode != message.RCodeNotFoundService {
		t.Fatalf("expected NOT_FOUND_SERVICE, got %v", conn.response().RCode)
	}
}

func TestRpcRouterBadParamType(t *testing.T) {
	r := newRouterWithAdd()
	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "Add", Parameters: map[string]interface{}{"num1": "eleven", "num2": 22.0}}
	req.SetID("r3")

	r.OnRpcRequest(conn, req)

	if conn.response().RCode != message.RCodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %v", conn.response().RCode)
	}
}

func TestRpcRouterHandlerPanicBecomesInternalError(t *testing.T) {
	r := New(nil)
	r.Register(NewBuilder("Boom").
		Returns(VString).
		Handler(func(params map[string]interface{}) (interface{}, error) {
			panic("kaboom")
		}).
		Build())
	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "Boom", Parameters: map[string]interface{}{}}
	req.SetID("r4")

	r.OnRpcRequest(conn, req)

	if conn.response().RCode != message.RCodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR, got %v", conn.response().RCode)
	}
}

func TestRpcRouterReturnTypeMismatch(t *testing.T) {
	r := New(nil)
	r.Register(NewBuilder("WrongReturn").
		Returns(VString).
		Handler(func(params map[string]interface{}) (interface{}, error) {
			return 42.0, nil
		}).
		Build())
	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "WrongReturn", Parameters: map[string]interface{}{}}
	req.SetID("r5")

	r.OnRpcRequest(conn, req)

	if conn.response().RCode != message.RCodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR, got %v", conn.response().RCode)
	}
}

func TestRpcRouterOpenSchemaAllowsExtraParams(t *testing.T) {
	r := newRouterWithAdd()
	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "Add", Parameters: map[string]interface{}{"num1": 1.0, "num2": 2.0, "extra": "ignored"}}
	req.SetID("r6")

	r.OnRpcRequest(conn, req)

	if conn.response().RCode != message.RCodeOK {
		t.Fatalf("expected OK despite unlisted extra param, got %v", conn.response().RCode)
	}
}
