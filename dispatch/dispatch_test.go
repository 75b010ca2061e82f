package dispatch

import (
	"testing"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

type fakeConn struct {
	netcore.Connection
	shutdown bool
}

func (f *fakeConn) Shutdown()            { f.shutdown = true }
func (f *fakeConn) Connected() bool      { return !f.shutdown }
func (f *fakeConn) RemoteAddr() string   { return "fake" }
func (f *fakeConn) Send(message.MType, string, []byte) bool { return true }
func (f *fakeConn) SetOnUp(netcore.OnUpFunc)           {}
func (f *fakeConn) SetOnDown(netcore.OnDownFunc)       {}
func (f *fakeConn) SetOnMessage(netcore.OnMessageFunc) {}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New(nil)
	var got *message.RpcRequest
	RegisterHandler(d, message.ReqRPC, func(conn netcore.Connection, msg *message.RpcRequest) {
		got = msg
	})

	conn := &fakeConn{}
	d.OnRawMessage(conn, message.ReqRPC, "id-1", []byte(`{"method":"Add","parameters":{}}`))

	if got == nil || got.Method != "Add" {
		t.Fatalf("handler did not receive decoded request: %+v", got)
	}
	if conn.shutdown {
		t.Fatal("connection should not be shut down on a valid message")
	}
}

func TestDispatchClosesOnParseFailure(t *testing.T) {
	d := New(nil)
	RegisterHandler(d, message.ReqRPC, func(conn netcore.Connection, msg *message.RpcRequest) {})

	conn := &fakeConn{}
	d.OnRawMessage(conn, message.ReqRPC, "id-2", []byte(`{"method":"Add"}`)) // missing parameters

	if !conn.shutdown {
		t.Fatal("expected connection shutdown on Check failure")
	}
}

func TestDispatchClosesOnUnregisteredType(t *testing.T) {
	d := New(nil)
	conn := &fakeConn{}
	d.OnRawMessage(conn, message.ReqTopic, "id-3", []byte(`{"topic_key":"k","optype":0}`))

	if !conn.shutdown {
		t.Fatal("expected connection shutdown for an unregistered message type")
	}
}
