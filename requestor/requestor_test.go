package requestor

import (
	"testing"
	"time"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

type fakeConn struct {
	netcore.Connection
	up   bool
	sent []message.MType
}

func newFakeConn() *fakeConn { return &fakeConn{up: true} }

func (f *fakeConn) Send(mtype message.MType, id string, body []byte) bool {
	if !f.up {
		return false
	}
	f.sent = append(f.sent, mtype)
	return true
}
func (f *fakeConn) Shutdown()          { f.up = false }
func (f *fakeConn) Connected() bool    { return f.up }
func (f *fakeConn) RemoteAddr() string { return "fake" }
func (f *fakeConn) SetOnUp(netcore.OnUpFunc)           {}
func (f *fakeConn) SetOnDown(netcore.OnDownFunc)       {}
func (f *fakeConn) SetOnMessage(netcore.OnMessageFunc) {}

func newRequest(id string) *message.RpcRequest {
	req := &message.RpcRequest{Method: "Add", Parameters: map[string]interface{}{"a": 1.0}}
	req.SetID(id)
	return req
}

func TestSendAsyncResolvesOnResponse(t *testing.T) {
	r := New(nil)
	conn := newFakeConn()
	req := newRequest("id-1")

	future, err := r.SendAsync(conn, req)
	if err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	rsp := &message.RpcResponse{RCode: message.RCodeOK, Result: 42.0}
	rsp.SetID("id-1")
	r.OnRpcResponse(conn, rsp)

	select {
	case got := <-future.ch:
		if got.(*message.RpcResponse).RCode != message.RCodeOK {
			t.Fatalf("unexpected rcode: %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("future never resolved")
	}
}

func TestSendCallbackInvokedOnResponse(t *testing.T) {
	r := New(nil)
	conn := newFakeConn()
	req := newRequest("id-2")

	done := make(chan message.Message, 1)
	if err := r.SendCallback(conn, req, func(msg message.Message) { done <- msg }); err != nil {
		t.Fatalf("SendCallback: %v", err)
	}

	rsp := &message.RpcResponse{RCode: message.RCodeOK}
	rsp.SetID("id-2")
	r.OnRpcResponse(conn, rsp)

	select {
	case msg := <-done:
		if msg.ID() != "id-2" {
			t.Fatalf("callback got wrong id: %s", msg.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestUnknownResponseIDDiscarded(t *testing.T) {
	r := New(nil)
	conn := newFakeConn()
	rsp := &message.RpcResponse{RCode: message.RCodeOK}
	rsp.SetID("never-sent")
	r.OnRpcResponse(conn, rsp) // must not panic
}

func TestConnectionDownCompletesPendingWithDisconnected(t *testing.T) {
	r := New(nil)
	conn := newFakeConn()
	req := newRequest("id-3")

	future, err := r.SendAsync(conn, req)
	if err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	r.OnConnectionDown(conn)

	select {
	case got := <-future.ch:
		rsp, ok := got.(*message.RpcResponse)
		if !ok || rsp.RCode != message.RCodeDisconnected {
			t.Fatalf("expected RCodeDisconnected RpcResponse, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("future never resolved after connection down")
	}
}

func TestSendFailsWhenConnectionNotUp(t *testing.T) {
	r := New(nil)
	conn := newFakeConn()
	conn.up = false
	req := newRequest("id-4")

	if _, err := r.SendAsync(conn, req); err == nil {
		t.Fatal("expected error sending on a down connection")
	}
}
