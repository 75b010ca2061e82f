package registry

import (
	"testing"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

type fakeConn struct {
	netcore.Connection
	id       int
	lastBody []byte
	lastType message.MType
}

func (f *fakeConn) Send(mtype message.MType, id string, body []byte) bool {
	f.lastType = mtype
	f.lastBody = body
	return true
}
func (f *fakeConn) Shutdown()          {}
func (f *fakeConn) Connected() bool    { return true }
func (f *fakeConn) RemoteAddr() string { return "fake" }
func (f *fakeConn) SetOnUp(netcore.OnUpFunc)           {}
func (f *fakeConn) SetOnDown(netcore.OnDownFunc)       {}
func (f *fakeConn) SetOnMessage(netcore.OnMessageFunc) {}

func decodeServiceResponse(t *testing.T, body []byte) *message.ServiceResponse {
	m, err := message.Decode(message.RspService, "", body)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m.(*message.ServiceResponse)
}

func TestDiscoveryBeforeAnyProviderReturnsNotFound(t *testing.T) {
	c := New(nil)
	discoverer := &fakeConn{id: 1}
	req := &message.ServiceRequest{Method: "Add", Optype: message.ServiceDiscovery}
	req.SetID("d1")

	c.OnServiceRequest(discoverer, req)

	rsp := decodeServiceResponse(t, discoverer.lastBody)
	if rsp.RCode != message.RCodeNotFoundService {
		t.Fatalf("expected NOT_FOUND_SERVICE, got %v", rsp.RCode)
	}
}

func TestProviderRegistrationNotifiesDiscoverer(t *testing.T) {
	c := New(nil)
	discoverer := &fakeConn{id: 1}
	discReq := &message.ServiceRequest{Method: "Add", Optype: message.ServiceDiscovery}
	discReq.SetID("d1")
	c.OnServiceRequest(discoverer, discReq)

	provider := &fakeConn{id: 2}
	host := HostAddr{IP: "1.1.1.1", Port: 9001}
	provReq := &message.ServiceRequest{Method: "Add", Optype: message.ServiceRegistry, Host: &host}
	provReq.SetID("p1")
	c.OnServiceRequest(provider, provReq)

	if discoverer.lastType != message.ReqService {
		t.Fatalf("expected discoverer to receive a ReqService push, got mtype %v", discoverer.lastType)
	}
	m, err := message.Decode(message.ReqService, "", discoverer.lastBody)
	if err != nil {
		t.Fatalf("decode push: %v", err)
	}
	push := m.(*message.ServiceRequest)
	if push.Optype != message.ServiceOnline || push.Host == nil || *push.Host != host {
		t.Fatalf("unexpected push: %+v", push)
	}

	providerAck := decodeServiceResponse(t, provider.lastBody)
	if providerAck.RCode != message.RCodeOK {
		t.Fatalf("expected registration ack OK, got %v", providerAck.RCode)
	}
}

func TestDiscoveryAfterRegistrationReturnsHost(t *testing.T) {
	c := New(nil)
	provider := &fakeConn{id: 1}
	host := HostAddr{IP: "2.2.2.2", Port: 7000}
	provReq := &message.ServiceRequest{Method: "Add", Optype: message.ServiceRegistry, Host: &host}
	provReq.SetID("p1")
	c.OnServiceRequest(provider, provReq)

	discoverer := &fakeConn{id: 2}
	discReq := &message.ServiceRequest{Method: "Add", Optype: message.ServiceDiscovery}
	discReq.SetID("d1")
	c.OnServiceRequest(discoverer, discReq)

	rsp := decodeServiceResponse(t, discoverer.lastBody)
	if rsp.RCode != message.RCodeOK || len(rsp.Hosts) != 1 || rsp.Hosts[0] != host {
		t.Fatalf("unexpected discovery response: %+v", rsp)
	}
}

func TestProviderDisconnectPushesOffline(t *testing.T) {
	c := New(nil)
	discoverer := &fakeConn{id: 1}
	discReq := &message.ServiceRequest{Method: "Add", Optype: message.ServiceDiscovery}
	discReq.SetID("d1")
	c.OnServiceRequest(discoverer, discReq)

	provider := &fakeConn{id: 2}
	host := HostAddr{IP: "1.1.1.1", Port: 9001}
	provReq := &message.ServiceRequest{Method: "Add", Optype: message.ServiceRegistry, Host: &host}
	provReq.SetID("p1")
	c.OnServiceRequest(provider, provReq)

	c.OnConnectionDown(provider)

	m, err := message.Decode(message.ReqService, "", discoverer.lastBody)
	if err != nil {
		t.Fatalf("decode push: %v", err)
	}
	push := m.(*message.ServiceRequest)
	if push.Optype != message.ServiceOffline {
		t.Fatalf("expected OFFLINE push, got %v", push.Optype)
	}

	secondDiscoverer := &fakeConn{id: 3}
	discReq2 := &message.ServiceRequest{Method: "Add", Optype: message.ServiceDiscovery}
	discReq2.SetID("d2")
	c.OnServiceRequest(secondDiscoverer, discReq2)
	if decodeServiceResponse(t, secondDiscoverer.lastBody).RCode != message.RCodeNotFoundService {
		t.Fatal("expected no hosts after provider disconnected")
	}
}

func TestInvalidOptypeRejected(t *testing.T) {
	c := New(nil)
	conn := &fakeConn{id: 1}
	req := &message.ServiceRequest{Method: "Add", Optype: message.ServiceOptype(99)}
	req.SetID("x1")
	c.OnServiceRequest(conn, req)

	if decodeServiceResponse(t, conn.lastBody).RCode != message.RCodeInvalidOptype {
		t.Fatal("expected INVALID_OPTYPE")
	}
}
