package message

import "testing"

func TestDecodeRpcRequestOK(t *testing.T) {
	body := []byte(`{"method":"Add","parameters":{"a":1,"b":2}}`)
	m, err := Decode(ReqRPC, "req-1", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req, ok := m.(*RpcRequest)
	if !ok {
		t.Fatalf("got %T, want *RpcRequest", m)
	}
	if req.ID() != "req-1" || req.Method != "Add" {
		t.Fatalf("unexpected decode: %+v", req)
	}
}

func TestDecodeRpcRequestMissingMethod(t *testing.T) {
	body := []byte(`{"parameters":{}}`)
	if _, err := Decode(ReqRPC, "req-2", body); err == nil {
		t.Fatal("expected check failure for missing method")
	}
}

func TestDecodeRpcRequestMissingParameters(t *testing.T) {
	body := []byte(`{"method":"Add"}`)
	if _, err := Decode(ReqRPC, "req-3", body); err == nil {
		t.Fatal("expected check failure for missing parameters")
	}
}

func TestDecodeRpcResponseZeroRCodeIsPresent(t *testing.T) {
	// rcode:0 is OK's real zero value on the wire; it must not be mistaken
	// for an absent field by the presence check.
	body := []byte(`{"rcode":0,"result":42}`)
	m, err := Decode(RspRPC, "rsp-1", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rsp := m.(*RpcResponse)
	if rsp.RCode != RCodeOK {
		t.Fatalf("got rcode %v, want RCodeOK", rsp.RCode)
	}
}

func TestDecodeRpcResponseMissingRCode(t *testing.T) {
	body := []byte(`{"result":42}`)
	if _, err := Decode(RspRPC, "rsp-2", body); err == nil {
		t.Fatal("expected check failure for missing rcode")
	}
}

func TestDecodeRpcResponseNullResultAccepted(t *testing.T) {
	// result is typed "any": a literal JSON null is a legitimate value, used
	// for error responses where there is no result to report.
	body := []byte(`{"rcode":6,"result":null}`)
	m, err := Decode(RspRPC, "rsp-3", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.(*RpcResponse).RCode != RCodeNotFoundService {
		t.Fatalf("unexpected rcode: %v", m.(*RpcResponse).RCode)
	}
}

func TestDecodeRpcResponseMissingResultKeyRejected(t *testing.T) {
	body := []byte(`{"rcode":0}`)
	if _, err := Decode(RspRPC, "rsp-3b", body); err == nil {
		t.Fatal("expected check failure when result key is entirely absent")
	}
}

func TestDecodeTopicRequestPublishRequiresMsg(t *testing.T) {
	body := []byte(`{"topic_key":"k","optype":4}`)
	if _, err := Decode(ReqTopic, "t-1", body); err == nil {
		t.Fatal("expected check failure for publish without topic_msg")
	}
}

func TestDecodeTopicRequestNonPublishOmitsMsg(t *testing.T) {
	body := []byte(`{"topic_key":"k","optype":0}`)
	m, err := Decode(ReqTopic, "t-2", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req := m.(*TopicRequest)
	if req.Optype != TopicCreate {
		t.Fatalf("got optype %v, want TopicCreate", req.Optype)
	}
}

func TestDecodeTopicRequestPublishOK(t *testing.T) {
	body := []byte(`{"topic_key":"k","optype":4,"topic_msg":"hello"}`)
	m, err := Decode(ReqTopic, "t-3", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req := m.(*TopicRequest)
	if req.TopicMsg != "hello" {
		t.Fatalf("got topic_msg %q, want %q", req.TopicMsg, "hello")
	}
}

func TestDecodeServiceRequestDiscoveryOmitsHost(t *testing.T) {
	body := []byte(`{"method":"Add","optype":1}`)
	m, err := Decode(ReqService, "s-1", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req := m.(*ServiceRequest)
	if req.Optype != ServiceDiscovery || req.Host != nil {
		t.Fatalf("unexpected decode: %+v", req)
	}
}

func TestDecodeServiceRequestRegistryRequiresHost(t *testing.T) {
	body := []byte(`{"method":"Add","optype":0}`)
	if _, err := Decode(ReqService, "s-2", body); err == nil {
		t.Fatal("expected check failure for registry request without host")
	}
}

func TestDecodeServiceRequestRegistryOK(t *testing.T) {
	body := []byte(`{"method":"Add","optype":0,"host":{"ip":"127.0.0.1","port":9000}}`)
	m, err := Decode(ReqService, "s-3", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req := m.(*ServiceRequest)
	if req.Host == nil || req.Host.Port != 9000 {
		t.Fatalf("unexpected decode: %+v", req)
	}
}

func TestDecodeServiceResponseDiscoveryRequiresHostsOnOK(t *testing.T) {
	body := []byte(`{"rcode":0,"optype":1,"method":"Add"}`)
	if _, err := Decode(RspService, "s-4", body); err == nil {
		t.Fatal("expected check failure for discovery OK response without host list")
	}
}

func TestDecodeServiceResponseDiscoveryErrorOmitsHosts(t *testing.T) {
	body := []byte(`{"rcode":6,"optype":1,"method":"Add"}`)
	m, err := Decode(RspService, "s-5", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rsp := m.(*ServiceResponse)
	if rsp.RCode != RCodeNotFoundService {
		t.Fatalf("got rcode %v, want RCodeNotFoundService", rsp.RCode)
	}
}

func TestDecodeServiceResponseDiscoveryOK(t *testing.T) {
	body := []byte(`{"rcode":0,"optype":1,"method":"Add","host":[{"ip":"10.0.0.1","port":1},{"ip":"10.0.0.2","port":2}]}`)
	m, err := Decode(RspService, "s-6", body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rsp := m.(*ServiceResponse)
	if len(rsp.Hosts) != 2 {
		t.Fatalf("got %d hosts, want 2", len(rsp.Hosts))
	}
}

func TestDecodeUnknownMType(t *testing.T) {
	if _, err := Decode(MType(99), "x", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestDecodeNonObjectBody(t *testing.T) {
	if _, err := Decode(ReqRPC, "x", []byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for non-object body")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	req := &RpcRequest{Method: "Add", Parameters: map[string]interface{}{"a": 1.0}}
	req.setType(ReqRPC)
	req.SetID("round-1")
	body, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	m, err := Decode(ReqRPC, "round-1", body)
	if err != nil {
		t.Fatalf("Decode after Marshal: %v", err)
	}
	got := m.(*RpcRequest)
	if got.Method != "Add" {
		t.Fatalf("got method %q, want %q", got.Method, "Add")
	}
}
