package message

import "encoding/json"

// RpcRequest asks a server to invoke method with parameters.
type RpcRequest struct {
	Envelope
	Method     string                 `json:"method"`
	Parameters map[string]interface{} `json:"parameters"`
}

func (m *RpcRequest) Marshal() ([]byte, error) { return marshalBody(m) }

func (m *RpcRequest) Unmarshal(body []byte) error {
	if err := m.captureRaw(body); err != nil {
		return err
	}
	return json.Unmarshal(body, m)
}

func (m *RpcRequest) Check() error {
	if !m.raw.isString("method") {
		return checkFail("rpc request missing or malformed %q", "method")
	}
	if !m.raw.isObject("parameters") {
		return checkFail("rpc request missing or malformed %q", "parameters")
	}
	return nil
}

// RpcResponse carries the outcome of an RpcRequest.
type RpcResponse struct {
	Envelope
	RCode  RCode       `json:"rcode"`
	Result interface{} `json:"result"`
}

func (m *RpcResponse) Marshal() ([]byte, error) { return marshalBody(m) }

func (m *RpcResponse) Unmarshal(body []byte) error {
	if err := m.captureRaw(body); err != nil {
		return err
	}
	return json.Unmarshal(body, m)
}

func (m *RpcResponse) Check() error {
	if !m.raw.isIntegral("rcode") {
		return checkFail("rpc response missing or malformed %q", "rcode")
	}
	if !m.raw.keyExists("result") {
		return checkFail("rpc response missing %q", "result")
	}
	return nil
}

// TopicRequest asks the broker to perform one of the TopicOptype operations.
// TopicMsg is required only when Optype is TopicPublish.
type TopicRequest struct {
	Envelope
	TopicKey string      `json:"topic_key"`
	Optype   TopicOptype `json:"optype"`
	TopicMsg string      `json:"topic_msg,omitempty"`
}

func (m *TopicRequest) Marshal() ([]byte, error) { return marshalBody(m) }

func (m *TopicRequest) Unmarshal(body []byte) error {
	if err := m.captureRaw(body); err != nil {
		return err
	}
	return json.Unmarshal(body, m)
}

func (m *TopicRequest) Check() error {
	if !m.raw.isString("topic_key") {
		return checkFail("topic request missing or malformed %q", "topic_key")
	}
	if !m.raw.isIntegral("optype") {
		return checkFail("topic request missing or malformed %q", "optype")
	}
	if m.Optype == TopicPublish && !m.raw.isString("topic_msg") {
		return checkFail("topic publish request missing %q", "topic_msg")
	}
	return nil
}

// TopicResponse carries the outcome of a TopicRequest. A PUBLISH fan-out
// (§4.8) resends the original TopicRequest to subscribers unchanged — it
// does not go through TopicResponse.
type TopicResponse struct {
	Envelope
	RCode RCode `json:"rcode"`
}

func (m *TopicResponse) Marshal() ([]byte, error) { return marshalBody(m) }

func (m *TopicResponse) Unmarshal(body []byte) error {
	if err := m.captureRaw(body); err != nil {
		return err
	}
	return json.Unmarshal(body, m)
}

func (m *TopicResponse) Check() error {
	if !m.raw.isIntegral("rcode") {
		return checkFail("topic response missing or malformed %q", "rcode")
	}
	return nil
}

// ServiceRequest asks the registry to perform a ServiceOptype operation.
// Host is required for every optype except ServiceDiscovery, which queries
// without advertising a host of its own.
type ServiceRequest struct {
	Envelope
	Method string        `json:"method"`
	Optype ServiceOptype `json:"optype"`
	Host   *HostAddr     `json:"host,omitempty"`
}

func (m *ServiceRequest) Marshal() ([]byte, error) { return marshalBody(m) }

func (m *ServiceRequest) Unmarshal(body []byte) error {
	if err := m.captureRaw(body); err != nil {
		return err
	}
	return json.Unmarshal(body, m)
}

func (m *ServiceRequest) Check() error {
	if !m.raw.isString("method") {
		return checkFail("service request missing or malformed %q", "method")
	}
	if !m.raw.isIntegral("optype") {
		return checkFail("service request missing or malformed %q", "optype")
	}
	if m.Optype != ServiceDiscovery && !m.raw.isObject("host") {
		return checkFail("service request missing %q for optype %v", "host", m.Optype)
	}
	return nil
}

// ServiceResponse carries the outcome of a ServiceRequest. Method and Hosts
// are populated only when Optype is ServiceDiscovery.
type ServiceResponse struct {
	Envelope
	RCode  RCode         `json:"rcode"`
	Optype ServiceOptype `json:"optype"`
	Method string        `json:"method,omitempty"`
	Hosts  []HostAddr    `json:"host,omitempty"`
}

func (m *ServiceResponse) Marshal() ([]byte, error) { return marshalBody(m) }

func (m *ServiceResponse) Unmarshal(body []byte) error {
	if err := m.captureRaw(body); err != nil {
		return err
	}
	return json.Unmarshal(body, m)
}

func (m *ServiceResponse) Check() error {
	if !m.raw.isIntegral("rcode") {
		return checkFail("service response missing or malformed %q", "rcode")
	}
	if !m.raw.isIntegral("optype") {
		return checkFail("service response missing or malformed %q", "optype")
	}
	if m.Optype == ServiceDiscovery {
		if !m.raw.isString("method") {
			return checkFail("service discovery response missing %q", "method")
		}
		if m.RCode == RCodeOK && !m.raw.isArray("host") {
			return checkFail("service discovery response missing %q", "host")
		}
	}
	return nil
}
