// Package message defines the six JSON-bodied message variants exchanged
// over an rpcmesh connection, their wire-format invariants, and the factory
// that builds the right variant from a frame's message-type tag.
package message

import (
	"encoding/json"
	"fmt"
)

// Message is the common interface every variant satisfies: an id used for
// request/response correlation, a type tag matching the frame it travels
// in, and a post-decode Check that enforces the variant's body schema.
type Message interface {
	ID() string
	SetID(id string)
	Type() MType
	Check() error
	Marshal() ([]byte, error)
	Unmarshal(body []byte) error
}

// Envelope carries the id and type tag shared by all six variants, plus a
// shallow presence map captured from the wire body so Check can tell
// "field absent" apart from "field present with its Go zero value" — a
// distinction the typed Unmarshal alone throws away.
type Envelope struct {
	id    string
	mtype MType
	raw   raw
}

func (e *Envelope) ID() string      { return e.id }
func (e *Envelope) SetID(id string) { e.id = id }
func (e *Envelope) Type() MType     { return e.mtype }
func (e *Envelope) setType(t MType) { e.mtype = t }

// captureRaw decodes body into the presence map and reports whether body is
// a JSON object at all; variants call this at the top of Unmarshal.
func (e *Envelope) captureRaw(body []byte) error {
	r, err := decodeRaw(body)
	if err != nil {
		return err
	}
	e.raw = r
	return nil
}

// ErrCheckFailed wraps a schema violation surfaced by a variant's Check. The
// dispatcher closes the connection on any such error per §7 — parse failures
// are never answered on the wire, so no RCodeParseFailed response is sent.
type ErrCheckFailed struct {
	Reason string
}

func (e *ErrCheckFailed) Error() string {
	return fmt.Sprintf("message: check failed: %s", e.Reason)
}

func checkFail(format string, args ...any) error {
	return &ErrCheckFailed{Reason: fmt.Sprintf(format, args...)}
}

// New constructs the zero-value concrete type for mtype, or an error if
// mtype is not one of the six known variants.
func New(mtype MType) (Message, error) {
	switch mtype {
	case ReqRPC:
		m := &RpcRequest{}
		m.setType(ReqRPC)
		return m, nil
	case RspRPC:
		m := &RpcResponse{}
		m.setType(RspRPC)
		return m, nil
	case ReqTopic:
		m := &TopicRequest{}
		m.setType(ReqTopic)
		return m, nil
	case RspTopic:
		m := &TopicResponse{}
		m.setType(RspTopic)
		return m, nil
	case ReqService:
		m := &ServiceRequest{}
		m.setType(ReqService)
		return m, nil
	case RspService:
		m := &ServiceResponse{}
		m.setType(RspService)
		return m, nil
	default:
		return nil, fmt.Errorf("message: unknown message type %d", mtype)
	}
}

// Decode builds the variant for mtype, unmarshals body into it, and runs
// Check. It is the single entry point framing code should use to turn a
// wire frame into a validated Message.
func Decode(mtype MType, id string, body []byte) (Message, error) {
	m, err := New(mtype)
	if err != nil {
		return nil, err
	}
	if err := m.Unmarshal(body); err != nil {
		return nil, checkFail("body is not a JSON object: %v", err)
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	m.SetID(id)
	return m, nil
}

// marshalBody is a small helper the variants use so Marshal implementations
// stay one-liners.
func marshalBody(v any) ([]byte, error) {
	return json.Marshal(v)
}
