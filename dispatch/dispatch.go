// Package dispatch implements the per-connection message router described
// in §4.4: a map from wire message-type tag to a typed handler, bound to
// one or more connections with Bind.
package dispatch

import (
	"go.uber.org/zap"

	"rpcmesh/message"
	"rpcmesh/netcore"
)

type rawHandler func(conn netcore.Connection, msg message.Message)

// Dispatcher owns the tag→handler map for one role (RPC server, registry,
// broker, or a client's response handling). It keeps no per-connection
// state, so one Dispatcher can be bound to every connection a role dials
// (rpcclient does this for its pool); the cmd/ servers build a new one for
// each accepted connection.
type Dispatcher struct {
	handlers map[message.MType]rawHandler
	logger   *zap.Logger
}

// New creates an empty Dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[message.MType]rawHandler), logger: logger}
}

// RegisterHandler binds mtype to a handler typed over the concrete message
// variant T. This is the type-erasure trick the original's template
// Callback<T> performs in C++, done here with a Go generic instead of a
// runtime downcast: message.Decode already guarantees that a frame tagged
// mtype decodes to exactly the variant New(mtype) constructs, so the type
// assertion below can never fail for a well-formed Dispatcher.
func RegisterHandler[T message.Message](d *Dispatcher, mtype message.MType, handler func(netcore.Connection, T)) {
	d.handlers[mtype] = func(conn netcore.Connection, msg message.Message) {
		typed, ok := msg.(T)
		if !ok {
			d.logger.Error("dispatch: decoded variant does not match registered handler type",
				zap.Uint32("mtype", uint32(mtype)))
			conn.Shutdown()
			return
		}
		handler(conn, typed)
	}
}

// Bind wires this Dispatcher's OnRawMessage as the connection's message
// callback. Call it from the owning role's onAccept/Connect setup.
func (d *Dispatcher) Bind(conn netcore.Connection) {
	conn.SetOnMessage(d.OnRawMessage)
}

// OnRawMessage decodes one frame and routes it to the registered handler
// for its type. A decode failure (malformed JSON or a failed Check)
// terminates the connection per §7 — parse failures are never answered on
// the wire. An unregistered tag is treated the same way: the peer is
// speaking a dialect this role doesn't support.
func (d *Dispatcher) OnRawMessage(conn netcore.Connection, mtype message.MType, id string, body []byte) {
	msg, err := message.Decode(mtype, id, body)
	if err != nil {
		d.logger.Debug("dispatch: decode failed, closing connection",
			zap.Error(err), zap.String("remote", conn.RemoteAddr()))
		conn.Shutdown()
		return
	}

	handler, ok := d.handlers[msg.Type()]
	if !ok {
		d.logger.Warn("dispatch: no handler for message type, closing connection",
			zap.Stringer("mtype", msg.Type()), zap.String("remote", conn.RemoteAddr()))
		conn.Shutdown()
		return
	}
	handler(conn, msg)
}
