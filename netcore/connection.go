// Package netcore implements the symmetric client/server connection
// abstraction that every rpcmesh server role (RPC router, registry, broker)
// is built on top of: a polymorphic handle exposing Send/Shutdown/Connected
// plus on-up/on-down/on-message callbacks invoked on the connection's own
// read-loop goroutine.
package netcore

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"rpcmesh/message"
	"rpcmesh/protocol"
)

// OnUpFunc fires once a connection becomes usable.
type OnUpFunc func(Connection)

// OnDownFunc fires once a connection is no longer usable, exactly once.
type OnDownFunc func(Connection)

// OnMessageFunc fires for every frame the connection decodes off the wire.
// The raw mtype/id/body are handed up undecoded — turning them into a typed
// message.Message is the dispatcher's job, not the transport's.
type OnMessageFunc func(conn Connection, mtype message.MType, id string, body []byte)

// Connection is the handle every server/client component sends through and
// installs callbacks on. Callbacks run on the connection's read-loop
// goroutine and must be safe to call concurrently with Send from any other
// goroutine.
type Connection interface {
	Send(mtype message.MType, id string, body []byte) bool
	Shutdown()
	Connected() bool
	RemoteAddr() string

	SetOnUp(OnUpFunc)
	SetOnDown(OnDownFunc)
	SetOnMessage(OnMessageFunc)
}

// tcpConnection is the only Connection implementation: a net.Conn plus a
// buffered protocol.Decoder feeding a read loop, and a write mutex so
// concurrent Sends never interleave frame bytes on the wire.
type tcpConnection struct {
	conn net.Conn

	writeMu sync.Mutex

	connected atomic.Bool
	closeOnce sync.Once

	onUp      OnUpFunc
	onDown    OnDownFunc
	onMessage OnMessageFunc

	logger *zap.Logger
}

func newConnection(conn net.Conn, logger *zap.Logger) *tcpConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &tcpConnection{conn: conn, logger: logger}
	c.connected.Store(true)
	return c
}

func (c *tcpConnection) SetOnUp(f OnUpFunc)           { c.onUp = f }
func (c *tcpConnection) SetOnDown(f OnDownFunc)       { c.onDown = f }
func (c *tcpConnection) SetOnMessage(f OnMessageFunc) { c.onMessage = f }

func (c *tcpConnection) Connected() bool { return c.connected.Load() }

func (c *tcpConnection) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Send encodes one frame and writes it whole under the write lock. It
// returns false without writing if the connection is already down, per
// §4.3's "send returns false without enqueueing if not up".
func (c *tcpConnection) Send(mtype message.MType, id string, body []byte) bool {
	if !c.Connected() {
		return false
	}
	frame := protocol.Encode(protocol.Frame{MType: uint32(mtype), ID: id, Body: body})

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.Connected() {
		return false
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.logger.Debug("netcore: write failed", zap.Error(err), zap.String("remote", c.RemoteAddr()))
		return false
	}
	return true
}

// Shutdown closes the underlying socket (once, via closeOnce), which
// unblocks the read loop; the read loop fires onDown as it exits.
func (c *tcpConnection) Shutdown() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.conn.Close()
	})
}

// readLoop owns the socket's read side: it is the single reader per
// connection §4.4/§5 require, feeding a protocol.Decoder and dispatching
// one frame at a time to onMessage. It returns (and fires onDown) when the
// connection breaks or desyncs.
func (c *tcpConnection) readLoop() {
	dec := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		for dec.CanDecode() {
			frame, err := dec.DecodeOne()
			if err != nil {
				if err == protocol.ErrIncomplete {
					break
				}
				c.logger.Debug("netcore: decode failed, closing", zap.Error(err))
				c.closeDown()
				return
			}
			if c.onMessage != nil {
				c.onMessage(c, message.MType(frame.MType), frame.ID, frame.Body)
			}
		}
		if dec.Desynced() {
			c.logger.Warn("netcore: desync guard tripped, closing connection", zap.String("remote", c.RemoteAddr()))
			c.closeDown()
			return
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			c.closeDown()
			return
		}
		dec.Feed(bytes.Clone(buf[:n]))
	}
}

func (c *tcpConnection) closeDown() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.conn.Close()
	})
	if c.onDown != nil {
		c.onDown(c)
	}
}
