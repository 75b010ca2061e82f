package netcore

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Connect dials addr, lets setup install callbacks on the connection before
// any frame can arrive, then fires onUp and starts the read loop. Because a
// TCP dial only returns once the handshake completes, this already has the
// synchronous "blocks until established" semantics §4.3 asks for — there is
// no separate async latch to wait on the way a non-blocking transport would
// need.
func Connect(addr string, logger *zap.Logger, setup func(Connection)) (Connection, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netcore: dial %s: %w", addr, err)
	}
	c := newConnection(conn, logger)
	if setup != nil {
		setup(c)
	}
	if c.onUp != nil {
		c.onUp(c)
	}
	go c.readLoop()
	return c, nil
}
