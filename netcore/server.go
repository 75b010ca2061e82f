package netcore

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Server accepts inbound TCP connections and hands each one, already
// wrapped as a Connection, to an onAccept callback — the owning component
// (rpcrouter.Router, registry.Core, broker.Core) wires its own
// SetOnUp/SetOnDown/SetOnMessage from there.
type Server struct {
	listener net.Listener
	logger   *zap.Logger

	onAccept func(Connection)

	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// Listen opens a TCP listener on addr with SO_REUSEPORT set, matching the
// teacher's servers binding multiple processes to the same demo port.
func Listen(addr string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netcore: listen %s: %w", addr, err)
	}
	return &Server{listener: ln, logger: logger}, nil
}

// OnAccept registers the callback invoked for every accepted connection,
// before its read loop starts.
func (s *Server) OnAccept(f func(Connection)) { s.onAccept = f }

// Addr returns the listener's bound address, useful for tests that bind ":0".
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve runs the accept loop until Shutdown is called. Each accepted
// connection gets its own read-loop goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		c := newConnection(conn, s.logger)
		if s.onAccept != nil {
			s.onAccept(c)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if c.onUp != nil {
				c.onUp(c)
			}
			c.readLoop()
		}()
	}
}

// Shutdown stops accepting new connections. In-flight connections are left
// running; callers that need a hard stop should also Shutdown() the
// Connections they track. Neither registry.Core nor broker.Core shuts down
// any connection itself.
func (s *Server) Shutdown() error {
	s.shutdown.Store(true)
	return s.listener.Close()
}
