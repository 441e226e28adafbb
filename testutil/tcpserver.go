// Package testutil provides local TCP servers for exercising the connection
// engine in tests.
package testutil

import (
	"bytes"
	"net"
	"sync"
	"testing"
)

// Handler processes one accepted client connection. It runs on its own
// goroutine and should return when the connection is done.
type Handler func(conn net.Conn)

// TCPServer is a local server listening on an ephemeral port. Every accepted
// connection is recorded and handed to the configured handler.
type TCPServer struct {
	t        *testing.T
	listener net.Listener
	handler  Handler

	mu       sync.Mutex
	conns    []net.Conn
	received bytes.Buffer

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewTCPServer starts a server on 127.0.0.1 with the given handler. The
// server is shut down automatically when the test ends.
func NewTCPServer(t *testing.T, handler Handler) *TCPServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &TCPServer{
		t:        t,
		listener: listener,
		handler:  handler,
		closed:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// NewEchoServer starts a server that writes every received byte back to the
// client.
func NewEchoServer(t *testing.T) *TCPServer {
	t.Helper()
	var s *TCPServer
	s = NewTCPServer(t, func(conn net.Conn) {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				s.record(buf[:n])
				if _, werr := conn.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	})
	return s
}

// NewSinkServer starts a server that records received bytes and never
// responds.
func NewSinkServer(t *testing.T) *TCPServer {
	t.Helper()
	var s *TCPServer
	s = NewTCPServer(t, func(conn net.Conn) {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				s.record(buf[:n])
			}
			if err != nil {
				return
			}
		}
	})
	return s
}

// NewScriptedServer starts a server that writes each script entry to the
// client as a separate segment, then keeps the connection open and discards
// input. Useful for driving trigger evaluation.
func NewScriptedServer(t *testing.T, script ...[]byte) *TCPServer {
	t.Helper()
	var s *TCPServer
	s = NewTCPServer(t, func(conn net.Conn) {
		for _, segment := range script {
			if _, err := conn.Write(segment); err != nil {
				return
			}
		}
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				s.record(buf[:n])
			}
			if err != nil {
				return
			}
		}
	})
	return s
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { _ = conn.Close() }()
			s.handler(conn)
		}()
	}
}

func (s *TCPServer) record(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received.Write(data)
}

// Received returns a copy of all bytes received across every client.
func (s *TCPServer) Received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.received.Len())
	copy(out, s.received.Bytes())
	return out
}

// Addr returns the server's listen address.
func (s *TCPServer) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the server's listen host.
func (s *TCPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the ephemeral port the server is listening on.
func (s *TCPServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// CloseClients drops all accepted connections without stopping the listener,
// simulating a remote close.
func (s *TCPServer) CloseClients() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Close shuts the server down and waits for all handlers to finish. Safe to
// call more than once.
func (s *TCPServer) Close() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}

	_ = s.listener.Close()
	s.CloseClients()
	s.wg.Wait()
}
