package wstest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/coder/wsclient/internal/atomicint"
	"github.com/coder/wsclient/internal/errd"
)

// Handler serves a single connection after the server side of the
// opening handshake succeeded.
type Handler func(conn net.Conn) error

// Server is a WebSocket server on a loopback TCP listener built on
// gobwas/ws. Every accepted connection is upgraded and passed to the
// Handler in its own goroutine.
type Server struct {
	// Accepted counts the connections that completed the upgrade.
	Accepted atomicint.Int64

	ln       net.Listener
	upgrader ws.Upgrader
	handler  Handler
	errs     chan error

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer starts a Server. A nil h serves EchoLoop.
func NewServer(h Handler) (*Server, error) {
	return NewServerUpgrader(ws.Upgrader{}, h)
}

// NewServerUpgrader is like NewServer but upgrades connections with u.
func NewServerUpgrader(u ws.Upgrader, h Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if h == nil {
		h = EchoLoop
	}

	s := &Server{
		ln:       ln,
		upgrader: u,
		handler:  h,
		errs:     make(chan error, 64),
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.report(s.handle(conn))
		}()
	}
}

func (s *Server) handle(conn net.Conn) (err error) {
	defer errd.Wrap(&err, "failed to serve connection")
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	_, err = s.upgrader.Upgrade(conn)
	if err != nil {
		return err
	}
	s.Accepted.Increment(1)
	return s.handler(conn)
}

func (s *Server) report(err error) {
	var closed wsutil.ClosedError
	switch {
	case err == nil, errors.As(err, &closed), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

// Err returns the first unexpected handler error, if any.
func (s *Server) Err() error {
	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}

// URL returns the ws URL of the server.
func (s *Server) URL() string {
	return "ws://" + s.ln.Addr().String()
}

// HostPort returns the address the server listens on.
func (s *Server) HostPort() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Addr returns the address the server listens on as host:port.
func (s *Server) Addr() string {
	host, port := s.HostPort()
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Close stops accepting, closes every open connection and waits for
// the handlers to return.
func (s *Server) Close() error {
	err := s.ln.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// EchoLoop echoes every message received on conn until the client
// closes the connection. Pings are answered and the close handshake is
// completed by wsutil.
func EchoLoop(conn net.Conn) error {
	for {
		msg, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return err
		}

		err = wsutil.WriteServerMessage(conn, op, msg)
		if err != nil {
			return err
		}
	}
}

// ReadClientFrame reads a single frame from conn and unmasks it.
// A frame without a mask is an error since clients must mask.
func ReadClientFrame(conn net.Conn) (ws.Frame, error) {
	f, err := ws.ReadFrame(conn)
	if err != nil {
		return f, err
	}
	if !f.Header.Masked {
		return f, errors.New("received unmasked frame from client")
	}
	ws.Cipher(f.Payload, f.Header.Mask, 0)
	return f, nil
}
