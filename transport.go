package wsclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"sync"
)

// Transport is the byte stream a Session runs over.
//
// Receive may return fewer bytes than len(p); callers loop.
// Close must be safe to call once the Transport failed to connect.
type Transport interface {
	Connect(ctx context.Context, host string, port int) error
	Send(p []byte) (int, error)
	Receive(p []byte) (int, error)
	Close() error
}

// NewTCPTransport returns a Transport over a plain TCP connection.
// A nil dialer uses the zero net.Dialer.
func NewTCPTransport(d *net.Dialer) Transport {
	return &netTransport{dialer: d}
}

// NewTLSTransport returns a Transport over a TLS connection.
// If cfg has no ServerName, the host passed to Connect is used.
func NewTLSTransport(d *net.Dialer, cfg *tls.Config) Transport {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	return &netTransport{dialer: d, tls: cfg}
}

type netTransport struct {
	dialer *net.Dialer
	tls    *tls.Config

	mu sync.Mutex
	nc net.Conn
}

var errNotConnected = errors.New("transport is not connected")

func (t *netTransport) Connect(ctx context.Context, host string, port int) error {
	d := t.dialer
	if d == nil {
		d = &net.Dialer{}
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var (
		nc  net.Conn
		err error
	)
	if t.tls != nil {
		cfg := t.tls
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = host
		}
		td := &tls.Dialer{NetDialer: d, Config: cfg}
		nc, err = td.DialContext(ctx, "tcp", addr)
	} else {
		nc, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.nc = nc
	t.mu.Unlock()
	return nil
}

func (t *netTransport) conn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc == nil {
		return nil, errNotConnected
	}
	return t.nc, nil
}

func (t *netTransport) Send(p []byte) (int, error) {
	nc, err := t.conn()
	if err != nil {
		return 0, err
	}
	return nc.Write(p)
}

func (t *netTransport) Receive(p []byte) (int, error) {
	nc, err := t.conn()
	if err != nil {
		return 0, err
	}
	return nc.Read(p)
}

func (t *netTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc == nil {
		return nil
	}
	err := t.nc.Close()
	t.nc = nil
	return err
}
