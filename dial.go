package wsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/coder/wsclient/internal/errd"
)

// DialOptions represents Dial's options.
type DialOptions struct {
	SessionOptions

	// NetDialer is used to open the TCP connection.
	// Defaults to the zero net.Dialer.
	NetDialer *net.Dialer

	// TLSConfig is used for wss URLs.
	TLSConfig *tls.Config

	// Transport overrides the transport picked from the URL scheme.
	Transport Transport
}

// Dial parses a ws or wss URL, connects a new Session to it and performs
// the opening handshake. http and https are accepted as aliases.
//
// The returned Session is open; run its read loop with Run.
func Dial(ctx context.Context, u string, opts *DialOptions) (_ *Session, _ *HandshakeResponse, err error) {
	defer errd.Wrap(&err, "failed to WebSocket dial")

	if opts == nil {
		opts = &DialOptions{}
	}

	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse url: %w", err)
	}

	var secure bool
	switch parsedURL.Scheme {
	case "ws", "http":
	case "wss", "https":
		secure = true
	default:
		return nil, nil, fmt.Errorf("unexpected url scheme: %q", parsedURL.Scheme)
	}

	host := parsedURL.Hostname()
	if host == "" {
		return nil, nil, fmt.Errorf("url %q has no host", u)
	}

	port := 80
	if secure {
		port = 443
	}
	if p := parsedURL.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port %q: %w", p, err)
		}
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}

	t := opts.Transport
	switch {
	case t != nil:
	case secure:
		t = NewTLSTransport(opts.NetDialer, opts.TLSConfig)
	default:
		t = NewTCPTransport(opts.NetDialer)
	}

	s := NewSession(t, &opts.SessionOptions)
	s.log.Debugf("[Dial]: url = %v", parsedURL.Redacted())

	resp, err := s.Connect(ctx, host, port, path, secure)
	if err != nil {
		return nil, resp, err
	}
	return s, resp, nil
}
