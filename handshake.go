package wsclient

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// maxHandshakeResponse bounds the size of the status line and headers
// read from the server.
const maxHandshakeResponse = 16 << 10

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// HeaderField is a single handshake header line.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of handshake header lines.
// Names are kept as written; lookups ignore case.
type Header []HeaderField

// Add appends a header line.
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Get returns the value of the first line named name or "".
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns the values of every line named name in order.
func (h Header) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// HandshakeRequest is the opening handshake of a client.
// See https://tools.ietf.org/html/rfc6455#section-4.1
type HandshakeRequest struct {
	Path string
	// Key is the base64 encoded Sec-WebSocket-Key.
	Key string
	// Header holds every line after the request line in the order it
	// is sent, starting with Host.
	Header Header
}

// NewHandshakeRequest returns the handshake for path on host:port with
// a freshly generated key. secure selects the default port that may be
// left out of the Host header.
func NewHandshakeRequest(host string, port int, path string, secure bool) (*HandshakeRequest, error) {
	return newHandshakeRequest(host, port, path, secure, rand.Reader)
}

func newHandshakeRequest(host string, port int, path string, secure bool, rand io.Reader) (*HandshakeRequest, error) {
	if host == "" {
		return nil, errors.New("websocket: empty host")
	}
	if path == "" {
		path = "/"
	}
	if strings.ContainsAny(path, " \r\n") || !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("websocket: invalid request path %q", path)
	}

	key, err := makeSecWebSocketKey(rand)
	if err != nil {
		return nil, err
	}

	req := &HandshakeRequest{
		Path: path,
		Key:  key,
	}
	req.Header.Add("Host", authority(host, port, secure))
	req.Header.Add("Upgrade", "websocket")
	req.Header.Add("Connection", "Upgrade")
	req.Header.Add("Sec-WebSocket-Key", key)
	req.Header.Add("Sec-WebSocket-Version", "13")
	return req, nil
}

// AddHeader appends a custom header line after the required ones.
func (r *HandshakeRequest) AddHeader(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("websocket: invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("websocket: invalid value for header %q", name)
	}
	r.Header.Add(name, value)
	return nil
}

// Bytes renders the request line and headers, each CRLF terminated,
// followed by the terminating empty line.
func (r *HandshakeRequest) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", r.Path)
	for _, f := range r.Header {
		fmt.Fprintf(&b, "%s: %s\r\n", f.Name, f.Value)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// Verify checks that resp accepts r.
func (r *HandshakeRequest) Verify(resp *HandshakeResponse) error {
	if resp.StatusCode != 101 {
		return &HandshakeError{Reason: fmt.Sprintf("expected handshake response status code 101 but got %v", resp.StatusCode)}
	}

	if !httpguts.HeaderValuesContainsToken(resp.Header.Values("Connection"), "Upgrade") {
		return &HandshakeError{Reason: fmt.Sprintf("Connection header %q does not contain Upgrade", resp.Header.Get("Connection"))}
	}

	if !httpguts.HeaderValuesContainsToken(resp.Header.Values("Upgrade"), "websocket") {
		return &HandshakeError{Reason: fmt.Sprintf("Upgrade header %q does not contain websocket", resp.Header.Get("Upgrade"))}
	}

	if resp.Header.Get("Sec-WebSocket-Accept") != secWebSocketAccept(r.Key) {
		return &HandshakeError{Reason: fmt.Sprintf("invalid Sec-WebSocket-Accept %q, key %q", resp.Header.Get("Sec-WebSocket-Accept"), r.Key)}
	}

	if proto := resp.Header.Get("Sec-WebSocket-Protocol"); proto != "" && !httpguts.HeaderValuesContainsToken(r.Header.Values("Sec-WebSocket-Protocol"), proto) {
		return &HandshakeError{Reason: fmt.Sprintf("unexpected Sec-WebSocket-Protocol from server: %q", proto)}
	}

	if ext := resp.Header.Get("Sec-WebSocket-Extensions"); ext != "" {
		return &HandshakeError{Reason: fmt.Sprintf("server negotiated extensions that were not offered: %q", ext)}
	}

	return nil
}

// HandshakeResponse is the server's reply to a HandshakeRequest.
type HandshakeResponse struct {
	Proto      string
	StatusCode int
	Status     string
	Header     Header
}

// ReadHandshakeResponse reads the status line and headers up to and
// including the empty line that ends them. Every "Key: Value" line is
// recorded in order, other lines are skipped.
// Bytes after the empty line are left in br.
func ReadHandshakeResponse(br *bufio.Reader) (*HandshakeResponse, error) {
	var (
		resp  *HandshakeResponse
		total int
	)
	for {
		line, err := br.ReadSlice('\n')
		total += len(line)
		if errors.Is(err, bufio.ErrBufferFull) || total > maxHandshakeResponse {
			return nil, &HandshakeError{Reason: "response headers too large"}
		}
		if err != nil {
			return nil, &HandshakeError{Reason: "failed to read response", Err: eofIsUnexpected(err)}
		}

		s := strings.TrimRight(string(line), "\r\n")
		if resp == nil {
			resp, err = parseStatusLine(s)
			if err != nil {
				return nil, err
			}
			continue
		}
		if s == "" {
			return resp, nil
		}

		name, value, ok := strings.Cut(s, ":")
		if !ok || name == "" || strings.TrimSpace(name) != name {
			continue
		}
		resp.Header.Add(name, strings.TrimSpace(value))
	}
}

func parseStatusLine(s string) (*HandshakeResponse, error) {
	proto, rest, ok := strings.Cut(s, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, &HandshakeError{Reason: fmt.Sprintf("malformed status line %q", s)}
	}
	code, _, _ := strings.Cut(rest, " ")
	statusCode, err := strconv.Atoi(code)
	if err != nil || len(code) != 3 {
		return nil, &HandshakeError{Reason: fmt.Sprintf("malformed status code in %q", s)}
	}
	return &HandshakeResponse{
		Proto:      proto,
		StatusCode: statusCode,
		Status:     rest,
	}, nil
}

func authority(host string, port int, secure bool) string {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	defaultPort := 80
	if secure {
		defaultPort = 443
	}
	if port == 0 || port == defaultPort {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func secWebSocketAccept(secWebSocketKey string) string {
	h := sha1.New()
	h.Write([]byte(secWebSocketKey))
	h.Write(keyGUID)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func makeSecWebSocketKey(rand io.Reader) (string, error) {
	b := make([]byte, 16)
	_, err := io.ReadFull(rand, b)
	if err != nil {
		return "", fmt.Errorf("failed to read random data from rand.Reader: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
