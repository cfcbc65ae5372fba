package wsclient

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/coder/wsclient/internal/test/assert"
)

const zeroKey = "AAAAAAAAAAAAAAAAAAAAAA=="

func zeroRand() *bytes.Reader {
	return bytes.NewReader(make([]byte, 16))
}

func TestHandshakeRequest(t *testing.T) {
	t.Parallel()

	t.Run("bytes", func(t *testing.T) {
		t.Parallel()

		req, err := newHandshakeRequest("example.com", 80, "/chat?room=1", false, zeroRand())
		assert.Success(t, err)
		assert.Equal(t, "key", zeroKey, req.Key)

		exp := "GET /chat?room=1 HTTP/1.1\r\n" +
			"Host: example.com\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Key: " + zeroKey + "\r\n" +
			"Sec-WebSocket-Version: 13\r\n" +
			"\r\n"
		assert.Equal(t, "request", exp, string(req.Bytes()))
	})

	t.Run("customHeaders", func(t *testing.T) {
		t.Parallel()

		req, err := newHandshakeRequest("example.com", 80, "", false, zeroRand())
		assert.Success(t, err)
		assert.Equal(t, "path", "/", req.Path)

		assert.Success(t, req.AddHeader("Origin", "http://example.com"))
		assert.Success(t, req.AddHeader("X-Trace", "1"))
		assert.Error(t, req.AddHeader("Bad Name", "x"))
		assert.Error(t, req.AddHeader("X-Inject", "a\r\nb"))

		lines := strings.Split(string(req.Bytes()), "\r\n")
		assert.Equal(t, "origin line", "Origin: http://example.com", lines[6])
		assert.Equal(t, "trace line", "X-Trace: 1", lines[7])
		assert.Equal(t, "terminator", []string{"", ""}, lines[8:])
	})

	t.Run("randomKey", func(t *testing.T) {
		t.Parallel()

		r1, err := NewHandshakeRequest("example.com", 443, "/", true)
		assert.Success(t, err)
		r2, err := NewHandshakeRequest("example.com", 443, "/", true)
		assert.Success(t, err)
		assert.Equal(t, "key length", 24, len(r1.Key))
		if r1.Key == r2.Key {
			t.Fatalf("expected distinct keys: %q", r1.Key)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := newHandshakeRequest("", 80, "/", false, zeroRand())
		assert.Error(t, err)
		_, err = newHandshakeRequest("example.com", 80, "chat", false, zeroRand())
		assert.Error(t, err)
		_, err = newHandshakeRequest("example.com", 80, "/a b", false, zeroRand())
		assert.Error(t, err)
		_, err = newHandshakeRequest("example.com", 80, "/", false, iotest.ErrReader(errors.New("no entropy")))
		assert.Contains(t, err, "no entropy")
	})
}

func Test_authority(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		host   string
		port   int
		secure bool
		exp    string
	}{
		{host: "example.com", port: 80, exp: "example.com"},
		{host: "example.com", port: 0, exp: "example.com"},
		{host: "example.com", port: 8080, exp: "example.com:8080"},
		{host: "example.com", port: 443, secure: true, exp: "example.com"},
		{host: "example.com", port: 80, secure: true, exp: "example.com:80"},
		{host: "::1", port: 80, exp: "[::1]"},
		{host: "[::1]", port: 9000, exp: "[::1]:9000"},
	}

	for _, tc := range testCases {
		assert.Equal(t, "authority", tc.exp, authority(tc.host, tc.port, tc.secure))
	}
}

func TestSecWebSocketAccept(t *testing.T) {
	t.Parallel()

	// Example from https://tools.ietf.org/html/rfc6455#section-1.3
	assert.Equal(t, "accept", "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", secWebSocketAccept("dGhlIHNhbXBsZSBub25jZQ=="))
}

func readResponse(s string) (*HandshakeResponse, error) {
	return ReadHandshakeResponse(bufio.NewReader(strings.NewReader(s)))
}

func TestReadHandshakeResponse(t *testing.T) {
	t.Parallel()

	t.Run("ordered", func(t *testing.T) {
		t.Parallel()

		br := bufio.NewReader(iotest.OneByteReader(strings.NewReader("HTTP/1.1 101 Switching Protocols\r\n" +
			"upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"not a header line\r\n" +
			"Set-Cookie: a=1\r\n" +
			"Set-Cookie: b=2\r\n" +
			"\r\n" +
			"\x81\x00")))

		resp, err := ReadHandshakeResponse(br)
		assert.Success(t, err)
		assert.Equal(t, "proto", "HTTP/1.1", resp.Proto)
		assert.Equal(t, "status code", 101, resp.StatusCode)
		assert.Equal(t, "status", "101 Switching Protocols", resp.Status)
		assert.Equal(t, "header", Header{
			{Name: "upgrade", Value: "websocket"},
			{Name: "Connection", Value: "Upgrade"},
			{Name: "Set-Cookie", Value: "a=1"},
			{Name: "Set-Cookie", Value: "b=2"},
		}, resp.Header)
		assert.Equal(t, "lookup", "websocket", resp.Header.Get("Upgrade"))
		assert.Equal(t, "values", []string{"a=1", "b=2"}, resp.Header.Values("set-cookie"))

		rest := make([]byte, 2)
		_, err = br.Read(rest[:1])
		assert.Success(t, err)
		_, err = br.Read(rest[1:])
		assert.Success(t, err)
		assert.Equal(t, "rest", []byte{0x81, 0x00}, rest)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		_, err := readResponse("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n")
		var he *HandshakeError
		assert.ErrorAs(t, err, &he)
	})

	t.Run("malformedStatus", func(t *testing.T) {
		t.Parallel()

		for _, s := range []string{"garbage\r\n\r\n", "HTTP/1.1 abc OK\r\n\r\n", "HTTP/1.1\r\n\r\n"} {
			_, err := readResponse(s)
			var he *HandshakeError
			assert.ErrorAs(t, err, &he)
		}
	})

	t.Run("tooLarge", func(t *testing.T) {
		t.Parallel()

		_, err := readResponse("HTTP/1.1 101 Switching Protocols\r\n" + strings.Repeat("X-Pad: "+strings.Repeat("a", 100)+"\r\n", 200) + "\r\n")
		assert.Contains(t, err, "too large")
	})
}

func TestHandshakeRequestVerify(t *testing.T) {
	t.Parallel()

	req, err := newHandshakeRequest("example.com", 80, "/", false, zeroRand())
	assert.Success(t, err)
	assert.Success(t, req.AddHeader("Sec-WebSocket-Protocol", "chat, superchat"))

	accept := secWebSocketAccept(zeroKey)
	valid := func() *HandshakeResponse {
		return &HandshakeResponse{
			Proto:      "HTTP/1.1",
			StatusCode: 101,
			Header: Header{
				{Name: "Upgrade", Value: "WebSocket"},
				{Name: "Connection", Value: "keep-alive, upgrade"},
				{Name: "Sec-WebSocket-Accept", Value: accept},
			},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(resp *HandshakeResponse)
		success bool
	}{
		{
			name:    "valid",
			mutate:  func(*HandshakeResponse) {},
			success: true,
		},
		{
			name: "subprotocol",
			mutate: func(resp *HandshakeResponse) {
				resp.Header.Add("Sec-WebSocket-Protocol", "superchat")
			},
			success: true,
		},
		{
			name: "unofferedSubprotocol",
			mutate: func(resp *HandshakeResponse) {
				resp.Header.Add("Sec-WebSocket-Protocol", "other")
			},
		},
		{
			name: "badStatus",
			mutate: func(resp *HandshakeResponse) {
				resp.StatusCode = 200
			},
		},
		{
			name: "badConnection",
			mutate: func(resp *HandshakeResponse) {
				resp.Header[1].Value = "close"
			},
		},
		{
			name: "badUpgrade",
			mutate: func(resp *HandshakeResponse) {
				resp.Header[0].Value = "h2c"
			},
		},
		{
			name: "badAccept",
			mutate: func(resp *HandshakeResponse) {
				resp.Header[2].Value = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
			},
		},
		{
			name: "extensions",
			mutate: func(resp *HandshakeResponse) {
				resp.Header.Add("Sec-WebSocket-Extensions", "permessage-deflate")
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp := valid()
			tc.mutate(resp)
			err := req.Verify(resp)
			if tc.success {
				assert.Success(t, err)
			} else {
				var he *HandshakeError
				assert.ErrorAs(t, err, &he)
			}
		})
	}
}
