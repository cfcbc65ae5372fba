package wsclient_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gobwas/ws"
	gorilla "github.com/gorilla/websocket"

	"github.com/coder/wsclient"
	"github.com/coder/wsclient/internal/errd"
	"github.com/coder/wsclient/internal/test/assert"
	"github.com/coder/wsclient/internal/test/wstest"
)

func TestBadDials(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		url  string
	}{
		{name: "badURL", url: "://noscheme"},
		{name: "badURLScheme", url: "ftp://example.com"},
		{name: "noHost", url: "ws:///chat"},
		{name: "badPort", url: "ws://example.com:abc"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := wsclient.Dial(testContext(t), tc.url, nil)
			assert.Contains(t, err, "failed to WebSocket dial")
		})
	}
}

func TestDial(t *testing.T) {
	t.Parallel()

	uris := make(chan string, 1)
	hosts := make(chan string, 1)
	srv, err := wstest.NewServerUpgrader(ws.Upgrader{
		OnRequest: func(uri []byte) error {
			uris <- string(uri)
			return nil
		},
		OnHost: func(host []byte) error {
			hosts <- string(host)
			return nil
		},
	}, nil)
	assert.Success(t, err)
	defer srv.Close()

	var texts []string
	ct := &wstest.CountingTransport{Transport: wsclient.NewTCPTransport(nil)}
	ctx := testContext(t)
	s, resp, err := wsclient.Dial(ctx, srv.URL()+"/chat?room=1", &wsclient.DialOptions{
		SessionOptions: wsclient.SessionOptions{
			Handlers: wsclient.Handlers{
				OnText: func(s *wsclient.Session, msg string) {
					texts = append(texts, msg)
				},
			},
		},
		Transport: ct,
	})
	assert.Success(t, err)
	defer s.Close(wsclient.StatusInternalError, "")

	assert.Equal(t, "status", 101, resp.StatusCode)
	assert.Equal(t, "uri", "/chat?room=1", <-uris)
	assert.Equal(t, "host", srv.Addr(), <-hosts)

	err = s.Write(ctx, wsclient.MessageText, []byte("hello"))
	assert.Success(t, err)
	err = s.Next(ctx)
	assert.Success(t, err)
	assert.Equal(t, "texts", []string{"hello"}, texts)

	assert.Success(t, s.Close(wsclient.StatusNormalClosure, ""))
	assert.Equal(t, "transport closes", int64(1), ct.Closes.Load())
}

func TestDialTLS(t *testing.T) {
	t.Parallel()

	hs := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gorillaEcho(w, r)
	}))
	defer hs.Close()

	var bins [][]byte
	ctx := testContext(t)
	s, _, err := wsclient.Dial(ctx, "wss://"+strings.TrimPrefix(hs.URL, "https://"), &wsclient.DialOptions{
		SessionOptions: wsclient.SessionOptions{
			Handlers: wsclient.Handlers{
				OnBinary: func(s *wsclient.Session, msg []byte) {
					bins = append(bins, msg)
				},
			},
		},
		TLSConfig: hs.Client().Transport.(*http.Transport).TLSClientConfig,
	})
	assert.Success(t, err)
	defer s.Close(wsclient.StatusInternalError, "")

	for i := 0; i < 3; i++ {
		err = s.Write(ctx, wsclient.MessageBinary, []byte(strconv.Itoa(i)))
		assert.Success(t, err)
		err = s.Next(ctx)
		assert.Success(t, err)
	}
	assert.Equal(t, "msgs", [][]byte{[]byte("0"), []byte("1"), []byte("2")}, bins)

	assert.Success(t, s.Close(wsclient.StatusNormalClosure, ""))
}

func TestDialTLSUntrusted(t *testing.T) {
	t.Parallel()

	hs := httptest.NewTLSServer(http.NotFoundHandler())
	defer hs.Close()

	_, _, err := wsclient.Dial(testContext(t), strings.Replace(hs.URL, "https", "wss", 1), &wsclient.DialOptions{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	})
	var te *wsclient.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, "op", "connect", te.Op)
}

func gorillaEcho(w http.ResponseWriter, r *http.Request) (err error) {
	defer errd.Wrap(&err, "gorilla echo failed")

	u := gorilla.Upgrader{}
	c, err := u.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		typ, p, err := c.ReadMessage()
		if err != nil {
			return err
		}
		err = c.WriteMessage(typ, p)
		if err != nil {
			return err
		}
	}
}
