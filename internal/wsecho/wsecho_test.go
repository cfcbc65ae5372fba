package wsecho_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/coder/wsclient"
	"github.com/coder/wsclient/internal/test/assert"
	"github.com/coder/wsclient/internal/wsecho"
)

func TestRouter(t *testing.T) {
	t.Parallel()

	log, _ := logtest.NewNullLogger()
	s := httptest.NewServer(wsecho.Router("/echo", log))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	var texts []string
	c, _, err := wsclient.Dial(ctx, strings.Replace(s.URL, "http", "ws", 1)+"/echo", &wsclient.DialOptions{
		SessionOptions: wsclient.SessionOptions{
			Subprotocols: []string{"echo"},
			Handlers: wsclient.Handlers{
				OnText: func(c *wsclient.Session, msg string) {
					texts = append(texts, msg)
				},
			},
		},
	})
	assert.Success(t, err)
	defer c.Close(wsclient.StatusInternalError, "")
	assert.Equal(t, "subprotocol", "echo", c.Subprotocol())

	err = c.Write(ctx, wsclient.MessageText, []byte("hello"))
	assert.Success(t, err)
	err = c.Next(ctx)
	assert.Success(t, err)
	assert.Equal(t, "texts", []string{"hello"}, texts)

	assert.Success(t, c.Close(wsclient.StatusNormalClosure, ""))
}
