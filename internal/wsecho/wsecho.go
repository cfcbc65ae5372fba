// Package wsecho is the WebSocket echo server the example commands and
// interop tests talk to.
package wsecho

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coder/wsclient/internal/errd"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"echo"},
}

// Serve upgrades the request and echoes every message until the client
// closes the connection. A normal or going away close returns nil.
func Serve(w http.ResponseWriter, r *http.Request) (err error) {
	defer errd.Wrap(&err, "echo failed")

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		typ, p, err := c.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		err = c.WriteMessage(typ, p)
		if err != nil {
			return err
		}
	}
}

// Router returns a gin engine that serves Serve on path.
func Router(path string, log logrus.FieldLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.GET(path, func(c *gin.Context) {
		log.Debugf("[Serve]: remote = %v", c.Request.RemoteAddr)
		err := Serve(c.Writer, c.Request)
		if err != nil {
			log.Warnf("[Serve]: remote = %v, err = %v", c.Request.RemoteAddr, err)
		}
	})
	return r
}
