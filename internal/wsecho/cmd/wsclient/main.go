// Command wsclient dials a WebSocket server, sends every line read from
// stdin as a text message and prints what the server sends back.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coder/wsclient"
	"github.com/coder/wsclient/internal/xsync"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/", "WebSocket URL to dial")
	subprotocol := flag.String("subprotocol", "", "subprotocol to offer")
	rps := flag.Float64("rate", 0, "maximum messages sent per second, 0 means unlimited")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	err := run(*url, *subprotocol, *rps, log)
	if err != nil {
		log.Fatalf("[main]: %v", err)
	}
}

func run(url, subprotocol string, rps float64, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := &wsclient.DialOptions{
		SessionOptions: wsclient.SessionOptions{
			Logger: log,
			Handlers: wsclient.Handlers{
				OnText: func(s *wsclient.Session, msg string) {
					fmt.Println(msg)
				},
				OnBinary: func(s *wsclient.Session, msg []byte) {
					fmt.Printf("% x\n", msg)
				},
				OnPong: func(s *wsclient.Session, p []byte) {
					log.Infof("[Pong]: rtt = %v", s.RTT())
				},
			},
		},
	}
	if subprotocol != "" {
		opts.Subprotocols = []string{subprotocol}
	}
	if rps > 0 {
		opts.SendLimiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	s, _, err := wsclient.Dial(ctx, url, opts)
	if err != nil {
		return err
	}
	defer s.Close(wsclient.StatusInternalError, "")
	log.Infof("[main]: connected to %v, subprotocol = %q", url, s.Subprotocol())

	errs := xsync.Go(func() error {
		return s.Run(ctx)
	})

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			var err error
			if sc.Text() == "/ping" {
				err = s.Ping(ctx, []byte("wsclient"))
			} else {
				err = s.Write(ctx, wsclient.MessageText, sc.Bytes())
			}
			if err != nil {
				log.Errorf("[main]: failed to send: %v", err)
				return
			}
		}
		s.Close(wsclient.StatusNormalClosure, "")
	}()

	select {
	case err = <-errs:
	case <-ctx.Done():
		s.Close(wsclient.StatusGoingAway, "interrupted")
		err = <-errs
	}

	switch {
	case errors.Is(err, wsclient.ErrClosed), wsclient.CloseStatus(err) == wsclient.StatusNormalClosure:
		return nil
	}
	return err
}
