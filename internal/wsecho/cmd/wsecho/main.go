package main

import (
	"flag"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/coder/wsclient/internal/wsecho"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "address to listen on")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	log.Infof("[main]: listening on ws://%v", *addr)
	err := http.ListenAndServe(*addr, wsecho.Router("/", log))
	log.Fatalf("[main]: %v", err)
}
