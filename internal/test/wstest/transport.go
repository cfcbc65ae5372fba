package wstest

import (
	"github.com/coder/wsclient"
	"github.com/coder/wsclient/internal/atomicint"
)

// CountingTransport wraps a wsclient.Transport and counts what passes
// through it.
type CountingTransport struct {
	wsclient.Transport

	Sent     atomicint.Int64
	Received atomicint.Int64
	Closes   atomicint.Int64
}

func (t *CountingTransport) Send(p []byte) (int, error) {
	n, err := t.Transport.Send(p)
	t.Sent.Increment(int64(n))
	return n, err
}

func (t *CountingTransport) Receive(p []byte) (int, error) {
	n, err := t.Transport.Receive(p)
	t.Received.Increment(int64(n))
	return n, err
}

func (t *CountingTransport) Close() error {
	t.Closes.Increment(1)
	return t.Transport.Close()
}

// TrickleTransport hands out at most one byte per Receive.
type TrickleTransport struct {
	wsclient.Transport
}

func (t TrickleTransport) Receive(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return t.Transport.Receive(p)
}
