package wsclient

import (
	"io"

	"github.com/coder/wsclient/internal/errd"
)

// Assembler reassembles fragmented data messages read from a server.
// The zero value is ready to use and has no size limit.
type Assembler struct {
	// Limit bounds the total payload size of a message.
	// Zero or negative means no limit.
	Limit int64

	buf []byte
}

// ReadMessage reads frames from r until a complete text or binary
// message is available and returns its opcode and payload. Ownership of
// the payload passes to the caller.
//
// A message starts with a data frame and ends with the first frame that
// has FIN set. The opcode of the frames after the first is not
// interpreted. Control frames may arrive before or between fragments;
// each is passed to onControl as soon as it is read and a non nil error
// from onControl aborts the read.
func (a *Assembler) ReadMessage(r io.Reader, onControl func(Frame) error) (_ Opcode, _ []byte, err error) {
	defer errd.Wrap(&err, "failed to read message")

	a.buf = a.buf[:0]

	var op Opcode
	for {
		f, err := ReadFrame(r, a.frameLimit())
		if err != nil {
			return 0, nil, err
		}

		if f.Opcode.Control() {
			if onControl != nil {
				err = onControl(f)
				if err != nil {
					return 0, nil, err
				}
			}
			continue
		}

		if op == OpContinuation {
			if f.Opcode == OpContinuation {
				return 0, nil, protocolErrorf("received continuation frame without text or binary frame")
			}
			op = f.Opcode
			if f.Fin {
				return op, f.Payload, nil
			}
		}

		a.buf = append(a.buf, f.Payload...)
		if f.Fin {
			msg := a.buf
			a.buf = nil
			return op, msg, nil
		}
	}
}

// Reset releases the accumulation buffer.
func (a *Assembler) Reset() {
	a.buf = nil
}

func (a *Assembler) frameLimit() int64 {
	if a.Limit <= 0 {
		return -1
	}
	rem := a.Limit - int64(len(a.buf))
	if rem < 0 {
		return 0
	}
	return rem
}
