package wsclient

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation is matched by every *ProtocolError with errors.Is.
	ErrProtocolViolation = errors.New("websocket: protocol violation")

	// ErrShortWrite is reported, wrapped in a *TransportError, when the
	// transport accepts fewer bytes than it was given without an error.
	ErrShortWrite = errors.New("websocket: short write")

	// ErrNotOpen is returned by send operations outside StateOpen.
	ErrNotOpen = errors.New("websocket: session is not open")

	// ErrInvalidState is returned by Connect on a session that is not
	// in StateDisconnected.
	ErrInvalidState = errors.New("websocket: invalid session state")

	// ErrClosed is returned by the read loop after the session was closed
	// locally.
	ErrClosed = errors.New("websocket: session closed")

	// ErrMessageTooBig is returned when a frame or a reassembled message
	// exceeds the read limit.
	ErrMessageTooBig = errors.New("websocket: message too big")
)

// TransportError is an underlying connect, send or receive failure.
// A server that drops the connection without a close frame is reported
// as a receive failure wrapping io.EOF or io.ErrUnexpectedEOF.
type TransportError struct {
	// Op is one of "connect", "send", "receive" or "close".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket: transport %v: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandshakeError is a failed or malformed opening handshake.
// The session never reaches StateOpen.
type HandshakeError struct {
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("websocket: handshake failed: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("websocket: handshake failed: %v", e.Reason)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ProtocolError is a received frame that violates RFC 6455.
// The connection is aborted when one is encountered.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "websocket: protocol violation: " + e.Reason
}

// Is makes errors.Is(err, ErrProtocolViolation) hold.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

func protocolErrorf(f string, v ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(f, v...)}
}
