package wsclient

import "fmt"

// State is the lifecycle state of a Session.
type State int

// State constants.
const (
	// StateDisconnected is the state of a new Session.
	StateDisconnected State = iota
	// StateConnecting covers the transport connect and the opening handshake.
	StateConnecting
	// StateOpen is the only state in which messages may be sent or read.
	StateOpen
	// StateClosed is final. The transport has been released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
