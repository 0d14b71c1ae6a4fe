package tcp

import "github.com/kbypass/estack/header"

// State is one of the eight states an established-or-closing connection
// can be in (spec.md §3). Unlike a full TCP state machine, there is no
// Listen/SynSent/SynRcvd here — those belong to the out-of-scope handshake.
type State int

const (
	StateEstablished State = iota
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
	StateCloseWait
	StateLastAck
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateClosing:
		return "CLOSING"
	case StateTimeWait:
		return "TIME-WAIT"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateLastAck:
		return "LAST-ACK"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Endpoint identifies one side of a connection: an IPv4 address and port.
type Endpoint struct {
	Addr header.Address
	Port uint16
}
