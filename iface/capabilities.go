// Package iface defines the capabilities the established-state TCP engine
// consumes rather than implements (spec.md §6): a Layer3Endpoint for
// non-blocking packet transmission, and an AsyncRuntime for the monotonic
// clock and timed waits its background tasks need. Concrete IP/Ethernet
// transmission, memory-runtime glue, and the application-facing
// queue-descriptor API are all out of scope (spec.md §1) and live outside
// this module; RealRuntime and VirtualRuntime here are the minimal
// capability providers needed to run and test the engine standalone.
package iface

import (
	"time"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/header"
)

// Layer3Endpoint transmits an already-encoded TCP packet to a peer. It
// must never block the caller on network I/O.
type Layer3Endpoint interface {
	TransmitTCPPacketNonblocking(peer header.Address, packet buffer.View) error
}

// AsyncRuntime provides the monotonic clock and timed-wait primitive the
// engine's background tasks suspend on (spec.md §5's "Close: awaits
// FIN-ACK, then peer-FIN, then 2·MSL timer" and similar).
type AsyncRuntime interface {
	// Now returns the current monotonic time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed, following time.After's contract.
	After(d time.Duration) <-chan time.Time

	// Spawn starts fn as an independent background task.
	Spawn(fn func())
}
