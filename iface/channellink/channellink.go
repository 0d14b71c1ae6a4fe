// Package channellink is a worked, in-memory implementation of
// iface.Layer3Endpoint: a pair of Links connected by Go channels, each
// side handing every transmitted packet straight to the other side's
// registered dispatcher. It plays the role the teacher's link/channel
// package plays for its stack — storing outbound packets for inspection
// or forwarding — generalized here to connect two ControlBlocks directly
// without any IP routing or ARP in between, since that framing is out of
// scope for this module (spec.md §1).
package channellink

import (
	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/header"
)

// Dispatcher receives one packet delivered to a Link, as the encoded TCP
// header plus payload bytes the peer transmitted.
type Dispatcher func(payload buffer.View)

// Link is one side of an in-memory point-to-point connection. Outbound
// packets are copied (per TransmitTCPPacketNonblocking's non-blocking
// contract) and handed to the peer's dispatcher on a background
// goroutine, so neither side ever blocks the other.
type Link struct {
	self header.Address
	peer *Link

	out chan buffer.View

	dispatcher Dispatcher
}

// NewPair creates two Links addressed a and b, each wired to deliver
// packets the other transmits.
func NewPair(a, b header.Address, queueDepth int) (*Link, *Link) {
	la := &Link{self: a, out: make(chan buffer.View, queueDepth)}
	lb := &Link{self: b, out: make(chan buffer.View, queueDepth)}
	la.peer = lb
	lb.peer = la
	return la, lb
}

// Attach registers the function that receives packets arriving at this
// Link, and starts the goroutine draining the peer's outbound queue into
// it. Must be called before the peer starts transmitting.
func (l *Link) Attach(d Dispatcher) {
	l.dispatcher = d
	go l.deliverLoop()
}

func (l *Link) deliverLoop() {
	for pkt := range l.peer.out {
		if l.dispatcher != nil {
			l.dispatcher(pkt)
		}
	}
}

// TransmitTCPPacketNonblocking implements iface.Layer3Endpoint: it copies
// the packet and enqueues it for asynchronous delivery to the peer,
// dropping it (as any real non-blocking NIC queue would under pressure)
// if the queue is full.
func (l *Link) TransmitTCPPacketNonblocking(peer header.Address, packet buffer.View) error {
	cp := packet.Clone()
	select {
	case l.out <- cp:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrQueueFull is returned when a Link's outbound queue is saturated.
var ErrQueueFull = linkError("link outbound queue full")

type linkError string

func (e linkError) Error() string { return string(e) }
