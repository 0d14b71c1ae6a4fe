// Package congestion implements the pluggable congestion-control capability
// set of spec.md §4.4 — on_ack_received/on_send/on_rto/on_fast_retransmit/
// on_cwnd_check_before_send plus the cwnd/retransmit-now/limited-transmit
// observables — with Reno as the default implementation. The teacher's
// transport/tcp/snd.go sketches exactly this surface as commented-out
// fields (fr fastRecovery, sndCwnd, sndSsthresh, sndCAAckCount) without
// ever wiring them up; this package is that wiring, generalized to a
// pluggable interface per spec.md §9's design note.
package congestion

import (
	"time"

	"github.com/kbypass/estack/asyncval"
	"github.com/kbypass/estack/seqnum"
)

// Controller is the congestion-control capability set a sender consults
// before transmitting and informs as ACKs, sends, RTOs and fast
// retransmits occur.
type Controller interface {
	// OnAckReceived is invoked for every incoming ACK in [SND.UNA,
	// SND.NXT], before the sender advances SND.UNA, so una still reflects
	// the pre-ACK state. ACKs behind SND.UNA or beyond SND.NXT are dropped
	// without reaching it.
	OnAckReceived(rto time.Duration, una, nxt, ack seqnum.Value)

	// OnSend is invoked whenever the sender emits bytes bearing new data.
	OnSend(rto time.Duration, bytes int)

	// OnRTO is invoked when the retransmit timer fires.
	OnRTO(una seqnum.Value)

	// OnFastRetransmit is invoked after the retransmitter has re-emitted
	// the head of the unacked queue in response to RetransmitNowFlag.
	OnFastRetransmit()

	// OnCwndCheckBeforeSend is invoked immediately before the sender
	// checks the congestion window to decide how much it may send.
	OnCwndCheckBeforeSend()

	// Cwnd is the current congestion window, in bytes.
	Cwnd() *asyncval.Value[uint32]

	// RetransmitNowFlag flips true to signal the retransmitter to
	// immediately re-send the head of the unacked queue (fast retransmit).
	RetransmitNowFlag() *asyncval.Value[bool]

	// LimitedTransmitCwndIncrease is the RFC 3042 limited-transmit
	// allowance: extra bytes, beyond cwnd, the sender may emit in
	// response to the first two duplicate ACKs of a run.
	LimitedTransmitCwndIncrease() *asyncval.Value[uint32]
}
