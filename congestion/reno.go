package congestion

import (
	"sync"
	"time"

	"github.com/kbypass/estack/asyncval"
	"github.com/kbypass/estack/seqnum"
)

// dupAckThreshold is the number of duplicate ACKs that triggers fast
// retransmit, per RFC 5681.
const dupAckThreshold = 3

// Reno is the classic slow-start/AIMD congestion controller with
// three-dupack fast retransmit, fast recovery, and RFC 3042 limited
// transmit.
type Reno struct {
	mss uint32

	mu             sync.Mutex
	ssthresh       uint32
	dupAcks        int
	inFastRecovery bool
	recoveryPoint  seqnum.Value

	cwnd            *asyncval.Value[uint32]
	retransmitNow   *asyncval.Value[bool]
	limitedTransmit *asyncval.Value[uint32]
}

// NewReno creates a Reno controller for a connection with the given MSS.
// Initial cwnd follows RFC 5681's slow-start default (min(4*MSS, 4380)),
// and ssthresh starts at the maximum possible window so the connection
// begins in slow start.
func NewReno(mss uint32) *Reno {
	initCwnd := 4 * mss
	if initCwnd > 4380 {
		initCwnd = 4380
	}
	return &Reno{
		mss:             mss,
		ssthresh:        1 << 30,
		cwnd:            asyncval.New(initCwnd),
		retransmitNow:   asyncval.New(false),
		limitedTransmit: asyncval.New(uint32(0)),
	}
}

func (r *Reno) Cwnd() *asyncval.Value[uint32]                    { return r.cwnd }
func (r *Reno) RetransmitNowFlag() *asyncval.Value[bool]         { return r.retransmitNow }
func (r *Reno) LimitedTransmitCwndIncrease() *asyncval.Value[uint32] { return r.limitedTransmit }

// OnAckReceived implements Controller.
func (r *Reno) OnAckReceived(rto time.Duration, una, nxt, ack seqnum.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ack == una && una != nxt {
		// Duplicate ACK: outstanding data exists and the peer didn't move
		// SND.UNA forward.
		r.dupAcks++
		switch {
		case r.dupAcks < dupAckThreshold:
			// RFC 3042 limited transmit: let the sender put one extra
			// segment on the wire for each of the first two dupacks.
			cur, _ := r.limitedTransmit.Get()
			r.limitedTransmit.Set(cur + r.mss)
		case r.dupAcks == dupAckThreshold:
			flight := uint32(una.Size(nxt))
			r.ssthresh = maxu32(flight/2, 2*r.mss)
			r.cwnd.Set(r.ssthresh + dupAckThreshold*r.mss)
			r.inFastRecovery = true
			r.recoveryPoint = nxt
			r.retransmitNow.Set(true)
			r.limitedTransmit.Set(0)
		default:
			if r.inFastRecovery {
				cur, _ := r.cwnd.Get()
				r.cwnd.Set(cur + r.mss)
			}
		}
		return
	}

	// A new ACK: una is about to advance to ack.
	bytesAcked := uint32(una.Size(ack))
	if r.inFastRecovery {
		if !ack.LessThan(r.recoveryPoint) {
			r.inFastRecovery = false
			r.dupAcks = 0
			r.limitedTransmit.Set(0)
			r.cwnd.Set(r.ssthresh)
		}
		return
	}

	r.dupAcks = 0
	r.limitedTransmit.Set(0)
	cur, _ := r.cwnd.Get()
	if cur < r.ssthresh {
		// Slow start: roughly one MSS of growth per ACK.
		inc := bytesAcked
		if inc > r.mss {
			inc = r.mss
		}
		r.cwnd.Set(cur + inc)
	} else {
		// Congestion avoidance: AIMD, classic mss^2/cwnd approximation.
		inc := (r.mss * r.mss) / cur
		if inc == 0 {
			inc = 1
		}
		r.cwnd.Set(cur + inc)
	}
}

// OnSend implements Controller. Reno doesn't need to react to sends
// beyond what OnAckReceived/OnRTO already track.
func (r *Reno) OnSend(rto time.Duration, bytes int) {}

// OnRTO implements Controller: a timeout is treated as a much stronger
// congestion signal than 3 dupacks — cwnd collapses to one MSS and slow
// start restarts.
func (r *Reno) OnRTO(una seqnum.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, _ := r.cwnd.Get()
	r.ssthresh = maxu32(cur/2, 2*r.mss)
	r.cwnd.Set(r.mss)
	r.inFastRecovery = false
	r.dupAcks = 0
	r.limitedTransmit.Set(0)
}

// OnFastRetransmit implements Controller: the retransmitter has acted on
// RetransmitNowFlag, so clear it until the next third dupack.
func (r *Reno) OnFastRetransmit() {
	r.retransmitNow.Set(false)
}

// OnCwndCheckBeforeSend implements Controller. Reno has no per-check
// bookkeeping; the sender reads Cwnd() directly.
func (r *Reno) OnCwndCheckBeforeSend() {}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
