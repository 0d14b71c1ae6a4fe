package tcp

import (
	"time"

	"github.com/gammazero/deque"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/congestion"
	"github.com/kbypass/estack/seqnum"
)

// outgoingSegment is one queued unit of outbound data: either a run of
// payload bytes, or (when data is zero-length and fin is true) the
// connection's FIN.
type outgoingSegment struct {
	seq  seqnum.Value
	data buffer.View
	fin  bool

	// sentAt is non-zero once the segment has been transmitted at least
	// once; retransmit tracks whether the most recent transmission was
	// a retransmit, which Karn's algorithm uses to disqualify the RTT
	// sample taken from its ACK.
	sentAt     time.Time
	retransmit bool
}

// sender holds the send side of a ControlBlock's sequence space: SND.UNA,
// SND.NXT and SND.WND (spec.md §4.4), the unsent and unacknowledged
// queues, the RTO estimator, and the congestion controller.
//
// Like receiver, sender relies on the owning ControlBlock's mutex for the
// sequence-space fields; it is never locked on its own.
type sender struct {
	iss seqnum.Value
	mss uint32

	sndUna seqnum.Value
	sndNxt seqnum.Value
	sndWnd seqnum.Size

	// unsent holds data pushed by the application that hasn't yet been
	// handed to the network; unacked holds segments transmitted at least
	// once but not yet fully acknowledged. Both are backed by a ring
	// buffer so that Push (append) and retransmit-scan (iterate front to
	// back) are cheap.
	unsent  deque.Deque[outgoingSegment]
	unacked deque.Deque[outgoingSegment]

	unsentBytes    int
	maxUnsentBytes int

	finQueued bool
	finAcked  bool

	rto *congestion.RTOEstimator
	cc  congestion.Controller

	// rttMeasureSeq/rttMeasureTime track the one in-flight RTT sample
	// Karn's algorithm allows: taken only from a segment that was never
	// retransmitted.
	rttMeasureSeq  seqnum.Value
	rttMeasureTime time.Time
	rttMeasuring   bool
}

func newSender(iss seqnum.Value, sndWnd seqnum.Size, mss uint32, maxUnsentBytes int, cc congestion.Controller, rto *congestion.RTOEstimator) *sender {
	return &sender{
		iss:            iss,
		mss:            mss,
		sndUna:         iss,
		sndNxt:         iss,
		sndWnd:         sndWnd,
		maxUnsentBytes: maxUnsentBytes,
		cc:             cc,
		rto:            rto,
	}
}

// spaceAvailable reports how many bytes remain below maxUnsentBytes in
// the unsent queue. Push does not consult it.
func (s *sender) spaceAvailable() int {
	return s.maxUnsentBytes - s.unsentBytes
}

// Push queues data for transmission. It does not itself transmit; the
// sender task (tasks.go) drains unsent on its own schedule, respecting
// the congestion and receive windows.
func (s *sender) Push(data buffer.View) {
	if len(data) == 0 {
		return
	}
	s.unsent.PushBack(outgoingSegment{data: data})
	s.unsentBytes += len(data)
}

// PushFin queues the connection's FIN as the final entry in unsent. No
// data may be queued after this.
func (s *sender) PushFin() {
	s.unsent.PushBack(outgoingSegment{fin: true})
	s.finQueued = true
}

// nextUnsent returns the front of the unsent queue without removing it.
func (s *sender) nextUnsent() (outgoingSegment, bool) {
	if s.unsent.Len() == 0 {
		return outgoingSegment{}, false
	}
	return s.unsent.Front(), true
}

// dequeueUnsent moves the front unsent segment to unacked, stamping its
// sequence number and send time, and advances SND.NXT. It is called by
// the sender task once it has decided (against cwnd/rwnd) to transmit.
// now comes from the owning ControlBlock's AsyncRuntime clock rather than
// the wall clock, so RTT sampling stays deterministic under VirtualRuntime.
func (s *sender) dequeueUnsent(now time.Time) outgoingSegment {
	seg := s.unsent.PopFront()
	seg.seq = s.sndNxt
	seg.sentAt = now

	if seg.fin {
		s.sndNxt = s.sndNxt.Add(1)
	} else {
		s.sndNxt = s.sndNxt.Add(seqnum.Size(len(seg.data)))
		s.unsentBytes -= len(seg.data)
	}

	if !s.rttMeasuring {
		s.rttMeasuring = true
		s.rttMeasureSeq = seg.seq
		s.rttMeasureTime = seg.sentAt
	}

	s.unacked.PushBack(seg)
	return seg
}

// flightSize returns the number of bytes currently outstanding
// (transmitted but not yet acknowledged).
func (s *sender) flightSize() int {
	return int(s.sndUna.Size(s.sndNxt))
}

// ProcessAck folds an incoming ACK into the send state: it retires fully
// acknowledged segments from unacked, advances SND.UNA, takes an RTT
// sample when Karn's algorithm allows it, and reports whether the ACK
// acknowledged anything new (for congestion-control dup-ack counting,
// which the caller drives separately via cc.OnAckReceived). now comes
// from the owning ControlBlock's AsyncRuntime clock.
func (s *sender) ProcessAck(ack seqnum.Value, wnd seqnum.Size, now time.Time) (ackedNew bool) {
	s.sndWnd = wnd

	if !ack.LessThanEq(s.sndNxt) {
		return false
	}
	if !s.sndUna.LessThan(ack) {
		return false
	}
	ackedNew = true

	for s.unacked.Len() > 0 {
		front := s.unacked.Front()
		var segEnd seqnum.Value
		if front.fin {
			segEnd = front.seq.Add(1)
		} else {
			segEnd = front.seq.Add(seqnum.Size(len(front.data)))
		}
		if !segEnd.LessThanEq(ack) {
			break
		}
		seg := s.unacked.PopFront()
		if seg.fin {
			s.finAcked = true
		}

		if s.rttMeasuring && seg.seq == s.rttMeasureSeq {
			if !seg.retransmit {
				s.rto.AddSample(now.Sub(s.rttMeasureTime))
			}
			s.rttMeasuring = false
		}
	}

	s.sndUna = ack
	return ackedNew
}

// markRetransmitted flags every segment in unacked as a retransmit,
// disqualifying any RTT sample currently in flight (Karn's algorithm).
// It does not move SND.NXT or resend anything; the caller resends the
// head of unacked, which starts at SND.UNA.
func (s *sender) markRetransmitted() {
	for i := 0; i < s.unacked.Len(); i++ {
		seg := s.unacked.At(i)
		seg.retransmit = true
		s.unacked.Set(i, seg)
	}
	s.rttMeasuring = false
}

// retransmitQueue returns the segments awaiting retransmission, oldest
// first.
func (s *sender) retransmitQueue() []outgoingSegment {
	out := make([]outgoingSegment, 0, s.unacked.Len())
	for i := 0; i < s.unacked.Len(); i++ {
		out = append(out, s.unacked.At(i))
	}
	return out
}

// allAcked reports whether every queued segment, including a queued FIN,
// has been acknowledged.
func (s *sender) allAcked() bool {
	return s.unacked.Len() == 0 && s.unsent.Len() == 0 && (!s.finQueued || s.finAcked)
}
