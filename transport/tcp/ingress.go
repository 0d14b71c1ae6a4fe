package tcp

import (
	"time"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/header"
	"github.com/kbypass/estack/seqnum"
)

// handleSegment runs one incoming segment through the full acceptance
// and processing pipeline of spec.md §4.1, in the order listed there.
// It is always called with cb.mu held.
func (cb *ControlBlock) handleSegment(seg incomingSegment) {
	if !cb.checkSegmentInWindow(&seg) {
		cb.log.Debug().Uint32("seq", uint32(seg.seq)).Msg("segment outside receive window, dropping")
		if !seg.flagIsSet(header.TCPFlagRst) {
			cb.scheduleAck()
		}
		return
	}

	if seg.flagIsSet(header.TCPFlagRst) {
		cb.log.Debug().Msg("RST accepted, connection reset")
		cb.fail(ErrConnectionReset)
		return
	}

	if seg.flagIsSet(header.TCPFlagSyn) {
		// An in-window SYN outside the handshake is a protocol error;
		// the handshake itself is out of scope for this engine.
		cb.log.Debug().Err(ErrBadSegment).Msg("in-window SYN outside handshake, dropping")
		cb.scheduleAck()
		return
	}

	if !seg.flagIsSet(header.TCPFlagAck) {
		// Every segment in the established state must carry ACK.
		cb.log.Debug().Err(ErrBadSegment).Msg("segment missing ACK, dropping")
		return
	}

	if !cb.processAck(seg) {
		return
	}

	// Urgent data is not supported; the flag and pointer are ignored
	// per spec.md §4.1's explicit non-goal.

	cb.processData(seg)

	if seg.flagIsSet(header.TCPFlagFin) {
		cb.processFin(seg)
	}
}

// checkSegmentInWindow implements spec.md §4.1 step 1: a segment is
// acceptable if at least one byte of it (or, for an empty segment, its
// sequence number itself) falls within [RCV.NXT, RCV.NXT+RCV.WND). A
// segment whose tail runs past RCV.NXT+RCV.WND is tail-trimmed in place
// to the window's edge (per spec.md §8's boundary case), dropping any
// FIN that fell past the trimmed edge along with it.
func (cb *ControlBlock) checkSegmentInWindow(seg *incomingSegment) bool {
	rcvNxt, rcvWnd := cb.rcv.acceptableWindow()

	if len(seg.payload) == 0 && !seg.flagIsSet(header.TCPFlagFin) {
		if rcvWnd == 0 {
			return seg.seq == rcvNxt
		}
		return seg.seq.InWindow(rcvNxt, rcvWnd)
	}

	segLen := seqnum.Size(len(seg.payload))
	if seg.flagIsSet(header.TCPFlagFin) {
		segLen++
	}
	if rcvWnd == 0 {
		return false
	}
	last := seg.seq.Add(segLen - 1)
	if !seg.seq.InWindow(rcvNxt, rcvWnd) && !last.InWindow(rcvNxt, rcvWnd) {
		return false
	}

	windowEnd := rcvNxt.Add(rcvWnd)
	if last.LessThan(windowEnd) {
		return true
	}
	keep := int(seg.seq.Size(windowEnd))
	if keep > len(seg.payload) {
		keep = len(seg.payload)
	}
	if keep < 0 {
		keep = 0
	}
	seg.payload = seg.payload[:keep]
	seg.flags &^= header.TCPFlagFin
	return true
}

// processAck folds the segment's ACK into the send state and informs
// congestion control, per spec.md §4.1 steps 2-4 and §4.4. It returns
// false if the ACK acknowledges data never sent, in which case the
// segment is dropped without further processing (spec.md §7,
// ErrBadSegment's drop-and-continue case).
func (cb *ControlBlock) processAck(seg incomingSegment) bool {
	if seg.ack.LessThan(cb.snd.sndUna) {
		// Stale ACK, behind SND.UNA: not a dup-ack (Controller.OnAckReceived
		// only recognizes ack == una as one) and not informative, so it's
		// dropped without being passed to congestion control — doing so
		// would hit the ack != una "new ACK" path and wrongly reset the
		// in-progress dup-ack count.
		return true
	}
	if cb.snd.sndNxt.LessThan(seg.ack) {
		// ACKs data never sent.
		cb.log.Debug().Err(ErrBadSegment).Uint32("ack", uint32(seg.ack)).Msg("ack of unsent data, dropping")
		cb.scheduleAck()
		return false
	}

	una := cb.snd.sndUna
	cb.cc.OnAckReceived(cb.rtoEst.RTO(), una, cb.snd.sndNxt, seg.ack)

	cb.snd.ProcessAck(seg.ack, seg.wnd, cb.rt.Now())

	if flag, _ := cb.cc.RetransmitNowFlag().Get(); flag {
		cb.retransmitWaker.Assert()
	}

	if cb.snd.allAcked() {
		cb.onSendQueueDrained()
	}

	return true
}

// processData implements spec.md §4.1 steps 5-8: in-order bytes are
// pushed straight to the receiver, out-of-order bytes go to the
// reassembler, and any newly-contiguous run the reassembler now has at
// RCV.NXT is drained into the receiver too.
func (cb *ControlBlock) processData(seg incomingSegment) {
	if len(seg.payload) == 0 {
		return
	}

	rcvNxt, _ := cb.rcv.acceptableWindow()

	switch {
	case seg.seq == rcvNxt:
		cb.rcv.Push(buffer.View(seg.payload))
		cb.drainReassembler()
		cb.rcv.shrinkWindow(cb.recvBufferSize)
		cb.scheduleAck()
	case seg.seq.LessThan(rcvNxt):
		// Partial overlap with already-delivered data; trim the
		// already-seen prefix and push the remainder in-order.
		skip := int(seg.seq.Size(rcvNxt))
		if skip < len(seg.payload) {
			cb.rcv.Push(buffer.View(seg.payload[skip:]))
			cb.drainReassembler()
		}
		cb.rcv.shrinkWindow(cb.recvBufferSize)
		cb.scheduleAck()
	default:
		// Out-of-order: RFC 5681 wants an immediate duplicate ACK here
		// rather than a delayed one, so the peer's fast-retransmit logic
		// isn't stalled waiting on our ACK timer.
		cb.reasm.Insert(seg.seq, buffer.View(seg.payload))
		cb.rcv.shrinkWindow(cb.recvBufferSize)
		cb.sendAck()
	}
}

// drainReassembler moves every run the reassembler now has starting
// exactly at RCV.NXT into the receiver's pending stream, repeating until
// no further run is contiguous.
func (cb *ControlBlock) drainReassembler() {
	for {
		rcvNxt, _ := cb.rcv.acceptableWindow()
		data, ok := cb.reasm.Extract(rcvNxt)
		if !ok {
			return
		}
		cb.rcv.Push(data)
	}
}

// processFin implements spec.md §4.1's FIN handling: a FIN occupies one
// sequence number immediately after the receiver's in-order data, so it
// can only be consumed once every byte preceding it has arrived.
func (cb *ControlBlock) processFin(seg incomingSegment) {
	rcvNxt, _ := cb.rcv.acceptableWindow()
	finSeq := seg.seq + seqnum.Value(len(seg.payload))
	if finSeq != rcvNxt {
		// FIN arrived ahead of some still-missing bytes. It is not
		// recorded: out-of-order FIN tracking is not modeled, so the FIN
		// is consumed only when a later segment carries it at RCV.NXT
		// (in practice, the peer's retransmission of it).
		return
	}

	cb.rcv.PushFin()
	cb.scheduleAck()

	switch cb.state {
	case StateEstablished:
		cb.transitionTo(StateCloseWait)
	case StateFinWait1:
		cb.transitionTo(StateClosing)
	case StateFinWait2:
		cb.enterTimeWait()
	case StateClosing, StateLastAck, StateCloseWait, StateTimeWait:
		// Retransmitted FIN; already accounted for.
	}
}

// scheduleAck arms the delayed-ACK deadline if one isn't already
// pending, per spec.md §4.1 step 9. A second segment arriving while one
// is already pending forces an immediate ACK instead of re-arming.
func (cb *ControlBlock) scheduleAck() {
	deadline, _ := cb.ackDeadline.Get()
	if !deadline.IsZero() {
		cb.sendAck()
		cb.ackDeadline.Set(time.Time{})
		return
	}
	cb.ackDeadline.Set(cb.rt.Now().Add(cb.cfg.AckDelay))
}

// onSendQueueDrained wakes anything waiting on the send side fully
// draining, e.g. PushFinAndWaitForAck, and advances the close state
// machine if the drained queue included the local FIN.
func (cb *ControlBlock) onSendQueueDrained() {
	cb.closeWaker.Assert()
	cb.onFinAcked()
}
