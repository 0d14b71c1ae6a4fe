package tcp

import (
	"time"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/header"
	"github.com/kbypass/estack/seqnum"
)

// buildSegment encodes a single TCP segment ready for handoff to the
// Layer3Endpoint: header fields, options-free fixed header, payload, and
// (unless offloaded) the checksum, per spec.md §4.6.
func (cb *ControlBlock) buildSegment(seq, ack seqnum.Value, flags uint8, wnd seqnum.Size, payload buffer.View) buffer.View {
	total := header.TCPMinimumSize + len(payload)
	pkt := buffer.NewView(total)
	copy(pkt[header.TCPMinimumSize:], payload)

	h := header.TCP(pkt)
	h.Encode(&header.TCPFields{
		SrcPort:    cb.local.Port,
		DstPort:    cb.remote.Port,
		SeqNum:     uint32(seq),
		AckNum:     uint32(ack),
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: clampWindow(wnd, cb.recvWindowScaleShift),
	})

	if !cb.cfg.ChecksumOffload {
		partial := header.PseudoHeaderChecksum(cb.local.Addr, cb.remote.Addr, uint16(total))
		h.SetChecksum(h.CalculateChecksum(partial))
	}
	return pkt
}

// clampWindow shifts a full-resolution window size down by the
// negotiated scale factor and saturates to 16 bits, per RFC 1323 §2.3.
func clampWindow(wnd seqnum.Size, shift uint8) uint16 {
	scaled := uint32(wnd) >> shift
	if scaled > 0xffff {
		scaled = 0xffff
	}
	return uint16(scaled)
}

// emit hands a built segment to the Layer3Endpoint, logging and
// returning any transmit error without treating it as connection-fatal.
// emit does not retry: a dropped data or FIN segment stays on the unacked
// queue and goes out again only when the retransmit timer fires, and a
// dropped bare ACK is not resent. Per spec.md §4.6, emitting
// unconditionally clears the delayed-ACK deadline: whatever ACK this
// segment carries piggybacks the pending one, so there is nothing left
// to send when the deadline would otherwise fire.
func (cb *ControlBlock) emit(pkt buffer.View) error {
	cb.ackDeadline.Set(time.Time{})
	if err := cb.l3.TransmitTCPPacketNonblocking(cb.remote.Addr, pkt); err != nil {
		cb.log.Debug().Err(err).Msg("non-blocking transmit failed, segment dropped")
		return err
	}
	return nil
}

// sendAck emits a bare ACK segment reflecting the receiver's current
// RCV.NXT and RCV.WND, per spec.md §4.1 step 9 and §4.6.
func (cb *ControlBlock) sendAck() {
	rcvNxt, rcvWnd := cb.rcv.acceptableWindow()
	pkt := cb.buildSegment(cb.snd.sndNxt, rcvNxt, header.TCPFlagAck, rcvWnd, nil)
	cb.emit(pkt)
}

// sendSegment emits one data (or FIN) segment already assigned a
// sequence number by the sender, piggybacking the current ACK.
func (cb *ControlBlock) sendSegment(seg outgoingSegment) {
	rcvNxt, rcvWnd := cb.rcv.acceptableWindow()
	flags := uint8(header.TCPFlagAck)
	if seg.fin {
		flags |= header.TCPFlagFin
	}
	pkt := cb.buildSegment(seg.seq, rcvNxt, flags, rcvWnd, seg.data)
	cb.emit(pkt)
}
