package tcp

import (
	"testing"
	"time"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/congestion"
	"github.com/kbypass/estack/seqnum"
)

func newTestSender(iss seqnum.Value) *sender {
	rto := congestion.NewRTOEstimator(congestion.DefaultMinRTO, congestion.DefaultMaxRTO)
	cc := congestion.NewReno(1000)
	return newSender(iss, seqnum.Size(65535), 1000, 1<<20, cc, rto)
}

func TestSenderPushAndDequeue(t *testing.T) {
	s := newTestSender(seqnum.Value(0))
	s.Push(buffer.View("hello"))

	seg, has := s.nextUnsent()
	if !has || string(seg.data) != "hello" {
		t.Fatalf("nextUnsent = %q, %v", seg.data, has)
	}

	dequeued := s.dequeueUnsent(time.Now())
	if dequeued.seq != seqnum.Value(0) {
		t.Fatalf("dequeued.seq = %d, want 0", dequeued.seq)
	}
	if s.sndNxt != seqnum.Value(5) {
		t.Fatalf("sndNxt = %d, want 5", s.sndNxt)
	}
	if s.unacked.Len() != 1 {
		t.Fatalf("unacked.Len() = %d, want 1", s.unacked.Len())
	}
}

func TestSenderProcessAckRetiresSegments(t *testing.T) {
	s := newTestSender(seqnum.Value(0))
	s.Push(buffer.View("hello"))
	s.dequeueUnsent(time.Now())

	acked := s.ProcessAck(seqnum.Value(5), seqnum.Size(65535), time.Now())
	if !acked {
		t.Fatalf("ProcessAck reported no new data acked")
	}
	if s.sndUna != seqnum.Value(5) {
		t.Fatalf("sndUna = %d, want 5", s.sndUna)
	}
	if s.unacked.Len() != 0 {
		t.Fatalf("unacked.Len() = %d, want 0 after full ack", s.unacked.Len())
	}
}

func TestSenderKarnExcludesRetransmittedSample(t *testing.T) {
	s := newTestSender(seqnum.Value(0))
	s.Push(buffer.View("hello"))
	s.dequeueUnsent(time.Now())

	if !s.rttMeasuring {
		t.Fatalf("expected the first send to start an RTT measurement")
	}
	s.markRetransmitted()
	if s.rttMeasuring {
		t.Fatalf("markRetransmitted should disqualify the in-flight RTT sample (Karn's algorithm)")
	}

	// ProcessAck must not treat this ack as a fresh RTT sample, since
	// rttMeasuring was already cleared.
	s.ProcessAck(seqnum.Value(5), seqnum.Size(65535), time.Now())
	if s.rttMeasuring {
		t.Fatalf("rttMeasuring should remain false once disqualified")
	}
}

func TestSenderPushFinAllAcked(t *testing.T) {
	s := newTestSender(seqnum.Value(0))
	s.PushFin()
	seg := s.dequeueUnsent(time.Now())
	if !seg.fin {
		t.Fatalf("expected the dequeued segment to be the FIN")
	}

	s.ProcessAck(s.sndNxt, seqnum.Size(65535), time.Now())
	if !s.allAcked() {
		t.Fatalf("expected allAcked() once the FIN is acknowledged")
	}
	if !s.finAcked {
		t.Fatalf("expected finAcked to be set")
	}
}
