package congestion

import (
	"testing"
	"time"

	"github.com/kbypass/estack/seqnum"
)

func TestRenoSlowStartGrows(t *testing.T) {
	r := NewReno(1000)
	cwnd0, _ := r.Cwnd().Get()

	una := seqnum.Value(0)
	nxt := seqnum.Value(5000)
	r.OnAckReceived(time.Second, una, nxt, seqnum.Value(1000))

	cwnd1, _ := r.Cwnd().Get()
	if cwnd1 <= cwnd0 {
		t.Fatalf("expected cwnd to grow in slow start: %v -> %v", cwnd0, cwnd1)
	}
}

func TestRenoFastRetransmitOnThreeDupAcks(t *testing.T) {
	r := NewReno(1000)
	una := seqnum.Value(1)
	nxt := seqnum.Value(1001)

	for i := 0; i < dupAckThreshold; i++ {
		r.OnAckReceived(time.Second, una, nxt, una)
	}

	if flag, _ := r.RetransmitNowFlag().Get(); !flag {
		t.Fatalf("expected RetransmitNowFlag to be set after %d dupacks", dupAckThreshold)
	}
	r.OnFastRetransmit()
	if flag, _ := r.RetransmitNowFlag().Get(); flag {
		t.Fatalf("expected RetransmitNowFlag to clear after OnFastRetransmit")
	}
}

func TestRenoLimitedTransmitOnFirstTwoDupAcks(t *testing.T) {
	r := NewReno(1000)
	una := seqnum.Value(1)
	nxt := seqnum.Value(1001)

	r.OnAckReceived(time.Second, una, nxt, una)
	if got, _ := r.LimitedTransmitCwndIncrease().Get(); got != 1000 {
		t.Fatalf("limited transmit allowance = %v, want 1000", got)
	}
	r.OnAckReceived(time.Second, una, nxt, una)
	if got, _ := r.LimitedTransmitCwndIncrease().Get(); got != 2000 {
		t.Fatalf("limited transmit allowance = %v, want 2000", got)
	}
}

func TestRenoOnRTOCollapsesCwnd(t *testing.T) {
	r := NewReno(1000)
	r.Cwnd().Set(50000)
	r.OnRTO(seqnum.Value(0))

	if cwnd, _ := r.Cwnd().Get(); cwnd != r.mss {
		t.Fatalf("cwnd after RTO = %v, want %v", cwnd, r.mss)
	}
}

func TestRenoExitsFastRecoveryOnFullAck(t *testing.T) {
	r := NewReno(1000)
	una := seqnum.Value(1)
	nxt := seqnum.Value(3001)

	for i := 0; i < dupAckThreshold; i++ {
		r.OnAckReceived(time.Second, una, nxt, una)
	}
	if !r.inFastRecovery {
		t.Fatalf("expected to be in fast recovery")
	}
	if got, _ := r.LimitedTransmitCwndIncrease().Get(); got != 0 {
		t.Fatalf("limited transmit allowance = %v, want 0 once fast retransmit fires", got)
	}

	// Full ACK reaching the recovery point exits fast recovery.
	r.OnAckReceived(time.Second, una, nxt, nxt)
	if r.inFastRecovery {
		t.Fatalf("expected to have exited fast recovery")
	}
	if cwnd, _ := r.Cwnd().Get(); cwnd != r.ssthresh {
		t.Fatalf("cwnd after recovery = %v, want ssthresh %v", cwnd, r.ssthresh)
	}
}

// TestRenoLimitedTransmitResetsOnFreshAck covers the bug where the RFC
// 3042 allowance, once granted for a dupack run, was never cleared: a
// fresh ACK that advances SND.UNA (ending the dupack run without ever
// reaching fast retransmit) must zero it, or the sender's effective
// window stays permanently inflated.
func TestRenoLimitedTransmitResetsOnFreshAck(t *testing.T) {
	r := NewReno(1000)
	una := seqnum.Value(1)
	nxt := seqnum.Value(5001)

	r.OnAckReceived(time.Second, una, nxt, una)
	if got, _ := r.LimitedTransmitCwndIncrease().Get(); got != 1000 {
		t.Fatalf("limited transmit allowance = %v, want 1000", got)
	}

	// A fresh ACK after a single dupack (two short of fast retransmit)
	// ends the run.
	r.OnAckReceived(time.Second, una, nxt, una.Add(seqnum.Size(1000)))
	if got, _ := r.LimitedTransmitCwndIncrease().Get(); got != 0 {
		t.Fatalf("limited transmit allowance = %v, want 0 after a fresh ACK", got)
	}
}
