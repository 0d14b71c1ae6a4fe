package tcp

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/header"
	"github.com/kbypass/estack/iface"
	"github.com/kbypass/estack/seqnum"
)

// newTestControlBlockWithEndpoint builds a ControlBlock wired to l3 and a
// fresh RealRuntime, with fixed ISS/IRS/window/MSS values, for tests that
// only care about what gets emitted rather than end-to-end delivery.
func newTestControlBlockWithEndpoint(t *testing.T, l3 iface.Layer3Endpoint, cfg Config) *ControlBlock {
	t.Helper()
	return newTestControlBlockWithRuntime(t, l3, iface.NewRealRuntime(), cfg)
}

// newTestControlBlockWithRuntime is newTestControlBlockWithEndpoint with an
// explicit AsyncRuntime, for tests that need a iface.VirtualRuntime's
// manually-advanced clock instead of the wall clock.
func newTestControlBlockWithRuntime(t *testing.T, l3 iface.Layer3Endpoint, rt iface.AsyncRuntime, cfg Config) *ControlBlock {
	t.Helper()
	local := Endpoint{Addr: header.Address{10, 0, 0, 1}, Port: 1234}
	remote := Endpoint{Addr: header.Address{10, 0, 0, 2}, Port: 80}
	return NewControlBlock(local, remote, seqnum.Value(1000), seqnum.Value(5000), seqnum.Size(65535), seqnum.Size(65535), 1460, cfg, l3, rt, zerolog.Nop())
}

// recordingEndpoint is an iface.Layer3Endpoint that keeps every segment
// handed to it instead of delivering it anywhere, so tests can inspect
// exactly what the engine chose to emit without a full channellink pair.
type recordingEndpoint struct {
	mu  sync.Mutex
	pkt []buffer.View
}

func newRecordingEndpoint() *recordingEndpoint {
	return &recordingEndpoint{}
}

func (e *recordingEndpoint) TransmitTCPPacketNonblocking(peer header.Address, packet buffer.View) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pkt = append(e.pkt, packet.Clone())
	return nil
}

func (e *recordingEndpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pkt)
}

func (e *recordingEndpoint) at(i int) header.TCP {
	e.mu.Lock()
	defer e.mu.Unlock()
	return header.TCP(e.pkt[i])
}

func (e *recordingEndpoint) last() header.TCP {
	e.mu.Lock()
	defer e.mu.Unlock()
	return header.TCP(e.pkt[len(e.pkt)-1])
}

// segmentChecker is a function that checks one property of an emitted TCP
// segment, following the teacher's checker.TransportChecker pattern
// (checker/checker.go): compose several to assert on one packet at once.
type segmentChecker func(*testing.T, header.TCP)

// assertSegment runs every checker against h, failing the test with
// checker-specific messages for any that don't hold.
func assertSegment(t *testing.T, h header.TCP, checkers ...segmentChecker) {
	t.Helper()
	for _, c := range checkers {
		c(t, h)
	}
}

func withAckNum(want uint32) segmentChecker {
	return func(t *testing.T, h header.TCP) {
		t.Helper()
		if got := h.AckNumber(); got != want {
			t.Errorf("ack number = %d, want %d", got, want)
		}
	}
}

func withSeqNum(want uint32) segmentChecker {
	return func(t *testing.T, h header.TCP) {
		t.Helper()
		if got := h.SequenceNumber(); got != want {
			t.Errorf("sequence number = %d, want %d", got, want)
		}
	}
}

func withFlags(want uint8) segmentChecker {
	return func(t *testing.T, h header.TCP) {
		t.Helper()
		if got := h.Flags(); got != want {
			t.Errorf("flags = %#x, want %#x", got, want)
		}
	}
}

func withFlagSet(flag uint8) segmentChecker {
	return func(t *testing.T, h header.TCP) {
		t.Helper()
		if h.Flags()&flag == 0 {
			t.Errorf("flags = %#x, want bit %#x set", h.Flags(), flag)
		}
	}
}

func withPayloadLen(want int) segmentChecker {
	return func(t *testing.T, h header.TCP) {
		t.Helper()
		if got := len(h.Payload()); got != want {
			t.Errorf("payload length = %d, want %d", got, want)
		}
	}
}
