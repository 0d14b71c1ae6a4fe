package tcp

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/header"
	"github.com/kbypass/estack/iface"
	"github.com/kbypass/estack/iface/channellink"
	"github.com/kbypass/estack/seqnum"
)

// wireEndToEnd connects two ControlBlocks through a pair of in-memory
// channellink.Links, decoding each arriving packet's TCP header back into
// an Enqueue call, mirroring what an (out of scope) demultiplexing layer
// would do.
func wireEndToEnd(t *testing.T, cfg Config) (client, server *ControlBlock, rt *iface.RealRuntime) {
	t.Helper()

	rt = iface.NewRealRuntime()
	addrA := header.Address{10, 0, 0, 1}
	addrB := header.Address{10, 0, 0, 2}
	linkA, linkB := channellink.NewPair(addrA, addrB, 64)

	clientEP := Endpoint{Addr: addrA, Port: 1234}
	serverEP := Endpoint{Addr: addrB, Port: 80}

	client = NewControlBlock(clientEP, serverEP, seqnum.Value(1000), seqnum.Value(5000), seqnum.Size(65535), seqnum.Size(65535), 1460, cfg, linkA, rt, zerolog.Nop())
	server = NewControlBlock(serverEP, clientEP, seqnum.Value(5000), seqnum.Value(1000), seqnum.Size(65535), seqnum.Size(65535), 1460, cfg, linkB, rt, zerolog.Nop())

	linkA.Attach(func(pkt buffer.View) {
		deliver(server, pkt)
	})
	linkB.Attach(func(pkt buffer.View) {
		deliver(client, pkt)
	})

	return client, server, rt
}

func deliver(cb *ControlBlock, pkt buffer.View) {
	h := header.TCP(pkt)
	cb.Enqueue(seqnum.Value(h.SequenceNumber()), seqnum.Value(h.AckNumber()), h.Flags(), seqnum.Size(h.WindowSize()), h.Payload())
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AckDelay = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestScenarioInOrderStream(t *testing.T) {
	client, server, _ := wireEndToEnd(t, testConfig())

	if err := client.Push([]byte("hello, server")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return server.Available() >= 13 })

	buf := make([]byte, 64)
	n := server.Pop(buf)
	if string(buf[:n]) != "hello, server" {
		t.Fatalf("server received %q, want %q", buf[:n], "hello, server")
	}
}

func TestScenarioReassemblyOutOfOrder(t *testing.T) {
	client, server, _ := wireEndToEnd(t, testConfig())

	// Directly drive the server's ingress pipeline to simulate segments
	// arriving out of order, bypassing the sender so the out-of-order
	// condition is deterministic rather than a race against the real
	// sender task.
	rcvNxt, _ := server.rcv.acceptableWindow()

	server.mu.Lock()
	server.handleSegment(incomingSegment{
		seq:     rcvNxt + 5,
		ack:     client.snd.sndUna,
		flags:   header.TCPFlagAck,
		wnd:     seqnum.Size(65535),
		payload: []byte("world"),
	})
	server.mu.Unlock()

	if server.Available() != 0 {
		t.Fatalf("out-of-order segment should not be delivered yet")
	}

	server.mu.Lock()
	server.handleSegment(incomingSegment{
		seq:     rcvNxt,
		ack:     client.snd.sndUna,
		flags:   header.TCPFlagAck,
		wnd:     seqnum.Size(65535),
		payload: []byte("hello"),
	})
	server.mu.Unlock()

	waitFor(t, time.Second, func() bool { return server.Available() == 10 })

	buf := make([]byte, 10)
	n := server.Pop(buf)
	if string(buf[:n]) != "helloworld" {
		t.Fatalf("reassembled stream = %q, want %q", buf[:n], "helloworld")
	}
}

func TestScenarioCloseFromEstablished(t *testing.T) {
	client, server, _ := wireEndToEnd(t, testConfig())

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, fin := server.rcv.FinReceived()
		return fin
	})

	server.WaitForFin()

	if err := server.Close(); err != nil {
		t.Fatalf("server Close: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return client.State() == StateTimeWait || client.State() == StateClosed })
}
